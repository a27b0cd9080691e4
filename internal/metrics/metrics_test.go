package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aisquery/internal/domain"
)

func TestOnStage(t *testing.T) {
	m := New()
	ctx := context.Background()
	m.OnStage(ctx, domain.StageEvent{Stage: domain.StageParseIntent, Status: domain.StageStatusCompleted, Duration: 30 * time.Millisecond})
	m.OnStage(ctx, domain.StageEvent{Stage: domain.StageParseIntent, Status: domain.StageStatusCompleted, Duration: 10 * time.Millisecond})
	m.OnStage(ctx, domain.StageEvent{Stage: domain.StageResolveVessels, Status: domain.StageStatusFailed})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stages.WithLabelValues("parse_intent", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stages.WithLabelValues("resolve_vessels", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.latency))
}

func TestObserveQuery(t *testing.T) {
	m := New()
	m.ObserveQuery("http", domain.ResponseEnvelope{Success: true}, nil)
	m.ObserveQuery("http", domain.ResponseEnvelope{Error: &domain.ErrorBody{Kind: domain.KindPlanValidation}}, nil)
	m.ObserveQuery("ws", domain.ResponseEnvelope{}, errors.New("gone"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("http", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("http", "plan_validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("ws", "abandoned")))
}

func TestHandlerExposesStageCounter(t *testing.T) {
	m := New()
	m.OnStage(context.Background(), domain.StageEvent{Stage: domain.StageLoitering, Status: domain.StageStatusCompleted})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `aisquery_stage_total{stage="loitering",status="completed"} 1`)
}
