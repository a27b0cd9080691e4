package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aisquery/internal/config"
	"aisquery/internal/db"
	"aisquery/internal/domain"
	"aisquery/internal/intent"
	"aisquery/internal/mocks"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func seededStore(t *testing.T, end time.Time) *db.SQLStore {
	t.Helper()
	ctx := context.Background()
	store, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "ais.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	v := domain.Vessel{VesselID: "v-1", MMSI: "123456789", Name: "EVER GIVEN"}
	require.NoError(t, store.UpsertVessel(ctx, v))
	var points []domain.TrajectoryPoint
	for i := 0; i < 8; i++ {
		points = append(points, domain.TrajectoryPoint{
			Timestamp: end.Add(-time.Duration(i) * time.Hour),
			Lat:       30 + float64(i)*0.1, Lon: 32, SOG: 10,
		})
	}
	require.NoError(t, store.InsertPositions(ctx, v.VesselID, points))
	return store
}

func TestClockAnchoredToData(t *testing.T) {
	end := time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC)
	store := seededStore(t, end)

	cfg := config.DefaultPipeline()
	clock, err := Clock(context.Background(), cfg, store, discard)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), clock(), time.Minute)

	cfg.AnchorToData = true
	clock, err = Clock(context.Background(), cfg, store, discard)
	require.NoError(t, err)
	assert.Equal(t, end, clock())
}

func TestClockAnchorOnEmptyStoreFallsBack(t *testing.T) {
	ctx := context.Background()
	store, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer store.Close()

	cfg := config.DefaultPipeline()
	cfg.AnchorToData = true
	clock, err := Clock(ctx, cfg, store, discard)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), clock(), time.Minute)
}

func TestPipelineOverSQLite(t *testing.T) {
	end := time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC)
	store := seededStore(t, end)
	cfg := config.DefaultPipeline()
	cfg.AnchorToData = true
	clock, err := Clock(context.Background(), cfg, store, discard)
	require.NoError(t, err)

	planner := &mocks.PlannerMock{Drafts: map[string]string{
		"Show trajectory of 123456789 in the last 6 hours": `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"single","vessels":[{"mmsi":"123456789"}],"time_constraint":{"relative":"last_6h"}}`,
	}}
	p := NewPipeline(cfg, planner, store, clock, discard)

	env, err := p.Service.HandleQuery(context.Background(), domain.QueryRequest{
		SessionID: "cli",
		Query:     "Show trajectory of 123456789 in the last 6 hours",
	}, nil)
	require.NoError(t, err)
	require.True(t, env.Success, "error: %+v", env.Error)

	res, ok := env.Result.(*domain.TrajectoryResult)
	require.True(t, ok)
	require.Len(t, res.Tracks, 1)
	// hourly reports from end-6h through end inclusive
	assert.Len(t, res.Tracks[0].Points, 7)

	conv, ok := p.Sessions.Snapshot("cli")
	require.True(t, ok)
	assert.Len(t, conv.Turns, 2)
}

func TestNewPlanner(t *testing.T) {
	p, err := NewPlanner(config.PlannerConfig{Mode: "remote", RemoteURL: "http://planner:8080"}, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &intent.RemotePlanner{}, p)

	p, err = NewPlanner(config.PlannerConfig{Mode: "llm", Provider: "ollama", OllamaBaseURL: "http://localhost:11434", Model: "llama3"}, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &intent.LLMPlanner{}, p)

	_, err = NewPlanner(config.PlannerConfig{Mode: "llm", Provider: "gemini"}, time.Second)
	assert.Error(t, err)
}
