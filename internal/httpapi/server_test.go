package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aisquery/internal/app"
	"aisquery/internal/config"
	"aisquery/internal/domain"
	"aisquery/internal/memory"
	"aisquery/internal/mocks"
	"aisquery/internal/orchestrator"
	"aisquery/internal/vessel"
)

type stubService struct {
	mu      sync.Mutex
	queries []domain.QueryRequest
	resets  []string
	fail    error
	convs   map[string]memory.Conversation
}

func (s *stubService) HandleQuery(ctx context.Context, req domain.QueryRequest, obs orchestrator.StageObserver) (domain.ResponseEnvelope, error) {
	s.mu.Lock()
	s.queries = append(s.queries, req)
	s.mu.Unlock()
	if s.fail != nil {
		return domain.ResponseEnvelope{}, s.fail
	}
	if obs != nil {
		obs.OnStage(ctx, domain.StageEvent{SessionID: req.SessionID, Stage: domain.StageParseIntent, Status: domain.StageStatusCompleted})
		obs.OnStage(ctx, domain.StageEvent{SessionID: req.SessionID, Stage: domain.StageValidatePlan, Status: domain.StageStatusFailed})
	}
	return domain.ResponseEnvelope{
		RequestID: "req-1",
		SessionID: req.SessionID,
		Query:     req.Query,
		Success:   false,
		Error:     &domain.ErrorBody{Kind: domain.KindPlanValidation, Stage: domain.StageValidatePlan, Message: "bad window"},
		Stages:    []domain.StageName{domain.StageResolveReferences, domain.StageParseIntent, domain.StageBuildResponse},
	}, nil
}

func (s *stubService) History(sessionID string) (memory.Conversation, bool) {
	c, ok := s.convs[sessionID]
	return c, ok
}

func (s *stubService) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, sessionID)
	return nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type transportCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *transportCounter) ObserveQuery(transport string, _ domain.ResponseEnvelope, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[transport]++
}

func (c *transportCounter) count(transport string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[transport]
}

func (s *stubService) recorded() []domain.QueryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.QueryRequest(nil), s.queries...)
}

func newTestServer(svc *stubService, opts Options) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httptest.NewServer(NewServer(svc, opts, logger).Routes())
}

func TestQueryReturnsEnvelopeForPipelineFailure(t *testing.T) {
	svc := &stubService{}
	counter := &transportCounter{}
	srv := newTestServer(svc, Options{Observer: counter})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/query", "application/json", strings.NewReader(`{"session_id":"s-1","query":"Show loitering"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env domain.ResponseEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, domain.KindPlanValidation, env.Error.Kind)
	assert.Equal(t, "s-1", svc.recorded()[0].SessionID)
	assert.Equal(t, 1, counter.count("http"))
}

func TestQueryRejectsBadInput(t *testing.T) {
	srv := newTestServer(&stubService{}, Options{})
	defer srv.Close()

	tests := map[string]string{
		"invalid json": `{`,
		"empty query":  `{"session_id":"s-1","query":"   "}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/query", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestQueryAbandoned(t *testing.T) {
	srv := newTestServer(&stubService{fail: context.Canceled}, Options{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/query", "application/json", strings.NewReader(`{"query":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHistoryAndReset(t *testing.T) {
	svc := &stubService{convs: map[string]memory.Conversation{
		"s-1": {
			SessionID:   "s-1",
			Turns:       []memory.Turn{{Role: memory.RoleUser, Content: "hi", Success: true}},
			LastVessels: []domain.Vessel{{VesselID: "v-1", MMSI: "123456789"}},
		},
	}}
	srv := newTestServer(svc, Options{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/sessions/s-1/history")
	require.NoError(t, err)
	var body struct {
		SessionID   string          `json:"session_id"`
		Turns       []memory.Turn   `json:"turns"`
		LastVessels []domain.Vessel `json:"last_vessels"`
		Summary     string          `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "s-1", body.SessionID)
	assert.Len(t, body.Turns, 1)
	assert.Equal(t, "123456789", body.LastVessels[0].MMSI)
	assert.Equal(t, "1 query, 1 answered. Last vessels: MMSI 123456789.", body.Summary)

	resp, err = http.Get(srv.URL + "/v1/sessions/nope/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/sessions/s-1/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	svc.mu.Lock()
	assert.Equal(t, []string{"s-1"}, svc.resets)
	svc.mu.Unlock()
}

func TestHealthz(t *testing.T) {
	healthy := newTestServer(&stubService{}, Options{Store: pingFunc(func(context.Context) error { return nil })})
	defer healthy.Close()
	resp, err := http.Get(healthy.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestServer(&stubService{}, Options{Store: pingFunc(func(context.Context) error { return errors.New("refused") })})
	defer down.Close()
	resp, err = http.Get(down.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsMountedWhenSet(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("aisquery_up 1\n"))
	})
	srv := newTestServer(&stubService{}, Options{Metrics: metrics})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "aisquery_up 1\n", string(b))
}

func TestWebsocketStreamsStagesThenResult(t *testing.T) {
	svc := &stubService{}
	counter := &transportCounter{}
	srv := newTestServer(svc, Options{Observer: counter})
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?session_id=s-ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	read := func() wsEvent {
		var ev wsEvent
		require.NoError(t, ws.ReadJSON(&ev))
		return ev
	}

	ready := read()
	assert.Equal(t, "ready", ready.Type)
	assert.Equal(t, "s-ws", ready.SessionID)

	require.NoError(t, ws.WriteJSON(wsCommand{Query: "Show trajectory of 123456789"}))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("list all vessels")))

	for i := 0; i < 2; i++ {
		first := read()
		require.Equal(t, "stage", first.Type)
		assert.Equal(t, domain.StageParseIntent, first.Stage.Stage)
		second := read()
		require.Equal(t, "stage", second.Type)
		assert.Equal(t, domain.StageStatusFailed, second.Stage.Status)
		result := read()
		require.Equal(t, "result", result.Type)
		require.NotNil(t, result.Envelope)
		assert.Equal(t, "s-ws", result.Envelope.SessionID)
	}

	require.NoError(t, ws.WriteJSON(wsCommand{Type: "reset"}))
	assert.Equal(t, "reset", read().Type)

	require.NoError(t, ws.WriteJSON(wsCommand{Type: "query"}))
	assert.Equal(t, "error", read().Type)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.queries, 2)
	assert.Equal(t, "list all vessels", svc.queries[1].Query)
	assert.Equal(t, []string{"s-ws"}, svc.resets)
}

type memoryBackend struct {
	*vessel.MemoryRegistry
	*mocks.PointStoreMock
}

func TestWebsocketDisconnectAbandonsQuery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	planner := &mocks.PlannerMock{
		Delay:  10 * time.Second,
		Drafts: map[string]string{"Show trajectory of 123456789": `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"single","vessels":[{"mmsi":"123456789"}]}`},
	}
	backend := memoryBackend{
		MemoryRegistry: vessel.NewMemoryRegistry(domain.Vessel{VesselID: "v-1", MMSI: "123456789"}),
		PointStoreMock: &mocks.PointStoreMock{},
	}
	pipeline := app.NewPipeline(config.DefaultPipeline(), planner, backend, time.Now, logger)
	counter := &transportCounter{}
	srv := httptest.NewServer(NewServer(pipeline.Service, Options{Observer: counter}, logger).Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?session_id=s-gone"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ready wsEvent
	require.NoError(t, ws.ReadJSON(&ready))
	require.Equal(t, "ready", ready.Type)

	require.NoError(t, ws.WriteJSON(wsCommand{Query: "Show trajectory of 123456789"}))
	require.Eventually(t, func() bool { return len(planner.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool { return counter.count("ws") == 1 }, 2*time.Second, 10*time.Millisecond,
		"the in-flight query returns long before the planner delay")
	conv, _ := pipeline.Service.History("s-gone")
	assert.Empty(t, conv.Turns)
	assert.Empty(t, conv.LastVessels)
}
