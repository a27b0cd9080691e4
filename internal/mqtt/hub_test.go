package mqtt

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aisquery/internal/domain"
	"aisquery/internal/orchestrator"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient routes publishes to subscribed handlers in-process.
type fakeClient struct {
	opts *paho.ClientOptions

	mu       sync.Mutex
	handlers map[string]paho.MessageHandler
	sent     []published
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() paho.Token {
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return doneToken{}
}
func (c *fakeClient) Disconnect(uint) {}
func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	var b []byte
	switch p := payload.(type) {
	case string:
		b = []byte(p)
	case []byte:
		b = p
	}
	c.mu.Lock()
	c.sent = append(c.sent, published{topic: topic, retained: retained, payload: b})
	c.mu.Unlock()
	return doneToken{}
}
func (c *fakeClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = map[string]paho.MessageHandler{}
	}
	c.handlers[topic] = cb
	return doneToken{}
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return doneToken{}
}
func (c *fakeClient) Unsubscribe(...string) paho.Token        { return doneToken{} }
func (c *fakeClient) AddRoute(string, paho.MessageHandler)    {}
func (c *fakeClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (c *fakeClient) deliver(filter, topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[filter]
	c.mu.Unlock()
	h(c, fakeMessage{topic: topic, payload: payload})
}

func (c *fakeClient) sentTo(topic string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, p := range c.sent {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type stubService struct {
	mu      sync.Mutex
	queries []domain.QueryRequest
	resets  []string
	delays  map[string]time.Duration
	order   []string
}

func (s *stubService) HandleQuery(ctx context.Context, req domain.QueryRequest, obs orchestrator.StageObserver) (domain.ResponseEnvelope, error) {
	time.Sleep(s.delays[req.Query])
	s.mu.Lock()
	s.queries = append(s.queries, req)
	s.order = append(s.order, req.SessionID+":"+req.Query)
	s.mu.Unlock()
	obs.OnStage(ctx, domain.StageEvent{RequestID: req.RequestID, SessionID: req.SessionID, Stage: domain.StageParseIntent, Status: domain.StageStatusCompleted})
	return domain.ResponseEnvelope{RequestID: req.RequestID, SessionID: req.SessionID, Query: req.Query, Success: true}, nil
}

func (s *stubService) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, sessionID)
	s.order = append(s.order, sessionID+":reset")
	return nil
}

type countingObserver struct {
	mu    sync.Mutex
	count int
}

func (o *countingObserver) ObserveQuery(transport string, _ domain.ResponseEnvelope, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if transport == "mqtt" {
		o.count++
	}
}

func startHub(t *testing.T, svc QueryService, obs QueryObserver) (*Hub, *fakeClient, context.CancelFunc) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(HubConfig{TopicPrefix: "aisq", ClientID: "test"}, svc, obs, logger)
	fc := &fakeClient{}
	hub.newClient = func(o *paho.ClientOptions) paho.Client {
		fc.opts = o
		return fc
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, hub.Start(ctx))
	return hub, fc, cancel
}

func TestHubAnswersQueries(t *testing.T) {
	svc := &stubService{}
	obs := &countingObserver{}
	hub, fc, _ := startHub(t, svc, obs)

	online := fc.sentTo("aisq/server/online")
	require.Len(t, online, 1)
	assert.True(t, online[0].retained)
	assert.Equal(t, "1", string(online[0].payload))

	body, _ := json.Marshal(domain.QueryMessage{RequestID: "req-9", Query: "Show trajectory of 123456789"})
	fc.deliver(TopicSessionQueries("aisq"), "aisq/session/s-42/query", body)
	fc.deliver(TopicSessionQueries("aisq"), "aisq/session/s-42/query", []byte("plain text query"))
	hub.Wait()

	require.Len(t, svc.queries, 2)
	byID := map[string]domain.QueryRequest{}
	for _, q := range svc.queries {
		byID[q.RequestID] = q
		assert.Equal(t, "s-42", q.SessionID)
	}
	assert.Equal(t, "Show trajectory of 123456789", byID["req-9"].Query)

	stages := fc.sentTo("aisq/session/s-42/stage")
	require.Len(t, stages, 2)
	var sm domain.StageMessage
	require.NoError(t, json.Unmarshal(stages[0].payload, &sm))
	assert.Equal(t, domain.StageParseIntent, sm.Stage)

	results := fc.sentTo("aisq/session/s-42/result")
	require.Len(t, results, 2)
	var env map[string]any
	require.NoError(t, json.Unmarshal(results[0].payload, &env))
	assert.Equal(t, true, env["success"])
	assert.Equal(t, 2, obs.count)
}

func TestHubResetAndBadTopics(t *testing.T) {
	svc := &stubService{}
	hub, fc, _ := startHub(t, svc, nil)

	fc.deliver(TopicSessionResets("aisq"), "aisq/session/s-1/reset", nil)
	fc.deliver(TopicSessionQueries("aisq"), "other/session/s-1/query", []byte("q"))
	hub.Wait()

	assert.Equal(t, []string{"s-1"}, svc.resets)
	assert.Empty(t, svc.queries)
}

func TestHubKeepsSessionOrder(t *testing.T) {
	svc := &stubService{delays: map[string]time.Duration{"first": 50 * time.Millisecond}}
	hub, fc, _ := startHub(t, svc, nil)
	assert.True(t, fc.opts.Order, "handlers see messages in arrival order")

	fc.deliver(TopicSessionQueries("aisq"), "aisq/session/s-1/query", []byte("first"))
	fc.deliver(TopicSessionQueries("aisq"), "aisq/session/s-1/query", []byte("second"))
	fc.deliver(TopicSessionResets("aisq"), "aisq/session/s-1/reset", nil)
	fc.deliver(TopicSessionQueries("aisq"), "aisq/session/s-2/query", []byte("other"))
	hub.Wait()

	assert.Equal(t, []string{"s-2:other", "s-1:first", "s-1:second", "s-1:reset"}, svc.order)
}

func TestHubDropsMessagesAfterShutdown(t *testing.T) {
	svc := &stubService{}
	hub, fc, cancel := startHub(t, svc, nil)

	cancel()
	hub.Wait()
	fc.deliver(TopicSessionQueries("aisq"), "aisq/session/s-1/query", []byte("late"))
	hub.Wait()

	assert.Empty(t, svc.queries)
}

func TestParseSessionID(t *testing.T) {
	tests := []struct {
		topic, prefix, want string
		wantErr             bool
	}{
		{topic: "aisq/session/abc/query", prefix: "aisq", want: "abc"},
		{topic: "fleet/eu/session/abc/stage", prefix: "fleet/eu", want: "abc"},
		{topic: "aisq/terminal/abc/query", prefix: "aisq", wantErr: true},
		{topic: "aisq/session/abc", prefix: "aisq", wantErr: true},
		{topic: "aisq/session/+/query", prefix: "aisq", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, err := ParseSessionID(tt.topic, tt.prefix)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.topic)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
