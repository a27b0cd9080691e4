// Package mqtt serves the query pipeline over an MQTT broker. Clients
// publish queries to {prefix}/session/{id}/query and receive stage events on
// .../stage and the envelope on .../result.
package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"aisquery/internal/domain"
	"aisquery/internal/orchestrator"
)

type HubConfig struct {
	BrokerURL    string
	ClientID     string
	Username     string
	Password     string
	TopicPrefix  string
	QueryTimeout time.Duration
}

type QueryService interface {
	HandleQuery(ctx context.Context, req domain.QueryRequest, obs orchestrator.StageObserver) (domain.ResponseEnvelope, error)
	Reset(ctx context.Context, sessionID string) error
}

// QueryObserver is told about every answered or abandoned query.
type QueryObserver interface {
	ObserveQuery(transport string, env domain.ResponseEnvelope, err error)
}

type Hub struct {
	cfg       HubConfig
	client    paho.Client
	service   QueryService
	observer  QueryObserver
	logger    *slog.Logger
	newClient func(*paho.ClientOptions) paho.Client

	ctx context.Context
	wg  sync.WaitGroup

	mu     sync.Mutex
	queues map[string][]func(ctx context.Context)
}

func NewHub(cfg HubConfig, service QueryService, observer QueryObserver, logger *slog.Logger) *Hub {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 90 * time.Second
	}
	return &Hub{
		cfg:       cfg,
		service:   service,
		observer:  observer,
		logger:    logger,
		newClient: paho.NewClient,
		ctx:       context.Background(),
		queues:    make(map[string][]func(ctx context.Context)),
	}
}

func (h *Hub) Start(ctx context.Context) error {
	onlineTopic := TopicServerOnline(h.cfg.TopicPrefix)
	opts := paho.NewClientOptions().
		AddBroker(h.cfg.BrokerURL).
		SetClientID(h.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(true).
		SetWill(onlineTopic, "0", 1, true)

	if h.cfg.Username != "" {
		opts.SetUsername(h.cfg.Username)
		opts.SetPassword(h.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		h.logger.Error("mqtt connection lost", "error", err)
	})
	// Subscriptions are not persisted across reconnects with a clean session.
	opts.SetOnConnectHandler(func(c paho.Client) {
		if err := h.subscribeHandlers(c); err != nil {
			h.logger.Error("mqtt subscribe failed", "error", err)
			return
		}
		c.Publish(onlineTopic, 1, true, "1")
	})

	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
	h.client = h.newClient(opts)
	if token := h.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	go func() {
		<-ctx.Done()
		h.Wait()
		if token := h.client.Publish(onlineTopic, 1, true, "0"); token.WaitTimeout(time.Second) && token.Error() != nil {
			h.logger.Warn("publish offline status failed", "error", token.Error())
		}
		h.client.Disconnect(250)
	}()
	return nil
}

func (h *Hub) subscribeHandlers(c paho.Client) error {
	if token := c.Subscribe(TopicSessionQueries(h.cfg.TopicPrefix), 1, h.handleQuery); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := c.Subscribe(TopicSessionResets(h.cfg.TopicPrefix), 1, h.handleReset); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (h *Hub) handleQuery(_ paho.Client, msg paho.Message) {
	sessionID, err := ParseSessionID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid query topic", "topic", msg.Topic(), "error", err)
		return
	}

	var qm domain.QueryMessage
	if err := json.Unmarshal(msg.Payload(), &qm); err != nil {
		// plain-text payloads are accepted as the query itself
		qm = domain.QueryMessage{Query: strings.TrimSpace(string(msg.Payload()))}
	}
	if qm.RequestID == "" {
		qm.RequestID = uuid.NewString()
	}

	h.enqueue(sessionID, func(ctx context.Context) {
		h.answer(ctx, sessionID, qm)
	})
}

// enqueue runs job after the jobs already queued for the session. Each
// session with pending work has one worker; sessions run independently.
// Jobs arriving after shutdown began are dropped.
func (h *Hub) enqueue(sessionID string, job func(ctx context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		h.logger.Warn("mqtt hub stopping, message dropped", "session_id", sessionID)
		return
	}
	pending := h.queues[sessionID]
	h.queues[sessionID] = append(pending, job)
	if len(pending) > 0 {
		return
	}
	h.wg.Add(1)
	go h.drain(sessionID)
}

func (h *Hub) drain(sessionID string) {
	defer h.wg.Done()
	for {
		h.mu.Lock()
		jobs := h.queues[sessionID]
		if len(jobs) == 0 {
			delete(h.queues, sessionID)
			h.mu.Unlock()
			return
		}
		job := jobs[0]
		h.mu.Unlock()

		ctx, cancel := context.WithTimeout(h.ctx, h.cfg.QueryTimeout)
		job(ctx)
		cancel()

		h.mu.Lock()
		h.queues[sessionID] = h.queues[sessionID][1:]
		h.mu.Unlock()
	}
}

func (h *Hub) answer(ctx context.Context, sessionID string, qm domain.QueryMessage) {
	stageTopic := TopicStage(h.cfg.TopicPrefix, sessionID)
	obs := orchestrator.ObserverFunc(func(_ context.Context, ev domain.StageEvent) {
		h.publish(stageTopic, ev.Message())
	})

	env, err := h.service.HandleQuery(ctx, domain.QueryRequest{
		RequestID: qm.RequestID,
		SessionID: sessionID,
		Query:     qm.Query,
	}, obs)
	if h.observer != nil {
		h.observer.ObserveQuery("mqtt", env, err)
	}
	if err != nil {
		h.logger.Warn("mqtt query abandoned", "session_id", sessionID, "request_id", qm.RequestID, "error", err)
		return
	}
	h.publish(TopicResult(h.cfg.TopicPrefix, sessionID), env)
}

func (h *Hub) handleReset(_ paho.Client, msg paho.Message) {
	sessionID, err := ParseSessionID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid reset topic", "topic", msg.Topic(), "error", err)
		return
	}
	h.enqueue(sessionID, func(ctx context.Context) {
		if err := h.service.Reset(ctx, sessionID); err != nil {
			h.logger.Warn("session reset failed", "session_id", sessionID, "error", err)
			return
		}
		h.logger.Info("session reset", "session_id", sessionID)
	})
}

// publish is best effort; a failed publish never fails the query.
func (h *Hub) publish(topic string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("mqtt payload encode failed", "topic", topic, "error", err)
		return
	}
	if token := h.client.Publish(topic, 1, false, body); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		h.logger.Warn("mqtt publish failed", "topic", topic, "error", token.Error())
	}
}

// Wait blocks until queued and in-flight messages are handled. Once the
// Start context is done no new work is queued, so Wait is safe to call
// during shutdown.
func (h *Hub) Wait() {
	h.mu.Lock()
	h.mu.Unlock() // enqueues before this point have done their wg.Add
	h.wg.Wait()
}
