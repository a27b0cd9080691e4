package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"aisquery/internal/domain"
	"aisquery/internal/orchestrator"
)

// wsCommand is one client frame. A text frame that is not JSON is taken as
// a query.
type wsCommand struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Query     string `json:"query"`
}

type wsEvent struct {
	Type      string                   `json:"type"`
	SessionID string                   `json:"session_id,omitempty"`
	Stage     *domain.StageMessage     `json:"stage,omitempty"`
	Envelope  *domain.ResponseEnvelope `json:"envelope,omitempty"`
	Message   string                   `json:"message,omitempty"`
}

type wsConn struct {
	ws     *websocket.Conn
	sendMu sync.Mutex
}

func (c *wsConn) send(ev wsEvent) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.ws.WriteJSON(ev)
}

// queryWS answers queries for one session in arrival order, streaming each
// completed stage before the envelope.
func (s *Server) queryWS(w http.ResponseWriter, req *http.Request) {
	sessionID := strings.TrimSpace(req.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = newSessionID()
	}

	ws, err := s.wsUpgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Warn("upgrade websocket failed", "error", err)
		return
	}
	conn := &wsConn{ws: ws}
	defer func() {
		_ = ws.Close()
	}()

	// A hijacked connection's request context is not cancelled when the
	// peer goes away; the reader cancels ctx instead so an in-flight query
	// is abandoned before it touches the session.
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	_ = conn.send(wsEvent{Type: "ready", SessionID: sessionID})

	cmds := make(chan wsCommand, 8)
	go s.readWS(ctx, cancel, ws, sessionID, cmds)

	for cmd := range cmds {
		switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
		case "reset":
			if err := s.svc.Reset(ctx, sessionID); err != nil {
				_ = conn.send(wsEvent{Type: "error", Message: "reset failed: " + err.Error()})
				continue
			}
			_ = conn.send(wsEvent{Type: "reset", SessionID: sessionID})
		case "", "query":
			if strings.TrimSpace(cmd.Query) == "" {
				_ = conn.send(wsEvent{Type: "error", Message: "query is required"})
				continue
			}
			if err := s.answerWS(ctx, conn, sessionID, cmd); err != nil {
				return
			}
		default:
			_ = conn.send(wsEvent{Type: "error", Message: "unknown command: " + cmd.Type})
		}
	}
}

// readWS decodes client frames into cmds until the connection fails, then
// cancels ctx and closes cmds.
func (s *Server) readWS(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, sessionID string, cmds chan<- wsCommand) {
	defer close(cmds)
	defer cancel()
	for {
		msgType, payload, err := ws.ReadMessage()
		if err != nil {
			s.logger.Info("query websocket closed", "session_id", sessionID)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var cmd wsCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			cmd = wsCommand{Query: string(payload)}
		}
		select {
		case cmds <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) answerWS(ctx context.Context, conn *wsConn, sessionID string, cmd wsCommand) error {
	obs := orchestrator.ObserverFunc(func(_ context.Context, ev domain.StageEvent) {
		msg := ev.Message()
		_ = conn.send(wsEvent{Type: "stage", Stage: &msg})
	})
	env, err := s.svc.HandleQuery(ctx, domain.QueryRequest{
		RequestID: cmd.RequestID,
		SessionID: sessionID,
		Query:     cmd.Query,
	}, obs)
	s.observe("ws", env, err)
	if err != nil {
		s.logger.Warn("websocket query abandoned", "session_id", sessionID, "error", err)
		return err
	}
	return conn.send(wsEvent{Type: "result", Envelope: &env})
}
