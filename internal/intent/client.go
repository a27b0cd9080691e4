package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"aisquery/internal/domain"
)

// RemotePlanner delegates planning to an HTTP planner service:
// POST {base}/v1/plan -> {"plan": {...}}.
type RemotePlanner struct {
	baseURL string
	http    *http.Client
}

func NewRemotePlanner(baseURL string, timeout time.Duration) *RemotePlanner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemotePlanner{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *RemotePlanner) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type remoteMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type remotePlanRequest struct {
	RequestID      string          `json:"request_id,omitempty"`
	Text           string          `json:"text"`
	CorrectionHint string          `json:"correction_hint,omitempty"`
	History        []remoteMessage `json:"history,omitempty"`
}

type remotePlanResponse struct {
	Plan  json.RawMessage `json:"plan"`
	Error string          `json:"error,omitempty"`
}

func (c *RemotePlanner) Plan(ctx context.Context, req PlanRequest) (json.RawMessage, error) {
	if !c.Enabled() {
		return nil, errors.Mark(errors.New("planner service is not configured"), domain.ErrPlannerUnavailable)
	}
	body := remotePlanRequest{RequestID: req.RequestID, Text: req.Text, CorrectionHint: req.CorrectionHint}
	for _, m := range req.History {
		body.History = append(body.History, remoteMessage{Role: m.Role, Content: m.Content})
	}
	buf, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/plan", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "planner service"), domain.ErrPlannerUnavailable)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, errors.Mark(
			errors.Newf("planner service status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody))),
			domain.ErrPlannerUnavailable)
	}

	var out remotePlanResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &SchemaError{Reason: "planner service reply is not JSON: " + err.Error()}
	}
	if out.Error != "" {
		return nil, &SchemaError{Reason: "planner service: " + out.Error}
	}
	if len(out.Plan) == 0 || bytes.Equal(out.Plan, []byte("null")) {
		return nil, &SchemaError{Reason: "planner service returned no plan"}
	}
	return out.Plan, nil
}
