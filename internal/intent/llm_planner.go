package intent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"aisquery/internal/domain"
	"aisquery/internal/llm"
)

type LLMPlannerConfig struct {
	Model             string
	RequestsPerSecond float64
	Burst             int
	MaxTokens         int
}

// LLMPlanner asks a model provider for a plan draft. Calls share one rate
// limiter so a burst of sessions cannot exceed the provider quota.
type LLMPlanner struct {
	provider llm.Provider
	cfg      LLMPlannerConfig
	limiter  *rate.Limiter
	now      func() time.Time
}

func NewLLMPlanner(provider llm.Provider, cfg LLMPlannerConfig) *LLMPlanner {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &LLMPlanner{
		provider: provider,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		now:      time.Now,
	}
}

func (p *LLMPlanner) Plan(ctx context.Context, req PlanRequest) (json.RawMessage, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "planner rate limit")
	}

	msgs := make([]domain.Message, 0, len(req.History)+2)
	msgs = append(msgs, req.History...)
	msgs = append(msgs, domain.Message{Role: "user", Content: req.Text})
	if req.CorrectionHint != "" {
		msgs = append(msgs, domain.Message{Role: "user", Content: correctionMessage(req.CorrectionHint)})
	}

	resp, err := p.provider.Complete(ctx, domain.LLMRequest{
		Model:       p.cfg.Model,
		System:      systemPrompt(p.now()),
		Messages:    msgs,
		Temperature: 0,
		MaxTokens:   p.cfg.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "planner completion"), domain.ErrPlannerUnavailable)
	}
	obj := llm.ExtractJSON(resp.Content)
	if obj == "" {
		return nil, &SchemaError{Reason: "planner reply contained no JSON object"}
	}
	return json.RawMessage(obj), nil
}
