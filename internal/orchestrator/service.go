// Package orchestrator runs a query through the stage pipeline: reference
// resolution, intent parsing, plan validation, vessel resolution, domain
// routing, the domain routine and response building. Any stage failure
// short-circuits to the response builder.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aisquery/internal/domain"
	"aisquery/internal/intent"
	"aisquery/internal/memory"
	"aisquery/internal/plan"
	"aisquery/internal/response"
	"aisquery/internal/vessel"
)

type Config struct {
	// DefaultLookback is the window used when the query names no time.
	DefaultLookback time.Duration
	// HistoryLimit is how many recent turns the planner sees.
	HistoryLimit int
	Now          func() time.Time
}

type Service struct {
	cfg        Config
	sessions   *memory.Store
	references *memory.ReferenceResolver
	parser     *intent.Parser
	validator  *plan.Validator
	vessels    *vessel.Resolver
	router     *Router
	builder    *response.Builder
	logger     *slog.Logger

	mu        sync.RWMutex
	observers observers
}

func New(cfg Config, sessions *memory.Store, parser *intent.Parser, validator *plan.Validator, vessels *vessel.Resolver, router *Router, builder *response.Builder, logger *slog.Logger) *Service {
	if cfg.DefaultLookback <= 0 {
		cfg.DefaultLookback = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		sessions:   sessions,
		references: memory.NewReferenceResolver(),
		parser:     parser,
		validator:  validator,
		vessels:    vessels,
		router:     router,
		builder:    builder,
		logger:     logger,
	}
}

// AddObserver registers an observer for every request, e.g. metrics.
func (s *Service) AddObserver(o StageObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// HandleQuery runs one query for a session. Queries on the same session are
// serialised; different sessions run independently.
//
// Pipeline failures come back as an unsuccessful envelope with a nil error.
// A non-nil error means the request was abandoned (ctx cancelled or expired)
// and the session was left untouched.
func (s *Service) HandleQuery(ctx context.Context, req domain.QueryRequest, obs StageObserver) (domain.ResponseEnvelope, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	lease, err := s.sessions.Acquire(ctx, req.SessionID)
	if err != nil {
		return domain.ResponseEnvelope{}, err
	}
	defer lease.Release()
	waitDur := time.Since(start)

	s.mu.RLock()
	all := append(observers{obs}, s.observers...)
	s.mu.RUnlock()

	r := &run{svc: s, req: req, obs: all, timings: make(map[domain.StageName]time.Duration)}
	outcome := r.execute(ctx, lease.Conversation())
	if err := ctx.Err(); err != nil {
		s.logger.Info("query abandoned",
			"session_id", req.SessionID,
			"request_id", req.RequestID,
			"after_stage", lastStage(outcome.Stages),
			"error", err,
		)
		return domain.ResponseEnvelope{}, err
	}

	buildStart := time.Now()
	env, update := s.builder.Build(outcome)
	if err := ctx.Err(); err != nil {
		return domain.ResponseEnvelope{}, err
	}
	lease.Commit(update)
	r.emit(ctx, domain.StageBuildResponse, time.Since(buildStart), nil, "")

	if outcome.Err != nil {
		if _, ok := domain.AsPipelineError(outcome.Err); !ok {
			s.logger.Error("query failed outside the pipeline taxonomy",
				"session_id", req.SessionID,
				"request_id", req.RequestID,
				"error", outcome.Err,
			)
		}
	}
	s.logger.Info("query timing",
		"session_id", req.SessionID,
		"request_id", req.RequestID,
		"domain", env.Domain,
		"success", env.Success,
		"count", env.Count,
		"wait_ms", waitDur.Milliseconds(),
		"references_ms", r.timings[domain.StageResolveReferences].Milliseconds(),
		"parse_ms", r.timings[domain.StageParseIntent].Milliseconds(),
		"resolve_ms", r.timings[domain.StageResolveVessels].Milliseconds(),
		"routine_ms", r.routineDur.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return env, nil
}

// History is the session's conversation, if the session exists.
func (s *Service) History(sessionID string) (memory.Conversation, bool) {
	return s.sessions.Snapshot(sessionID)
}

func (s *Service) Reset(ctx context.Context, sessionID string) error {
	return s.sessions.Reset(ctx, sessionID)
}

type run struct {
	svc        *Service
	req        domain.QueryRequest
	obs        observers
	stages     []domain.StageName
	timings    map[domain.StageName]time.Duration
	routineDur time.Duration
}

// step runs fn as stage. Completed stages are appended to the execution log;
// a cancelled context is reported as-is without emitting an event.
func (r *run) step(ctx context.Context, stage domain.StageName, fn func() (string, error)) error {
	began := time.Now()
	detail, err := fn()
	d := time.Since(began)
	r.timings[stage] = d
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	r.emit(ctx, stage, d, err, detail)
	if err != nil {
		return err
	}
	r.stages = append(r.stages, stage)
	return nil
}

func (r *run) emit(ctx context.Context, stage domain.StageName, d time.Duration, err error, detail string) {
	ev := domain.StageEvent{
		RequestID: r.req.RequestID,
		SessionID: r.req.SessionID,
		Stage:     stage,
		Status:    domain.StageStatusCompleted,
		Duration:  d,
		Detail:    detail,
	}
	if err != nil {
		ev.Status = domain.StageStatusFailed
		if pe, ok := domain.AsPipelineError(err); ok {
			ev.Detail = string(pe.Kind)
		}
	}
	r.obs.OnStage(ctx, ev)
}

func (r *run) execute(ctx context.Context, conv memory.Conversation) response.Outcome {
	s := r.svc
	out := response.Outcome{RequestID: r.req.RequestID, SessionID: r.req.SessionID, Query: r.req.Query}
	fail := func(err error) response.Outcome {
		out.Err = err
		out.Stages = r.stages
		return out
	}

	var rq memory.ResolvedQuery
	_ = r.step(ctx, domain.StageResolveReferences, func() (string, error) {
		rq = s.references.Resolve(r.req.Query, conv)
		if len(rq.Unresolved) > 0 {
			return "unresolved: " + strings.Join(rq.Unresolved, ", "), nil
		}
		return "", nil
	})

	var in domain.CanonicalIntent
	if err := r.step(ctx, domain.StageParseIntent, func() (string, error) {
		parsed, err := s.parser.Parse(ctx, intent.PlanRequest{
			RequestID: r.req.RequestID,
			Text:      rq.Text,
			History:   conv.RecentMessages(s.cfg.HistoryLimit),
		})
		if err != nil {
			return "", err
		}
		in = bindUnresolved(parsed, rq.Unresolved)
		out.Intent = &in
		return string(in.Domain) + "/" + string(in.Task), nil
	}); err != nil {
		return fail(err)
	}

	if err := r.step(ctx, domain.StageValidatePlan, func() (string, error) {
		return "", s.validator.Validate(in)
	}); err != nil {
		return fail(err)
	}

	var resolved domain.ResolvedPlan
	if err := r.step(ctx, domain.StageResolveVessels, func() (string, error) {
		window, err := s.window(in)
		if err != nil {
			return "", err
		}
		resolved, err = s.vessels.Resolve(ctx, in, window)
		if err != nil {
			return "", err
		}
		out.Plan = &resolved
		return "", nil
	}); err != nil {
		return fail(err)
	}

	var (
		handler Handler
		stage   domain.StageName
	)
	if err := r.step(ctx, domain.StageRoute, func() (string, error) {
		var err error
		handler, stage, err = s.router.Route(in.Domain)
		return string(stage), err
	}); err != nil {
		return fail(err)
	}

	began := time.Now()
	err := r.step(ctx, stage, func() (string, error) {
		res, err := handler(ctx, resolved)
		if err != nil {
			return "", err
		}
		out.Result = res
		return "", nil
	})
	r.routineDur = time.Since(began)
	if err != nil {
		return fail(err)
	}
	out.Stages = r.stages
	return out
}

// window fixes the plan's time range: the constraint's window relative to
// now, or the default lookback ending now.
func (s *Service) window(in domain.CanonicalIntent) (domain.TimeRange, error) {
	now := s.cfg.Now()
	if in.Time == nil {
		return domain.TimeRange{Start: now.Add(-s.cfg.DefaultLookback), End: now}, nil
	}
	w, err := in.Time.Window(now)
	if err != nil {
		return domain.TimeRange{}, domain.NewPlanValidationError(domain.RuleTimeWindow, "%v", err)
	}
	return w, nil
}

// bindUnresolved carries reference words that memory could not bind into
// the intent as anaphor refs, so vessel resolution reports them instead of
// the query silently widening. Name refs the planner copied from such words
// are converted the same way. A fleet-wide intent is left alone: "they" in
// "list vessels and where they were" refers to the fleet.
func bindUnresolved(in domain.CanonicalIntent, unresolved []string) domain.CanonicalIntent {
	refs := make([]domain.VesselRef, 0, len(in.Vessels))
	converted := false
	for _, ref := range in.Vessels {
		if ref.Kind == domain.RefName && memory.IsMarker(ref.Value) {
			ref = domain.VesselRef{Kind: domain.RefAnaphor, Value: strings.ToLower(strings.TrimSpace(ref.Value))}
			converted = true
		}
		refs = append(refs, ref)
	}
	if in.Scope != domain.ScopeAll && len(refs) < minRefs(in.Scope) {
		for _, m := range unresolved {
			refs = append(refs, domain.VesselRef{Kind: domain.RefAnaphor, Value: m})
			converted = true
		}
	}
	if !converted {
		return in
	}
	out := in.WithVessels(refs)
	if out.Scope == domain.ScopeSingle && len(refs) > 1 {
		out.Scope = domain.ScopeMultiple
	}
	return out
}

func minRefs(scope domain.VesselScope) int {
	if scope == domain.ScopeMultiple {
		return 2
	}
	return 1
}

func lastStage(stages []domain.StageName) domain.StageName {
	if len(stages) == 0 {
		return ""
	}
	return stages[len(stages)-1]
}
