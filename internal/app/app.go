// Package app assembles the query pipeline from configuration. The server
// and the CLI share it so both run the same stages with the same settings.
package app

import (
	"context"
	"log/slog"
	"time"

	"aisquery/internal/config"
	"aisquery/internal/domain"
	"aisquery/internal/intent"
	"aisquery/internal/listing"
	"aisquery/internal/llm"
	"aisquery/internal/loitering"
	"aisquery/internal/memory"
	"aisquery/internal/orchestrator"
	"aisquery/internal/plan"
	"aisquery/internal/response"
	"aisquery/internal/trajectory"
	"aisquery/internal/vessel"
)

// NewPlanner returns the planner selected by cfg.Mode.
func NewPlanner(cfg config.PlannerConfig, timeout time.Duration) (intent.Planner, error) {
	if cfg.Mode == "remote" {
		return intent.NewRemotePlanner(cfg.RemoteURL, timeout), nil
	}
	provider, err := llm.NewProvider(llm.Config{
		Provider:         cfg.Provider,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		OllamaBaseURL:    cfg.OllamaBaseURL,
	})
	if err != nil {
		return nil, err
	}
	return intent.NewLLMPlanner(provider, intent.LLMPlannerConfig{
		Model:             cfg.Model,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}), nil
}

// DataRanger reports the span of stored position data.
type DataRanger interface {
	DataRange(ctx context.Context) (domain.TimeRange, error)
}

// Clock returns the pipeline's notion of now. With AnchorToData set and
// data present, now is fixed at the newest stored report.
func Clock(ctx context.Context, cfg config.PipelineConfig, store DataRanger, logger *slog.Logger) (func() time.Time, error) {
	if !cfg.AnchorToData {
		return time.Now, nil
	}
	tr, err := store.DataRange(ctx)
	if err != nil {
		return nil, err
	}
	if tr.End.IsZero() {
		logger.Warn("anchor to data requested but the store is empty; using wall clock")
		return time.Now, nil
	}
	anchor := tr.End.UTC()
	logger.Info("pipeline clock anchored to data", "now", anchor, "data_start", tr.Start.UTC())
	return func() time.Time { return anchor }, nil
}

type Pipeline struct {
	Service  *orchestrator.Service
	Sessions *memory.Store
}

// Backend is the store surface the pipeline reads from.
type Backend interface {
	vessel.Registry
	trajectory.PointStore
}

func NewPipeline(cfg config.PipelineConfig, planner intent.Planner, store Backend, now func() time.Time, logger *slog.Logger) *Pipeline {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	parser := intent.NewParser(planner, intent.Config{
		Timeout: cfg.PlannerTimeout,
		Defaults: intent.Defaults{
			Limit:      cfg.DefaultLimit,
			Format:     domain.FormatTable,
			DataSource: domain.SourceRawAIS,
		},
	}, logger)
	validator := plan.NewValidator(plan.Config{
		MaxLookback:       cfg.MaxLookback,
		MaxLimit:          cfg.MaxLimit,
		ForbiddenKeywords: cfg.ForbiddenKeywords,
	}, now)
	resolver := vessel.NewResolver(store, vessel.Config{Threshold: cfg.NameMatchThreshold}, logger)
	router := orchestrator.NewRouter(
		trajectory.NewRoutine(store, trajectory.Config{DefaultLimit: cfg.DefaultLimit}, logger),
		loitering.NewRoutine(store, loitering.Config{
			SpeedThresholdKn: cfg.LoiterSpeedKn,
			MinDwell:         cfg.LoiterMinDwell,
			MaxGap:           cfg.LoiterMaxGap,
			Workers:          cfg.LoiterWorkers,
		}, logger),
		listing.NewRoutine(store, listing.Config{DefaultLimit: cfg.DefaultLimit, Workers: cfg.LoiterWorkers}, logger),
	)

	sessions := memory.NewStore(cfg.SessionTTL)
	svc := orchestrator.New(orchestrator.Config{
		DefaultLookback: cfg.DefaultLookback,
		HistoryLimit:    cfg.HistoryLimit,
		Now:             now,
	}, sessions, parser, validator, resolver, router, response.NewBuilder(now), logger)

	return &Pipeline{Service: svc, Sessions: sessions}
}
