package loitering

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"aisquery/internal/domain"
	"aisquery/internal/trajectory"
)

type Config struct {
	SpeedThresholdKn float64
	MinDwell         time.Duration
	MaxGap           time.Duration
	// Workers bounds concurrent per-vessel scans.
	Workers int
}

type Routine struct {
	store  trajectory.PointStore
	cfg    Config
	logger *slog.Logger
}

func NewRoutine(store trajectory.PointStore, cfg Config, logger *slog.Logger) *Routine {
	if cfg.SpeedThresholdKn <= 0 {
		cfg.SpeedThresholdKn = 2.0
	}
	if cfg.MinDwell <= 0 {
		cfg.MinDwell = 4 * time.Hour
	}
	if cfg.MaxGap <= 0 {
		cfg.MaxGap = time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Routine{store: store, cfg: cfg, logger: logger}
}

func (r *Routine) params() Params {
	return Params{SpeedThresholdKn: r.cfg.SpeedThresholdKn, MinDwell: r.cfg.MinDwell, MaxGap: r.cfg.MaxGap}
}

// Run scans every resolved vessel in parallel and merges the events by
// (start time, vessel id), independent of completion order. The first
// failing vessel aborts the scan.
func (r *Routine) Run(ctx context.Context, plan domain.ResolvedPlan) (*domain.LoiteringResult, error) {
	p := r.params()
	perVessel := make([][]domain.LoiteringEvent, len(plan.Vessels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, v := range plan.Vessels {
		g.Go(func() error {
			series, err := trajectory.Load(gctx, r.store, domain.StageLoitering, v.VesselID, plan.Window)
			if err != nil {
				return err
			}
			perVessel[i] = Detect(v, series, p, plan.Intent.Spatial)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	events := make([]domain.LoiteringEvent, 0)
	for _, evs := range perVessel {
		events = append(events, evs...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].StartTime.Equal(events[j].StartTime) {
			return events[i].StartTime.Before(events[j].StartTime)
		}
		return events[i].VesselID < events[j].VesselID
	})

	if limit := plan.Intent.Output.Limit; limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	r.logger.Debug("loitering scan finished",
		"vessels", len(plan.Vessels),
		"events", len(events),
		"workers", r.cfg.Workers,
	)
	return &domain.LoiteringResult{
		Kind:   domain.DomainLoitering,
		Window: plan.Window,
		Params: domain.LoiteringParams{
			SpeedThresholdKn: p.SpeedThresholdKn,
			MinDwellHours:    p.MinDwell.Hours(),
			MaxGapMinutes:    p.MaxGap.Minutes(),
		},
		VesselsScanned: len(plan.Vessels),
		Events:         events,
	}, nil
}
