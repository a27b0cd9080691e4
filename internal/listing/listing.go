// Package listing reports which vessels have activity inside a window.
package listing

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"aisquery/internal/domain"
	"aisquery/internal/trajectory"
)

type Config struct {
	DefaultLimit int
	Workers      int
}

type Routine struct {
	store  trajectory.PointStore
	cfg    Config
	logger *slog.Logger
}

func NewRoutine(store trajectory.PointStore, cfg Config, logger *slog.Logger) *Routine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Routine{store: store, cfg: cfg, logger: logger}
}

// Run summarises each vessel that reported inside the window (and inside
// the spatial constraint, when set). Vessels without matching reports are
// left out. Order follows the plan's vessel order.
func (r *Routine) Run(ctx context.Context, plan domain.ResolvedPlan) (*domain.ListingResult, error) {
	found := make([]*domain.VesselActivity, len(plan.Vessels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, v := range plan.Vessels {
		g.Go(func() error {
			series, err := trajectory.Load(gctx, r.store, domain.StageListing, v.VesselID, plan.Window)
			if err != nil {
				return err
			}
			found[i] = summarise(v, series, plan.Intent.Spatial)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	limit := plan.Intent.Output.Limit
	if limit <= 0 {
		limit = r.cfg.DefaultLimit
	}
	res := &domain.ListingResult{
		Kind:    domain.DomainListing,
		Window:  plan.Window,
		Vessels: make([]domain.VesselActivity, 0),
	}
	for _, a := range found {
		if a == nil {
			continue
		}
		if len(res.Vessels) == limit {
			break
		}
		res.Vessels = append(res.Vessels, *a)
	}

	r.logger.Debug("listing finished", "scanned", len(plan.Vessels), "active", len(res.Vessels))
	return res, nil
}

func summarise(v domain.Vessel, series []domain.TrajectoryPoint, spatial *domain.SpatialConstraint) *domain.VesselActivity {
	var a *domain.VesselActivity
	for _, p := range series {
		if !spatial.Contains(p.Lat, p.Lon) {
			continue
		}
		if a == nil {
			a = &domain.VesselActivity{Vessel: v, FirstSeen: p.Timestamp}
		}
		a.PointCount++
		a.LastSeen = p.Timestamp
		a.LastPosition = p
	}
	return a
}
