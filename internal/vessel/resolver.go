// Package vessel binds the vessel references of a validated intent to
// registry records.
package vessel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"

	"aisquery/internal/domain"
)

type Config struct {
	// Threshold is the minimum similarity for a name match.
	Threshold float64
	// TieMargin treats candidates scoring within this distance of the best
	// as tied.
	TieMargin float64
}

type Resolver struct {
	registry Registry
	cfg      Config
	logger   *slog.Logger
}

func NewResolver(registry Registry, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.75
	}
	if cfg.TieMargin <= 0 {
		cfg.TieMargin = 0.02
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: registry, cfg: cfg, logger: logger}
}

// Resolve binds every reference in intent. Resolution is all or nothing:
// one unresolved reference fails the whole plan with a
// VesselResolutionError listing every reference that did not bind. Scope
// "all" takes the registry's fleet for the window and area.
func (r *Resolver) Resolve(ctx context.Context, intent domain.CanonicalIntent, window domain.TimeRange) (domain.ResolvedPlan, error) {
	plan := domain.ResolvedPlan{Intent: intent, Window: window}

	if intent.Scope == domain.ScopeAll {
		all, err := r.registry.ListAll(ctx, domain.ListConstraints{Window: window, Spatial: intent.Spatial})
		if err != nil {
			return plan, r.storeErr(ctx, "", err)
		}
		plan.Vessels = all
		return plan, nil
	}

	var unresolved []domain.UnresolvedRef
	seen := make(map[string]bool, len(intent.Vessels))
	for _, ref := range intent.Vessels {
		v, miss, err := r.resolveRef(ctx, ref)
		if err != nil {
			return plan, r.storeErr(ctx, ref.String(), err)
		}
		if miss != nil {
			unresolved = append(unresolved, *miss)
			continue
		}
		if !seen[v.VesselID] {
			seen[v.VesselID] = true
			plan.Vessels = append(plan.Vessels, v)
		}
	}
	if len(unresolved) > 0 {
		plan.Vessels = nil
		return plan, domain.NewVesselResolutionError(unresolved)
	}
	return plan, nil
}

func (r *Resolver) resolveRef(ctx context.Context, ref domain.VesselRef) (domain.Vessel, *domain.UnresolvedRef, error) {
	var (
		v   domain.Vessel
		err error
	)
	switch ref.Kind {
	case domain.RefMMSI:
		v, err = r.registry.LookupByMMSI(ctx, ref.Value)
	case domain.RefIMO:
		v, err = r.registry.LookupByIMO(ctx, ref.Value)
	case domain.RefCallSign:
		v, err = r.registry.LookupByCallSign(ctx, ref.Value)
	case domain.RefName:
		return r.resolveName(ctx, ref)
	case domain.RefAnaphor:
		return v, &domain.UnresolvedRef{Ref: ref, Reason: fmt.Sprintf("no earlier vessel in this conversation for %q to refer to", ref.Value)}, nil
	default:
		return v, &domain.UnresolvedRef{Ref: ref, Reason: "unknown reference kind"}, nil
	}
	if errors.Is(err, domain.ErrVesselNotFound) {
		return v, &domain.UnresolvedRef{Ref: ref, Reason: "not in the vessel registry"}, nil
	}
	return v, nil, err
}

func (r *Resolver) resolveName(ctx context.Context, ref domain.VesselRef) (domain.Vessel, *domain.UnresolvedRef, error) {
	matches, err := r.registry.SearchByName(ctx, ref.Value)
	if err != nil {
		return domain.Vessel{}, nil, err
	}
	if len(matches) == 0 || matches[0].Score < r.cfg.Threshold {
		miss := &domain.UnresolvedRef{Ref: ref, Reason: "no registered name is close enough"}
		if len(matches) > 0 {
			miss.Candidates = []string{matches[0].Vessel.Name}
		}
		return domain.Vessel{}, miss, nil
	}

	best := matches[0]
	var tied []string
	for _, m := range matches[1:] {
		if best.Score-m.Score <= r.cfg.TieMargin {
			tied = append(tied, m.Vessel.Name)
		}
	}
	if len(tied) > 0 {
		r.logger.Debug("ambiguous vessel name", "name", ref.Value, "best", best.Vessel.Name, "score", best.Score)
		return domain.Vessel{}, &domain.UnresolvedRef{
			Ref:        ref,
			Reason:     "ambiguous name",
			Candidates: append([]string{best.Vessel.Name}, tied...),
		}, nil
	}
	return best.Vessel, nil, nil
}

func (r *Resolver) storeErr(ctx context.Context, id string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return domain.NewDataAccessError(domain.StageResolveVessels, id, errors.Wrap(err, "vessel registry"))
}
