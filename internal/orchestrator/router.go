package orchestrator

import (
	"context"

	"aisquery/internal/domain"
	"aisquery/internal/listing"
	"aisquery/internal/loitering"
	"aisquery/internal/trajectory"
)

// Handler runs one domain routine over a resolved plan.
type Handler func(ctx context.Context, plan domain.ResolvedPlan) (domain.Payload, error)

// Router dispatches on the plan's domain. It holds no state beyond the
// handlers it was built with.
type Router struct {
	trajectory Handler
	loitering  Handler
	listing    Handler
}

func NewRouter(tr *trajectory.Routine, lo *loitering.Routine, li *listing.Routine) *Router {
	return &Router{
		trajectory: func(ctx context.Context, p domain.ResolvedPlan) (domain.Payload, error) {
			res, err := tr.Run(ctx, p)
			if err != nil {
				return nil, err
			}
			return res, nil
		},
		loitering: func(ctx context.Context, p domain.ResolvedPlan) (domain.Payload, error) {
			res, err := lo.Run(ctx, p)
			if err != nil {
				return nil, err
			}
			return res, nil
		},
		listing: func(ctx context.Context, p domain.ResolvedPlan) (domain.Payload, error) {
			res, err := li.Run(ctx, p)
			if err != nil {
				return nil, err
			}
			return res, nil
		},
	}
}

// Route picks the handler for d and the stage name it reports under.
// Prediction is a valid domain with no routine behind it.
func (r *Router) Route(d domain.DomainIntent) (Handler, domain.StageName, error) {
	switch d {
	case domain.DomainTrajectory:
		return r.trajectory, domain.StageTrajectory, nil
	case domain.DomainLoitering:
		return r.loitering, domain.StageLoitering, nil
	case domain.DomainListing:
		return r.listing, domain.StageListing, nil
	case domain.DomainPrediction:
		return nil, "", domain.NewUnsupportedDomainError(d)
	default:
		return nil, "", domain.NewUnsupportedDomainError(d)
	}
}
