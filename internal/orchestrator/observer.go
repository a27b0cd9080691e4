package orchestrator

import (
	"context"

	"aisquery/internal/domain"
)

// StageObserver is told about every stage as it finishes. Observers run on
// the request goroutine and must not block.
type StageObserver interface {
	OnStage(ctx context.Context, ev domain.StageEvent)
}

type ObserverFunc func(ctx context.Context, ev domain.StageEvent)

func (f ObserverFunc) OnStage(ctx context.Context, ev domain.StageEvent) { f(ctx, ev) }

type observers []StageObserver

func (o observers) OnStage(ctx context.Context, ev domain.StageEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.OnStage(ctx, ev)
		}
	}
}
