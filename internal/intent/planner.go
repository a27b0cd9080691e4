// Package intent turns free text into a CanonicalIntent. A Planner proposes
// a JSON draft; the Parser bounds each attempt with a timeout, decodes the
// draft strictly and asks for one correction when the first draft fails.
package intent

import (
	"context"
	"encoding/json"

	"aisquery/internal/domain"
)

type PlanRequest struct {
	RequestID string
	Text      string
	// CorrectionHint describes what was wrong with the previous draft. Empty
	// on the first attempt.
	CorrectionHint string
	History        []domain.Message
}

type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (json.RawMessage, error)
}
