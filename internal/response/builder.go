// Package response turns a pipeline outcome into the response envelope and
// the conversation update recorded for it.
package response

import (
	"fmt"
	"time"

	"aisquery/internal/domain"
	"aisquery/internal/memory"
)

// Outcome is what the pipeline knows once a request stops, successfully or
// not. Intent and Plan are set as far as the request got.
type Outcome struct {
	RequestID string
	SessionID string
	Query     string
	Intent    *domain.CanonicalIntent
	Plan      *domain.ResolvedPlan
	Result    domain.Payload
	Err       error
	Stages    []domain.StageName
}

type Builder struct {
	now func() time.Time
}

func NewBuilder(now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{now: now}
}

// Build renders the envelope and the memory update for o. Both the user and
// the assistant turn are recorded either way; vessel mentions only on
// success.
func (b *Builder) Build(o Outcome) (domain.ResponseEnvelope, memory.Update) {
	at := b.now().UTC()
	env := domain.ResponseEnvelope{
		RequestID: o.RequestID,
		SessionID: o.SessionID,
		Query:     o.Query,
		Intent:    o.Intent,
		Stages:    append(append([]domain.StageName(nil), o.Stages...), domain.StageBuildResponse),
		Timestamp: at,
	}
	if o.Intent != nil {
		env.Domain = o.Intent.Domain
	}

	var (
		update    memory.Update
		failStage domain.StageName
	)
	if o.Err != nil || o.Result == nil {
		env.Error = errorBody(o.Err)
		env.Message = failureMessage(env.Error)
		failStage = env.Error.Stage
	} else {
		env.Success = true
		env.Domain = o.Result.PayloadDomain()
		env.Result = o.Result
		env.Count = o.Result.Count()
		env.Message = successMessage(o.Result)
		if o.Intent != nil {
			switch o.Intent.Output.Format {
			case domain.FormatMap:
				env.Map = FeatureCollection(o.Result)
			case domain.FormatSummary:
				env.Summary = Summary(o.Result)
			}
		}
		update.Mentioned = mentions(o)
	}

	user := memory.NewTurn(o.RequestID, memory.RoleUser, o.Query, env.Success, at)
	assistant := memory.NewTurn(o.RequestID, memory.RoleAssistant, env.Message, env.Success, at)
	assistant.Stage = failStage
	update.Turns = []memory.Turn{user, assistant}
	return env, update
}

func errorBody(err error) *domain.ErrorBody {
	pe, ok := domain.AsPipelineError(err)
	if !ok {
		return &domain.ErrorBody{
			Kind:    domain.KindInternal,
			Message: "the query could not be completed",
			Hint:    "retry the query; if it keeps failing, check the server logs",
		}
	}
	return &domain.ErrorBody{
		Kind:        pe.Kind,
		Stage:       pe.Stage,
		Rule:        pe.Rule,
		Message:     pe.Message,
		Hint:        domain.Hint(err),
		Identifiers: pe.Identifiers,
	}
}

func failureMessage(e *domain.ErrorBody) string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("%s failed: %s", e.Stage, e.Message)
	}
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

func successMessage(p domain.Payload) string {
	switch r := p.(type) {
	case *domain.TrajectoryResult:
		return fmt.Sprintf("Found %d points for %d vessel(s)", r.Count(), len(r.Tracks))
	case *domain.LoiteringResult:
		return fmt.Sprintf("Detected %d loitering event(s) across %d vessel(s)", len(r.Events), r.VesselsScanned)
	case *domain.ListingResult:
		return fmt.Sprintf("Found %d active vessel(s)", len(r.Vessels))
	default:
		return fmt.Sprintf("Found %d results", p.Count())
	}
}

// mentions is what a follow-up "it" or "them" should refer to. Named vessels
// count even when the routine found nothing for them; fleet-wide queries
// remember the vessels that appear in the result.
func mentions(o Outcome) []domain.Vessel {
	if o.Plan != nil && o.Plan.Intent.Scope != domain.ScopeAll && len(o.Plan.Vessels) > 0 {
		return append([]domain.Vessel(nil), o.Plan.Vessels...)
	}
	return Mentioned(o.Result)
}

// Mentioned lists the vessels that appear in p, in result order.
func Mentioned(p domain.Payload) []domain.Vessel {
	var out []domain.Vessel
	seen := map[string]bool{}
	add := func(v domain.Vessel) {
		if v.VesselID == "" || seen[v.VesselID] {
			return
		}
		seen[v.VesselID] = true
		out = append(out, v)
	}
	switch r := p.(type) {
	case *domain.TrajectoryResult:
		for _, t := range r.Tracks {
			add(t.Vessel)
		}
	case *domain.LoiteringResult:
		for _, e := range r.Events {
			add(domain.Vessel{VesselID: e.VesselID, MMSI: e.MMSI, Name: e.VesselName})
		}
	case *domain.ListingResult:
		for _, a := range r.Vessels {
			add(a.Vessel)
		}
	}
	return out
}
