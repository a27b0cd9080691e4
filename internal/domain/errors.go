package domain

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrVesselNotFound     = errors.New("vessel not found")
	ErrPlannerUnavailable = errors.New("planner unavailable")
	ErrEmptyQuery         = errors.New("query text is empty")
)

type ErrorKind string

const (
	KindIntentParse       ErrorKind = "intent_parse"
	KindPlanValidation    ErrorKind = "plan_validation"
	KindVesselResolution  ErrorKind = "vessel_resolution"
	KindDataAccess        ErrorKind = "data_access"
	KindUnsupportedDomain ErrorKind = "unsupported_domain"
	// KindInternal covers failures outside the taxonomy. Details stay in logs.
	KindInternal ErrorKind = "internal"
)

// PipelineError is the one error shape a failed stage reports. Rule is set
// for validation failures; Identifiers names the offending vessel refs or IDs.
type PipelineError struct {
	Kind        ErrorKind
	Stage       StageName
	Rule        string
	Identifiers []string
	Message     string
	Err         error
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Rule != "" {
		b.WriteString(" [" + e.Rule + "]")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Identifiers) > 0 {
		b.WriteString(" (" + strings.Join(e.Identifiers, ", ") + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *PipelineError) Unwrap() error { return e.Err }

// AsPipelineError finds the PipelineError in err's chain.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func NewIntentParseError(cause error) error {
	return errors.WithHint(&PipelineError{
		Kind:    KindIntentParse,
		Stage:   StageParseIntent,
		Message: "could not turn the query into a structured plan",
		Err:     cause,
	}, "rephrase the question with a vessel identifier and a time window, e.g. \"show MMSI 123456789 over the last 6 hours\"")
}

func NewPlanValidationError(rule, format string, args ...any) error {
	return errors.WithHint(&PipelineError{
		Kind:    KindPlanValidation,
		Stage:   StageValidatePlan,
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
	}, validationHints[rule])
}

var validationHints = map[string]string{
	RuleScopeCardinality: "name one vessel for a single-vessel question, or several for a comparison",
	RuleDomainTask:       "ask for a trajectory, loitering detection or a vessel list",
	RuleTimeWindow:       "use a shorter time window with the start before the end",
	RuleSpatialRegion:    "give the area as a bounding box or a polygon of at least three corners",
	RuleSafety:           "ask a read-only question about vessel activity",
	RuleExecutionMode:    "name the model to run when asking for model inference",
	RuleOutputLimit:      "ask for fewer results",
}

// Validation rule names, in evaluation order.
const (
	RuleScopeCardinality = "scope_cardinality"
	RuleDomainTask       = "domain_task_pairing"
	RuleTimeWindow       = "time_window"
	RuleSpatialRegion    = "spatial_region"
	RuleSafety           = "safety_keywords"
	RuleExecutionMode    = "execution_mode"
	RuleOutputLimit      = "output_limit"
)

// UnresolvedRef records why one vessel reference did not bind.
type UnresolvedRef struct {
	Ref        VesselRef
	Reason     string
	Candidates []string
}

func NewVesselResolutionError(unresolved []UnresolvedRef) error {
	ids := make([]string, 0, len(unresolved))
	reasons := make([]string, 0, len(unresolved))
	for _, u := range unresolved {
		ids = append(ids, u.Ref.String())
		r := u.Ref.Value + ": " + u.Reason
		if len(u.Candidates) > 0 {
			r += " (candidates: " + strings.Join(u.Candidates, ", ") + ")"
		}
		reasons = append(reasons, r)
	}
	return errors.WithHint(&PipelineError{
		Kind:        KindVesselResolution,
		Stage:       StageResolveVessels,
		Identifiers: ids,
		Message:     strings.Join(reasons, "; "),
	}, "identify the vessel by MMSI, IMO or its full registered name")
}

// NewDataAccessError reports a store or registry failure while stage was
// reading data for vesselID. It is fatal to the request only.
func NewDataAccessError(stage StageName, vesselID string, cause error) error {
	pe := &PipelineError{
		Kind:    KindDataAccess,
		Stage:   stage,
		Message: "vessel data could not be read",
		Err:     cause,
	}
	if vesselID != "" {
		pe.Identifiers = []string{vesselID}
	}
	return errors.WithHint(pe, "the data store may be unavailable; retry shortly")
}

func NewUnsupportedDomainError(d DomainIntent) error {
	return errors.WithHint(&PipelineError{
		Kind:        KindUnsupportedDomain,
		Stage:       StageRoute,
		Identifiers: []string{string(d)},
		Message:     fmt.Sprintf("%s queries are not supported", d),
	}, "trajectory, loitering and listing questions are supported")
}

// Hint returns the user-facing hints attached anywhere in err's chain.
func Hint(err error) string {
	return errors.FlattenHints(err)
}
