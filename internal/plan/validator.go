// Package plan checks a CanonicalIntent for logical consistency before any
// data is touched. Validation is pure: no I/O, and the clock is injected.
package plan

import (
	"regexp"
	"strings"
	"time"

	"aisquery/internal/domain"
	"aisquery/internal/geo"
)

// minPolygonArea rejects slivers, in square degrees.
const minPolygonArea = 1e-9

// injectionMarkers are rejected anywhere in free text regardless of the
// configured keyword list.
var injectionMarkers = []string{"__", "os.", ";--", "../", "${", "`"}

type Config struct {
	MaxLookback       time.Duration
	MaxLimit          int
	ForbiddenKeywords []string
}

type Validator struct {
	cfg      Config
	keywords *regexp.Regexp
	now      func() time.Time
}

func NewValidator(cfg Config, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{cfg: cfg, keywords: keywordPattern(cfg.ForbiddenKeywords), now: now}
}

func keywordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(w)))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
}

// Validate applies the rules in a fixed order and returns the first failure
// as a PlanValidationError naming the rule.
func (v *Validator) Validate(intent domain.CanonicalIntent) error {
	for _, check := range []func(domain.CanonicalIntent) error{
		v.checkScope,
		v.checkPairing,
		v.checkTime,
		v.checkSpatial,
		v.checkSafety,
		v.checkExecution,
		v.checkOutput,
	} {
		if err := check(intent); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkScope(in domain.CanonicalIntent) error {
	n := len(in.Vessels)
	switch in.Scope {
	case domain.ScopeSingle:
		if n != 1 {
			return domain.NewPlanValidationError(domain.RuleScopeCardinality, "single vessel scope needs exactly one vessel reference, got %d", n)
		}
	case domain.ScopeMultiple:
		if n < 2 {
			return domain.NewPlanValidationError(domain.RuleScopeCardinality, "multiple vessel scope needs at least two vessel references, got %d", n)
		}
	case domain.ScopeAll:
		if n != 0 {
			return domain.NewPlanValidationError(domain.RuleScopeCardinality, "all-vessel scope must not name vessels, got %d", n)
		}
	default:
		return domain.NewPlanValidationError(domain.RuleScopeCardinality, "unknown vessel scope %q", in.Scope)
	}
	return nil
}

func (v *Validator) checkPairing(in domain.CanonicalIntent) error {
	for _, t := range domain.AllowedTasks[in.Domain] {
		if t == in.Task {
			return nil
		}
	}
	return domain.NewPlanValidationError(domain.RuleDomainTask, "%s does not pair with task %s", in.Domain, in.Task)
}

func (v *Validator) checkTime(in domain.CanonicalIntent) error {
	if in.Time == nil {
		return nil
	}
	w, err := in.Time.Window(v.now())
	if err != nil {
		return domain.NewPlanValidationError(domain.RuleTimeWindow, "%v", err)
	}
	if w.Start.After(w.End) {
		return domain.NewPlanValidationError(domain.RuleTimeWindow, "start %s is after end %s",
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	if v.cfg.MaxLookback > 0 && w.Duration() > v.cfg.MaxLookback {
		return domain.NewPlanValidationError(domain.RuleTimeWindow, "window of %s exceeds the maximum lookback of %s",
			w.Duration().Round(time.Minute), v.cfg.MaxLookback)
	}
	return nil
}

func (v *Validator) checkSpatial(in domain.CanonicalIntent) error {
	s := in.Spatial
	if !s.Active() {
		return nil
	}
	switch s.Kind {
	case domain.SpatialBBox:
		if s.BBox == nil || !s.BBox.Valid() {
			return domain.NewPlanValidationError(domain.RuleSpatialRegion, "bounding box is degenerate or out of range")
		}
	case domain.SpatialPolygon:
		if len(s.Polygon) < 3 {
			return domain.NewPlanValidationError(domain.RuleSpatialRegion, "polygon needs at least three vertices, got %d", len(s.Polygon))
		}
		for _, p := range s.Polygon {
			if !p.Valid() {
				return domain.NewPlanValidationError(domain.RuleSpatialRegion, "polygon vertex (%v, %v) is out of range", p.Lat, p.Lon)
			}
		}
		if geo.PolygonArea(s.Polygon) < minPolygonArea {
			return domain.NewPlanValidationError(domain.RuleSpatialRegion, "polygon has no area")
		}
	default:
		return domain.NewPlanValidationError(domain.RuleSpatialRegion, "unknown region type %q", s.Kind)
	}
	return nil
}

func (v *Validator) checkSafety(in domain.CanonicalIntent) error {
	fields := make([]string, 0, len(in.Vessels)+2)
	for _, r := range in.Vessels {
		fields = append(fields, r.Value)
	}
	fields = append(fields, in.Execution.ModelName)
	if in.Time != nil {
		fields = append(fields, in.Time.Relative)
	}
	for _, f := range fields {
		lower := strings.ToLower(f)
		for _, m := range injectionMarkers {
			if strings.Contains(lower, m) {
				return domain.NewPlanValidationError(domain.RuleSafety, "disallowed sequence %q in %q", m, f)
			}
		}
		if v.keywords != nil {
			if kw := v.keywords.FindString(lower); kw != "" {
				return domain.NewPlanValidationError(domain.RuleSafety, "disallowed keyword %q in %q", kw, f)
			}
		}
	}
	return nil
}

func (v *Validator) checkExecution(in domain.CanonicalIntent) error {
	if in.Execution.DataSource == domain.SourceModelInference && in.Execution.ModelName == "" {
		return domain.NewPlanValidationError(domain.RuleExecutionMode, "model_inference needs a model name")
	}
	return nil
}

func (v *Validator) checkOutput(in domain.CanonicalIntent) error {
	if in.Output.Limit < 1 {
		return domain.NewPlanValidationError(domain.RuleOutputLimit, "limit must be at least 1, got %d", in.Output.Limit)
	}
	if v.cfg.MaxLimit > 0 && in.Output.Limit > v.cfg.MaxLimit {
		return domain.NewPlanValidationError(domain.RuleOutputLimit, "limit %d exceeds the maximum of %d", in.Output.Limit, v.cfg.MaxLimit)
	}
	return nil
}
