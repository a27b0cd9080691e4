package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"aisquery/internal/domain"
	"aisquery/internal/geo"
)

// Defaults fills optional draft fields the planner left out.
type Defaults struct {
	Limit      int
	Format     domain.OutputFormat
	DataSource domain.DataSource
}

// draft mirrors the planner's JSON output. Pointers distinguish "absent"
// from zero values.
type draft struct {
	DomainIntent      *string         `json:"domain_intent"`
	TaskIntent        *string         `json:"task_intent"`
	VesselScope       *string         `json:"vessel_scope"`
	Vessels           []draftVessel   `json:"vessels"`
	TimeConstraint    *draftTime      `json:"time_constraint"`
	SpatialConstraint *draftSpatial   `json:"spatial_constraint"`
	ExecutionMode     *draftExecution `json:"execution_mode"`
	Output            *draftOutput    `json:"output"`
}

type draftVessel struct {
	MMSI     *flexString `json:"mmsi"`
	IMO      *flexString `json:"imo"`
	CallSign *flexString `json:"call_sign"`
	Name     *flexString `json:"name"`
}

type draftTime struct {
	Mode     *string `json:"mode"`
	Relative *string `json:"relative"`
	Start    *string `json:"start"`
	End      *string `json:"end"`
}

type draftSpatial struct {
	Type    string      `json:"type"`
	BBox    *geo.BBox   `json:"bbox"`
	Polygon []geo.Point `json:"polygon"`
}

type draftExecution struct {
	DataSource *string `json:"data_source"`
	ModelName  *string `json:"model_name"`
	Strict     bool    `json:"strict"`
}

type draftOutput struct {
	Format *string `json:"format"`
	Limit  *int    `json:"limit"`
}

// flexString accepts a JSON string or number; models regularly emit MMSIs
// as bare numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("identifier must be a string or number")
	}
	if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
		return errors.Newf("identifier %s is not an integer", n)
	}
	*f = flexString(n.String())
	return nil
}

// SchemaError is a planner draft that does not fit the canonical shape.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema: %s: %s", e.Field, e.Reason)
}

func schemaErr(field, format string, args ...any) error {
	return &SchemaError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DecodeIntent strictly decodes a planner draft into a CanonicalIntent.
// Unknown fields, unknown enum values and malformed identifiers are errors.
func DecodeIntent(raw []byte, defaults Defaults) (domain.CanonicalIntent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var d draft
	if err := dec.Decode(&d); err != nil {
		return domain.CanonicalIntent{}, &SchemaError{Reason: err.Error()}
	}
	if dec.More() {
		return domain.CanonicalIntent{}, &SchemaError{Reason: "trailing data after JSON object"}
	}

	var (
		out domain.CanonicalIntent
		err error
	)
	if d.DomainIntent == nil {
		return out, schemaErr("domain_intent", "required")
	}
	if out.Domain, err = domain.ParseDomainIntent(*d.DomainIntent); err != nil {
		return out, schemaErr("domain_intent", "%v", err)
	}
	if d.TaskIntent == nil {
		return out, schemaErr("task_intent", "required")
	}
	if out.Task, err = domain.ParseTaskIntent(*d.TaskIntent); err != nil {
		return out, schemaErr("task_intent", "%v", err)
	}
	if d.VesselScope == nil {
		return out, schemaErr("vessel_scope", "required")
	}
	if out.Scope, err = domain.ParseVesselScope(*d.VesselScope); err != nil {
		return out, schemaErr("vessel_scope", "%v", err)
	}

	out.Vessels = make([]domain.VesselRef, 0, len(d.Vessels))
	for i, v := range d.Vessels {
		ref, err := v.ref()
		if err != nil {
			return out, schemaErr(fmt.Sprintf("vessels[%d]", i), "%v", err)
		}
		out.Vessels = append(out.Vessels, ref)
	}

	if d.TimeConstraint != nil {
		tc, err := d.TimeConstraint.constraint()
		if err != nil {
			return out, schemaErr("time_constraint", "%v", err)
		}
		out.Time = tc
	}

	if d.SpatialConstraint != nil {
		sc, err := d.SpatialConstraint.constraint()
		if err != nil {
			return out, schemaErr("spatial_constraint", "%v", err)
		}
		out.Spatial = sc
	}

	out.Execution = domain.ExecutionMode{DataSource: defaults.DataSource}
	if e := d.ExecutionMode; e != nil {
		if e.DataSource != nil {
			if out.Execution.DataSource, err = domain.ParseDataSource(*e.DataSource); err != nil {
				return out, schemaErr("execution_mode.data_source", "%v", err)
			}
		}
		if e.ModelName != nil {
			out.Execution.ModelName = strings.TrimSpace(*e.ModelName)
		}
		out.Execution.Strict = e.Strict
	}

	out.Output = domain.Output{Format: defaults.Format, Limit: defaults.Limit}
	if o := d.Output; o != nil {
		if o.Format != nil {
			if out.Output.Format, err = domain.ParseOutputFormat(*o.Format); err != nil {
				return out, schemaErr("output.format", "%v", err)
			}
		}
		if o.Limit != nil {
			out.Output.Limit = *o.Limit
		}
	}
	return out, nil
}

func (v draftVessel) ref() (domain.VesselRef, error) {
	var refs []domain.VesselRef
	add := func(kind domain.RefKind, s *flexString) {
		if s == nil {
			return
		}
		if val := strings.TrimSpace(string(*s)); val != "" {
			refs = append(refs, domain.VesselRef{Kind: kind, Value: val})
		}
	}
	add(domain.RefMMSI, v.MMSI)
	add(domain.RefIMO, v.IMO)
	add(domain.RefCallSign, v.CallSign)
	add(domain.RefName, v.Name)

	if len(refs) != 1 {
		return domain.VesselRef{}, errors.Newf("exactly one of mmsi, imo, call_sign, name must be set, got %d", len(refs))
	}
	ref := refs[0]
	switch ref.Kind {
	case domain.RefMMSI:
		if !domain.ValidMMSI(ref.Value) {
			return ref, errors.Newf("mmsi %q must be 9 digits", ref.Value)
		}
	case domain.RefIMO:
		ref.Value = strings.TrimPrefix(strings.ToUpper(ref.Value), "IMO")
		ref.Value = strings.TrimSpace(ref.Value)
		if !domain.ValidIMO(ref.Value) {
			return ref, errors.Newf("imo %q must be 7 digits", ref.Value)
		}
	case domain.RefCallSign:
		ref.Value = strings.ToUpper(ref.Value)
	}
	return ref, nil
}

func (t draftTime) constraint() (*domain.TimeConstraint, error) {
	mode := ""
	if t.Mode != nil {
		mode = *t.Mode
	}
	hasRelative := t.Relative != nil && *t.Relative != ""
	hasAbsolute := (t.Start != nil && *t.Start != "") || (t.End != nil && *t.End != "")
	if mode == "" {
		switch {
		case hasRelative:
			mode = "relative"
		case hasAbsolute:
			mode = "absolute"
		default:
			// An empty object means no constraint.
			return nil, nil
		}
	}

	switch mode {
	case "relative":
		if !hasRelative {
			return nil, errors.New("relative mode without a relative expression")
		}
		if hasAbsolute {
			return nil, errors.New("relative mode must not carry start/end")
		}
		if err := domain.ParseRelative(*t.Relative); err != nil {
			return nil, err
		}
		return &domain.TimeConstraint{Relative: *t.Relative}, nil
	case "absolute":
		if hasRelative {
			return nil, errors.New("absolute mode must not carry a relative expression")
		}
		if t.Start == nil || t.End == nil {
			return nil, errors.New("absolute mode needs start and end")
		}
		start, err := parseTimestamp(*t.Start)
		if err != nil {
			return nil, errors.Wrap(err, "start")
		}
		end, err := parseTimestamp(*t.End)
		if err != nil {
			return nil, errors.Wrap(err, "end")
		}
		return &domain.TimeConstraint{Start: &start, End: &end}, nil
	}
	return nil, errors.Newf("unknown mode %q", mode)
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseTimestamp accepts RFC 3339 or a zone-less timestamp taken as UTC.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Newf("unparsable timestamp %q", s)
}

func (s draftSpatial) constraint() (*domain.SpatialConstraint, error) {
	switch domain.SpatialKind(s.Type) {
	case domain.SpatialNone, "":
		if s.BBox != nil || len(s.Polygon) > 0 {
			return nil, errors.New("type none must not carry a region")
		}
		return nil, nil
	case domain.SpatialBBox:
		if s.BBox == nil {
			return nil, errors.New("bbox type without bbox")
		}
		b := *s.BBox
		return &domain.SpatialConstraint{Kind: domain.SpatialBBox, BBox: &b}, nil
	case domain.SpatialPolygon:
		if len(s.Polygon) == 0 {
			return nil, errors.New("polygon type without polygon")
		}
		return &domain.SpatialConstraint{Kind: domain.SpatialPolygon, Polygon: append([]geo.Point(nil), s.Polygon...)}, nil
	}
	return nil, errors.Newf("unknown type %q", s.Type)
}
