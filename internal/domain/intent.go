package domain

import (
	"slices"

	"github.com/cockroachdb/errors"
)

type DomainIntent string

const (
	DomainTrajectory DomainIntent = "trajectory"
	DomainLoitering  DomainIntent = "loitering"
	DomainPrediction DomainIntent = "prediction"
	DomainListing    DomainIntent = "listing"
)

var domainIntents = []DomainIntent{DomainTrajectory, DomainLoitering, DomainPrediction, DomainListing}

func ParseDomainIntent(s string) (DomainIntent, error) {
	d := DomainIntent(s)
	if !slices.Contains(domainIntents, d) {
		return "", errors.Newf("unknown domain_intent %q", s)
	}
	return d, nil
}

type TaskIntent string

const (
	TaskShow    TaskIntent = "show"
	TaskPredict TaskIntent = "predict"
	TaskDetect  TaskIntent = "detect"
	TaskList    TaskIntent = "list"
)

var taskIntents = []TaskIntent{TaskShow, TaskPredict, TaskDetect, TaskList}

func ParseTaskIntent(s string) (TaskIntent, error) {
	t := TaskIntent(s)
	if !slices.Contains(taskIntents, t) {
		return "", errors.Newf("unknown task_intent %q", s)
	}
	return t, nil
}

// AllowedTasks lists the task intents each domain accepts.
var AllowedTasks = map[DomainIntent][]TaskIntent{
	DomainTrajectory: {TaskShow, TaskPredict},
	DomainLoitering:  {TaskDetect},
	DomainPrediction: {TaskPredict},
	DomainListing:    {TaskList, TaskShow},
}

type VesselScope string

const (
	ScopeSingle   VesselScope = "single"
	ScopeMultiple VesselScope = "multiple"
	ScopeAll      VesselScope = "all"
)

func ParseVesselScope(s string) (VesselScope, error) {
	switch v := VesselScope(s); v {
	case ScopeSingle, ScopeMultiple, ScopeAll:
		return v, nil
	}
	return "", errors.Newf("unknown vessel_scope %q", s)
}

type RefKind string

const (
	RefMMSI     RefKind = "mmsi"
	RefIMO      RefKind = "imo"
	RefCallSign RefKind = "call_sign"
	RefName     RefKind = "name"
	// RefAnaphor marks a reference word ("it", "that vessel") nothing in
	// the session could bind.
	RefAnaphor RefKind = "anaphor"
)

type VesselRef struct {
	Kind  RefKind `json:"kind"`
	Value string  `json:"value"`
}

func (r VesselRef) String() string {
	return string(r.Kind) + ":" + r.Value
}

type DataSource string

const (
	SourceRawAIS         DataSource = "raw_ais"
	SourceMLPredictions  DataSource = "ml_predictions"
	SourceModelInference DataSource = "model_inference"
)

func ParseDataSource(s string) (DataSource, error) {
	switch v := DataSource(s); v {
	case SourceRawAIS, SourceMLPredictions, SourceModelInference:
		return v, nil
	}
	return "", errors.Newf("unknown data_source %q", s)
}

type ExecutionMode struct {
	DataSource DataSource `json:"data_source"`
	ModelName  string     `json:"model_name,omitempty"`
	Strict     bool       `json:"strict"`
}

type OutputFormat string

const (
	FormatTable   OutputFormat = "table"
	FormatMap     OutputFormat = "map"
	FormatSummary OutputFormat = "summary"
)

func ParseOutputFormat(s string) (OutputFormat, error) {
	switch v := OutputFormat(s); v {
	case FormatTable, FormatMap, FormatSummary:
		return v, nil
	}
	return "", errors.Newf("unknown output format %q", s)
}

type Output struct {
	Format OutputFormat `json:"format"`
	Limit  int          `json:"limit"`
}

// CanonicalIntent is the validated, structured form of one query. Values are
// treated as immutable once parsed; use the With* helpers to derive copies.
type CanonicalIntent struct {
	Domain    DomainIntent       `json:"domain_intent"`
	Task      TaskIntent         `json:"task_intent"`
	Scope     VesselScope        `json:"vessel_scope"`
	Vessels   []VesselRef        `json:"vessels"`
	Time      *TimeConstraint    `json:"time_constraint,omitempty"`
	Spatial   *SpatialConstraint `json:"spatial_constraint,omitempty"`
	Execution ExecutionMode      `json:"execution_mode"`
	Output    Output             `json:"output"`
}

// WithVessels returns a copy of the intent carrying refs.
func (c CanonicalIntent) WithVessels(refs []VesselRef) CanonicalIntent {
	c.Vessels = slices.Clone(refs)
	return c
}

// Clone deep-copies the slice and pointer fields.
func (c CanonicalIntent) Clone() CanonicalIntent {
	c.Vessels = slices.Clone(c.Vessels)
	if c.Time != nil {
		t := *c.Time
		c.Time = &t
	}
	if c.Spatial != nil {
		s := *c.Spatial
		s.Polygon = slices.Clone(s.Polygon)
		c.Spatial = &s
	}
	return c
}
