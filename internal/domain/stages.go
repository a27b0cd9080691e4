package domain

import "time"

type StageName string

const (
	StageResolveReferences StageName = "resolve_references"
	StageParseIntent       StageName = "parse_intent"
	StageValidatePlan      StageName = "validate_plan"
	StageResolveVessels    StageName = "resolve_vessels"
	StageRoute             StageName = "route"
	StageTrajectory        StageName = "trajectory"
	StageLoitering         StageName = "loitering"
	StageListing           StageName = "listing"
	StageBuildResponse     StageName = "build_response"
)

const (
	StageStatusCompleted = "completed"
	StageStatusFailed    = "failed"
)

// StageEvent reports one finished pipeline stage.
type StageEvent struct {
	RequestID string
	SessionID string
	Stage     StageName
	Status    string
	Duration  time.Duration
	Detail    string
}

func (e StageEvent) Message() StageMessage {
	return StageMessage{
		RequestID:  e.RequestID,
		SessionID:  e.SessionID,
		Stage:      e.Stage,
		Status:     e.Status,
		DurationMS: e.Duration.Milliseconds(),
		Detail:     e.Detail,
	}
}
