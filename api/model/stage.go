package model

import "time"

// Stage is one of the three orchestrated release stages. The bookend
// phases (NOT_STARTED, RELEASED) carry no tasks and are not stages.
type Stage string

const (
	StageKickoff        Stage = "KICKOFF"
	StageRegression     Stage = "REGRESSION"
	StagePostRegression Stage = "POST_REGRESSION"
)

// Stages lists the orchestrated stages in execution order.
var Stages = []Stage{StageKickoff, StageRegression, StagePostRegression}

// Next returns the stage that follows s, or false for the last stage.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageKickoff:
		return StageRegression, true
	case StageRegression:
		return StagePostRegression, true
	}
	return "", false
}

// Phase returns the release phase during which the stage runs.
func (s Stage) Phase() Phase {
	switch s {
	case StageKickoff:
		return PhaseKickoff
	case StageRegression:
		return PhaseRegression
	case StagePostRegression:
		return PhasePostRegression
	}
	return PhaseNotStarted
}

// StageForPhase maps an active phase back to its stage.
func StageForPhase(p Phase) (Stage, bool) {
	switch p {
	case PhaseKickoff:
		return StageKickoff, true
	case PhaseRegression:
		return StageRegression, true
	case PhasePostRegression:
		return StagePostRegression, true
	}
	return "", false
}

type StageState string

const (
	StagePending    StageState = "PENDING"
	StageInProgress StageState = "IN_PROGRESS"
	StageCompleted  StageState = "COMPLETED"
)

// StageStatus tracks one stage's progress for a release, plus the
// auto-advance arming and the coordinator's mutual-exclusion flag.
type StageStatus struct {
	ReleaseID   string     `json:"releaseId"`
	Stage       Stage      `json:"stage"`
	State       StageState `json:"state"`
	AutoAdvance bool       `json:"autoAdvance"`
	Evaluating  bool       `json:"evaluating"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
