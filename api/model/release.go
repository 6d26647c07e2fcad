package model

import "time"

type Phase string

const (
	PhaseNotStarted     Phase = "NOT_STARTED"
	PhaseKickoff        Phase = "KICKOFF"
	PhaseRegression     Phase = "REGRESSION"
	PhasePostRegression Phase = "POST_REGRESSION"
	PhaseReleased       Phase = "RELEASED"
)

var phaseOrder = map[Phase]int{
	PhaseNotStarted:     0,
	PhaseKickoff:        1,
	PhaseRegression:     2,
	PhasePostRegression: 3,
	PhaseReleased:       4,
}

// Rank returns the position of the phase in the fixed forward order.
// Unknown phases rank below NOT_STARTED.
func (p Phase) Rank() int {
	if r, ok := phaseOrder[p]; ok {
		return r
	}
	return -1
}

// Next returns the phase that follows p. RELEASED has no successor.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhaseNotStarted:
		return PhaseKickoff, true
	case PhaseKickoff:
		return PhaseRegression, true
	case PhaseRegression:
		return PhasePostRegression, true
	case PhasePostRegression:
		return PhaseReleased, true
	}
	return "", false
}

type Platform string

const (
	PlatformAndroid Platform = "ANDROID"
	PlatformIOS     Platform = "IOS"
	PlatformWeb     Platform = "WEB"
)

// Platforms lists every known platform.
var Platforms = []Platform{PlatformAndroid, PlatformIOS, PlatformWeb}

func ValidPlatform(p Platform) bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformWeb:
		return true
	}
	return false
}

type BuildSource string

const (
	SourceManual BuildSource = "MANUAL"
	SourceCICD   BuildSource = "CI_CD"
)

// Release is one app version going through the release train.
type Release struct {
	ID         string                   `json:"id"`
	Tenant     string                   `json:"tenant"`
	App        string                   `json:"app"`
	Version    string                   `json:"version"`
	Platforms  []Platform               `json:"platforms"`
	Phase      Phase                    `json:"phase"`
	Branch     string                   `json:"branch,omitempty"`
	BuildModes map[Platform]BuildSource `json:"buildModes"`
	KickoffAt  time.Time                `json:"kickoffAt"`
	TargetAt   time.Time                `json:"targetAt"`

	// RegressionSlots is the dated slot queue configured at creation
	// (possibly amended ad hoc), ascending.
	RegressionSlots []time.Time `json:"regressionSlots"`

	// SkipTasks are task types materialized directly as SKIPPED.
	SkipTasks []TaskType `json:"skipTasks,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SkipsTask reports whether a task type is on the skip list.
func (r *Release) SkipsTask(tt TaskType) bool {
	for _, s := range r.SkipTasks {
		if s == tt {
			return true
		}
	}
	return false
}

// BuildMode returns the configured pipeline mode for a platform,
// defaulting to MANUAL when the plan never said otherwise.
func (r *Release) BuildMode(p Platform) BuildSource {
	if m, ok := r.BuildModes[p]; ok {
		return m
	}
	return SourceManual
}

// HasPlatform reports whether p is one of the release's target platforms.
func (r *Release) HasPlatform(p Platform) bool {
	for _, rp := range r.Platforms {
		if rp == p {
			return true
		}
	}
	return false
}
