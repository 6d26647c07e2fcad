package model

import "time"

type CycleStatus string

const (
	CycleNotStarted CycleStatus = "NOT_STARTED"
	CycleInProgress CycleStatus = "IN_PROGRESS"
	CycleDone       CycleStatus = "DONE"
	CycleAbandoned  CycleStatus = "ABANDONED"
)

// Terminal reports whether the cycle has retired.
func (s CycleStatus) Terminal() bool {
	return s == CycleDone || s == CycleAbandoned
}

// RegressionCycle is one scheduled pass of regression testing, bound
// to a dated slot. A cycle exists as a record only once started; slots
// without a cycle are still NOT_STARTED by definition.
type RegressionCycle struct {
	ID        string      `json:"id"`
	ReleaseID string      `json:"releaseId"`
	Slot      int         `json:"slot"`
	SlotAt    time.Time   `json:"slotAt"`
	Status    CycleStatus `json:"status"`

	// Tag is cut once during the cycle and immutable after.
	Tag string `json:"tag,omitempty"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
