package model

import "time"

// BuildArtifact is an uploaded or pipeline-produced build. Staged
// artifacts (Consumed false) have no owning task and may be replaced
// by a newer upload for the same (release, platform, stage) key.
// Consumed artifacts are bound to exactly one task — and one cycle
// when regression-scoped — and are append-only history.
type BuildArtifact struct {
	ID        string      `json:"id"`
	ReleaseID string      `json:"releaseId"`
	Platform  Platform    `json:"platform"`
	Stage     Stage       `json:"stage"`
	Locator   string      `json:"locator,omitempty"`
	Source    BuildSource `json:"source"`

	Consumed bool   `json:"consumed"`
	TaskID   string `json:"taskId,omitempty"`
	CycleID  string `json:"cycleId,omitempty"`

	StagedAt   time.Time  `json:"stagedAt"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
}
