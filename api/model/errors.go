package model

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyConsumed is returned when a consume hits an artifact
	// that is no longer staged.
	ErrAlreadyConsumed = errors.New("artifact already consumed")

	// ErrNotRetryable is returned when retry is requested for a task
	// that is not in FAILED.
	ErrNotRetryable = errors.New("task is not in a retryable state")

	// ErrReleaseBusy is returned when an evaluation is already running
	// for the release.
	ErrReleaseBusy = errors.New("release evaluation in progress")

	// ErrPhaseFinal is returned when a stage advance is requested past
	// RELEASED.
	ErrPhaseFinal = errors.New("release already in final phase")

	// ErrStageIncomplete is returned when an advance is requested
	// while the current stage still has unresolved work.
	ErrStageIncomplete = errors.New("current stage not completed")

	// ErrCycleActive is returned when a second regression cycle would
	// be started while one is in progress.
	ErrCycleActive = errors.New("regression cycle already in progress")
)
