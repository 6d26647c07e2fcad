// Package adapter defines the narrow interface the engine uses to call
// external integrations (source control, issue tracker, test
// management, CI/CD, app stores). Provider wire formats live behind
// implementations of Adapter; the engine only sees the result kind.
package adapter

import (
	"context"
	"fmt"

	"gantry/api/model"
)

type ResultKind string

const (
	// Completed: the work finished synchronously; Output is set.
	Completed ResultKind = "COMPLETED"
	// AwaitingCallback: the integration accepted asynchronous work and
	// will report per-platform outcomes over the webhook ingress.
	AwaitingCallback ResultKind = "AWAITING_CALLBACK"
	// AwaitingManualBuild: nothing to trigger; a human must upload a
	// build before the task can complete.
	AwaitingManualBuild ResultKind = "AWAITING_MANUAL_BUILD"
	// Failed: the integration rejected the work; Reason is set.
	Failed ResultKind = "FAILED"
)

type Request struct {
	Release *model.Release
	Task    *model.Task
	Cycle   *model.RegressionCycle
}

type Result struct {
	Kind   ResultKind
	Output *model.TaskOutput
	Reason string
}

// Adapter dispatches one unit of work to an external integration.
// Returned errors are infrastructure failures (network, timeout); a
// rejection by the integration itself is Result{Kind: Failed}.
type Adapter interface {
	Dispatch(ctx context.Context, req Request) (Result, error)
}

// Registry maps integration families to their adapters.
type Registry map[model.Family]Adapter

// Lookup returns the adapter for a family.
func (r Registry) Lookup(f model.Family) (Adapter, error) {
	a, ok := r[f]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for family %s", f)
	}
	return a, nil
}
