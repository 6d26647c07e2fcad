package engine

import (
	"context"
	"fmt"
	"log"

	"gantry/api/adapter"
	"gantry/api/hub"
	"gantry/api/model"
)

// progressTasks is one pass of the task execution engine over a stage:
// dispatch newly eligible tasks, then complete any build-waiting tasks
// whose artifacts have all arrived. Eligibility is computed from the
// snapshot taken at the start of the pass, so a task whose predecessor
// completes mid-pass becomes due on the next tick.
func (e *Engine) progressTasks(ctx context.Context, rel *model.Release, stage model.Stage) error {
	tasks, err := e.store.ListTasks(ctx, rel.ID)
	if err != nil {
		return err
	}

	status := map[string]model.TaskStatus{} // (cycleID, type) -> status
	for _, t := range tasks {
		status[taskKey(t.CycleID, t.Type)] = t.Status
	}

	for i := range tasks {
		t := &tasks[i]
		if t.Stage != stage || t.Status != model.TaskPending {
			continue
		}
		if !predecessorsDone(t, status) {
			continue
		}
		if err := e.dispatchTask(ctx, rel, t); err != nil {
			return err
		}
	}

	// Completion by build availability.
	tasks, err = e.store.ListTasks(ctx, rel.ID)
	if err != nil {
		return err
	}
	for i := range tasks {
		t := &tasks[i]
		if t.Stage != stage {
			continue
		}
		switch t.Status {
		case model.TaskAwaitingManualBuild:
			if err := e.completeByBuilds(ctx, rel, t); err != nil {
				return err
			}
		case model.TaskAwaitingCallback:
			if err := e.creditManualShares(ctx, rel, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func taskKey(cycleID string, tt model.TaskType) string {
	return cycleID + "/" + string(tt)
}

func predecessorsDone(t *model.Task, status map[string]model.TaskStatus) bool {
	for _, pred := range t.Spec().Predecessors {
		s, ok := status[taskKey(t.CycleID, pred)]
		if !ok || !s.Succeeded() {
			return false
		}
	}
	return true
}

// dispatchTask hands one due task to its adapter and applies the
// outcome. Build-producing tasks whose platforms all build manually
// never touch an adapter; they park waiting for uploads.
func (e *Engine) dispatchTask(ctx context.Context, rel *model.Release, t *model.Task) error {
	spec := t.Spec()

	if spec.Mode == model.ModeBuild && allManual(rel, t.Platforms) {
		t.Status = model.TaskAwaitingManualBuild
		if err := e.store.UpdateTask(ctx, t); err != nil {
			return err
		}
		e.trail(rel.ID).Log(ctx, "task", "task.awaiting_build",
			fmt.Sprintf("%s waiting for manual builds", t.Type),
			map[string]string{"task": t.ID, "type": string(t.Type)})
		return nil
	}

	t.Status = model.TaskInProgress
	if err := e.store.UpdateTask(ctx, t); err != nil {
		return err
	}

	ad, err := e.adapters.Lookup(spec.Family)
	if err != nil {
		return e.failTask(ctx, rel, t, err.Error())
	}

	var cycle *model.RegressionCycle
	if t.CycleID != "" {
		cycle, err = e.store.GetCycle(ctx, t.CycleID)
		if err != nil {
			return fmt.Errorf("load cycle %s: %w", t.CycleID, err)
		}
	}

	res, err := ad.Dispatch(ctx, adapter.Request{Release: rel, Task: t, Cycle: cycle})
	if err != nil {
		// Infrastructure failure on the adapter call: the task parks
		// in FAILED with the reason and waits for an operator retry.
		return e.failTask(ctx, rel, t, err.Error())
	}

	switch res.Kind {
	case adapter.Completed:
		return e.completeTask(ctx, rel, t, res.Output)
	case adapter.AwaitingCallback:
		t.Status = model.TaskAwaitingCallback
		if t.Outcomes == nil {
			t.Outcomes = map[model.Platform]model.CallbackOutcome{}
		}
	case adapter.AwaitingManualBuild:
		t.Status = model.TaskAwaitingManualBuild
	case adapter.Failed:
		return e.failTask(ctx, rel, t, res.Reason)
	default:
		return e.failTask(ctx, rel, t, fmt.Sprintf("adapter returned unknown result %q", res.Kind))
	}

	if err := e.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	e.trail(rel.ID).Log(ctx, "task", "task.dispatched",
		fmt.Sprintf("%s dispatched (%s)", t.Type, t.Status),
		map[string]string{"task": t.ID, "type": string(t.Type), "status": string(t.Status)})
	return nil
}

func allManual(rel *model.Release, platforms []model.Platform) bool {
	for _, p := range platforms {
		if rel.BuildMode(p) == model.SourceCICD {
			return false
		}
	}
	return true
}

// completeByBuilds finishes a build-waiting task once every required
// platform has a staged artifact, consuming them atomically.
func (e *Engine) completeByBuilds(ctx context.Context, rel *model.Release, t *model.Task) error {
	staged, err := e.store.ListStagedArtifacts(ctx, rel.ID, t.Stage)
	if err != nil {
		return err
	}
	byPlatform := map[model.Platform]model.BuildArtifact{}
	for _, a := range staged {
		byPlatform[a.Platform] = a
	}

	var ids []string
	locators := map[model.Platform]string{}
	for _, p := range t.Platforms {
		a, ok := byPlatform[p]
		if !ok {
			return nil // still waiting
		}
		ids = append(ids, a.ID)
		locators[p] = a.Locator
	}

	if err := e.store.ConsumeArtifacts(ctx, ids, t.ID, t.CycleID); err != nil {
		// Lost the race against a concurrent consume: leave the task
		// waiting, the next tick re-reads staged state.
		log.Printf("engine: consume for task %s: %v", t.ID, err)
		return nil
	}
	t.ArtifactIDs = ids

	return e.completeTask(ctx, rel, t, &model.TaskOutput{
		Type:  t.Type,
		Build: &model.BuildOutput{Locators: locators},
	})
}

// creditManualShares settles the manual half of a mixed-mode build
// task. Platforms that build manually never report through the
// pipeline webhook, so a staged upload stands in for that platform's
// success share; once every platform's share is in, the task completes
// exactly as if the last callback had arrived.
func (e *Engine) creditManualShares(ctx context.Context, rel *model.Release, t *model.Task) error {
	if t.Spec().Mode != model.ModeBuild {
		return nil
	}
	staged, err := e.store.ListStagedArtifacts(ctx, rel.ID, t.Stage)
	if err != nil {
		return err
	}
	uploaded := map[model.Platform]bool{}
	for _, a := range staged {
		uploaded[a.Platform] = true
	}

	changed := false
	for _, p := range t.Platforms {
		if rel.BuildMode(p) != model.SourceManual {
			continue
		}
		if !uploaded[p] || t.Outcomes[p] == model.OutcomeSucceeded {
			continue
		}
		if t.Outcomes == nil {
			t.Outcomes = map[model.Platform]model.CallbackOutcome{}
		}
		t.Outcomes[p] = model.OutcomeSucceeded
		changed = true
	}
	if !changed {
		return nil
	}

	allDone := true
	for _, p := range t.Platforms {
		if t.Outcomes[p] != model.OutcomeSucceeded {
			allDone = false
			break
		}
	}
	if !allDone {
		return e.store.UpdateTask(ctx, t)
	}
	return e.finishCallbackTask(ctx, rel, t)
}

func (e *Engine) completeTask(ctx context.Context, rel *model.Release, t *model.Task, output *model.TaskOutput) error {
	t.Status = model.TaskCompleted
	t.Reason = ""
	if output != nil {
		t.Output = output
	}
	if err := e.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	log.Printf("engine: release %s task %s completed", rel.ID, t.Type)
	e.trail(rel.ID).Log(ctx, "task", "task.completed", fmt.Sprintf("%s completed", t.Type),
		map[string]string{"task": t.ID, "type": string(t.Type)})
	e.broadcast(hub.Event{Type: "task.completed", ReleaseID: rel.ID, Payload: map[string]string{
		"task": t.ID,
		"type": string(t.Type),
	}})
	return nil
}

func (e *Engine) failTask(ctx context.Context, rel *model.Release, t *model.Task, reason string) error {
	t.Status = model.TaskFailed
	t.Reason = reason
	if err := e.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	log.Printf("engine: release %s task %s failed: %s", rel.ID, t.Type, reason)
	e.trail(rel.ID).Log(ctx, "task", "task.failed", fmt.Sprintf("%s failed: %s", t.Type, reason),
		map[string]string{"task": t.ID, "type": string(t.Type), "reason": reason})
	e.broadcast(hub.Event{Type: "task.failed", ReleaseID: rel.ID, Payload: map[string]string{
		"task":   t.ID,
		"type":   string(t.Type),
		"reason": reason,
	}})
	return nil
}
