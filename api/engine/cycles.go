package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"gantry/api/hub"
	"gantry/api/model"
)

// scheduleCycle starts the next regression cycle when — and only when
// — a staged build exists for every target platform. The slot's
// scheduled time never starts a cycle by itself, and a slot whose time
// has passed still starts the moment its builds arrive.
func (e *Engine) scheduleCycle(ctx context.Context, rel *model.Release) error {
	cycles, err := e.store.ListCycles(ctx, rel.ID)
	if err != nil {
		return err
	}

	consumed := map[int]bool{}
	for _, c := range cycles {
		if c.Status == model.CycleInProgress {
			return nil // at most one cycle active; let its tasks run
		}
		if c.Status.Terminal() {
			consumed[c.Slot] = true
		}
	}

	slot := -1
	for i := range rel.RegressionSlots {
		if !consumed[i] {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil // every slot retired; stage gate handles the rest
	}

	staged, err := e.store.ListStagedArtifacts(ctx, rel.ID, model.StageRegression)
	if err != nil {
		return err
	}
	byPlatform := map[model.Platform]model.BuildArtifact{}
	for _, a := range staged {
		byPlatform[a.Platform] = a
	}

	var ids []string
	locators := map[model.Platform]string{}
	for _, p := range rel.Platforms {
		a, ok := byPlatform[p]
		if !ok {
			return nil // builds outstanding; slot stays open
		}
		ids = append(ids, a.ID)
		locators[p] = a.Locator
	}

	return e.startCycle(ctx, rel, slot, ids, locators)
}

// startCycle creates the cycle, consumes the staged builds into the
// cycle's build-trigger task (created already COMPLETED because the
// artifacts exist), and materializes the remaining cycle tasks. All
// of it lands in one store write, so a failure partway leaves neither
// a half-populated cycle nor half-consumed builds.
func (e *Engine) startCycle(ctx context.Context, rel *model.Release, slot int, artifactIDs []string, locators map[model.Platform]string) error {
	now := time.Now()
	cycle := &model.RegressionCycle{
		ID:        uuid.New().String(),
		ReleaseID: rel.ID,
		Slot:      slot,
		SlotAt:    rel.RegressionSlots[slot],
		Status:    model.CycleInProgress,
		StartedAt: now,
	}

	buildTask := newTask(rel, model.StageRegression, model.TaskRegressionBuild, cycle.ID)
	buildTask.Status = model.TaskCompleted
	buildTask.ArtifactIDs = artifactIDs
	buildTask.Output = &model.TaskOutput{
		Type:  model.TaskRegressionBuild,
		Build: &model.BuildOutput{Locators: locators},
	}

	tasks := []model.Task{*buildTask}
	for _, tt := range model.CycleTasks() {
		if tt == model.TaskRegressionBuild {
			continue
		}
		task := newTask(rel, model.StageRegression, tt, cycle.ID)
		if rel.SkipsTask(tt) {
			task.Status = model.TaskSkipped
		}
		tasks = append(tasks, *task)
	}

	err := e.store.CreateCycle(ctx, cycle, tasks, artifactIDs, buildTask.ID)
	switch {
	case errors.Is(err, model.ErrCycleActive), errors.Is(err, model.ErrAlreadyConsumed):
		// Lost a race with a concurrent start or consume; the next
		// tick re-reads staged state and tries again.
		log.Printf("engine: release %s cycle %d not started: %v", rel.ID, slot, err)
		return nil
	case err != nil:
		return fmt.Errorf("create cycle %d: %w", slot, err)
	}

	log.Printf("engine: release %s started regression cycle %d", rel.ID, slot)
	e.trail(rel.ID).Log(ctx, "cycle", "cycle.started",
		fmt.Sprintf("regression cycle %d started", slot),
		map[string]string{"cycle": cycle.ID, "slot": fmt.Sprint(slot)})
	e.broadcast(hub.Event{Type: "cycle.started", ReleaseID: rel.ID, Payload: map[string]string{
		"cycle": cycle.ID,
	}})
	return nil
}

// retireCycles moves an in-progress cycle to DONE once all of its
// tasks resolved successfully, lifting the tag cut during the cycle
// onto the cycle record. ABANDONED is never entered here; that is an
// explicit operator action.
func (e *Engine) retireCycles(ctx context.Context, rel *model.Release) error {
	cycles, err := e.store.ListCycles(ctx, rel.ID)
	if err != nil {
		return err
	}
	tasks, err := e.store.ListTasks(ctx, rel.ID)
	if err != nil {
		return err
	}

	for i := range cycles {
		c := &cycles[i]
		if c.Status != model.CycleInProgress {
			continue
		}

		done := true
		tag := c.Tag
		for _, t := range tasks {
			if t.CycleID != c.ID {
				continue
			}
			if !t.Status.Succeeded() {
				done = false
				break
			}
			if t.Type == model.TaskCutTag && t.Output != nil && t.Output.Tag != nil {
				tag = t.Output.Tag.Tag
			}
		}
		if !done {
			continue
		}

		now := time.Now()
		c.Status = model.CycleDone
		c.Tag = tag
		c.CompletedAt = &now
		if err := e.store.UpdateCycle(ctx, c); err != nil {
			return err
		}
		log.Printf("engine: release %s regression cycle %d done (tag %s)", rel.ID, c.Slot, tag)
		e.trail(rel.ID).Log(ctx, "cycle", "cycle.done",
			fmt.Sprintf("regression cycle %d done", c.Slot),
			map[string]string{"cycle": c.ID, "tag": tag})
		e.broadcast(hub.Event{Type: "cycle.done", ReleaseID: rel.ID, Payload: map[string]string{
			"cycle": c.ID,
			"tag":   tag,
		}})
	}
	return nil
}

// AbandonCycle retires a cycle without completing it. This is the only
// path into ABANDONED; the scheduler never abandons a cycle on its
// own, no matter how far past its slot time it is.
func (e *Engine) AbandonCycle(ctx context.Context, cycleID string) error {
	c, err := e.store.GetCycle(ctx, cycleID)
	if err != nil {
		return err
	}
	return e.withRelease(ctx, c.ReleaseID, func(ctx context.Context) error {
		c, err := e.store.GetCycle(ctx, cycleID)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			return nil // idempotent
		}
		now := time.Now()
		c.Status = model.CycleAbandoned
		c.CompletedAt = &now
		if err := e.store.UpdateCycle(ctx, c); err != nil {
			return err
		}
		log.Printf("engine: release %s regression cycle %d abandoned", c.ReleaseID, c.Slot)
		e.trail(c.ReleaseID).Log(ctx, "cycle", "cycle.abandoned",
			fmt.Sprintf("regression cycle %d abandoned", c.Slot),
			map[string]string{"cycle": c.ID})
		return e.lockedEvaluate(ctx, c.ReleaseID)
	})
}
