package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"gantry/api/hub"
	"gantry/api/model"
)

// enterStage advances the release phase into a stage, marks it
// IN_PROGRESS, and materializes its task set. Phase only ever moves
// forward; entering a stage at or below the current phase is refused.
func (e *Engine) enterStage(ctx context.Context, rel *model.Release, stage model.Stage) error {
	target := stage.Phase()
	if target.Rank() <= rel.Phase.Rank() {
		return fmt.Errorf("refusing phase regression %s -> %s for release %s", rel.Phase, target, rel.ID)
	}

	if err := e.store.SetReleasePhase(ctx, rel.ID, target); err != nil {
		return err
	}
	rel.Phase = target
	if err := e.store.SetStageState(ctx, rel.ID, stage, model.StageInProgress); err != nil {
		return err
	}

	log.Printf("engine: release %s entered %s", rel.ID, stage)
	e.trail(rel.ID).Log(ctx, "stage", "stage.entered", fmt.Sprintf("entered %s", stage),
		map[string]string{"stage": string(stage)})
	e.broadcast(hub.Event{Type: "stage.entered", ReleaseID: rel.ID, Payload: map[string]string{
		"stage": string(stage),
	}})

	if err := e.ensureStageTasks(ctx, rel, stage); err != nil {
		return err
	}
	return e.runStage(ctx, rel, stage)
}

// ensureStageTasks materializes the stage's non-cycle tasks once.
// Skip-listed types are created directly in SKIPPED.
func (e *Engine) ensureStageTasks(ctx context.Context, rel *model.Release, stage model.Stage) error {
	existing, err := e.store.ListTasks(ctx, rel.ID)
	if err != nil {
		return err
	}
	have := map[model.TaskType]bool{}
	for _, t := range existing {
		if t.Stage == stage && t.CycleID == "" {
			have[t.Type] = true
		}
	}

	for _, tt := range model.StageTasks(stage) {
		if have[tt] {
			continue
		}
		task := newTask(rel, stage, tt, "")
		if rel.SkipsTask(tt) {
			task.Status = model.TaskSkipped
		}
		if err := e.store.InsertTask(ctx, task); err != nil {
			return fmt.Errorf("create task %s: %w", tt, err)
		}
		if task.Status == model.TaskSkipped {
			e.trail(rel.ID).Log(ctx, "task", "task.skipped", fmt.Sprintf("%s skipped by plan", tt),
				map[string]string{"task": task.ID, "type": string(tt)})
		}
	}
	return nil
}

func newTask(rel *model.Release, stage model.Stage, tt model.TaskType, cycleID string) *model.Task {
	task := &model.Task{
		ID:        uuid.New().String(),
		ReleaseID: rel.ID,
		Stage:     stage,
		CycleID:   cycleID,
		Type:      tt,
		Status:    model.TaskPending,
		CreatedAt: time.Now(),
	}
	if model.Catalog[tt].PerPlatform {
		task.Platforms = append([]model.Platform(nil), rel.Platforms...)
	}
	return task
}

// stageComplete applies the stage completion gate: every non-cycle
// task resolved successfully, and for REGRESSION additionally no cycle
// in progress and no slot left unconsumed.
func (e *Engine) stageComplete(ctx context.Context, rel *model.Release, stage model.Stage) (bool, error) {
	tasks, err := e.store.ListTasks(ctx, rel.ID)
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.Stage != stage {
			continue
		}
		if t.CycleID != "" {
			// Cycle tasks gate their cycle, not the stage directly.
			continue
		}
		if !t.Status.Succeeded() {
			return false, nil
		}
	}

	if stage != model.StageRegression {
		return true, nil
	}

	cycles, err := e.store.ListCycles(ctx, rel.ID)
	if err != nil {
		return false, err
	}
	terminal := map[int]bool{}
	for _, c := range cycles {
		if c.Status == model.CycleInProgress {
			return false, nil
		}
		if c.Status.Terminal() {
			terminal[c.Slot] = true
		}
	}
	for slot := range rel.RegressionSlots {
		if !terminal[slot] {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) completeStage(ctx context.Context, rel *model.Release, stage model.Stage) error {
	statuses, err := e.store.StageStatuses(ctx, rel.ID)
	if err != nil {
		return err
	}
	for _, s := range statuses {
		if s.Stage == stage && s.State == model.StageCompleted {
			return nil // already recorded
		}
	}

	if err := e.store.SetStageState(ctx, rel.ID, stage, model.StageCompleted); err != nil {
		return err
	}
	log.Printf("engine: release %s completed %s", rel.ID, stage)
	e.trail(rel.ID).Log(ctx, "stage", "stage.completed", fmt.Sprintf("%s completed", stage),
		map[string]string{"stage": string(stage)})
	e.broadcast(hub.Event{Type: "stage.completed", ReleaseID: rel.ID, Payload: map[string]string{
		"stage": string(stage),
	}})
	return nil
}
