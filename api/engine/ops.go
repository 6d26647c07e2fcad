package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"gantry/api/model"
)

// ActiveReleases lists the releases the coordinator still drives.
func (e *Engine) ActiveReleases(ctx context.Context) ([]model.Release, error) {
	return e.store.ListActiveReleases(ctx)
}

// CreateRelease materializes a release from a validated plan. The new
// release starts in NOT_STARTED; the coordinator picks it up on the
// next tick and enters kickoff once the kickoff date arrives.
func (e *Engine) CreateRelease(ctx context.Context, plan *model.ReleasePlan) (*model.Release, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.store.FindRelease(ctx, plan.Tenant, plan.App, plan.Version); err == nil {
		return nil, fmt.Errorf("release %s %s already exists", plan.App, plan.Version)
	}

	now := time.Now()
	rel := &model.Release{
		ID:              uuid.New().String(),
		Tenant:          plan.Tenant,
		App:             plan.App,
		Version:         plan.Version,
		Platforms:       plan.Platforms,
		Phase:           model.PhaseNotStarted,
		Branch:          plan.Branch,
		BuildModes:      plan.BuildModes,
		KickoffAt:       plan.KickoffAt,
		TargetAt:        plan.TargetAt,
		RegressionSlots: plan.RegressionSlots,
		SkipTasks:       plan.Skip,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.InsertRelease(ctx, rel); err != nil {
		return nil, fmt.Errorf("insert release: %w", err)
	}
	if err := e.store.InitStageStatuses(ctx, rel.ID, plan.AutoAdvance); err != nil {
		return nil, err
	}

	log.Printf("engine: created release %s (%s %s)", rel.ID, rel.App, rel.Version)
	e.trail(rel.ID).Log(ctx, "stage", "release.created",
		fmt.Sprintf("%s %s planned, kickoff %s", rel.App, rel.Version, rel.KickoffAt.Format(time.RFC3339)), nil)
	return rel, nil
}

// SeedPlans creates releases for discovered plan files that do not
// exist yet. Already-known releases are left untouched.
func (e *Engine) SeedPlans(ctx context.Context, plans []*model.ReleasePlan) {
	for _, plan := range plans {
		if _, err := e.store.FindRelease(ctx, plan.Tenant, plan.App, plan.Version); err == nil {
			continue
		}
		if _, err := e.CreateRelease(ctx, plan); err != nil {
			log.Printf("engine: seed plan %s %s: %v", plan.App, plan.Version, err)
		}
	}
}

// TriggerNextStage advances a release past a completed stage whose
// auto-transition flag was not armed. From NOT_STARTED it starts
// kickoff regardless of the kickoff date — the operator's call is the
// explicit trigger.
func (e *Engine) TriggerNextStage(ctx context.Context, releaseID string) error {
	return e.withRelease(ctx, releaseID, func(ctx context.Context) error {
		rel, err := e.store.GetRelease(ctx, releaseID)
		if err != nil {
			return err
		}

		switch rel.Phase {
		case model.PhaseNotStarted:
			return e.enterStage(ctx, rel, model.StageKickoff)
		case model.PhaseReleased:
			return model.ErrPhaseFinal
		}

		stage, _ := model.StageForPhase(rel.Phase)
		statuses, err := e.store.StageStatuses(ctx, rel.ID)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			if s.Stage == stage && s.State != model.StageCompleted {
				return model.ErrStageIncomplete
			}
		}

		next, ok := stage.Next()
		if !ok {
			return e.finalize(ctx, rel)
		}
		return e.enterStage(ctx, rel, next)
	})
}

// RetryTask resets a FAILED task unconditionally to PENDING so the
// next tick redispatches it. Sibling tasks are never touched. Retrying
// a task that is already back in PENDING is a no-op, so redelivered
// retry requests cannot double-dispatch.
func (e *Engine) RetryTask(ctx context.Context, taskID string) error {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	return e.withRelease(ctx, t.ReleaseID, func(ctx context.Context) error {
		t, err := e.store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Status == model.TaskPending {
			return nil
		}
		if t.Status != model.TaskFailed {
			return fmt.Errorf("task %s is %s: %w", taskID, t.Status, model.ErrNotRetryable)
		}

		t.Status = model.TaskPending
		t.Reason = ""
		t.Outcomes = nil
		if err := e.store.UpdateTask(ctx, t); err != nil {
			return err
		}
		log.Printf("engine: task %s (%s) reset for retry", t.ID, t.Type)
		e.trail(t.ReleaseID).Log(ctx, "task", "task.retried",
			fmt.Sprintf("%s reset for retry", t.Type),
			map[string]string{"task": t.ID, "type": string(t.Type)})
		return nil
	})
}

// ArmAutoAdvance flips a stage's automatic-transition flag under the
// release lock so it cannot race an in-flight evaluation.
func (e *Engine) ArmAutoAdvance(ctx context.Context, releaseID string, stage model.Stage, armed bool) error {
	return e.withRelease(ctx, releaseID, func(ctx context.Context) error {
		if err := e.store.SetStageAutoAdvance(ctx, releaseID, stage, armed); err != nil {
			return err
		}
		// Arming may unblock a stage that already completed.
		return e.lockedEvaluate(ctx, releaseID)
	})
}
