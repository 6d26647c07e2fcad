package engine

import (
	"context"
	"fmt"
	"log"

	"gantry/api/hub"
	"gantry/api/model"
)

// Tick runs one evaluation pass for a release. The per-release lock is
// taken with a try-lock: if a previous tick or a webhook update is
// still executing, this tick is skipped entirely, never queued.
func (e *Engine) Tick(ctx context.Context, releaseID string) error {
	lk := e.locks.get(releaseID)
	if !lk.TryLock() {
		return model.ErrReleaseBusy
	}
	defer lk.Unlock()
	return e.lockedEvaluate(ctx, releaseID)
}

// withRelease runs fn under the release's lock, blocking until the
// lock is free. Webhook-driven mutations use this path.
func (e *Engine) withRelease(ctx context.Context, releaseID string, fn func(context.Context) error) error {
	lk := e.locks.get(releaseID)
	lk.Lock()
	defer lk.Unlock()
	return fn(ctx)
}

// lockedEvaluate must be called with the release lock held.
func (e *Engine) lockedEvaluate(ctx context.Context, releaseID string) (err error) {
	if serr := e.store.SetEvaluating(ctx, releaseID, true); serr != nil {
		return fmt.Errorf("mark evaluating: %w", serr)
	}
	defer func() {
		if serr := e.store.SetEvaluating(ctx, releaseID, false); serr != nil {
			log.Printf("engine: clear evaluating flag for %s: %v", releaseID, serr)
		}
		// An evaluation either completes its pass or fails outright;
		// the lock is released either way and the release retries from
		// durable state next tick.
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panic: %v", r)
		}
	}()
	return e.evaluate(ctx, releaseID)
}

// evaluate is a single pass over one release's due work.
func (e *Engine) evaluate(ctx context.Context, releaseID string) error {
	rel, err := e.store.GetRelease(ctx, releaseID)
	if err != nil {
		return fmt.Errorf("load release: %w", err)
	}

	switch rel.Phase {
	case model.PhaseNotStarted:
		// The kickoff date is the transition trigger for the first
		// stage; before it the release just waits.
		if !e.now().Before(rel.KickoffAt) {
			return e.enterStage(ctx, rel, model.StageKickoff)
		}
		return nil
	case model.PhaseReleased:
		return nil
	}

	stage, ok := model.StageForPhase(rel.Phase)
	if !ok {
		return fmt.Errorf("release %s in unknown phase %q", rel.ID, rel.Phase)
	}
	return e.runStage(ctx, rel, stage)
}

// runStage progresses the active stage: regression cycle scheduling
// first (REGRESSION only), then task dispatch and completion, then the
// stage completion gate and any armed auto-advance.
func (e *Engine) runStage(ctx context.Context, rel *model.Release, stage model.Stage) error {
	if err := e.ensureStageTasks(ctx, rel, stage); err != nil {
		return err
	}

	if stage == model.StageRegression {
		if err := e.scheduleCycle(ctx, rel); err != nil {
			return err
		}
	}

	if err := e.progressTasks(ctx, rel, stage); err != nil {
		return err
	}

	if stage == model.StageRegression {
		if err := e.retireCycles(ctx, rel); err != nil {
			return err
		}
	}

	done, err := e.stageComplete(ctx, rel, stage)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	if err := e.completeStage(ctx, rel, stage); err != nil {
		return err
	}
	return e.autoAdvance(ctx, rel, stage)
}

// autoAdvance moves into the next stage when its auto-transition flag
// is armed. Completion of the last stage always finalizes the release.
func (e *Engine) autoAdvance(ctx context.Context, rel *model.Release, from model.Stage) error {
	next, ok := from.Next()
	if !ok {
		return e.finalize(ctx, rel)
	}

	statuses, err := e.store.StageStatuses(ctx, rel.ID)
	if err != nil {
		return err
	}
	for _, s := range statuses {
		if s.Stage == next && s.AutoAdvance {
			return e.enterStage(ctx, rel, next)
		}
	}
	return nil
}

func (e *Engine) finalize(ctx context.Context, rel *model.Release) error {
	if err := e.store.SetReleasePhase(ctx, rel.ID, model.PhaseReleased); err != nil {
		return err
	}
	rel.Phase = model.PhaseReleased
	log.Printf("engine: release %s (%s %s) released", rel.ID, rel.App, rel.Version)
	e.trail(rel.ID).Log(ctx, "stage", "release.finalized",
		fmt.Sprintf("%s %s released", rel.App, rel.Version), nil)
	e.broadcast(hub.Event{Type: "release.finalized", ReleaseID: rel.ID})
	return nil
}
