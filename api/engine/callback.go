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

// HandleCallback ingests one platform's share of an asynchronous task
// reported by a CI/CD webhook. Inconsistent callbacks (unknown task,
// task not awaiting one, platform outside the task's set) are logged
// and dropped — a redelivered or stale webhook must never crash the
// coordinator or mutate settled state.
func (e *Engine) HandleCallback(ctx context.Context, taskID string, platform model.Platform, outcome model.CallbackOutcome, reason string) error {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		// Unknown task is a stale or misrouted webhook and is dropped;
		// an infrastructure error surfaces so the sender redelivers.
		if errors.Is(err, model.ErrNotFound) {
			log.Printf("engine: callback for unknown task %s ignored", taskID)
			return nil
		}
		return err
	}

	return e.withRelease(ctx, t.ReleaseID, func(ctx context.Context) error {
		t, err := e.store.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			return err
		}
		if t.Status != model.TaskAwaitingCallback {
			log.Printf("engine: callback for task %s in %s ignored", taskID, t.Status)
			return nil
		}
		if !containsPlatform(t.Platforms, platform) {
			log.Printf("engine: callback for task %s names platform %s outside its set", taskID, platform)
			return nil
		}

		rel, err := e.store.GetRelease(ctx, t.ReleaseID)
		if err != nil {
			return err
		}

		if t.Outcomes == nil {
			t.Outcomes = map[model.Platform]model.CallbackOutcome{}
		}
		t.Outcomes[platform] = outcome

		if outcome == model.OutcomeFailed {
			// One platform failing fails the task; shares that already
			// succeeded stay recorded and are not rolled back.
			if reason == "" {
				reason = fmt.Sprintf("%s reported failure", platform)
			}
			if err := e.failTask(ctx, rel, t, reason); err != nil {
				return err
			}
			return e.lockedEvaluate(ctx, rel.ID)
		}

		allDone := true
		for _, p := range t.Platforms {
			if t.Outcomes[p] != model.OutcomeSucceeded {
				allDone = false
				break
			}
		}
		if !allDone {
			if err := e.store.UpdateTask(ctx, t); err != nil {
				return err
			}
			e.trail(rel.ID).Log(ctx, "task", "task.platform_done",
				fmt.Sprintf("%s: %s succeeded", t.Type, platform),
				map[string]string{"task": t.ID, "platform": string(platform)})
			return nil
		}

		if err := e.finishCallbackTask(ctx, rel, t); err != nil {
			return err
		}
		return e.lockedEvaluate(ctx, rel.ID)
	})
}

// finishCallbackTask completes a callback task once every platform
// reported success. If the pipeline's artifacts have already been
// staged for the task's stage, they are bound to the task here.
func (e *Engine) finishCallbackTask(ctx context.Context, rel *model.Release, t *model.Task) error {
	output := &model.TaskOutput{Type: t.Type}

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
			ids = nil
			break
		}
		ids = append(ids, a.ID)
		locators[p] = a.Locator
	}
	if len(ids) > 0 {
		if err := e.store.ConsumeArtifacts(ctx, ids, t.ID, t.CycleID); err != nil {
			log.Printf("engine: bind artifacts to task %s: %v", t.ID, err)
		} else {
			t.ArtifactIDs = ids
			output.Build = &model.BuildOutput{Locators: locators}
		}
	}

	return e.completeTask(ctx, rel, t, output)
}

// HandleBuildUploaded ingests a build-upload notification: the binary
// is already stored by the upload layer, which hands over a locator.
// Staging replaces any prior unconsumed artifact for the same key and
// immediately re-evaluates the release so build-gated work starts
// within the same pass.
func (e *Engine) HandleBuildUploaded(ctx context.Context, releaseID string, platform model.Platform, stage model.Stage, locator string, source model.BuildSource) (*model.BuildArtifact, error) {
	rel, err := e.store.GetRelease(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	if !rel.HasPlatform(platform) {
		return nil, fmt.Errorf("release %s does not target %s", releaseID, platform)
	}

	var artifact *model.BuildArtifact
	err = e.withRelease(ctx, releaseID, func(ctx context.Context) error {
		artifact = &model.BuildArtifact{
			ID:        uuid.New().String(),
			ReleaseID: releaseID,
			Platform:  platform,
			Stage:     stage,
			Locator:   locator,
			Source:    source,
			StagedAt:  time.Now(),
		}
		if err := e.store.StageArtifact(ctx, artifact); err != nil {
			return fmt.Errorf("stage artifact: %w", err)
		}

		log.Printf("engine: release %s staged %s build for %s", releaseID, platform, stage)
		e.trail(releaseID).Log(ctx, "build", "build.staged",
			fmt.Sprintf("%s build staged for %s", platform, stage),
			map[string]string{"artifact": artifact.ID, "platform": string(platform), "stage": string(stage)})
		e.broadcast(hub.Event{Type: "build.staged", ReleaseID: releaseID, Payload: map[string]string{
			"artifact": artifact.ID,
			"platform": string(platform),
			"stage":    string(stage),
		}})

		return e.lockedEvaluate(ctx, releaseID)
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

func containsPlatform(platforms []model.Platform, p model.Platform) bool {
	for _, pp := range platforms {
		if pp == p {
			return true
		}
	}
	return false
}
