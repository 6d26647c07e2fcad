package engine

import (
	"context"
	"errors"
	"testing"

	"gantry/api/model"
)

func cicdPlan() *model.ReleasePlan {
	plan := testPlan()
	plan.BuildModes = map[model.Platform]model.BuildSource{
		model.PlatformAndroid: model.SourceCICD,
		model.PlatformIOS:     model.SourceCICD,
	}
	return plan
}

// awaitingKickoffBuild drives a release until KICKOFF_BUILD sits in
// AWAITING_CALLBACK.
func awaitingKickoffBuild(t *testing.T, e *Engine, st *memStore, plan *model.ReleasePlan) (*model.Release, *model.Task) {
	t.Helper()
	rel := mustCreate(t, e, plan)
	mustTick(t, e, rel.ID)
	mustTick(t, e, rel.ID)
	task := taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if task.Status != model.TaskAwaitingCallback {
		t.Fatalf("KICKOFF_BUILD = %s, want AWAITING_CALLBACK", task.Status)
	}
	return rel, task
}

func TestCallbackCompletesAfterEveryPlatform(t *testing.T) {
	e, st := newTestEngine(t)
	rel, task := awaitingKickoffBuild(t, e, st, cicdPlan())
	ctx := context.Background()

	if err := e.HandleCallback(ctx, task.ID, model.PlatformAndroid, model.OutcomeSucceeded, ""); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	got := taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if got.Status != model.TaskAwaitingCallback {
		t.Fatalf("task = %s after one of two platforms, want AWAITING_CALLBACK", got.Status)
	}
	if got.Outcomes[model.PlatformAndroid] != model.OutcomeSucceeded {
		t.Fatalf("ANDROID outcome = %q, want SUCCEEDED recorded", got.Outcomes[model.PlatformAndroid])
	}

	if err := e.HandleCallback(ctx, task.ID, model.PlatformIOS, model.OutcomeSucceeded, ""); err != nil {
		t.Fatalf("second callback: %v", err)
	}
	got = taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if got.Status != model.TaskCompleted {
		t.Fatalf("task = %s after all platforms, want COMPLETED", got.Status)
	}
}

func TestCallbackFailureFailsTaskKeepingShares(t *testing.T) {
	e, st := newTestEngine(t)
	rel, task := awaitingKickoffBuild(t, e, st, cicdPlan())
	ctx := context.Background()

	if err := e.HandleCallback(ctx, task.ID, model.PlatformAndroid, model.OutcomeSucceeded, ""); err != nil {
		t.Fatal(err)
	}
	if err := e.HandleCallback(ctx, task.ID, model.PlatformIOS, model.OutcomeFailed, "signing expired"); err != nil {
		t.Fatal(err)
	}

	got := taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if got.Status != model.TaskFailed {
		t.Fatalf("task = %s, want FAILED", got.Status)
	}
	if got.Reason != "signing expired" {
		t.Fatalf("reason = %q, want the reported one", got.Reason)
	}
	// The successful share is not rolled back.
	if got.Outcomes[model.PlatformAndroid] != model.OutcomeSucceeded {
		t.Fatalf("ANDROID outcome = %q after IOS failure, want SUCCEEDED kept", got.Outcomes[model.PlatformAndroid])
	}
}

func TestInconsistentCallbacksIgnored(t *testing.T) {
	e, st := newTestEngine(t)
	rel, task := awaitingKickoffBuild(t, e, st, cicdPlan())
	ctx := context.Background()

	// Unknown task: dropped, never an error.
	if err := e.HandleCallback(ctx, "no-such-task", model.PlatformAndroid, model.OutcomeSucceeded, ""); err != nil {
		t.Fatalf("callback for unknown task = %v, want nil", err)
	}

	// Platform outside the task's snapshot: dropped.
	if err := e.HandleCallback(ctx, task.ID, model.PlatformWeb, model.OutcomeSucceeded, ""); err != nil {
		t.Fatalf("callback for foreign platform = %v, want nil", err)
	}
	got := taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if got.Status != model.TaskAwaitingCallback || len(got.Outcomes) != 0 {
		t.Fatalf("foreign-platform callback mutated task: %s %v", got.Status, got.Outcomes)
	}

	// Callback for a settled task: dropped.
	if err := e.HandleCallback(ctx, task.ID, model.PlatformAndroid, model.OutcomeSucceeded, ""); err != nil {
		t.Fatal(err)
	}
	if err := e.HandleCallback(ctx, task.ID, model.PlatformIOS, model.OutcomeSucceeded, ""); err != nil {
		t.Fatal(err)
	}
	if err := e.HandleCallback(ctx, task.ID, model.PlatformIOS, model.OutcomeFailed, "stale redelivery"); err != nil {
		t.Fatalf("redelivered callback = %v, want nil", err)
	}
	got = taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if got.Status != model.TaskCompleted {
		t.Fatalf("redelivered callback moved task to %s", got.Status)
	}
}

func TestCallbackBindsStagedArtifacts(t *testing.T) {
	e, st := newTestEngine(t)
	rel, task := awaitingKickoffBuild(t, e, st, cicdPlan())
	ctx := context.Background()

	// The pipeline uploads its binaries before reporting success.
	_, err := e.HandleBuildUploaded(ctx, rel.ID, model.PlatformAndroid, model.StageKickoff,
		"s3://builds/android.apk", model.SourceCICD)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.HandleBuildUploaded(ctx, rel.ID, model.PlatformIOS, model.StageKickoff,
		"s3://builds/ios.ipa", model.SourceCICD)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.HandleCallback(ctx, task.ID, model.PlatformAndroid, model.OutcomeSucceeded, ""); err != nil {
		t.Fatal(err)
	}
	if err := e.HandleCallback(ctx, task.ID, model.PlatformIOS, model.OutcomeSucceeded, ""); err != nil {
		t.Fatal(err)
	}

	got := taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if got.Status != model.TaskCompleted {
		t.Fatalf("task = %s, want COMPLETED", got.Status)
	}
	if len(got.ArtifactIDs) != 2 {
		t.Fatalf("bound %d artifacts, want 2", len(got.ArtifactIDs))
	}
	if got.Output == nil || got.Output.Build == nil ||
		got.Output.Build.Locators[model.PlatformIOS] != "s3://builds/ios.ipa" {
		t.Fatalf("output locators = %+v, want staged locators carried", got.Output)
	}
	arts, _ := st.ListArtifacts(ctx, rel.ID)
	for _, a := range arts {
		if a.Stage == model.StageKickoff && !a.Consumed {
			t.Errorf("artifact %s (%s) left staged after binding", a.ID, a.Platform)
		}
	}
}

func TestMixedBuildModesDispatchToPipeline(t *testing.T) {
	e, st := newTestEngine(t)
	plan := testPlan()
	plan.BuildModes = map[model.Platform]model.BuildSource{
		model.PlatformAndroid: model.SourceCICD,
		// IOS stays MANUAL by default.
	}
	rel := mustCreate(t, e, plan)
	mustTick(t, e, rel.ID)
	mustTick(t, e, rel.ID)

	// One CI/CD platform is enough to route the build task through the
	// pipeline adapter rather than parking for uploads.
	if got := taskByType(t, st, rel.ID, model.TaskKickoffBuild, "").Status; got != model.TaskAwaitingCallback {
		t.Fatalf("KICKOFF_BUILD = %s, want AWAITING_CALLBACK under mixed modes", got)
	}
}

func TestMixedBuildModesCompleteWithCallbackThenUpload(t *testing.T) {
	e, st := newTestEngine(t)
	plan := testPlan()
	plan.BuildModes = map[model.Platform]model.BuildSource{
		model.PlatformAndroid: model.SourceCICD,
		// IOS stays MANUAL by default.
	}
	rel, task := awaitingKickoffBuild(t, e, st, plan)
	ctx := context.Background()

	// The pipeline reports the CI/CD platform; the manual one is
	// still outstanding.
	if err := e.HandleCallback(ctx, task.ID, model.PlatformAndroid, model.OutcomeSucceeded, ""); err != nil {
		t.Fatalf("callback: %v", err)
	}
	got := taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if got.Status != model.TaskAwaitingCallback {
		t.Fatalf("task = %s with manual share missing, want AWAITING_CALLBACK", got.Status)
	}

	// The operator's upload is the manual platform's share.
	uploadBuild(t, e, rel.ID, model.PlatformIOS, model.StageKickoff)
	got = taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if got.Status != model.TaskCompleted {
		t.Fatalf("KICKOFF_BUILD = %s after callback and upload, want COMPLETED", got.Status)
	}
	if got.Outcomes[model.PlatformIOS] != model.OutcomeSucceeded {
		t.Fatalf("IOS outcome = %q, want SUCCEEDED from the upload", got.Outcomes[model.PlatformIOS])
	}
}

func TestMixedBuildModesCompleteWithUploadThenCallback(t *testing.T) {
	e, st := newTestEngine(t)
	plan := testPlan()
	plan.BuildModes = map[model.Platform]model.BuildSource{
		model.PlatformAndroid: model.SourceCICD,
	}
	rel, task := awaitingKickoffBuild(t, e, st, plan)
	ctx := context.Background()

	uploadBuild(t, e, rel.ID, model.PlatformIOS, model.StageKickoff)
	got := taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if got.Status != model.TaskAwaitingCallback {
		t.Fatalf("task = %s with pipeline share missing, want AWAITING_CALLBACK", got.Status)
	}
	if got.Outcomes[model.PlatformIOS] != model.OutcomeSucceeded {
		t.Fatalf("IOS outcome = %q after upload, want SUCCEEDED recorded", got.Outcomes[model.PlatformIOS])
	}

	if err := e.HandleCallback(ctx, task.ID, model.PlatformAndroid, model.OutcomeSucceeded, ""); err != nil {
		t.Fatalf("callback: %v", err)
	}
	got = taskByType(t, st, rel.ID, model.TaskKickoffBuild, "")
	if got.Status != model.TaskCompleted {
		t.Fatalf("KICKOFF_BUILD = %s after upload and callback, want COMPLETED", got.Status)
	}
}

// brokenTaskStore simulates an unreachable database on task lookups.
type brokenTaskStore struct {
	*memStore
}

func (s *brokenTaskStore) GetTask(context.Context, string) (*model.Task, error) {
	return nil, errors.New("connection reset")
}

func TestCallbackSurfacesStoreErrors(t *testing.T) {
	e := New(&brokenTaskStore{newMemStore()}, nil, nil, nil)

	// An infrastructure failure must bubble up so the webhook sender
	// redelivers; only a confirmed-unknown task is dropped.
	err := e.HandleCallback(context.Background(), "t1", model.PlatformAndroid, model.OutcomeSucceeded, "")
	if err == nil {
		t.Fatal("store error swallowed, want surfaced")
	}
}
