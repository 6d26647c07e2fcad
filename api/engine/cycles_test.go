package engine

import (
	"context"
	"errors"
	"testing"

	"gantry/api/model"
)

// regressionRelease drives a fresh release into REGRESSION with no
// cycle started yet.
func regressionRelease(t *testing.T, e *Engine, st *memStore, plan *model.ReleasePlan) *model.Release {
	t.Helper()
	if plan.AutoAdvance == nil {
		plan.AutoAdvance = map[model.Stage]bool{}
	}
	plan.AutoAdvance[model.StageRegression] = true
	rel := mustCreate(t, e, plan)
	completeKickoff(t, e, st, rel.ID)
	if got := releasePhase(t, st, rel.ID); got != model.PhaseRegression {
		t.Fatalf("phase = %s, want REGRESSION", got)
	}
	return rel
}

func listCycles(t *testing.T, st *memStore, releaseID string) []model.RegressionCycle {
	t.Helper()
	cycles, err := st.ListCycles(context.Background(), releaseID)
	if err != nil {
		t.Fatalf("ListCycles: %v", err)
	}
	return cycles
}

func stageRegressionBuilds(t *testing.T, e *Engine, releaseID string) {
	t.Helper()
	uploadBuild(t, e, releaseID, model.PlatformAndroid, model.StageRegression)
	uploadBuild(t, e, releaseID, model.PlatformIOS, model.StageRegression)
}

func TestCycleStartsOnlyWhenAllPlatformsStaged(t *testing.T) {
	e, st := newTestEngine(t)
	rel := regressionRelease(t, e, st, testPlan())

	// Slot 0's scheduled time is already past; without builds the
	// slot stays open.
	mustTick(t, e, rel.ID)
	if got := len(listCycles(t, st, rel.ID)); got != 0 {
		t.Fatalf("%d cycles started on slot time alone, want 0", got)
	}

	uploadBuild(t, e, rel.ID, model.PlatformAndroid, model.StageRegression)
	if got := len(listCycles(t, st, rel.ID)); got != 0 {
		t.Fatalf("%d cycles started with one of two builds, want 0", got)
	}

	uploadBuild(t, e, rel.ID, model.PlatformIOS, model.StageRegression)
	cycles := listCycles(t, st, rel.ID)
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}
	c := cycles[0]
	if c.Slot != 0 || c.Status != model.CycleInProgress {
		t.Fatalf("cycle slot=%d status=%s, want slot 0 IN_PROGRESS", c.Slot, c.Status)
	}

	// The staged builds were consumed into the cycle's build task.
	staged, _ := st.ListStagedArtifacts(context.Background(), rel.ID, model.StageRegression)
	if len(staged) != 0 {
		t.Fatalf("%d artifacts left staged after cycle start, want 0", len(staged))
	}
	bt := taskByType(t, st, rel.ID, model.TaskRegressionBuild, c.ID)
	if bt.Status != model.TaskCompleted {
		t.Fatalf("REGRESSION_BUILD = %s, want COMPLETED at cycle start", bt.Status)
	}
	if len(bt.ArtifactIDs) != 2 {
		t.Fatalf("cycle build task bound %d artifacts, want 2", len(bt.ArtifactIDs))
	}
}

func TestAtMostOneCycleInProgress(t *testing.T) {
	e, st := newTestEngine(t)
	rel := regressionRelease(t, e, st, testPlan())

	stageRegressionBuilds(t, e, rel.ID)
	if got := len(listCycles(t, st, rel.ID)); got != 1 {
		t.Fatalf("got %d cycles, want 1", got)
	}

	// Builds for the next slot arrive while the first cycle still has
	// work outstanding. Whatever the interleaving, two cycles must
	// never run at once.
	stageRegressionBuilds(t, e, rel.ID)
	mustTick(t, e, rel.ID)

	cycles := listCycles(t, st, rel.ID)
	inProgress := 0
	for _, c := range cycles {
		if c.Status == model.CycleInProgress {
			inProgress++
		}
	}
	if inProgress > 1 {
		t.Fatalf("%d cycles IN_PROGRESS, want at most 1", inProgress)
	}
}

func TestCycleRunsToDoneAndLiftsTag(t *testing.T) {
	e, st := newTestEngine(t)
	plan := testPlan()
	plan.RegressionSlots = plan.RegressionSlots[:1]
	rel := regressionRelease(t, e, st, plan)

	stageRegressionBuilds(t, e, rel.ID)
	mustTick(t, e, rel.ID) // DRAFT_RELEASE_NOTES becomes due, cycle retires

	cycles := listCycles(t, st, rel.ID)
	if len(cycles) != 1 || cycles[0].Status != model.CycleDone {
		t.Fatalf("cycle = %+v, want single DONE cycle", cycles)
	}
	if cycles[0].Tag != "v4.12.0-rc1" {
		t.Fatalf("cycle tag = %q, want v4.12.0-rc1", cycles[0].Tag)
	}
	if cycles[0].CompletedAt == nil {
		t.Fatal("DONE cycle has no completion time")
	}
}

func TestStageGateRequiresEverySlot(t *testing.T) {
	e, st := newTestEngine(t)
	rel := regressionRelease(t, e, st, testPlan())
	ctx := context.Background()

	// Run the first of two slots to DONE.
	stageRegressionBuilds(t, e, rel.ID)
	mustTick(t, e, rel.ID)

	// Slot 1 was never started: no cycle record exists for it, and the
	// stage is not complete.
	if err := e.TriggerNextStage(ctx, rel.ID); !errors.Is(err, model.ErrStageIncomplete) {
		t.Fatalf("TriggerNextStage with open slot = %v, want ErrStageIncomplete", err)
	}

	// Run the second slot.
	stageRegressionBuilds(t, e, rel.ID)
	mustTick(t, e, rel.ID)
	mustTick(t, e, rel.ID)

	if err := e.TriggerNextStage(ctx, rel.ID); err != nil {
		t.Fatalf("TriggerNextStage with all slots retired: %v", err)
	}
	if got := releasePhase(t, st, rel.ID); got != model.PhasePostRegression {
		t.Fatalf("phase = %s, want POST_REGRESSION", got)
	}
}

func TestAbandonCycleRetiresSlot(t *testing.T) {
	e, st := newTestEngine(t)
	rel := regressionRelease(t, e, st, testPlan())
	ctx := context.Background()

	stageRegressionBuilds(t, e, rel.ID)
	cycles := listCycles(t, st, rel.ID)
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}

	if err := e.AbandonCycle(ctx, cycles[0].ID); err != nil {
		t.Fatalf("AbandonCycle: %v", err)
	}
	got, _ := st.GetCycle(ctx, cycles[0].ID)
	if got.Status != model.CycleAbandoned {
		t.Fatalf("cycle = %s, want ABANDONED", got.Status)
	}

	// Abandoning again is idempotent.
	if err := e.AbandonCycle(ctx, cycles[0].ID); err != nil {
		t.Fatalf("second AbandonCycle: %v", err)
	}
	got, _ = st.GetCycle(ctx, cycles[0].ID)
	if got.Status != model.CycleAbandoned {
		t.Fatalf("cycle flipped to %s on repeat abandon", got.Status)
	}

	// The abandoned slot counts as retired: new builds start slot 1,
	// not a rerun of slot 0.
	stageRegressionBuilds(t, e, rel.ID)
	cycles = listCycles(t, st, rel.ID)
	if len(cycles) != 2 {
		t.Fatalf("got %d cycles after abandon, want 2", len(cycles))
	}
	if cycles[1].Slot != 1 {
		t.Fatalf("new cycle slot = %d, want 1", cycles[1].Slot)
	}
}

func TestExternallyConsumedBuildsLeaveTaskWaiting(t *testing.T) {
	e, st := newTestEngine(t)
	rel := mustCreate(t, e, testPlan())
	ctx := context.Background()
	mustTick(t, e, rel.ID)
	mustTick(t, e, rel.ID) // KICKOFF_BUILD parks in AWAITING_MANUAL_BUILD

	// Stage without triggering evaluation, as a concurrent writer would.
	for _, p := range rel.Platforms {
		if err := st.StageArtifact(ctx, &model.BuildArtifact{
			ID: "ext-" + string(p), ReleaseID: rel.ID,
			Platform: p, Stage: model.StageKickoff, Source: model.SourceManual,
		}); err != nil {
			t.Fatal(err)
		}
	}
	// Another consumer claims them before this release's next pass.
	if err := st.ConsumeArtifacts(ctx, []string{"ext-ANDROID", "ext-IOS"}, "elsewhere", ""); err != nil {
		t.Fatal(err)
	}

	mustTick(t, e, rel.ID)
	if got := taskByType(t, st, rel.ID, model.TaskKickoffBuild, "").Status; got != model.TaskAwaitingManualBuild {
		t.Fatalf("KICKOFF_BUILD = %s, want still AWAITING_MANUAL_BUILD", got)
	}

	// A fresh upload completes it normally.
	uploadBuild(t, e, rel.ID, model.PlatformAndroid, model.StageKickoff)
	uploadBuild(t, e, rel.ID, model.PlatformIOS, model.StageKickoff)
	if got := taskByType(t, st, rel.ID, model.TaskKickoffBuild, "").Status; got != model.TaskCompleted {
		t.Fatalf("KICKOFF_BUILD = %s after fresh uploads, want COMPLETED", got)
	}
}

func TestConsumeIsAllOrNothing(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := st.StageArtifact(ctx, &model.BuildArtifact{
			ID: id, ReleaseID: "r1", Platform: model.PlatformAndroid,
			Stage: model.StageRegression, Source: model.SourceManual,
		}); err != nil {
			t.Fatal(err)
		}
	}
	// Staging the same key twice replaced "a"; consuming both must fail
	// without touching "b".
	err := st.ConsumeArtifacts(ctx, []string{"a", "b"}, "t1", "")
	if !errors.Is(err, model.ErrAlreadyConsumed) {
		t.Fatalf("consume with replaced artifact = %v, want ErrAlreadyConsumed", err)
	}
	arts, _ := st.ListArtifacts(ctx, "r1")
	for _, a := range arts {
		if a.Consumed {
			t.Fatalf("artifact %s consumed by failed batch", a.ID)
		}
	}
}

func TestCycleStartIsAllOrNothing(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	for _, p := range []model.Platform{model.PlatformAndroid, model.PlatformIOS} {
		if err := st.StageArtifact(ctx, &model.BuildArtifact{
			ID: "b-" + string(p), ReleaseID: "r1", Platform: p,
			Stage: model.StageRegression, Source: model.SourceManual,
		}); err != nil {
			t.Fatal(err)
		}
	}
	// Another consumer claims one build between the gate check and the
	// cycle write.
	if err := st.ConsumeArtifacts(ctx, []string{"b-ANDROID"}, "elsewhere", ""); err != nil {
		t.Fatal(err)
	}

	cycle := &model.RegressionCycle{ID: "c1", ReleaseID: "r1", Status: model.CycleInProgress}
	tasks := []model.Task{{ID: "t1", ReleaseID: "r1", CycleID: "c1",
		Type: model.TaskRegressionBuild, Status: model.TaskCompleted}}
	err := st.CreateCycle(ctx, cycle, tasks, []string{"b-ANDROID", "b-IOS"}, "t1")
	if !errors.Is(err, model.ErrAlreadyConsumed) {
		t.Fatalf("CreateCycle with claimed build = %v, want ErrAlreadyConsumed", err)
	}

	// The rejected start leaves nothing behind.
	if cycles, _ := st.ListCycles(ctx, "r1"); len(cycles) != 0 {
		t.Fatalf("%d cycles persisted by failed start, want 0", len(cycles))
	}
	if got, _ := st.ListTasks(ctx, "r1"); len(got) != 0 {
		t.Fatalf("%d tasks persisted by failed start, want 0", len(got))
	}
	staged, _ := st.ListStagedArtifacts(ctx, "r1", model.StageRegression)
	if len(staged) != 1 || staged[0].ID != "b-IOS" {
		t.Fatalf("staged after failed start = %v, want b-IOS untouched", staged)
	}
}

func TestSecondActiveCycleRejectedByStore(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	first := &model.RegressionCycle{ID: "c1", ReleaseID: "r1", Status: model.CycleInProgress}
	if err := st.CreateCycle(ctx, first, nil, nil, ""); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	second := &model.RegressionCycle{ID: "c2", ReleaseID: "r1", Status: model.CycleInProgress}
	if err := st.CreateCycle(ctx, second, nil, nil, ""); !errors.Is(err, model.ErrCycleActive) {
		t.Fatalf("second active cycle = %v, want ErrCycleActive", err)
	}

	// A cycle for a different release is unaffected.
	other := &model.RegressionCycle{ID: "c3", ReleaseID: "r2", Status: model.CycleInProgress}
	if err := st.CreateCycle(ctx, other, nil, nil, ""); err != nil {
		t.Fatalf("other release's cycle: %v", err)
	}
}
