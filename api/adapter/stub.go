package adapter

import (
	"context"
	"fmt"

	"gantry/api/model"
)

// Stub is a deterministic in-process adapter used when an integration
// family has no real provider configured. Synchronous task types
// resolve immediately with synthesized output derived from the
// release; CI/CD build triggers park in AWAITING_CALLBACK so the
// pipeline's webhook (or an operator upload) finishes them.
type Stub struct {
	Family model.Family
}

func NewStub(f model.Family) *Stub {
	return &Stub{Family: f}
}

func (s *Stub) Dispatch(ctx context.Context, req Request) (Result, error) {
	rel, task := req.Release, req.Task

	switch task.Type {
	case model.TaskForkBranch:
		branch := rel.Branch
		if branch == "" {
			branch = fmt.Sprintf("release/%s", rel.Version)
		}
		return Result{Kind: Completed, Output: &model.TaskOutput{
			Type:   task.Type,
			Branch: &model.BranchOutput{Branch: branch},
		}}, nil

	case model.TaskCreateTickets:
		return Result{Kind: Completed, Output: &model.TaskOutput{
			Type:    task.Type,
			Tickets: &model.TicketsOutput{Keys: []string{fmt.Sprintf("REL-%s", rel.Version)}},
		}}, nil

	case model.TaskCreateTestSuite:
		return Result{Kind: Completed, Output: &model.TaskOutput{
			Type:      task.Type,
			TestSuite: &model.TestSuiteOutput{SuiteID: fmt.Sprintf("%s-%s", rel.App, rel.Version)},
		}}, nil

	case model.TaskResetTestSuite:
		return Result{Kind: Completed, Output: &model.TaskOutput{
			Type:      task.Type,
			TestSuite: &model.TestSuiteOutput{SuiteID: fmt.Sprintf("%s-%s", rel.App, rel.Version), Reset: true},
		}}, nil

	case model.TaskCutTag:
		tag := fmt.Sprintf("v%s-rc%d", rel.Version, cycleSlot(req)+1)
		return Result{Kind: Completed, Output: &model.TaskOutput{
			Type: task.Type,
			Tag:  &model.TagOutput{Tag: tag},
		}}, nil

	case model.TaskReleaseTag:
		return Result{Kind: Completed, Output: &model.TaskOutput{
			Type: task.Type,
			Tag:  &model.TagOutput{Tag: "v" + rel.Version},
		}}, nil

	case model.TaskDraftReleaseNotes, model.TaskReleaseNotes:
		return Result{Kind: Completed, Output: &model.TaskOutput{
			Type:  task.Type,
			Notes: &model.NotesOutput{URL: fmt.Sprintf("notes://%s/%s", rel.App, rel.Version)},
		}}, nil

	case model.TaskKickoffBuild, model.TaskReleaseBuild:
		return Result{Kind: AwaitingCallback}, nil
	}

	return Result{Kind: Failed, Reason: fmt.Sprintf("unsupported task type %s", task.Type)}, nil
}

func cycleSlot(req Request) int {
	if req.Cycle != nil {
		return req.Cycle.Slot
	}
	return 0
}
