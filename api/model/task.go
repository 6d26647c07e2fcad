package model

import "time"

type TaskType string

const (
	TaskForkBranch        TaskType = "FORK_BRANCH"
	TaskCreateTickets     TaskType = "CREATE_TICKETS"
	TaskCreateTestSuite   TaskType = "CREATE_TEST_SUITE"
	TaskKickoffBuild      TaskType = "KICKOFF_BUILD"
	TaskResetTestSuite    TaskType = "RESET_TEST_SUITE"
	TaskRegressionBuild   TaskType = "REGRESSION_BUILD"
	TaskCutTag            TaskType = "CUT_TAG"
	TaskDraftReleaseNotes TaskType = "DRAFT_RELEASE_NOTES"
	TaskReleaseTag        TaskType = "RELEASE_TAG"
	TaskReleaseNotes      TaskType = "RELEASE_NOTES"
	TaskReleaseBuild      TaskType = "RELEASE_BUILD"
)

type TaskStatus string

const (
	TaskPending             TaskStatus = "PENDING"
	TaskInProgress          TaskStatus = "IN_PROGRESS"
	TaskAwaitingCallback    TaskStatus = "AWAITING_CALLBACK"
	TaskAwaitingManualBuild TaskStatus = "AWAITING_MANUAL_BUILD"
	TaskCompleted           TaskStatus = "COMPLETED"
	TaskFailed              TaskStatus = "FAILED"
	TaskSkipped             TaskStatus = "SKIPPED"
)

// Terminal reports whether the status is a rest state the engine will
// never move on its own.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// Succeeded reports whether the status counts toward stage completion.
func (s TaskStatus) Succeeded() bool {
	return s == TaskCompleted || s == TaskSkipped
}

// CompletionMode is the contract a task type completes under.
type CompletionMode string

const (
	ModeSync     CompletionMode = "SYNC"     // adapter call resolves immediately
	ModeCallback CompletionMode = "CALLBACK" // webhook reports per-platform shares
	ModeBuild    CompletionMode = "BUILD"    // staged artifacts satisfy the task
)

// Family identifies the integration an adapter speaks to.
type Family string

const (
	FamilySourceControl Family = "SOURCE_CONTROL"
	FamilyIssueTracker  Family = "ISSUE_TRACKER"
	FamilyTestMgmt      Family = "TEST_MGMT"
	FamilyCICD          Family = "CICD"
	FamilyAppStore      Family = "APP_STORE"
)

// TaskSpec is the catalog entry for a task type.
type TaskSpec struct {
	Stage        Stage
	Mode         CompletionMode
	Family       Family
	CycleScoped  bool
	PerPlatform  bool // tracks per-platform shares (build/callback tasks)
	Predecessors []TaskType
}

// Catalog is the closed set of task types and their contracts.
// Build-producing tasks (Mode BUILD) fall back to AWAITING_CALLBACK
// dispatch when any target platform builds through a CI/CD pipeline.
var Catalog = map[TaskType]TaskSpec{
	TaskForkBranch:      {Stage: StageKickoff, Mode: ModeSync, Family: FamilySourceControl},
	TaskCreateTickets:   {Stage: StageKickoff, Mode: ModeSync, Family: FamilyIssueTracker},
	TaskCreateTestSuite: {Stage: StageKickoff, Mode: ModeSync, Family: FamilyTestMgmt, Predecessors: []TaskType{TaskForkBranch}},
	TaskKickoffBuild:    {Stage: StageKickoff, Mode: ModeBuild, Family: FamilyCICD, PerPlatform: true, Predecessors: []TaskType{TaskForkBranch}},

	TaskRegressionBuild:   {Stage: StageRegression, Mode: ModeBuild, Family: FamilyCICD, CycleScoped: true, PerPlatform: true},
	TaskResetTestSuite:    {Stage: StageRegression, Mode: ModeSync, Family: FamilyTestMgmt, CycleScoped: true},
	TaskCutTag:            {Stage: StageRegression, Mode: ModeSync, Family: FamilySourceControl, CycleScoped: true},
	TaskDraftReleaseNotes: {Stage: StageRegression, Mode: ModeSync, Family: FamilyIssueTracker, CycleScoped: true, Predecessors: []TaskType{TaskCutTag}},

	TaskReleaseTag:   {Stage: StagePostRegression, Mode: ModeSync, Family: FamilySourceControl},
	TaskReleaseNotes: {Stage: StagePostRegression, Mode: ModeSync, Family: FamilyIssueTracker, Predecessors: []TaskType{TaskReleaseTag}},
	TaskReleaseBuild: {Stage: StagePostRegression, Mode: ModeBuild, Family: FamilyAppStore, PerPlatform: true, Predecessors: []TaskType{TaskReleaseTag}},
}

// StageTasks returns the non-cycle-scoped task types owned by a stage,
// in a stable order.
func StageTasks(stage Stage) []TaskType {
	var out []TaskType
	for _, t := range taskOrder {
		spec := Catalog[t]
		if spec.Stage == stage && !spec.CycleScoped {
			out = append(out, t)
		}
	}
	return out
}

// CycleTasks returns the cycle-scoped task types, build trigger first.
func CycleTasks() []TaskType {
	var out []TaskType
	for _, t := range taskOrder {
		if Catalog[t].CycleScoped {
			out = append(out, t)
		}
	}
	return out
}

// taskOrder fixes iteration order for task materialization.
var taskOrder = []TaskType{
	TaskForkBranch, TaskCreateTickets, TaskCreateTestSuite, TaskKickoffBuild,
	TaskRegressionBuild, TaskResetTestSuite, TaskCutTag, TaskDraftReleaseNotes,
	TaskReleaseTag, TaskReleaseNotes, TaskReleaseBuild,
}

// CallbackOutcome is a platform's reported share of asynchronous work.
type CallbackOutcome string

const (
	OutcomeSucceeded CallbackOutcome = "SUCCEEDED"
	OutcomeFailed    CallbackOutcome = "FAILED"
)

// Task is one trackable unit of work within a stage or regression cycle.
type Task struct {
	ID        string     `json:"id"`
	ReleaseID string     `json:"releaseId"`
	Stage     Stage      `json:"stage"`
	CycleID   string     `json:"cycleId,omitempty"`
	Type      TaskType   `json:"type"`
	Status    TaskStatus `json:"status"`

	// Platforms is the snapshot of platforms the task must cover.
	// Empty for tasks that are not per-platform.
	Platforms []Platform `json:"platforms,omitempty"`

	// Outcomes holds per-platform callback shares while the task is
	// in AWAITING_CALLBACK.
	Outcomes map[Platform]CallbackOutcome `json:"outcomes,omitempty"`

	Output      *TaskOutput `json:"output,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	ArtifactIDs []string    `json:"artifactIds,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Spec returns the catalog entry for the task's type.
func (t *Task) Spec() TaskSpec {
	return Catalog[t.Type]
}
