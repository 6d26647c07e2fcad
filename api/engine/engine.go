// Package engine is the release orchestration core: the stage state
// machine, the task execution engine, and the regression cycle
// scheduler. All mutation funnels through a per-release lock so that
// timer-driven ticks and webhook-driven updates never interleave.
package engine

import (
	"context"
	"sync"
	"time"

	"gantry/api/adapter"
	"gantry/api/hub"
	"gantry/api/journal"
	"gantry/api/model"
)

// Store is the durable state the engine drives. *store.DB implements
// it; tests substitute an in-memory fake.
type Store interface {
	GetRelease(ctx context.Context, id string) (*model.Release, error)
	FindRelease(ctx context.Context, tenant, app, version string) (*model.Release, error)
	InsertRelease(ctx context.Context, r *model.Release) error
	SetReleasePhase(ctx context.Context, id string, phase model.Phase) error
	ListActiveReleases(ctx context.Context) ([]model.Release, error)

	InitStageStatuses(ctx context.Context, releaseID string, autoAdvance map[model.Stage]bool) error
	StageStatuses(ctx context.Context, releaseID string) ([]model.StageStatus, error)
	SetStageState(ctx context.Context, releaseID string, stage model.Stage, state model.StageState) error
	SetStageAutoAdvance(ctx context.Context, releaseID string, stage model.Stage, armed bool) error
	SetEvaluating(ctx context.Context, releaseID string, on bool) error

	InsertTask(ctx context.Context, t *model.Task) error
	UpdateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, releaseID string) ([]model.Task, error)

	CreateCycle(ctx context.Context, c *model.RegressionCycle, tasks []model.Task, artifactIDs []string, buildTaskID string) error
	UpdateCycle(ctx context.Context, c *model.RegressionCycle) error
	GetCycle(ctx context.Context, id string) (*model.RegressionCycle, error)
	ListCycles(ctx context.Context, releaseID string) ([]model.RegressionCycle, error)

	StageArtifact(ctx context.Context, a *model.BuildArtifact) error
	ConsumeArtifacts(ctx context.Context, ids []string, taskID, cycleID string) error
	ListStagedArtifacts(ctx context.Context, releaseID string, stage model.Stage) ([]model.BuildArtifact, error)
	ListArtifacts(ctx context.Context, releaseID string) ([]model.BuildArtifact, error)
}

// Broadcaster pushes live events to connected operator UIs.
type Broadcaster interface {
	Broadcast(evt hub.Event)
}

type Engine struct {
	store    Store
	adapters adapter.Registry
	events   Broadcaster
	journal  journal.Store

	// now is swapped in tests.
	now func() time.Time

	locks lockTable
}

func New(store Store, adapters adapter.Registry, js journal.Store, events Broadcaster) *Engine {
	return &Engine{
		store:    store,
		adapters: adapters,
		events:   events,
		journal:  js,
		now:      time.Now,
		locks:    lockTable{locks: map[string]*sync.Mutex{}},
	}
}

func (e *Engine) broadcast(evt hub.Event) {
	if e.events != nil {
		e.events.Broadcast(evt)
	}
}

func (e *Engine) trail(releaseID string) *journal.Trail {
	return journal.New(e.journal, releaseID)
}

// lockTable hands out one mutex per release id. Entries are never
// removed; the set of active releases is small.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (lt *lockTable) get(id string) *sync.Mutex {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.locks[id]
	if !ok {
		l = &sync.Mutex{}
		lt.locks[id] = l
	}
	return l
}
