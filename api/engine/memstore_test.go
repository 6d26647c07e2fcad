package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gantry/api/model"
)

// memStore is an in-memory Store with the same semantics the Postgres
// layer provides: staging replaces unconsumed artifacts for the same
// key, and consumption is all-or-nothing.
type memStore struct {
	mu        sync.Mutex
	releases  map[string]*model.Release
	stages    map[string][]model.StageStatus // releaseID -> statuses
	tasks     map[string]*model.Task
	cycles    map[string]*model.RegressionCycle
	artifacts map[string]*model.BuildArtifact

	taskOrder     []string
	cycleOrder    []string
	artifactOrder []string
}

func newMemStore() *memStore {
	return &memStore{
		releases:  map[string]*model.Release{},
		stages:    map[string][]model.StageStatus{},
		tasks:     map[string]*model.Task{},
		cycles:    map[string]*model.RegressionCycle{},
		artifacts: map[string]*model.BuildArtifact{},
	}
}

func (m *memStore) GetRelease(ctx context.Context, id string) (*model.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.releases[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) FindRelease(ctx context.Context, tenant, app, version string) (*model.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.releases {
		if r.Tenant == tenant && r.App == app && r.Version == version {
			cp := *r
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *memStore) InsertRelease(ctx context.Context, r *model.Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.releases[r.ID] = &cp
	return nil
}

func (m *memStore) SetReleasePhase(ctx context.Context, id string, phase model.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.releases[id]
	if !ok {
		return model.ErrNotFound
	}
	r.Phase = phase
	r.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) ListActiveReleases(ctx context.Context) ([]model.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Release
	for _, r := range m.releases {
		if r.Phase != model.PhaseReleased {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) InitStageStatuses(ctx context.Context, releaseID string, autoAdvance map[model.Stage]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stages[releaseID]; ok {
		return nil
	}
	var statuses []model.StageStatus
	for _, st := range model.Stages {
		statuses = append(statuses, model.StageStatus{
			ReleaseID:   releaseID,
			Stage:       st,
			State:       model.StagePending,
			AutoAdvance: autoAdvance[st],
		})
	}
	m.stages[releaseID] = statuses
	return nil
}

func (m *memStore) StageStatuses(ctx context.Context, releaseID string) ([]model.StageStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.StageStatus(nil), m.stages[releaseID]...), nil
}

func (m *memStore) SetStageState(ctx context.Context, releaseID string, stage model.Stage, state model.StageState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := m.stages[releaseID]
	now := time.Now()
	for i := range statuses {
		if statuses[i].Stage == stage {
			statuses[i].State = state
			switch state {
			case model.StageInProgress:
				statuses[i].StartedAt = &now
			case model.StageCompleted:
				statuses[i].CompletedAt = &now
			}
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *memStore) SetStageAutoAdvance(ctx context.Context, releaseID string, stage model.Stage, armed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := m.stages[releaseID]
	for i := range statuses {
		if statuses[i].Stage == stage {
			statuses[i].AutoAdvance = armed
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *memStore) SetEvaluating(ctx context.Context, releaseID string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := m.stages[releaseID]
	for i := range statuses {
		statuses[i].Evaluating = on
	}
	return nil
}

func (m *memStore) InsertTask(ctx context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyTask(t)
	m.tasks[t.ID] = cp
	m.taskOrder = append(m.taskOrder, t.ID)
	return nil
}

func (m *memStore) UpdateTask(ctx context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return model.ErrNotFound
	}
	cp := copyTask(t)
	cp.UpdatedAt = time.Now()
	m.tasks[t.ID] = cp
	return nil
}

func (m *memStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return copyTask(t), nil
}

func (m *memStore) ListTasks(ctx context.Context, releaseID string) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Task
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		if t.ReleaseID == releaseID {
			out = append(out, *copyTask(t))
		}
	}
	return out, nil
}

func copyTask(t *model.Task) *model.Task {
	cp := *t
	cp.Platforms = append([]model.Platform(nil), t.Platforms...)
	cp.ArtifactIDs = append([]string(nil), t.ArtifactIDs...)
	if t.Outcomes != nil {
		cp.Outcomes = map[model.Platform]model.CallbackOutcome{}
		for k, v := range t.Outcomes {
			cp.Outcomes[k] = v
		}
	}
	return &cp
}

// CreateCycle mirrors the Postgres transaction: everything is
// validated before any write, so a rejected start leaves no cycle,
// no tasks, and no consumed artifacts behind.
func (m *memStore) CreateCycle(ctx context.Context, c *model.RegressionCycle, tasks []model.Task, artifactIDs []string, buildTaskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.cycles {
		if existing.ReleaseID == c.ReleaseID && existing.Status == model.CycleInProgress {
			return model.ErrCycleActive
		}
	}
	for _, id := range artifactIDs {
		a, ok := m.artifacts[id]
		if !ok || a.Consumed {
			return fmt.Errorf("consume %d artifacts: %w", len(artifactIDs), model.ErrAlreadyConsumed)
		}
	}

	cp := *c
	m.cycles[c.ID] = &cp
	m.cycleOrder = append(m.cycleOrder, c.ID)

	for i := range tasks {
		t := copyTask(&tasks[i])
		m.tasks[t.ID] = t
		m.taskOrder = append(m.taskOrder, t.ID)
	}

	now := time.Now()
	for _, id := range artifactIDs {
		a := m.artifacts[id]
		a.Consumed = true
		a.TaskID = buildTaskID
		a.CycleID = c.ID
		a.ConsumedAt = &now
	}
	return nil
}

func (m *memStore) UpdateCycle(ctx context.Context, c *model.RegressionCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cycles[c.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *c
	m.cycles[c.ID] = &cp
	return nil
}

func (m *memStore) GetCycle(ctx context.Context, id string) (*model.RegressionCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cycles[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListCycles(ctx context.Context, releaseID string) ([]model.RegressionCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RegressionCycle
	for _, id := range m.cycleOrder {
		c := m.cycles[id]
		if c.ReleaseID == releaseID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) StageArtifact(ctx context.Context, a *model.BuildArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Replace any unconsumed artifact for the same key.
	for id, existing := range m.artifacts {
		if existing.ReleaseID == a.ReleaseID && existing.Platform == a.Platform &&
			existing.Stage == a.Stage && !existing.Consumed {
			delete(m.artifacts, id)
			for i, oid := range m.artifactOrder {
				if oid == id {
					m.artifactOrder = append(m.artifactOrder[:i], m.artifactOrder[i+1:]...)
					break
				}
			}
		}
	}
	cp := *a
	m.artifacts[a.ID] = &cp
	m.artifactOrder = append(m.artifactOrder, a.ID)
	return nil
}

func (m *memStore) ConsumeArtifacts(ctx context.Context, ids []string, taskID, cycleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		a, ok := m.artifacts[id]
		if !ok || a.Consumed {
			return fmt.Errorf("consume %d artifacts: %w", len(ids), model.ErrAlreadyConsumed)
		}
	}
	now := time.Now()
	for _, id := range ids {
		a := m.artifacts[id]
		a.Consumed = true
		a.TaskID = taskID
		a.CycleID = cycleID
		a.ConsumedAt = &now
	}
	return nil
}

func (m *memStore) ListStagedArtifacts(ctx context.Context, releaseID string, stage model.Stage) ([]model.BuildArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BuildArtifact
	for _, id := range m.artifactOrder {
		a := m.artifacts[id]
		if a.ReleaseID == releaseID && a.Stage == stage && !a.Consumed {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ListArtifacts(ctx context.Context, releaseID string) ([]model.BuildArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BuildArtifact
	for _, id := range m.artifactOrder {
		a := m.artifacts[id]
		if a.ReleaseID == releaseID {
			out = append(out, *a)
		}
	}
	return out, nil
}
