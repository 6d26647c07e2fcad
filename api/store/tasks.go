package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"gantry/api/model"
)

const taskColumns = `id, release_id, stage, cycle_id, type, status, platforms, outcomes,
	output, reason, artifact_ids, created_at, updated_at`

func (db *DB) InsertTask(ctx context.Context, t *model.Task) error {
	return insertTask(ctx, db.Pool, t)
}

func insertTask(ctx context.Context, x execer, t *model.Task) error {
	platforms, _ := json.Marshal(t.Platforms)
	outcomes, _ := json.Marshal(t.Outcomes)
	artifacts, _ := json.Marshal(t.ArtifactIDs)
	var output []byte
	if t.Output != nil {
		output, _ = json.Marshal(t.Output)
	}
	_, err := x.Exec(ctx,
		`INSERT INTO tasks (id, release_id, stage, cycle_id, type, status, platforms, outcomes,
			output, reason, artifact_ids, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		t.ID, t.ReleaseID, t.Stage, t.CycleID, t.Type, t.Status, platforms, outcomes,
		output, t.Reason, artifacts, t.CreatedAt,
	)
	return err
}

// UpdateTask persists the mutable fields of a task.
func (db *DB) UpdateTask(ctx context.Context, t *model.Task) error {
	outcomes, _ := json.Marshal(t.Outcomes)
	artifacts, _ := json.Marshal(t.ArtifactIDs)
	var output []byte
	if t.Output != nil {
		output, _ = json.Marshal(t.Output)
	}
	_, err := db.Pool.Exec(ctx,
		`UPDATE tasks SET status = $1, outcomes = $2, output = $3, reason = $4,
			artifact_ids = $5, updated_at = now()
		 WHERE id = $6`,
		t.Status, outcomes, output, t.Reason, artifacts, t.ID,
	)
	return err
}

func (db *DB) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (db *DB) ListTasks(ctx context.Context, releaseID string) ([]model.Task, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE release_id = $1 ORDER BY created_at`, releaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var platforms, outcomes, artifacts, output []byte
	err := row.Scan(&t.ID, &t.ReleaseID, &t.Stage, &t.CycleID, &t.Type, &t.Status,
		&platforms, &outcomes, &output, &t.Reason, &artifacts, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal(platforms, &t.Platforms)
	json.Unmarshal(outcomes, &t.Outcomes)
	json.Unmarshal(artifacts, &t.ArtifactIDs)
	if len(output) > 0 {
		t.Output = &model.TaskOutput{}
		json.Unmarshal(output, t.Output)
	}
	return &t, nil
}

func scanTasks(rows pgx.Rows) ([]model.Task, error) {
	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
