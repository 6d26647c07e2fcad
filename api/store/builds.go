package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gantry/api/model"
)

const artifactColumns = `id, release_id, platform, stage, locator, source, consumed,
	task_id, cycle_id, staged_at, consumed_at`

// StageArtifact records an uploaded or pipeline-produced build. A
// prior unconsumed artifact for the same (release, platform, stage)
// key is replaced, never kept alongside. Consumed history is untouched.
func (db *DB) StageArtifact(ctx context.Context, a *model.BuildArtifact) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM build_artifacts
		 WHERE release_id = $1 AND platform = $2 AND stage = $3 AND NOT consumed`,
		a.ReleaseID, a.Platform, a.Stage); err != nil {
		return fmt.Errorf("replace staged artifact: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO build_artifacts (id, release_id, platform, stage, locator, source, staged_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.ReleaseID, a.Platform, a.Stage, a.Locator, a.Source, a.StagedAt); err != nil {
		return fmt.Errorf("stage artifact: %w", err)
	}

	return tx.Commit(ctx)
}

// ConsumeArtifacts flips the given staged artifacts to consumed,
// binding them to a task (and cycle when regression-scoped). The
// conditional update makes consumption exactly-once: a concurrent
// consume of the same ids finds no staged rows and fails without
// touching anything.
func (db *DB) ConsumeArtifacts(ctx context.Context, ids []string, taskID, cycleID string) error {
	return consumeArtifacts(ctx, db.Pool, ids, taskID, cycleID)
}

func consumeArtifacts(ctx context.Context, x execer, ids []string, taskID, cycleID string) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := x.Exec(ctx,
		`UPDATE build_artifacts SET consumed = true, task_id = $2, cycle_id = $3, consumed_at = now()
		 WHERE id = ANY($1) AND NOT consumed`,
		ids, taskID, cycleID,
	)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("consume %d of %d artifacts: %w", tag.RowsAffected(), len(ids), model.ErrAlreadyConsumed)
	}
	return nil
}

// ListStagedArtifacts returns the unconsumed artifacts for a release
// and stage — the "uploaded but not yet used" view.
func (db *DB) ListStagedArtifacts(ctx context.Context, releaseID string, stage model.Stage) ([]model.BuildArtifact, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+artifactColumns+` FROM build_artifacts
		 WHERE release_id = $1 AND stage = $2 AND NOT consumed ORDER BY platform`,
		releaseID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

func (db *DB) ListArtifacts(ctx context.Context, releaseID string) ([]model.BuildArtifact, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+artifactColumns+` FROM build_artifacts
		 WHERE release_id = $1 ORDER BY staged_at`, releaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

func (db *DB) GetArtifact(ctx context.Context, id string) (*model.BuildArtifact, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM build_artifacts WHERE id = $1`, id)
	return scanArtifact(row)
}

func scanArtifact(row pgx.Row) (*model.BuildArtifact, error) {
	var a model.BuildArtifact
	err := row.Scan(&a.ID, &a.ReleaseID, &a.Platform, &a.Stage, &a.Locator, &a.Source,
		&a.Consumed, &a.TaskID, &a.CycleID, &a.StagedAt, &a.ConsumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanArtifacts(rows pgx.Rows) ([]model.BuildArtifact, error) {
	var artifacts []model.BuildArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, rows.Err()
}
