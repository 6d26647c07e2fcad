package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gantry/api/model"
)

const cycleColumns = `id, release_id, slot, slot_at, status, tag, started_at, completed_at`

// CreateCycle persists a new cycle, its full task set, and the
// consumption of the builds that triggered it in one transaction, so
// a failure partway leaves no half-started cycle behind. A cycle
// already in progress for the release aborts the whole write.
func (db *DB) CreateCycle(ctx context.Context, c *model.RegressionCycle, tasks []model.Task, artifactIDs []string, buildTaskID string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var active int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM regression_cycles WHERE release_id = $1 AND status = $2`,
		c.ReleaseID, model.CycleInProgress).Scan(&active); err != nil {
		return err
	}
	if active > 0 {
		return model.ErrCycleActive
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO regression_cycles (id, release_id, slot, slot_at, status, tag, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.ReleaseID, c.Slot, c.SlotAt, c.Status, c.Tag, c.StartedAt,
	); err != nil {
		return fmt.Errorf("create cycle: %w", err)
	}

	for i := range tasks {
		if err := insertTask(ctx, tx, &tasks[i]); err != nil {
			return fmt.Errorf("create cycle task %s: %w", tasks[i].Type, err)
		}
	}

	if err := consumeArtifacts(ctx, tx, artifactIDs, buildTaskID, c.ID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (db *DB) UpdateCycle(ctx context.Context, c *model.RegressionCycle) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE regression_cycles SET status = $1, tag = $2, completed_at = $3 WHERE id = $4`,
		c.Status, c.Tag, c.CompletedAt, c.ID,
	)
	return err
}

func (db *DB) GetCycle(ctx context.Context, id string) (*model.RegressionCycle, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+cycleColumns+` FROM regression_cycles WHERE id = $1`, id)
	return scanCycle(row)
}

func (db *DB) ListCycles(ctx context.Context, releaseID string) ([]model.RegressionCycle, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+cycleColumns+` FROM regression_cycles WHERE release_id = $1 ORDER BY slot`, releaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []model.RegressionCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *c)
	}
	return cycles, rows.Err()
}

func scanCycle(row pgx.Row) (*model.RegressionCycle, error) {
	var c model.RegressionCycle
	err := row.Scan(&c.ID, &c.ReleaseID, &c.Slot, &c.SlotAt, &c.Status, &c.Tag, &c.StartedAt, &c.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
