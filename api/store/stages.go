package store

import (
	"context"
	"fmt"

	"gantry/api/model"
)

// InitStageStatuses creates the three PENDING stage rows for a new
// release with its configured auto-advance arming.
func (db *DB) InitStageStatuses(ctx context.Context, releaseID string, autoAdvance map[model.Stage]bool) error {
	for _, stage := range model.Stages {
		_, err := db.Pool.Exec(ctx,
			`INSERT INTO stage_statuses (release_id, stage, state, auto_advance)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (release_id, stage) DO NOTHING`,
			releaseID, stage, model.StagePending, autoAdvance[stage])
		if err != nil {
			return fmt.Errorf("init stage %s: %w", stage, err)
		}
	}
	return nil
}

func (db *DB) StageStatuses(ctx context.Context, releaseID string) ([]model.StageStatus, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT release_id, stage, state, auto_advance, evaluating, started_at, completed_at
		 FROM stage_statuses WHERE release_id = $1`, releaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byStage := map[model.Stage]model.StageStatus{}
	for rows.Next() {
		var s model.StageStatus
		if err := rows.Scan(&s.ReleaseID, &s.Stage, &s.State, &s.AutoAdvance, &s.Evaluating, &s.StartedAt, &s.CompletedAt); err != nil {
			return nil, err
		}
		byStage[s.Stage] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Stable stage order regardless of row order.
	var out []model.StageStatus
	for _, stage := range model.Stages {
		if s, ok := byStage[stage]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (db *DB) SetStageState(ctx context.Context, releaseID string, stage model.Stage, state model.StageState) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE stage_statuses SET state = $1,
			started_at = CASE WHEN $1 = 'IN_PROGRESS' AND started_at IS NULL THEN now() ELSE started_at END,
			completed_at = CASE WHEN $1 = 'COMPLETED' THEN now() ELSE completed_at END
		WHERE release_id = $2 AND stage = $3`,
		state, releaseID, stage)
	return err
}

func (db *DB) SetStageAutoAdvance(ctx context.Context, releaseID string, stage model.Stage, armed bool) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE stage_statuses SET auto_advance = $1 WHERE release_id = $2 AND stage = $3`,
		armed, releaseID, stage)
	return err
}

// SetEvaluating mirrors the coordinator's per-release lock into the
// store so the query surface can show a live evaluation.
func (db *DB) SetEvaluating(ctx context.Context, releaseID string, on bool) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE stage_statuses SET evaluating = $1 WHERE release_id = $2`,
		on, releaseID)
	return err
}
