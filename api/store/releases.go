package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"gantry/api/model"
)

const releaseColumns = `id, tenant, app, version, platforms, phase, branch, build_modes,
	kickoff_at, target_at, regression_slots, skip_tasks, created_at, updated_at`

func (db *DB) InsertRelease(ctx context.Context, r *model.Release) error {
	platforms, _ := json.Marshal(r.Platforms)
	modes, _ := json.Marshal(r.BuildModes)
	slots, _ := json.Marshal(r.RegressionSlots)
	skips, _ := json.Marshal(r.SkipTasks)
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO releases (id, tenant, app, version, platforms, phase, branch, build_modes,
			kickoff_at, target_at, regression_slots, skip_tasks, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		r.ID, r.Tenant, r.App, r.Version, platforms, r.Phase, r.Branch, modes,
		r.KickoffAt, nullTime(r.TargetAt), slots, skips, r.CreatedAt,
	)
	return err
}

func (db *DB) GetRelease(ctx context.Context, id string) (*model.Release, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+releaseColumns+` FROM releases WHERE id = $1`, id)
	return scanRelease(row)
}

// FindRelease looks a release up by its natural key.
func (db *DB) FindRelease(ctx context.Context, tenant, app, version string) (*model.Release, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+releaseColumns+` FROM releases WHERE tenant = $1 AND app = $2 AND version = $3`,
		tenant, app, version)
	return scanRelease(row)
}

func (db *DB) SetReleasePhase(ctx context.Context, id string, phase model.Phase) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE releases SET phase = $1, updated_at = now() WHERE id = $2`, phase, id)
	return err
}

// ListActiveReleases returns releases the coordinator still drives.
func (db *DB) ListActiveReleases(ctx context.Context) ([]model.Release, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+releaseColumns+` FROM releases WHERE phase != $1 ORDER BY kickoff_at`,
		model.PhaseReleased)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReleases(rows)
}

func (db *DB) ListReleases(ctx context.Context, limit int) ([]model.Release, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+releaseColumns+` FROM releases ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReleases(rows)
}

func scanRelease(row pgx.Row) (*model.Release, error) {
	var r model.Release
	var platforms, modes, slots, skips []byte
	var target *time.Time
	err := row.Scan(&r.ID, &r.Tenant, &r.App, &r.Version, &platforms, &r.Phase, &r.Branch, &modes,
		&r.KickoffAt, &target, &slots, &skips, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if target != nil {
		r.TargetAt = *target
	}
	json.Unmarshal(platforms, &r.Platforms)
	json.Unmarshal(modes, &r.BuildModes)
	json.Unmarshal(slots, &r.RegressionSlots)
	json.Unmarshal(skips, &r.SkipTasks)
	return &r, nil
}

func scanReleases(rows pgx.Rows) ([]model.Release, error) {
	var releases []model.Release
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, *r)
	}
	return releases, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
