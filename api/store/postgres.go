package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

// execer is satisfied by both the pool and a pgx.Tx, so statement
// helpers run inside or outside a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

func Migrate(db *DB) error {
	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS releases (
			id               TEXT PRIMARY KEY,
			tenant           TEXT NOT NULL DEFAULT '',
			app              TEXT NOT NULL,
			version          TEXT NOT NULL,
			platforms        JSONB NOT NULL DEFAULT '[]',
			phase            TEXT NOT NULL DEFAULT 'NOT_STARTED',
			branch           TEXT NOT NULL DEFAULT '',
			build_modes      JSONB NOT NULL DEFAULT '{}',
			kickoff_at       TIMESTAMPTZ NOT NULL,
			target_at        TIMESTAMPTZ,
			regression_slots JSONB NOT NULL DEFAULT '[]',
			skip_tasks       JSONB NOT NULL DEFAULT '[]',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_releases_app_version ON releases(tenant, app, version);
		CREATE INDEX IF NOT EXISTS idx_releases_phase ON releases(phase);

		CREATE TABLE IF NOT EXISTS stage_statuses (
			release_id   TEXT NOT NULL REFERENCES releases(id),
			stage        TEXT NOT NULL,
			state        TEXT NOT NULL DEFAULT 'PENDING',
			auto_advance BOOLEAN NOT NULL DEFAULT false,
			evaluating   BOOLEAN NOT NULL DEFAULT false,
			started_at   TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			PRIMARY KEY (release_id, stage)
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id           TEXT PRIMARY KEY,
			release_id   TEXT NOT NULL REFERENCES releases(id),
			stage        TEXT NOT NULL,
			cycle_id     TEXT NOT NULL DEFAULT '',
			type         TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'PENDING',
			platforms    JSONB NOT NULL DEFAULT '[]',
			outcomes     JSONB NOT NULL DEFAULT '{}',
			output       JSONB,
			reason       TEXT NOT NULL DEFAULT '',
			artifact_ids JSONB NOT NULL DEFAULT '[]',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_release ON tasks(release_id, stage);
		CREATE INDEX IF NOT EXISTS idx_tasks_cycle ON tasks(cycle_id) WHERE cycle_id != '';

		CREATE TABLE IF NOT EXISTS regression_cycles (
			id           TEXT PRIMARY KEY,
			release_id   TEXT NOT NULL REFERENCES releases(id),
			slot         INT NOT NULL,
			slot_at      TIMESTAMPTZ NOT NULL,
			status       TEXT NOT NULL DEFAULT 'IN_PROGRESS',
			tag          TEXT NOT NULL DEFAULT '',
			started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_cycles_release_slot ON regression_cycles(release_id, slot);

		CREATE TABLE IF NOT EXISTS build_artifacts (
			id          TEXT PRIMARY KEY,
			release_id  TEXT NOT NULL REFERENCES releases(id),
			platform    TEXT NOT NULL,
			stage       TEXT NOT NULL,
			locator     TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL DEFAULT 'MANUAL',
			consumed    BOOLEAN NOT NULL DEFAULT false,
			task_id     TEXT NOT NULL DEFAULT '',
			cycle_id    TEXT NOT NULL DEFAULT '',
			staged_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			consumed_at TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_artifacts_staged_key
			ON build_artifacts(release_id, platform, stage) WHERE NOT consumed;

		CREATE TABLE IF NOT EXISTS journal_events (
			id         TEXT PRIMARY KEY,
			release_id TEXT NOT NULL,
			timestamp  TIMESTAMPTZ NOT NULL DEFAULT now(),
			category   TEXT NOT NULL DEFAULT '',
			action     TEXT NOT NULL DEFAULT '',
			message    TEXT NOT NULL DEFAULT '',
			metadata   JSONB NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_journal_release ON journal_events(release_id, timestamp);
	`)
	return err
}

// Healthy checks the database connection.
func (db *DB) Healthy(ctx context.Context) error {
	var n int
	return db.Pool.QueryRow(ctx, "SELECT 1").Scan(&n)
}
