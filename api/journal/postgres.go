package journal

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, evt *Event) error {
	meta, _ := json.Marshal(evt.Metadata)
	if meta == nil {
		meta = []byte("{}")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO journal_events (id, release_id, timestamp, category, action, message, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		evt.ID, evt.ReleaseID, evt.Timestamp, evt.Category, evt.Action, evt.Message, meta,
	)
	return err
}

func (s *PostgresStore) ListByRelease(ctx context.Context, releaseID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, release_id, timestamp, category, action, message, metadata
		 FROM journal_events WHERE release_id = $1 ORDER BY timestamp ASC LIMIT $2`,
		releaseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, release_id, timestamp, category, action, message, metadata
		 FROM journal_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var evt Event
		var meta []byte
		if err := rows.Scan(&evt.ID, &evt.ReleaseID, &evt.Timestamp, &evt.Category, &evt.Action, &evt.Message, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			json.Unmarshal(meta, &evt.Metadata)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
