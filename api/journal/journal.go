package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one append-only entry in a release's orchestration trail.
type Event struct {
	ID        string            `json:"id"`
	ReleaseID string            `json:"releaseId"`
	Timestamp time.Time         `json:"timestamp"`
	Category  string            `json:"category"` // stage, task, cycle, build
	Action    string            `json:"action"`   // stage.advanced, task.completed, etc.
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Store interface {
	Append(ctx context.Context, evt *Event) error
	ListByRelease(ctx context.Context, releaseID string, limit int) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Trail records events for one release.
type Trail struct {
	ReleaseID string
	store     Store
}

func New(store Store, releaseID string) *Trail {
	return &Trail{ReleaseID: releaseID, store: store}
}

func (t *Trail) Log(ctx context.Context, category, action, message string, metadata map[string]string) error {
	if t == nil || t.store == nil {
		return nil
	}
	return t.store.Append(ctx, &Event{
		ID:        uuid.New().String(),
		ReleaseID: t.ReleaseID,
		Timestamp: time.Now(),
		Category:  category,
		Action:    action,
		Message:   message,
		Metadata:  metadata,
	})
}
