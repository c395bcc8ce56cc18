package outbox

import (
	"context"
	"time"
)

// Message is one row of the transactional outbox. It is written in the same
// transaction as the state change it describes and published later.
type Message struct {
	ID          int64
	Topic       string
	Key         []byte
	EventType   string
	Payload     []byte
	Headers     map[string]string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Marker records publish outcomes for claimed messages.
type Marker interface {
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// Repository hands out batches of unpublished messages. Claimed rows stay
// locked against other relays until fn returns; the marks are committed
// together afterwards.
type Repository interface {
	ClaimBatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []Message, marks Marker) error) error
}

// MaxAttempts bounds how often a failing message is retried.
const MaxAttempts = 10
