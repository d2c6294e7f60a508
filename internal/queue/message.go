package queue

import (
	"context"
	"time"
)

// JobMessage announces a stored crate to asynchronous consumers. TaskID
// doubles as the idempotency key.
type JobMessage struct {
	TaskID    string    `json:"task_id"`
	Kind      string    `json:"kind"`
	Bucket    string    `json:"bucket"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher enqueues job messages.
type Publisher interface {
	Publish(ctx context.Context, msg JobMessage) error
	Close() error
}
