// Package queue is the delayed task transport: enqueue with optional
// delay, retry with delay, at-least-once execution. Envelopes live in a
// Redis sorted set scored by due time; a crash between pop and completion
// redelivers nothing from the queue's side, so tasks themselves must be
// idempotent under an occasional duplicate run.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is one scheduled unit of work.
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"maxRetries"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// NewTask wraps a payload into a fresh envelope.
func NewTask(kind string, payload any, maxRetries int) (Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    body,
		MaxRetries: maxRetries,
		EnqueuedAt: time.Now(),
	}, nil
}

// Scheduler is the half of the transport producers see.
type Scheduler interface {
	Enqueue(ctx context.Context, task Task, delay time.Duration) error
}

// RetryError asks the worker to re-enqueue the same envelope after Delay.
// All waiting in this system is a scheduled re-invocation, never a sleep.
type RetryError struct {
	Delay time.Duration
	Cause error
}

func (e *RetryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("retry in %s: %v", e.Delay, e.Cause)
	}
	return fmt.Sprintf("retry in %s", e.Delay)
}

func (e *RetryError) Unwrap() error {
	return e.Cause
}

// RetryAfter builds a RetryError.
func RetryAfter(delay time.Duration, cause error) error {
	return &RetryError{Delay: delay, Cause: cause}
}

// AsRetry extracts a RetryError if err carries one.
func AsRetry(err error) (*RetryError, bool) {
	var retryErr *RetryError
	if errors.As(err, &retryErr) {
		return retryErr, true
	}
	return nil, false
}
