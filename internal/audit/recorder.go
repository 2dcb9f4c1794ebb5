// Package audit writes the append-only trail of mutations and fetches:
// one row in log_messages per event, mirrored to the structured log.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/repository"
)

type Entry struct {
	UserID    int64
	Action    model.LogAction
	AccountID *int64
	Until     *time.Time
	Message   string
}

type Recorder struct {
	logs repository.LogMessageRepository
}

func NewRecorder(logs repository.LogMessageRepository) *Recorder {
	return &Recorder{logs: logs}
}

// Record persists the entry and emits it to the structured log. A failed
// write is logged but never fails the surrounding operation: the audit
// trail is best effort, the mutation result is not.
func (r *Recorder) Record(ctx context.Context, now time.Time, entry Entry) {
	event := log.Info().
		Str("audit", "graph").
		Int64("user_id", entry.UserID).
		Str("action", entry.Action.String())
	if entry.AccountID != nil {
		event = event.Int64("account_id", *entry.AccountID)
	}
	if entry.Until != nil {
		event = event.Time("until", *entry.Until)
	}
	event.Msg(entry.Message)

	action := entry.Action
	_, err := r.logs.Create(ctx, model.CreateLogMessageParams{
		UserID:    entry.UserID,
		Time:      now,
		Action:    &action,
		AccountID: entry.AccountID,
		Until:     entry.Until,
		Message:   entry.Message,
	})
	if err != nil {
		log.Error().Err(err).Int64("user_id", entry.UserID).Msg("failed to write audit entry")
	}
}
