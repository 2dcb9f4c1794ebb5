package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/graphwarden/warden-server-go/internal/model"
)

type LogMessageRepository interface {
	Create(ctx context.Context, params model.CreateLogMessageParams) (*model.LogMessage, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]model.LogMessage, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) LogMessageRepository
}

type logMessageRepo struct {
	db sqlxDB
}

func NewLogMessageRepository(db *sqlx.DB) LogMessageRepository {
	return &logMessageRepo{db: db}
}

func (r *logMessageRepo) WithTx(tx *sqlx.Tx) LogMessageRepository {
	return &logMessageRepo{db: tx}
}

func (r *logMessageRepo) Create(ctx context.Context, params model.CreateLogMessageParams) (*model.LogMessage, error) {
	var msg model.LogMessage
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO log_messages (user_id, time, action, account_id, until, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.UserID, params.Time, params.Action, params.AccountID, params.Until, params.Message)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *logMessageRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]model.LogMessage, error) {
	var msgs []model.LogMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM log_messages
		WHERE user_id = $1
		ORDER BY time DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
