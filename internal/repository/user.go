package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/quota"
)

type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
	ListRemoteEnabled(ctx context.Context) ([]model.User, error)
	// SaveBucket persists the user's token bucket state after a withdrawal.
	SaveBucket(ctx context.Context, id int64, bucket quota.TokenBucket) error
	// ScrubStaleCredentials clears remote credentials of users who have not
	// logged in since threshold and have no pending scheduled removals.
	ScrubStaleCredentials(ctx context.Context, threshold time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) UserRepository
}

type userRepo struct {
	db sqlxDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE id = $1
	`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE api_token_hash = $1
	`, tokenHash)
	return HandleNotFound(&user, err)
}

func (r *userRepo) ListRemoteEnabled(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT * FROM users WHERE remote_enabled ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepo) SaveBucket(ctx context.Context, id int64, bucket quota.TokenBucket) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET bucket_rate = $2, bucket_max = $3, bucket_time = $4, bucket_value = $5
		WHERE id = $1
	`, id, bucket.Rate, bucket.Max, bucket.Time, bucket.Value)
	return err
}

func (r *userRepo) ScrubStaleCredentials(ctx context.Context, threshold time.Time) (int64, error) {
	// Credentials stay only for users who logged in recently or still have
	// a scheduled removal pending (an edge with a non-null until).
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET access_token = NULL, access_secret = NULL
		WHERE access_token IS NOT NULL
		  AND (last_login IS NULL OR last_login < $1)
		  AND (account_id IS NULL OR account_id NOT IN (
			SELECT subject_id FROM relationships WHERE until IS NOT NULL
		  ))
	`, threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
