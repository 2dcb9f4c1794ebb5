package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/graphwarden/warden-server-go/internal/model"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Account, error)
	FindByScreenName(ctx context.Context, screenName string) (*model.Account, error)
	// GetOrCreate ensures an account row exists for the given remote id.
	GetOrCreate(ctx context.Context, id int64) (*model.Account, error)
	// BulkGetOrCreate ensures rows exist for every id; listing pages arrive
	// in batches of up to 5000 ids, so this is a single statement.
	BulkGetOrCreate(ctx context.Context, ids []int64) error
	// UpsertProfile stores a fetched profile: the raw snapshot plus the
	// cached columns on the account row. Idempotent per fetch.
	UpsertProfile(ctx context.Context, params model.UpsertProfileParams, now time.Time) (*model.Account, error)
	// Delete removes the account; the profile row and any edges touching
	// the account go with it (FK cascade).
	Delete(ctx context.Context, id int64) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AccountRepository
}

type accountRepo struct {
	db sqlxDB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) WithTx(tx *sqlx.Tx) AccountRepository {
	return &accountRepo{db: tx}
}

func (r *accountRepo) FindByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts WHERE id = $1
	`, id)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindByScreenName(ctx context.Context, screenName string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts WHERE screen_name_lower = $1
	`, strings.ToLower(screenName))
	return HandleNotFound(&account, err)
}

func (r *accountRepo) GetOrCreate(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		INSERT INTO accounts (id) VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING *
	`, id)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepo) BulkGetOrCreate(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id)
		SELECT unnest($1::bigint[])
		ON CONFLICT (id) DO NOTHING
	`, int64Array(ids))
	return err
}

func (r *accountRepo) UpsertProfile(ctx context.Context, params model.UpsertProfileParams, now time.Time) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		INSERT INTO accounts (
			id, screen_name, screen_name_lower, name, description, location,
			profile_image_url, followers_count, friends_count, statuses_count,
			favourites_count, listed_count, remote_created_at, profile_updated
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			screen_name = EXCLUDED.screen_name,
			screen_name_lower = EXCLUDED.screen_name_lower,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			location = EXCLUDED.location,
			profile_image_url = EXCLUDED.profile_image_url,
			followers_count = EXCLUDED.followers_count,
			friends_count = EXCLUDED.friends_count,
			statuses_count = EXCLUDED.statuses_count,
			favourites_count = EXCLUDED.favourites_count,
			listed_count = EXCLUDED.listed_count,
			remote_created_at = EXCLUDED.remote_created_at,
			profile_updated = EXCLUDED.profile_updated
		RETURNING *
	`, params.ID, params.ScreenName, strings.ToLower(params.ScreenName), params.Name,
		params.Description, params.Location, params.ProfileImageURL,
		params.FollowersCount, params.FriendsCount, params.StatusesCount,
		params.FavouritesCount, params.ListedCount, params.RemoteCreatedAt, now)
	if err != nil {
		return nil, err
	}

	if len(params.Raw) > 0 {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO profiles (account_id, raw, fetched_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (account_id) DO UPDATE SET
				raw = EXCLUDED.raw,
				fetched_at = EXCLUDED.fetched_at
		`, params.ID, []byte(params.Raw), now)
		if err != nil {
			return nil, err
		}
	}

	return &account, nil
}

func (r *accountRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}
