package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Account is the local record of an account on the remote social graph,
// keyed by the remote service's stable numeric id. Profile columns are a
// cache of the last fetched profile; they stay nil until a profile fetch
// has seen the account.
type Account struct {
	ID              int64      `db:"id" json:"id"`
	ScreenName      *string    `db:"screen_name" json:"screenName,omitempty"`
	ScreenNameLower *string    `db:"screen_name_lower" json:"-"`
	Name            *string    `db:"name" json:"name,omitempty"`
	Description     *string    `db:"description" json:"description,omitempty"`
	Location        *string    `db:"location" json:"location,omitempty"`
	ProfileImageURL *string    `db:"profile_image_url" json:"profileImageUrl,omitempty"`
	FollowersCount  *int       `db:"followers_count" json:"followersCount,omitempty"`
	FriendsCount    *int       `db:"friends_count" json:"friendsCount,omitempty"`
	StatusesCount   *int       `db:"statuses_count" json:"statusesCount,omitempty"`
	FavouritesCount *int       `db:"favourites_count" json:"favouritesCount,omitempty"`
	ListedCount     *int       `db:"listed_count" json:"listedCount,omitempty"`
	RemoteCreatedAt *time.Time `db:"remote_created_at" json:"remoteCreatedAt,omitempty"`
	ProfileUpdated  *time.Time `db:"profile_updated" json:"profileUpdated,omitempty"`
}

func (a *Account) String() string {
	if a.ScreenName != nil {
		return *a.ScreenName
	}
	return fmt.Sprintf("id=%d", a.ID)
}

// Profile keeps the raw attributes of the most recent profile fetch,
// one row per account.
type Profile struct {
	AccountID int64           `db:"account_id" json:"accountId"`
	Raw       json.RawMessage `db:"raw" json:"raw"`
	FetchedAt time.Time       `db:"fetched_at" json:"fetchedAt"`
}

// UpsertProfileParams carries everything a profile fetch learned about an
// account. Raw is stored verbatim; the rest lands in the account's cached
// profile columns.
type UpsertProfileParams struct {
	ID              int64
	ScreenName      string
	Name            string
	Description     string
	Location        string
	ProfileImageURL string
	FollowersCount  int
	FriendsCount    int
	StatusesCount   int
	FavouritesCount int
	ListedCount     int
	RemoteCreatedAt *time.Time
	Raw             json.RawMessage
}
