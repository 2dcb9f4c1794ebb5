// Package remote defines the surface of the rate-limited social-graph API
// that the scheduler depends on: single-profile lookup, cursor-paginated
// listings, and the block/mute mutation calls with their classifiable
// errors.
package remote

import (
	"context"
	"encoding/json"
	"time"
)

// User is a profile entity as returned by the remote API.
type User struct {
	ID              int64           `json:"id"`
	ScreenName      string          `json:"screen_name"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Location        string          `json:"location"`
	ProfileImageURL string          `json:"profile_image_url"`
	FollowersCount  int             `json:"followers_count"`
	FriendsCount    int             `json:"friends_count"`
	StatusesCount   int             `json:"statuses_count"`
	FavouritesCount int             `json:"favourites_count"`
	ListedCount     int             `json:"listed_count"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// ExhaustedCursor signals that a listing has no further pages.
const ExhaustedCursor int64 = 0

// Page is one batch of a cursor-paginated listing. Either IDs or Users is
// populated, depending on whether the listing variant carries profiles.
type Page struct {
	NextCursor     int64
	PreviousCursor int64
	IDs            []int64
	Users          []User
}

// Exhausted reports whether this was the final page of the listing.
func (p Page) Exhausted() bool {
	return p.NextCursor == ExhaustedCursor
}

// Len returns the number of items in the page.
func (p Page) Len() int {
	if len(p.Users) > 0 {
		return len(p.Users)
	}
	return len(p.IDs)
}

// Target selects an account by remote id or screen name for a mutation or
// lookup call.
type Target struct {
	ID         int64
	ScreenName string
}

// ListingFunc drives one page of a cursor-paginated listing call.
type ListingFunc func(ctx context.Context, cursor int64) (Page, error)

// Client is a user-credentialed connection to the remote social-graph API.
type Client interface {
	// GetUser fetches a single profile.
	GetUser(ctx context.Context, target Target) (*User, error)

	// Mutations. Each returns the affected profile entity.
	CreateBlock(ctx context.Context, target Target) (*User, error)
	DestroyBlock(ctx context.Context, target Target) (*User, error)
	CreateMute(ctx context.Context, target Target) (*User, error)
	DestroyMute(ctx context.Context, target Target) (*User, error)

	// Paginated listings. The ID variants return bare id pages; Friends
	// returns full profile entities.
	FollowerIDs(ctx context.Context, userID int64, cursor int64) (Page, error)
	FriendIDs(ctx context.Context, userID int64, cursor int64) (Page, error)
	Friends(ctx context.Context, userID int64, cursor int64) (Page, error)
	BlockIDs(ctx context.Context, cursor int64) (Page, error)
	MuteIDs(ctx context.Context, cursor int64) (Page, error)
}

// Credentials are a user's tokens for the remote API.
type Credentials struct {
	AccessToken  string
	AccessSecret string
}

// ClientFactory builds a Client from per-user credentials.
type ClientFactory interface {
	ClientFor(creds Credentials) Client
}
