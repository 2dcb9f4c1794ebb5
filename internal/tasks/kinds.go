package tasks

import (
	"time"

	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/queue"
)

// Task kinds dispatched through the queue.
const (
	KindCreateRelationship  = "relationship.create"
	KindDestroyRelationship = "relationship.destroy"
	KindFetchProfile        = "profile.fetch"
	KindListingSync         = "listing.sync"
)

// MutatePayload asks for one relationship mutation. Target must select the
// account by exactly one of id or screen name.
type MutatePayload struct {
	UserID int64                  `json:"userId"`
	Type   model.RelationshipType `json:"type"`
	Target model.TargetSelector   `json:"target"`
	Until  *time.Time             `json:"until,omitempty"`
}

// FetchProfilePayload asks for a single profile fetch.
type FetchProfilePayload struct {
	UserID int64                `json:"userId"`
	Target model.TargetSelector `json:"target"`
}

// Listing names a cursor-paginated remote listing.
type Listing string

const (
	ListingFollowers      Listing = "followers"
	ListingFriends        Listing = "friends"
	ListingFriendProfiles Listing = "friend_profiles"
	ListingBlocks         Listing = "blocks"
	ListingMutes          Listing = "mutes"
)

// FanOutSpec makes a listing walk enqueue a create mutation for every
// listed account, e.g. "block all followers of X". Duration, when set, is
// fudged per target so the expirations don't land at once.
type FanOutSpec struct {
	Type     model.RelationshipType `json:"type"`
	Duration *time.Duration         `json:"duration,omitempty"`
}

// SyncPayload is the state record of a listing walk: the cursor and the
// remaining page budget travel with the envelope, so a rate-limited walk
// resumes at the page it was interrupted on. Attempt counts the retries of
// the current cursor position only; it resets whenever the walk advances.
type SyncPayload struct {
	UserID         int64       `json:"userId"`
	Listing        Listing     `json:"listing"`
	AccountID      int64       `json:"accountId"`
	StartedAt      time.Time   `json:"startedAt"`
	Cursor         int64       `json:"cursor"`
	PagesRemaining int         `json:"pagesRemaining"`
	Attempt        int         `json:"attempt"`
	FanOut         *FanOutSpec `json:"fanOut,omitempty"`
}

// RegisterAll binds every task kind to its runner and the abandonment
// audit hook.
func RegisterAll(w *queue.Worker, s *Service) {
	w.Register(KindCreateRelationship, s.RunCreate)
	w.Register(KindDestroyRelationship, s.RunDestroy)
	w.Register(KindFetchProfile, s.RunFetchProfile)
	w.Register(KindListingSync, s.RunListingSync)
	w.OnAbandon(s.RecordAbandoned)
}
