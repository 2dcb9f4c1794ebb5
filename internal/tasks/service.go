// Package tasks holds the scheduler core: the relationship mutation tasks,
// the paginated fetch-and-reconcile walks, and the expiry sweep. Tasks run
// at least once each; everything here is written to tolerate a duplicate
// delivery.
package tasks

import (
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/graphwarden/warden-server-go/internal/audit"
	"github.com/graphwarden/warden-server-go/internal/cache"
	"github.com/graphwarden/warden-server-go/internal/database"
	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/queue"
	"github.com/graphwarden/warden-server-go/internal/remote"
	"github.com/graphwarden/warden-server-go/internal/repository"
)

type Service struct {
	db        database.Transactor
	users     repository.UserRepository
	accounts  repository.AccountRepository
	rels      repository.RelationshipRepository
	recorder  *audit.Recorder
	markers   cache.MarkerStore
	clients   remote.ClientFactory
	scheduler queue.Scheduler
	now       func() time.Time
}

func NewService(
	db database.Transactor,
	users repository.UserRepository,
	accounts repository.AccountRepository,
	rels repository.RelationshipRepository,
	recorder *audit.Recorder,
	markers cache.MarkerStore,
	clients remote.ClientFactory,
	scheduler queue.Scheduler,
) *Service {
	return &Service{
		db:        db,
		users:     users,
		accounts:  accounts,
		rels:      rels,
		recorder:  recorder,
		markers:   markers,
		clients:   clients,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// clientFor returns a remote client for the user, or false when the user's
// remote capability is disabled or their credentials have been scrubbed.
// Callers treat false as a logged terminal no-op, not an error.
func (s *Service) clientFor(user *model.User) (remote.Client, bool) {
	if !user.RemoteEnabled {
		log.Error().Int64("user_id", user.ID).Msg("remote api not enabled for user")
		return nil, false
	}
	if !user.HasCredentials() {
		log.Error().Int64("user_id", user.ID).Msg("no remote credentials for user")
		return nil, false
	}
	return s.clients.ClientFor(remote.Credentials{
		AccessToken:  *user.AccessToken,
		AccessSecret: *user.AccessSecret,
	}), true
}

// profileParams maps a remote profile entity onto store parameters.
func profileParams(u *remote.User) model.UpsertProfileParams {
	return model.UpsertProfileParams{
		ID:              u.ID,
		ScreenName:      u.ScreenName,
		Name:            u.Name,
		Description:     u.Description,
		Location:        u.Location,
		ProfileImageURL: u.ProfileImageURL,
		FollowersCount:  u.FollowersCount,
		FriendsCount:    u.FriendsCount,
		StatusesCount:   u.StatusesCount,
		FavouritesCount: u.FavouritesCount,
		ListedCount:     u.ListedCount,
		RemoteCreatedAt: u.CreatedAt,
		Raw:             u.Raw,
	}
}

// fudgeDuration extends d by a uniform random amount of up to
// fraction * d, so scheduled expirations from one fan-out spread out.
func fudgeDuration(d time.Duration, fraction float64) time.Duration {
	extra := time.Duration(fraction * float64(d))
	if extra <= 0 {
		return d
	}
	return d + rand.N(extra)
}
