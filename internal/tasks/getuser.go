package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	apperrors "github.com/graphwarden/warden-server-go/internal/errors"
	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/queue"
	"github.com/graphwarden/warden-server-go/internal/remote"
)

// RunFetchProfile is the queue runner for single profile fetches.
func (s *Service) RunFetchProfile(ctx context.Context, task queue.Task) error {
	var p FetchProfilePayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return apperrors.InvalidArgument("malformed fetch payload").WithCause(err)
	}
	_, err := s.FetchProfile(ctx, p)
	return err
}

// FetchProfile looks one profile up remotely and caches it. A suspended or
// vanished account is not an error; the fetch just yields nothing.
func (s *Service) FetchProfile(ctx context.Context, p FetchProfilePayload) (*model.Account, error) {
	if !p.Target.Valid() {
		return nil, apperrors.InvalidArgument("target must set exactly one of id or screen name")
	}
	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("user")
	}
	client, ok := s.clientFor(user)
	if !ok {
		return nil, nil
	}

	profile, err := client.GetUser(ctx, remote.Target(p.Target))
	if err != nil {
		switch remote.CodeOf(err) {
		case remote.CodeSuspended, remote.CodeNotFound:
			log.Info().Int64("target_id", p.Target.ID).Str("target_screen_name", p.Target.ScreenName).
				Msg("profile unavailable")
			return nil, nil
		default:
			return nil, err
		}
	}

	now := s.now()
	account, err := s.accounts.UpsertProfile(ctx, profileParams(profile), now)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	s.recorder.Record(ctx, now, auditEntry(p.UserID, model.ActionGetUser, &account.ID, nil,
		fmt.Sprintf("Retrieved profile for %s.", account)))
	return account, nil
}
