package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/graphwarden/warden-server-go/internal/audit"
	"github.com/graphwarden/warden-server-go/internal/backoff"
	"github.com/graphwarden/warden-server-go/internal/config"
	apperrors "github.com/graphwarden/warden-server-go/internal/errors"
	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/queue"
	rediskeys "github.com/graphwarden/warden-server-go/internal/redis"
	"github.com/graphwarden/warden-server-go/internal/remote"
)

// capability resolves a relationship type to its remote calls and naming,
// once per task instead of branching at every step.
type capability struct {
	createVerb    string // past tense, for audit messages
	destroyVerb   string
	createKey     string // rate-limit marker suffixes
	destroyKey    string
	createAction  model.LogAction
	destroyAction model.LogAction
	create        func(remote.Client, context.Context, remote.Target) (*remote.User, error)
	destroy       func(remote.Client, context.Context, remote.Target) (*remote.User, error)
}

func capabilityFor(typ model.RelationshipType) (capability, error) {
	switch typ {
	case model.RelationshipBlocks:
		return capability{
			createVerb:    "blocked",
			destroyVerb:   "unblocked",
			createKey:     "create_block",
			destroyKey:    "destroy_block",
			createAction:  model.ActionCreateBlock,
			destroyAction: model.ActionDestroyBlock,
			create:        remote.Client.CreateBlock,
			destroy:       remote.Client.DestroyBlock,
		}, nil
	case model.RelationshipMutes:
		return capability{
			createVerb:    "muted",
			destroyVerb:   "unmuted",
			createKey:     "create_mute",
			destroyKey:    "destroy_mute",
			createAction:  model.ActionCreateMute,
			destroyAction: model.ActionDestroyMute,
			create:        remote.Client.CreateMute,
			destroy:       remote.Client.DestroyMute,
		}, nil
	default:
		return capability{}, apperrors.InvalidArgument(fmt.Sprintf("cannot mutate relationship type %q", typ))
	}
}

// RunCreate is the queue runner for relationship creation.
func (s *Service) RunCreate(ctx context.Context, task queue.Task) error {
	var p MutatePayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return apperrors.InvalidArgument("malformed create payload").WithCause(err)
	}
	return s.CreateRelationship(ctx, p, task.Retries)
}

// RunDestroy is the queue runner for relationship removal.
func (s *Service) RunDestroy(ctx context.Context, task queue.Task) error {
	var p MutatePayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return apperrors.InvalidArgument("malformed destroy payload").WithCause(err)
	}
	return s.DestroyRelationship(ctx, p, task.Retries)
}

// CreateRelationship applies one block or mute. Local state is checked
// before any remote call is made, so re-running the task after a crash or
// duplicate delivery converges without a second remote call.
func (s *Service) CreateRelationship(ctx context.Context, p MutatePayload, retries int) error {
	if !p.Target.Valid() {
		return apperrors.InvalidArgument("exactly one of target id or screen name must be set")
	}
	cap, err := capabilityFor(p.Type)
	if err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		return apperrors.Database(err)
	}
	if user == nil {
		return apperrors.NotFound("user")
	}
	client, ok := s.clientFor(user)
	if !ok {
		return nil
	}
	if user.AccountID == nil {
		return apperrors.Internal("user has no linked account")
	}
	subjectID := *user.AccountID
	now := s.now()

	// Already blocked/muted: refresh the expiry in place, last writer
	// wins, and skip the remote call entirely.
	refreshed, err := s.rels.SetUntil(ctx, subjectID, p.Type, p.Target, p.Until)
	if err != nil {
		return apperrors.Database(err)
	}
	if refreshed {
		log.Info().
			Int64("subject_id", subjectID).
			Str("type", p.Type.String()).
			Interface("target", p.Target).
			Msgf("already %s, refreshed expiry", cap.createVerb)
		return nil
	}

	// Never block or mute someone the user follows.
	follows, err := s.rels.Exists(ctx, subjectID, model.RelationshipFollows, p.Target)
	if err != nil {
		return apperrors.Database(err)
	}
	if follows {
		log.Info().
			Int64("subject_id", subjectID).
			Interface("target", p.Target).
			Msgf("target is followed and so won't be %s", cap.createVerb)
		return nil
	}

	// A cached marker means a previous attempt already hit the remote
	// rate limit inside the current window; don't burn a call to learn
	// that again.
	markerKey := rediskeys.RateLimitMarkerKey(user.Username, cap.createKey)
	limitedUntil, found, err := s.markers.Get(ctx, markerKey)
	if err != nil {
		log.Warn().Err(err).Str("key", markerKey).Msg("marker lookup failed, proceeding")
	}
	if found && limitedUntil.After(now) {
		remaining := limitedUntil.Sub(now)
		log.Debug().Dur("remaining", remaining).Msg("locally cached rate limit in effect")
		return queue.RetryAfter(backoff.Delay(remaining+5*time.Second, retries), nil)
	}

	result, err := cap.create(client, ctx, remote.Target(p.Target))
	if err != nil {
		if remote.CodeOf(err) == remote.CodeRateLimited {
			log.Warn().Str("operation", cap.createKey).Msg("remote rate limit exceeded")
			if setErr := s.markers.Set(ctx, markerKey, now.Add(config.RateLimitWindow), config.RateLimitWindow); setErr != nil {
				log.Warn().Err(setErr).Msg("failed to cache rate-limit marker")
			}
			s.recorder.Record(ctx, now, auditEntry(p.UserID, cap.createAction, nil, nil,
				"Rate limited: resuming in 15 minutes."))
			return queue.RetryAfter(backoff.Delay(0, retries), err)
		}
		// Anything unclassified propagates; no silent swallow.
		s.recorder.Record(ctx, now, auditEntry(p.UserID, cap.createAction, nil, nil,
			fmt.Sprintf("Failed to %s: %v.", strings.ReplaceAll(cap.createKey, "_", " "), err)))
		return err
	}

	var accountID int64
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.accounts.WithTx(tx).UpsertProfile(ctx, profileParams(result), now)
		if err != nil {
			return err
		}
		accountID = account.ID
		return s.rels.WithTx(tx).AddRelationships(
			ctx, p.Type, []int64{subjectID}, []int64{account.ID}, now, p.Until,
		)
	})
	if err != nil {
		return apperrors.Database(err)
	}

	message := fmt.Sprintf("%s %s", cap.createVerb, result.ScreenName)
	if p.Until != nil {
		message += fmt.Sprintf(" until %s", p.Until.Format("2 January"))
	}
	s.recorder.Record(ctx, now, auditEntry(p.UserID, cap.createAction, &accountID, p.Until, message))
	return nil
}

// DestroyRelationship removes one block or mute. The remote API's
// "already gone" answers are recognized terminal conditions, each with its
// own local reconciliation, so a duplicate destroy is harmless.
func (s *Service) DestroyRelationship(ctx context.Context, p MutatePayload, retries int) error {
	if !p.Target.Valid() {
		return apperrors.InvalidArgument("exactly one of target id or screen name must be set")
	}
	cap, err := capabilityFor(p.Type)
	if err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		return apperrors.Database(err)
	}
	if user == nil {
		return apperrors.NotFound("user")
	}
	client, ok := s.clientFor(user)
	if !ok {
		return nil
	}
	if user.AccountID == nil {
		return apperrors.Internal("user has no linked account")
	}
	subjectID := *user.AccountID
	now := s.now()

	existing, err := s.rels.Find(ctx, subjectID, p.Type, p.Target)
	if err != nil {
		return apperrors.Database(err)
	}
	if existing == nil {
		log.Info().
			Int64("subject_id", subjectID).
			Interface("target", p.Target).
			Msgf("already %s", cap.destroyVerb)
		return nil
	}

	markerKey := rediskeys.RateLimitMarkerKey(user.Username, cap.destroyKey)
	limitedUntil, found, err := s.markers.Get(ctx, markerKey)
	if err != nil {
		log.Warn().Err(err).Str("key", markerKey).Msg("marker lookup failed, proceeding")
	}
	if found && limitedUntil.After(now) {
		remaining := limitedUntil.Sub(now)
		log.Debug().Dur("remaining", remaining).Msg("locally cached rate limit in effect")
		return queue.RetryAfter(backoff.Delay(remaining, retries), nil)
	}

	result, err := cap.destroy(client, ctx, remote.Target(p.Target))
	if err != nil {
		switch remote.CodeOf(err) {
		case remote.CodeRateLimited:
			log.Warn().Str("operation", cap.destroyKey).Msg("remote rate limit exceeded")
			if setErr := s.markers.Set(ctx, markerKey, now.Add(config.RateLimitWindow), config.RateLimitWindow); setErr != nil {
				log.Warn().Err(setErr).Msg("failed to cache rate-limit marker")
			}
			return queue.RetryAfter(backoff.Delay(0, retries), err)
		case remote.CodeAlreadyUndone:
			// The edge is already gone remotely; drop the local row.
			log.Warn().Interface("target", p.Target).Msg("remote reports relationship already undone, removing edge")
			if _, err := s.rels.Delete(ctx, subjectID, p.Type, p.Target); err != nil {
				return apperrors.Database(err)
			}
			return nil
		case remote.CodePageGone:
			// The target account was deleted upstream. Removing the
			// account cascades to its profile and every edge touching it.
			log.Warn().Int64("object_id", existing.ObjectID).Msg("remote page gone, deleting account")
			if err := s.accounts.Delete(ctx, existing.ObjectID); err != nil {
				return apperrors.Database(err)
			}
			return nil
		default:
			s.recorder.Record(ctx, now, auditEntry(p.UserID, cap.destroyAction, nil, nil,
				fmt.Sprintf("Failed to %s: %v.", strings.ReplaceAll(cap.destroyKey, "_", " "), err)))
			return err
		}
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.WithTx(tx).UpsertProfile(ctx, profileParams(result), now); err != nil {
			return err
		}
		_, err := s.rels.WithTx(tx).Delete(ctx, subjectID, p.Type, model.TargetSelector{ID: result.ID})
		return err
	})
	if err != nil {
		return apperrors.Database(err)
	}

	message := fmt.Sprintf("%s %s", cap.destroyVerb, result.ScreenName)
	s.recorder.Record(ctx, now, auditEntry(p.UserID, cap.destroyAction, &result.ID, nil, message))
	return nil
}

// RecordAbandoned writes the audit entry for a mutation the worker gave
// up on after exhausting its retries.
func (s *Service) RecordAbandoned(ctx context.Context, task queue.Task, cause error) {
	var p MutatePayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return
	}
	cap, err := capabilityFor(p.Type)
	if err != nil {
		return
	}
	key, action := cap.createKey, cap.createAction
	if task.Kind == KindDestroyRelationship {
		key, action = cap.destroyKey, cap.destroyAction
	}
	message := fmt.Sprintf("Gave up on %s after %d retries.",
		strings.ReplaceAll(key, "_", " "), task.Retries)
	if cause != nil {
		message = fmt.Sprintf("Gave up on %s after %d retries: %v.",
			strings.ReplaceAll(key, "_", " "), task.Retries, cause)
	}
	s.recorder.Record(ctx, s.now(), auditEntry(p.UserID, action, nil, nil, message))
}

func auditEntry(userID int64, action model.LogAction, accountID *int64, until *time.Time, message string) audit.Entry {
	return audit.Entry{
		UserID:    userID,
		Action:    action,
		AccountID: accountID,
		Until:     until,
		Message:   message,
	}
}
