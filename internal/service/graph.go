// Package service implements the user-facing graph operations behind the
// HTTP surface: guarded block/mute requests, sync triggers and the audit
// log listing. Everything slow or rate-limited is handed to the task
// queue; the service layer only validates, spends quota and enqueues.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/graphwarden/warden-server-go/internal/audit"
	"github.com/graphwarden/warden-server-go/internal/config"
	apperrors "github.com/graphwarden/warden-server-go/internal/errors"
	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/queue"
	"github.com/graphwarden/warden-server-go/internal/quota"
	"github.com/graphwarden/warden-server-go/internal/remote"
	"github.com/graphwarden/warden-server-go/internal/repository"
	"github.com/graphwarden/warden-server-go/internal/tasks"
)

// remoteError translates a remote API failure into the error taxonomy the
// HTTP layer maps to statuses. Task runners branch on the raw remote
// codes; only errors that reach a synchronous request pass through here.
func remoteError(err error) error {
	if err == nil || apperrors.IsAppError(err) {
		return err
	}
	code := remote.CodeOf(err)
	var appCode apperrors.ErrorCode
	switch code {
	case remote.CodeRateLimited:
		appCode = apperrors.ErrCodeRemoteRateLimited
	case remote.CodeNotFound:
		appCode = apperrors.ErrCodeRemoteNotFound
	case remote.CodeSuspended:
		appCode = apperrors.ErrCodeRemoteSuspended
	case remote.CodeAlreadyUndone:
		appCode = apperrors.ErrCodeRemoteAlreadyUndone
	case remote.CodePageGone:
		appCode = apperrors.ErrCodeRemoteTargetGone
	default:
		appCode = apperrors.ErrCodeRemoteUnclassified
	}
	return apperrors.Wrap(appCode, "remote api request failed", err)
}

// TaskGateway is the slice of the task layer the graph operations use:
// synchronous profile resolution and listing-walk triggers. *tasks.Service
// satisfies it.
type TaskGateway interface {
	FetchProfile(ctx context.Context, p tasks.FetchProfilePayload) (*model.Account, error)
	EnqueueSync(ctx context.Context, userID int64, listing tasks.Listing, accountID int64, fanOut *tasks.FanOutSpec) error
}

// QuotaDefaults seeds the token bucket of a user whose row has never been
// provisioned with one.
type QuotaDefaults struct {
	Rate float64
	Max  float64
}

type GraphService struct {
	users     repository.UserRepository
	accounts  repository.AccountRepository
	logs      repository.LogMessageRepository
	recorder  *audit.Recorder
	tasks     TaskGateway
	scheduler queue.Scheduler
	defaults  QuotaDefaults
	now       func() time.Time
}

func NewGraphService(
	users repository.UserRepository,
	accounts repository.AccountRepository,
	logs repository.LogMessageRepository,
	recorder *audit.Recorder,
	taskSvc TaskGateway,
	scheduler queue.Scheduler,
	defaults QuotaDefaults,
) *GraphService {
	return &GraphService{
		users:     users,
		accounts:  accounts,
		logs:      logs,
		recorder:  recorder,
		tasks:     taskSvc,
		scheduler: scheduler,
		defaults:  defaults,
		now:       time.Now,
	}
}

// BlockRequest asks to act on one account and optionally its followers.
// At least one of the four action flags must be set.
type BlockRequest struct {
	ScreenName     string         `json:"screenName"`
	BlockAccount   bool           `json:"blockAccount"`
	MuteAccount    bool           `json:"muteAccount"`
	BlockFollowers bool           `json:"blockFollowers"`
	MuteFollowers  bool           `json:"muteFollowers"`
	Duration       *time.Duration `json:"duration,omitempty"`
}

func (r *BlockRequest) validate() error {
	if strings.TrimSpace(r.ScreenName) == "" {
		return apperrors.MissingRequired("screenName")
	}
	if !r.BlockAccount && !r.MuteAccount && !r.BlockFollowers && !r.MuteFollowers {
		return apperrors.ValidationError("no action requested")
	}
	if r.Duration != nil && *r.Duration <= 0 {
		return apperrors.ValidationError("duration must be positive")
	}
	return nil
}

// BlockResult reports what a block request set in motion.
type BlockResult struct {
	Target          *model.Account `json:"target"`
	ActionsQueued   []string       `json:"actionsQueued"`
	TokensWithdrawn float64        `json:"tokensWithdrawn"`
}

// Block validates and enqueues the requested actions against the target.
// Guards, in order: the target must resolve, self-targeting is refused,
// fan-outs respect the follower-count caps, and each fan-out withdraws the
// target's follower count from the user's token bucket before anything is
// enqueued. All checks pass before the first enqueue, so a refused request
// schedules nothing.
func (s *GraphService) Block(ctx context.Context, user *model.User, req BlockRequest) (*BlockResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	target, err := s.resolveTarget(ctx, user, req.ScreenName)
	if err != nil {
		return nil, err
	}
	if user.AccountID != nil && *user.AccountID == target.ID {
		return nil, apperrors.ValidationError("cannot act on your own account")
	}

	followers := 0
	if target.FollowersCount != nil {
		followers = *target.FollowersCount
	}
	if req.BlockFollowers && followers > config.MaxFollowersToBlock {
		return nil, apperrors.ValidationError(fmt.Sprintf(
			"%s has more than %d followers", target, config.MaxFollowersToBlock))
	}
	if req.MuteFollowers && followers > config.MaxFollowersToMute {
		return nil, apperrors.ValidationError(fmt.Sprintf(
			"%s has more than %d followers", target, config.MaxFollowersToMute))
	}

	// Each fan-out spends one token per follower it will mutate.
	var cost float64
	if req.BlockFollowers {
		cost += float64(followers)
	}
	if req.MuteFollowers {
		cost += float64(followers)
	}
	if cost > 0 {
		if err := s.withdraw(ctx, user, cost); err != nil {
			return nil, err
		}
	}

	var until *time.Time
	if req.Duration != nil {
		t := s.now().Add(*req.Duration)
		until = &t
	}

	result := &BlockResult{Target: target, TokensWithdrawn: cost}
	if req.BlockAccount {
		if err := s.enqueueMutation(ctx, user.ID, model.RelationshipBlocks, target.ID, until); err != nil {
			return nil, err
		}
		result.ActionsQueued = append(result.ActionsQueued, "block")
	}
	if req.MuteAccount {
		if err := s.enqueueMutation(ctx, user.ID, model.RelationshipMutes, target.ID, until); err != nil {
			return nil, err
		}
		result.ActionsQueued = append(result.ActionsQueued, "mute")
	}
	if req.BlockFollowers {
		if err := s.enqueueFanOut(ctx, user.ID, model.RelationshipBlocks, target, req.Duration); err != nil {
			return nil, err
		}
		result.ActionsQueued = append(result.ActionsQueued, "block_followers")
	}
	if req.MuteFollowers {
		if err := s.enqueueFanOut(ctx, user.ID, model.RelationshipMutes, target, req.Duration); err != nil {
			return nil, err
		}
		result.ActionsQueued = append(result.ActionsQueued, "mute_followers")
	}
	return result, nil
}

// resolveTarget finds the account behind a screen name, trying the local
// profile cache before spending a remote lookup.
func (s *GraphService) resolveTarget(ctx context.Context, user *model.User, screenName string) (*model.Account, error) {
	name := strings.TrimPrefix(strings.TrimSpace(screenName), "@")
	account, err := s.accounts.FindByScreenName(ctx, name)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if account != nil && account.FollowersCount != nil {
		return account, nil
	}
	// Not cached, or cached without profile data; a synchronous fetch
	// with the requester's credentials resolves both.
	account, err = s.tasks.FetchProfile(ctx, tasks.FetchProfilePayload{
		UserID: user.ID,
		Target: model.TargetSelector{ScreenName: name},
	})
	if err != nil {
		return nil, remoteError(err)
	}
	if account == nil {
		return nil, apperrors.NotFound("account")
	}
	return account, nil
}

// withdraw spends amount tokens from the user's bucket and persists the
// new bucket state.
func (s *GraphService) withdraw(ctx context.Context, user *model.User, amount float64) error {
	bucket := quota.TokenBucket{
		Rate:  user.BucketRate,
		Max:   user.BucketMax,
		Value: user.BucketValue,
		Time:  user.BucketTime,
	}
	if bucket.Max <= 0 {
		// Unprovisioned row: start from the configured default, full.
		bucket = quota.TokenBucket{
			Rate:  s.defaults.Rate,
			Max:   s.defaults.Max,
			Value: s.defaults.Max,
			Time:  quota.Seconds(s.now()),
		}
	}
	next, err := bucket.Withdraw(quota.Seconds(s.now()), amount)
	if err != nil {
		return err
	}
	if err := s.users.SaveBucket(ctx, user.ID, next); err != nil {
		return apperrors.Database(err)
	}
	user.BucketRate = next.Rate
	user.BucketMax = next.Max
	user.BucketValue = next.Value
	user.BucketTime = next.Time
	return nil
}

func (s *GraphService) enqueueMutation(ctx context.Context, userID int64, typ model.RelationshipType, accountID int64, until *time.Time) error {
	task, err := queue.NewTask(tasks.KindCreateRelationship, tasks.MutatePayload{
		UserID: userID,
		Type:   typ,
		Target: model.TargetSelector{ID: accountID},
		Until:  until,
	}, config.MaxMutationRetries)
	if err != nil {
		return err
	}
	return s.scheduler.Enqueue(ctx, task, 0)
}

// enqueueFanOut starts a followers walk carrying a fan-out spec; the walk
// enqueues one mutation per follower as pages arrive.
func (s *GraphService) enqueueFanOut(ctx context.Context, userID int64, typ model.RelationshipType, target *model.Account, duration *time.Duration) error {
	spec := &tasks.FanOutSpec{Type: typ, Duration: duration}
	if err := s.tasks.EnqueueSync(ctx, userID, tasks.ListingFollowers, target.ID, spec); err != nil {
		return err
	}
	action := model.ActionBlockFollowers
	verb := "Blocking"
	if typ == model.RelationshipMutes {
		action = model.ActionMuteFollowers
		verb = "Muting"
	}
	s.recorder.Record(ctx, s.now(), audit.Entry{
		UserID:    userID,
		Action:    action,
		AccountID: &target.ID,
		Message:   fmt.Sprintf("%s the followers of %s.", verb, target),
	})
	return nil
}

// SyncRequest triggers listing walks over the user's own account.
type SyncRequest struct {
	Listings []string `json:"listings"`
}

var syncListings = map[string]tasks.Listing{
	"followers":       tasks.ListingFollowers,
	"friends":         tasks.ListingFriends,
	"friend_profiles": tasks.ListingFriendProfiles,
	"blocks":          tasks.ListingBlocks,
	"mutes":           tasks.ListingMutes,
}

// Sync enqueues one listing walk per requested listing, anchored at the
// user's own account. An empty request syncs everything.
func (s *GraphService) Sync(ctx context.Context, user *model.User, req SyncRequest) ([]string, error) {
	if user.AccountID == nil {
		return nil, apperrors.ValidationError("user has no linked account")
	}
	names := req.Listings
	if len(names) == 0 {
		names = []string{"followers", "friends", "blocks", "mutes"}
	}
	queued := make([]string, 0, len(names))
	for _, name := range names {
		listing, ok := syncListings[name]
		if !ok {
			return nil, apperrors.InvalidArgument(fmt.Sprintf("unknown listing %q", name))
		}
		if err := s.tasks.EnqueueSync(ctx, user.ID, listing, *user.AccountID, nil); err != nil {
			return nil, err
		}
		queued = append(queued, name)
	}
	log.Info().Int64("user_id", user.ID).Strs("listings", queued).Msg("sync triggered")
	return queued, nil
}

// GetLog returns a page of the user's audit trail, newest first.
func (s *GraphService) GetLog(ctx context.Context, userID int64, limit, offset int) ([]model.LogMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	messages, err := s.logs.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return messages, nil
}
