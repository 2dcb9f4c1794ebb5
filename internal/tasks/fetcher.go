package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/graphwarden/warden-server-go/internal/backoff"
	"github.com/graphwarden/warden-server-go/internal/config"
	apperrors "github.com/graphwarden/warden-server-go/internal/errors"
	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/queue"
	"github.com/graphwarden/warden-server-go/internal/remote"
)

// InitialCursor starts a listing walk at its first page.
const InitialCursor int64 = -1

// PageObserver sees every page of a listing walk, after the page's
// accounts have been ensured in the store. ids are the account ids of the
// page in listing order.
type PageObserver interface {
	OnPage(ctx context.Context, ids []int64) error
}

// FinishObserver runs only when a walk reaches the natural end of the
// listing. A truncated walk never triggers it.
type FinishObserver interface {
	OnFinish(ctx context.Context) error
}

// walkState is the resumable position of a listing walk.
type walkState struct {
	cursor         int64
	pagesRemaining int
}

// runListing walks a cursor-paginated listing until it is exhausted or the
// page budget runs out. Each page's accounts are committed to the store
// and handed to the page observers before the next page is fetched, so a
// walk aborted mid-way keeps everything it already saw. On a rate-limit
// signal the current state is returned inside a RetryError; the caller
// re-submits it with the same cursor and budget.
//
// If the listing is longer than the page budget the walk is truncated and
// the finish observers never run: stale edges survive until a future walk
// completes. That retention is deliberate; a truncated walk must never
// trim edges it did not get far enough to reconfirm.
func (s *Service) runListing(
	ctx context.Context,
	listing remote.ListingFunc,
	pageObs []PageObserver,
	finishObs []FinishObserver,
	state walkState,
	retries int,
) (walkState, error) {
	for {
		page, err := listing(ctx, state.cursor)
		if err != nil {
			if remote.CodeOf(err) == remote.CodeRateLimited {
				log.Warn().Int64("cursor", state.cursor).Msg("listing rate limited, scheduling a retry")
				return state, queue.RetryAfter(backoff.Delay(config.RateLimitWindow, retries), err)
			}
			return state, err
		}
		if n := page.Len(); n > 0 {
			log.Debug().Int("results", n).Int64("cursor", state.cursor).Msg("received listing page")
		}

		ids, err := s.ingestPage(ctx, page)
		if err != nil {
			return state, apperrors.Database(err)
		}
		for _, obs := range pageObs {
			if err := obs.OnPage(ctx, ids); err != nil {
				return state, err
			}
		}

		if page.Exhausted() {
			for _, obs := range finishObs {
				if err := obs.OnFinish(ctx); err != nil {
					return state, err
				}
			}
			return walkState{}, nil
		}

		state.pagesRemaining--
		state.cursor = page.NextCursor
		if state.pagesRemaining <= 0 {
			log.Warn().Int64("cursor", state.cursor).Msg("page budget exhausted, truncating walk")
			return state, nil
		}
	}
}

// ingestPage ensures every account on the page exists locally. Pages with
// full profile entities also refresh the profile cache. Re-ingesting the
// same page after a retry is a no-op beyond refreshed timestamps.
func (s *Service) ingestPage(ctx context.Context, page remote.Page) ([]int64, error) {
	if len(page.Users) > 0 {
		now := s.now()
		ids := make([]int64, 0, len(page.Users))
		for i := range page.Users {
			account, err := s.accounts.UpsertProfile(ctx, profileParams(&page.Users[i]), now)
			if err != nil {
				return nil, err
			}
			ids = append(ids, account.ID)
		}
		return ids, nil
	}
	if err := s.accounts.BulkGetOrCreate(ctx, page.IDs); err != nil {
		return nil, err
	}
	return page.IDs, nil
}

// RunListingSync is the queue runner for listing walks. Rate-limit retries
// re-enqueue the updated state record themselves so the walk resumes at
// the interrupted page; the per-cursor attempt counter resets every time
// the walk advances.
func (s *Service) RunListingSync(ctx context.Context, task queue.Task) error {
	var p SyncPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return apperrors.InvalidArgument("malformed sync payload").WithCause(err)
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

	listing, err := s.listingFor(client, p)
	if err != nil {
		return err
	}
	pageObs, finishObs, err := s.observersFor(p)
	if err != nil {
		return err
	}

	state := walkState{cursor: p.Cursor, pagesRemaining: p.PagesRemaining}
	state, err = s.runListing(ctx, listing, pageObs, finishObs, state, p.Attempt)
	if err == nil {
		return nil
	}

	retryErr, ok := queue.AsRetry(err)
	if !ok {
		return err
	}
	if state.cursor != p.Cursor {
		// The walk advanced before hitting the limit again; the retry
		// budget belongs to the cursor position, not the whole walk.
		p.Attempt = 0
	}
	if p.Attempt >= config.MaxFetchRetries {
		// Pages already walked stay committed; only the rest of the
		// listing, and with it the stale-edge trim, is lost this run.
		return fmt.Errorf("listing %s aborted after %d retries: %w", p.Listing, p.Attempt, retryErr.Cause)
	}
	p.Cursor = state.cursor
	p.PagesRemaining = state.pagesRemaining
	p.Attempt++
	next, err := queue.NewTask(KindListingSync, p, 0)
	if err != nil {
		return err
	}
	return s.scheduler.Enqueue(ctx, next, retryErr.Delay)
}

// listingFor binds the payload's listing name to the remote call it
// drives.
func (s *Service) listingFor(client remote.Client, p SyncPayload) (remote.ListingFunc, error) {
	switch p.Listing {
	case ListingFollowers:
		return func(ctx context.Context, cursor int64) (remote.Page, error) {
			return client.FollowerIDs(ctx, p.AccountID, cursor)
		}, nil
	case ListingFriends:
		return func(ctx context.Context, cursor int64) (remote.Page, error) {
			return client.FriendIDs(ctx, p.AccountID, cursor)
		}, nil
	case ListingFriendProfiles:
		return func(ctx context.Context, cursor int64) (remote.Page, error) {
			return client.Friends(ctx, p.AccountID, cursor)
		}, nil
	case ListingBlocks:
		return func(ctx context.Context, cursor int64) (remote.Page, error) {
			return client.BlockIDs(ctx, cursor)
		}, nil
	case ListingMutes:
		return func(ctx context.Context, cursor int64) (remote.Page, error) {
			return client.MuteIDs(ctx, cursor)
		}, nil
	default:
		return nil, apperrors.InvalidArgument(fmt.Sprintf("unknown listing %q", p.Listing))
	}
}

// observersFor builds the page and finish observers a listing walk needs:
// upserted edges per page, a stale-edge trim at natural completion, and
// optionally a mutation fan-out.
func (s *Service) observersFor(p SyncPayload) ([]PageObserver, []FinishObserver, error) {
	var typ model.RelationshipType
	var dir edgeDirection
	switch p.Listing {
	case ListingFollowers:
		typ, dir = model.RelationshipFollows, listedAreSubjects
	case ListingFriends, ListingFriendProfiles:
		typ, dir = model.RelationshipFollows, listedAreObjects
	case ListingBlocks:
		typ, dir = model.RelationshipBlocks, listedAreObjects
	case ListingMutes:
		typ, dir = model.RelationshipMutes, listedAreObjects
	default:
		return nil, nil, apperrors.InvalidArgument(fmt.Sprintf("unknown listing %q", p.Listing))
	}

	pageObs := []PageObserver{
		&addEdges{rels: s.rels, typ: typ, anchorID: p.AccountID, dir: dir, updated: p.StartedAt},
	}
	if p.FanOut != nil {
		pageObs = append(pageObs, &fanOut{
			service:  s,
			userID:   p.UserID,
			anchorID: p.AccountID,
			spec:     *p.FanOut,
		})
	}
	finishObs := []FinishObserver{
		&removeStale{rels: s.rels, typ: typ, anchorID: p.AccountID, dir: dir, before: p.StartedAt},
	}
	return pageObs, finishObs, nil
}
