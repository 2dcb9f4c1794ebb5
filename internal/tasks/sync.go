package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/graphwarden/warden-server-go/internal/config"
	apperrors "github.com/graphwarden/warden-server-go/internal/errors"
	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/queue"
	"github.com/graphwarden/warden-server-go/internal/repository"
)

// edgeDirection says which side of the edge the listed accounts occupy
// relative to the walk's anchor account.
type edgeDirection int

const (
	// listedAreSubjects: the listed accounts point at the anchor, as in a
	// followers listing.
	listedAreSubjects edgeDirection = iota
	// listedAreObjects: the anchor points at the listed accounts, as in a
	// friends, blocks or mutes listing.
	listedAreObjects
)

// addEdges upserts one edge per listed account, stamped with the walk's
// start time so the stale trim can tell reconfirmed edges from leftovers.
type addEdges struct {
	rels     repository.RelationshipRepository
	typ      model.RelationshipType
	anchorID int64
	dir      edgeDirection
	updated  time.Time
}

func (a *addEdges) OnPage(ctx context.Context, ids []int64) error {
	subjects, objects := []int64{a.anchorID}, ids
	if a.dir == listedAreSubjects {
		subjects, objects = ids, []int64{a.anchorID}
	}
	if err := a.rels.AddRelationships(ctx, a.typ, subjects, objects, a.updated, nil); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// removeStale trims the anchor's edges of the walked type that no page
// reconfirmed. It only ever runs after the walk saw the whole listing.
type removeStale struct {
	rels     repository.RelationshipRepository
	typ      model.RelationshipType
	anchorID int64
	dir      edgeDirection
	before   time.Time
}

func (r *removeStale) OnFinish(ctx context.Context) error {
	filter := model.RelationshipFilter{Type: r.typ, UpdatedBefore: &r.before}
	if r.dir == listedAreSubjects {
		filter.ObjectID = r.anchorID
	} else {
		filter.SubjectID = r.anchorID
	}
	removed, err := r.rels.Remove(ctx, filter)
	if err != nil {
		return apperrors.Database(err)
	}
	if removed > 0 {
		log.Info().Int64("account_id", r.anchorID).Int("type", int(r.typ)).
			Int64("removed", removed).Msg("trimmed stale relationships")
	}
	return nil
}

// fanOut enqueues one create mutation per listed account. The anchor is
// skipped so "block the followers of X" never blocks X through a
// self-follow artifact. Staggered delays keep a large listing from
// landing on the remote API as a burst, and each target gets its own
// fudged expiry.
type fanOut struct {
	service  *Service
	userID   int64
	anchorID int64
	spec     FanOutSpec
}

func (f *fanOut) OnPage(ctx context.Context, ids []int64) error {
	for i, id := range ids {
		if id == f.anchorID {
			continue
		}
		p := MutatePayload{
			UserID: f.userID,
			Type:   f.spec.Type,
			Target: model.TargetSelector{ID: id},
		}
		if f.spec.Duration != nil {
			until := f.service.now().Add(fudgeDuration(*f.spec.Duration, config.DurationFudge))
			p.Until = &until
		}
		task, err := queue.NewTask(KindCreateRelationship, p, config.MaxMutationRetries)
		if err != nil {
			return err
		}
		delay := time.Second + time.Duration(i)*180*time.Millisecond
		if err := f.service.scheduler.Enqueue(ctx, task, delay); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueSync starts a listing walk for the user over the given account,
// optionally fanning a mutation out over the listed accounts.
func (s *Service) EnqueueSync(ctx context.Context, userID int64, listing Listing, accountID int64, fanOut *FanOutSpec) error {
	p := SyncPayload{
		UserID:         userID,
		Listing:        listing,
		AccountID:      accountID,
		StartedAt:      s.now(),
		Cursor:         InitialCursor,
		PagesRemaining: config.DefaultPageBudget,
		FanOut:         fanOut,
	}
	task, err := queue.NewTask(KindListingSync, p, 0)
	if err != nil {
		return err
	}
	return s.scheduler.Enqueue(ctx, task, 0)
}
