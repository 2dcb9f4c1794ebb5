package tasks

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/graphwarden/warden-server-go/internal/config"
	apperrors "github.com/graphwarden/warden-server-go/internal/errors"
	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/queue"
)

// SweepExpired enqueues a destroy task for every block or mute whose
// scheduled expiry has passed. The sweep itself never touches an edge;
// removal goes through the destroy task so the remote call, the local
// delete and the audit entry happen together. Each task gets a random
// delay so a big batch of expirations spreads over the sweep window, and
// running two sweeps over the same edges only costs duplicate no-op
// destroys.
func (s *Service) SweepExpired(ctx context.Context) error {
	users, err := s.users.ListRemoteEnabled(ctx)
	if err != nil {
		return apperrors.Database(err)
	}

	now := s.now()
	var enqueued int
	for _, user := range users {
		if user.AccountID == nil {
			continue
		}
		expired, err := s.rels.FindExpired(ctx, *user.AccountID, now)
		if err != nil {
			return apperrors.Database(err)
		}
		for _, rel := range expired {
			p := MutatePayload{
				UserID: user.ID,
				Type:   rel.Type,
				Target: model.TargetSelector{ID: rel.ObjectID},
			}
			task, err := queue.NewTask(KindDestroyRelationship, p, config.MaxMutationRetries)
			if err != nil {
				return err
			}
			delay := time.Second + rand.N(config.SweepJitterMax)
			if err := s.scheduler.Enqueue(ctx, task, delay); err != nil {
				return err
			}
			enqueued++
		}
	}
	if enqueued > 0 {
		log.Info().Int("count", enqueued).Msg("scheduled removal of expired relationships")
	}
	return nil
}
