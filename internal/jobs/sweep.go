// Package jobs holds the periodic background work: the expiry sweep that
// turns lapsed temporary blocks/mutes into destroy tasks, and the
// credential scrub for idle users.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper is what the sweep job needs from the task layer.
type Sweeper interface {
	SweepExpired(ctx context.Context) error
}

type SweepJob struct {
	sweeper  Sweeper
	interval time.Duration
	done     chan struct{}
}

func NewSweepJob(sweeper Sweeper, interval time.Duration) *SweepJob {
	return &SweepJob{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("expiry sweep started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("expiry sweep stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.sweeper.SweepExpired(ctx); err != nil {
		log.Error().Err(err).Msg("expiry sweep failed")
	}
}
