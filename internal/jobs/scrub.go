package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/graphwarden/warden-server-go/internal/repository"
)

// ScrubJob clears the stored remote credentials of users who have been
// idle longer than the threshold and have nothing scheduled.
type ScrubJob struct {
	users     repository.UserRepository
	interval  time.Duration
	idleAfter time.Duration
	done      chan struct{}
}

func NewScrubJob(users repository.UserRepository, interval, idleAfter time.Duration) *ScrubJob {
	return &ScrubJob{
		users:     users,
		interval:  interval,
		idleAfter: idleAfter,
		done:      make(chan struct{}),
	}
}

func (j *ScrubJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("credential scrub started")
}

func (j *ScrubJob) Stop() {
	close(j.done)
	log.Info().Msg("credential scrub stopped")
}

func (j *ScrubJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.scrub()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.scrub()
		}
	}
}

func (j *ScrubJob) scrub() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	threshold := time.Now().Add(-j.idleAfter)
	count, err := j.users.ScrubStaleCredentials(ctx, threshold)
	if err != nil {
		log.Error().Err(err).Msg("credential scrub failed")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("scrubbed stale credentials")
	}
}
