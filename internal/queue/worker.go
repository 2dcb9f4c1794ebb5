package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner executes one kind of task. Returning a RetryError re-enqueues the
// envelope with its retry count bumped; any other error is fatal for the
// task and it is dropped.
type Runner func(ctx context.Context, task Task) error

// Popper is the consuming half of the transport.
type Popper interface {
	Scheduler
	Pop(ctx context.Context) (*Task, error)
}

// Worker polls the queue and dispatches due tasks to registered runners.
type Worker struct {
	queue        Popper
	runners      map[string]Runner
	abandon      func(ctx context.Context, task Task, cause error)
	concurrency  int
	pollInterval time.Duration
	done         chan struct{}
	wg           sync.WaitGroup
}

func NewWorker(queue Popper, concurrency int, pollInterval time.Duration) *Worker {
	return &Worker{
		queue:        queue,
		runners:      make(map[string]Runner),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		done:         make(chan struct{}),
	}
}

// Register binds a task kind to its runner. Not safe after Start.
func (w *Worker) Register(kind string, runner Runner) {
	w.runners[kind] = runner
}

// OnAbandon installs a hook that runs when a task exhausts its retries.
// Not safe after Start.
func (w *Worker) OnAbandon(fn func(ctx context.Context, task Task, cause error)) {
	w.abandon = fn
}

func (w *Worker) Start() {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.loop()
	}
	log.Info().Int("concurrency", w.concurrency).Msg("queue workers started")
}

func (w *Worker) Stop() {
	close(w.done)
	w.wg.Wait()
	log.Info().Msg("queue workers stopped")
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		default:
		}

		ctx := context.Background()
		task, err := w.queue.Pop(ctx)
		if err != nil {
			log.Error().Err(err).Msg("queue pop failed")
			w.idle()
			continue
		}
		if task == nil {
			w.idle()
			continue
		}
		w.dispatch(ctx, *task)
	}
}

func (w *Worker) idle() {
	select {
	case <-w.done:
	case <-time.After(w.pollInterval):
	}
}

// Dispatch runs one envelope through its runner and applies the retry
// policy. Exported for tests and for inline execution.
func (w *Worker) Dispatch(ctx context.Context, task Task) {
	w.dispatch(ctx, task)
}

func (w *Worker) dispatch(ctx context.Context, task Task) {
	runner, ok := w.runners[task.Kind]
	if !ok {
		log.Error().Str("kind", task.Kind).Str("id", task.ID).Msg("no runner for task kind, dropping")
		return
	}

	err := runner(ctx, task)
	if err == nil {
		return
	}

	if retryErr, ok := AsRetry(err); ok {
		if task.Retries >= task.MaxRetries {
			log.Error().
				Str("kind", task.Kind).
				Str("id", task.ID).
				Int("retries", task.Retries).
				Err(retryErr.Cause).
				Msg("task retries exhausted, abandoning")
			if w.abandon != nil {
				w.abandon(ctx, task, retryErr.Cause)
			}
			return
		}
		task.Retries++
		if enqErr := w.queue.Enqueue(ctx, task, retryErr.Delay); enqErr != nil {
			log.Error().Err(enqErr).Str("id", task.ID).Msg("failed to re-enqueue task")
		}
		return
	}

	log.Error().
		Str("kind", task.Kind).
		Str("id", task.ID).
		Err(err).
		Msg("task failed")
}
