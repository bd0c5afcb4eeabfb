package export

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is how long an idle worker waits between claims.
const DefaultPollInterval = 5 * time.Second

// Runner executes one claimed trigger.
type Runner interface {
	Run(ctx context.Context, t Trigger) (*Job, error)
}

// Worker polls the queue from a single goroutine, so at most one run is in
// progress per worker.
type Worker struct {
	queue    Queue
	runner   Runner
	interval time.Duration
	logger   zerolog.Logger
	metrics  Metrics
}

func NewWorker(queue Queue, runner Runner, interval time.Duration, logger zerolog.Logger, metrics Metrics) *Worker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Worker{
		queue:    queue,
		runner:   runner,
		interval: interval,
		logger:   logger.With().Str("component", "export-worker").Logger(),
		metrics:  metrics,
	}
}

// RunOnce claims and runs at most one trigger. It reports whether a trigger
// was run. Run failures are recorded on the job and logged; only queue errors
// are returned. The trigger is acknowledged whatever the outcome, except when
// another run is in progress: then it goes back to the queue untouched and
// RunOnce reports false so the caller backs off.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	t, err := w.queue.Claim(ctx)
	if err != nil {
		w.metrics.QueuePolled("error")
		return false, err
	}
	if t == nil {
		w.metrics.QueuePolled("empty")
		return false, nil
	}
	w.metrics.QueuePolled("claimed")

	log := w.logger.With().Str("export_run_id", t.ExportRunID.String()).Logger()
	job, runErr := w.runner.Run(ctx, *t)
	if errors.Is(runErr, ErrExportBusy) {
		w.metrics.QueuePolled("busy")
		log.Info().Msg("another export run is in progress, returning trigger")
		if err := w.queue.Nack(context.WithoutCancel(ctx), t.ExportRunID); err != nil {
			return false, err
		}
		return false, nil
	}
	switch {
	case errors.Is(runErr, ErrJobNotPending):
		log.Warn().Err(runErr).Msg("skipping redelivered trigger")
	case errors.Is(runErr, ErrJobNotFound):
		log.Warn().Msg("skipping trigger for unknown job")
	case runErr != nil:
		ev := log.Error().Err(runErr)
		if job != nil {
			ev = ev.Str("status", string(job.Status))
		}
		ev.Msg("export run did not complete")
	default:
		log.Info().Str("status", string(job.Status)).Msg("export run finished")
	}

	if err := w.queue.Ack(context.WithoutCancel(ctx), t.ExportRunID); err != nil {
		return true, err
	}
	return true, nil
}

// Start polls until ctx is cancelled. After a claimed trigger it polls again
// immediately; after an empty poll or a queue error it waits one interval.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.interval).Msg("export worker started")
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("export worker stopped")
			return nil
		case <-timer.C:
		}

		claimed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("queue poll failed")
		}
		next := w.interval
		if claimed && err == nil {
			next = 0
		}
		timer.Reset(next)
	}
}
