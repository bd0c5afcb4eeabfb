package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/omopexport/internal/platform/omop"
)

var (
	ErrInvalidTrigger = errors.New("invalid export trigger")
	ErrJobNotFailed   = errors.New("export job is not failed")
)

// Repositories bundles the stores the service reads and writes.
type Repositories struct {
	Sources    SourceRepository
	Cohort     CohortRepository
	Watermarks WatermarkRepository
	Jobs       JobRepository
	Tx         Transactor
	Lock       RunLock
	Clock      Clock
}

type ServiceOption func(*Service)

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClock replaces time.Now. It stamps completion, and run start when the
// repositories carry no Clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// Service orchestrates export runs: cohort selection, extraction, mapping,
// publication and the final high-water-mark commit.
type Service struct {
	sources    SourceRepository
	cohort     *CohortSelector
	watermarks WatermarkRepository
	jobs       JobRepository
	tx         Transactor
	lock       RunLock
	clock      Clock
	queue      Queue
	publisher  *Publisher
	concepts   *omop.ConceptResolver
	logger     zerolog.Logger
	metrics    Metrics
	now        func() time.Time
}

func NewService(repos Repositories, queue Queue, publisher *Publisher, concepts *omop.ConceptResolver, opts ...ServiceOption) *Service {
	s := &Service{
		sources:    repos.Sources,
		watermarks: repos.Watermarks,
		jobs:       repos.Jobs,
		tx:         repos.Tx,
		lock:       repos.Lock,
		clock:      repos.Clock,
		queue:      queue,
		publisher:  publisher,
		concepts:   concepts,
		logger:     zerolog.Nop(),
		metrics:    nopMetrics{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lock == nil {
		s.lock = NewLocalRunLock()
	}
	s.logger = s.logger.With().Str("component", "export").Logger()
	s.cohort = NewCohortSelector(repos.Cohort, s.logger)
	return s
}

// -- Jobs --

// Submit records a pending job for the trigger and hands it to the queue.
// A zero run id is replaced with a fresh one.
func (s *Service) Submit(ctx context.Context, t Trigger) (*Job, error) {
	if !t.TriggeredBy.Valid() {
		return nil, fmt.Errorf("%w: triggered_by must be nightly or manual", ErrInvalidTrigger)
	}
	if t.ExportRunID == uuid.Nil {
		t.ExportRunID = uuid.New()
	}
	job := &Job{
		ID:           t.ExportRunID,
		Status:       StatusPending,
		TriggeredBy:  t.TriggeredBy,
		FullRefresh:  t.FullRefresh,
		RecordCounts: map[string]int{},
		FileURLs:     map[string]string{},
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.queue.Submit(ctx, job.Trigger()); err != nil {
		msg := "enqueue: " + err.Error()
		if mErr := s.jobs.MarkFailed(context.WithoutCancel(ctx), job.ID, msg, s.now().UTC()); mErr != nil {
			s.logger.Error().Err(mErr).Str("export_run_id", job.ID.String()).Msg("failed to mark unqueued job")
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	s.logger.Info().
		Str("export_run_id", job.ID.String()).
		Str("triggered_by", string(job.TriggeredBy)).
		Bool("full_refresh", job.FullRefresh).
		Msg("export job queued")
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, limit, offset int) ([]*Job, int, error) {
	return s.jobs.List(ctx, limit, offset)
}

// Watermarks returns the committed marks, or the epoch floor for every
// entity when nothing has been committed.
func (s *Service) Watermarks(ctx context.Context) (HighWaterMarks, error) {
	marks, ok, err := s.watermarks.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return FloorMarks(), nil
	}
	return marks, nil
}

// PruneArtifacts removes files left behind by a failed run.
func (s *Service) PruneArtifacts(ctx context.Context, id uuid.UUID) (int, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if job.Status != StatusFailed {
		return 0, fmt.Errorf("%w: %s is %s", ErrJobNotFailed, id, job.Status)
	}
	n, err := s.publisher.Prune(ctx, id)
	if err != nil {
		return n, err
	}
	s.logger.Info().Str("export_run_id", id.String()).Int("removed", n).Msg("pruned artifacts of failed run")
	return n, nil
}

// -- Run --

// runResult carries what commit records. advance is false when the cohort was
// empty and the marks stay put.
type runResult struct {
	counts  map[string]int
	urls    map[string]string
	advance bool
}

// Run executes the job named by the trigger. The job must be pending and no
// other run may be in progress; ErrExportBusy leaves the job pending. On any
// failure before the commit the job is marked failed and the high-water marks
// are left untouched; the returned job reflects the final state.
func (s *Service) Run(ctx context.Context, t Trigger) (*Job, error) {
	job, err := s.jobs.GetByID(ctx, t.ExportRunID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusPending {
		return job, fmt.Errorf("%w: %s is %s", ErrJobNotPending, job.ID, job.Status)
	}

	release, ok, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return job, fmt.Errorf("run lock: %w", err)
	}
	if !ok {
		return job, fmt.Errorf("%w: %s stays pending", ErrExportBusy, job.ID)
	}
	defer release()

	runStart, err := s.startInstant(ctx)
	if err != nil {
		return job, err
	}
	if err := s.jobs.MarkProcessing(ctx, job.ID, runStart); err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	job.Status = StatusProcessing
	job.StartedAt = &runStart

	log := s.logger.With().
		Str("export_run_id", job.ID.String()).
		Str("triggered_by", string(job.TriggeredBy)).
		Bool("full_refresh", job.FullRefresh).
		Logger()
	log.Info().Time("run_start", runStart).Msg("export run started")

	res, err := s.execute(ctx, job, runStart, log)
	if err != nil {
		return s.fail(ctx, job, runStart, err, log)
	}
	if err := s.commit(ctx, job, res, runStart); err != nil {
		return s.fail(ctx, job, runStart, fmt.Errorf("commit: %w", err), log)
	}

	for table, n := range res.counts {
		s.metrics.RowsExported(table, n)
	}
	if res.advance {
		for _, e := range entityTypes {
			s.metrics.WatermarkCommitted(string(e), runStart)
		}
	}
	elapsed := job.CompletedAt.Sub(runStart)
	s.metrics.RunFinished(string(job.TriggeredBy), string(StatusCompleted), elapsed)
	log.Info().
		Int("files", len(res.urls)).
		Dur("elapsed", elapsed).
		Msg("export run completed")
	return job, nil
}

// startInstant is the upper bound of every extraction window in the run.
func (s *Service) startInstant(ctx context.Context) (time.Time, error) {
	if s.clock == nil {
		return s.now().UTC().Truncate(time.Microsecond), nil
	}
	at, err := s.clock.Now(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return at.UTC().Truncate(time.Microsecond), nil
}

func (s *Service) execute(ctx context.Context, job *Job, runStart time.Time, log zerolog.Logger) (*runResult, error) {
	if _, err := s.cohort.EnsurePersonIDs(ctx); err != nil {
		return nil, err
	}

	marks := FloorMarks()
	if !job.FullRefresh {
		stored, ok, err := s.watermarks.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("read high-water marks: %w", err)
		}
		if ok {
			marks = stored
		}
	}

	cohort, err := s.cohort.Select(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.CohortSelected(cohort.Len())
	if cohort.Len() == 0 {
		log.Info().Msg("no eligible patients, completing without advancing marks")
		return &runResult{counts: omop.NewAccumulator().Counts(), urls: map[string]string{}}, nil
	}

	x := newExtraction(s.sources, s.concepts, cohort, marks, runStart, log)
	if err := x.run(ctx); err != nil {
		return nil, err
	}
	scanned := x.Scanned()
	ev := log.Info().Int("patients", cohort.Len())
	for _, e := range entityTypes {
		ev = ev.Int(string(e), scanned[e])
	}
	ev.Msg("extraction finished")

	urls := make(map[string]string)
	for _, table := range x.acc.Tables() {
		data, _ := x.acc.Bytes(table)
		url, err := s.publisher.Publish(ctx, job.ID, table, data)
		if err != nil {
			return nil, fmt.Errorf("publish %s: %w", table, err)
		}
		urls[string(table)] = url
		s.metrics.ArtifactUploaded(string(table), len(data))
		log.Debug().Str("table", string(table)).Int("rows", x.acc.Count(table)).Msg("table published")
	}
	return &runResult{counts: x.acc.Counts(), urls: urls, advance: true}, nil
}

// commit completes the job and, unless the cohort was empty, advances every
// mark to runStart in the same transaction.
func (s *Service) commit(ctx context.Context, job *Job, res *runResult, runStart time.Time) error {
	completedAt := s.now().UTC().Truncate(time.Microsecond)
	done := *job
	done.Status = StatusCompleted
	done.RecordCounts = res.counts
	done.FileURLs = res.urls
	done.ErrorMessage = nil
	done.CompletedAt = &completedAt

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if res.advance {
			if err := s.watermarks.Save(ctx, StampedMarks(runStart)); err != nil {
				return fmt.Errorf("save high-water marks: %w", err)
			}
		}
		return s.jobs.MarkCompleted(ctx, &done)
	})
	if err != nil {
		return err
	}
	*job = done
	return nil
}

func (s *Service) fail(ctx context.Context, job *Job, runStart time.Time, cause error, log zerolog.Logger) (*Job, error) {
	at := s.now().UTC().Truncate(time.Microsecond)
	msg := cause.Error()
	job.Status = StatusFailed
	job.ErrorMessage = &msg
	job.CompletedAt = &at

	log.Error().Err(cause).Msg("export run failed")
	s.metrics.RunFinished(string(job.TriggeredBy), string(StatusFailed), at.Sub(runStart))

	if err := s.jobs.MarkFailed(context.WithoutCancel(ctx), job.ID, msg, at); err != nil {
		log.Error().Err(err).Msg("failed to record job failure")
		return job, errors.Join(cause, fmt.Errorf("mark failed: %w", err))
	}
	return job, cause
}
