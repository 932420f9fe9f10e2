// Package importer runs recipe URL imports as asynchronous jobs. A job is
// created pending, claimed by the worker, sent to the extractor, and finished
// as completed with the extracted recipe or failed with a message.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/cache"
	"github.com/kiranshivaraju/recipebox/internal/logging"
	"github.com/kiranshivaraju/recipebox/internal/metrics"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/pkg/models"
	"golang.org/x/time/rate"
)

// ErrURLRequired is returned when an import is requested without a URL.
var ErrURLRequired = errors.New("url is required")

const (
	DefaultQueueSize = 100
	DefaultRetention = 7 * 24 * time.Hour

	statusTTL           = 30 * time.Minute
	overflowLogInterval = 10 * time.Second
)

// Extractor turns a recipe page URL into structured recipe data.
type Extractor interface {
	ImportRecipe(ctx context.Context, url string) (*models.ImportedRecipe, error)
}

// Service owns the import job lifecycle.
type Service struct {
	store     store.ImportJobStore
	cache     cache.Cache
	extractor Extractor
	queue     chan uuid.UUID
	retention time.Duration
	logger    *slog.Logger

	// overflowLog throttles the queue-full warning while a burst lasts.
	overflowLog rate.Sometimes
}

type Option func(*Service)

// WithQueueSize sets how many job ids may wait for the worker.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queue = make(chan uuid.UUID, n)
		}
	}
}

// WithRetention sets the age after which CleanupOldImportJobs removes jobs.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service. Call Serve to start the worker that drains
// jobs queued by StartImport.
func NewService(st store.ImportJobStore, ca cache.Cache, ex Extractor, opts ...Option) *Service {
	s := &Service{
		store:       st,
		cache:       ca,
		extractor:   ex,
		queue:       make(chan uuid.UUID, DefaultQueueSize),
		retention:   DefaultRetention,
		logger:      slog.Default(),
		overflowLog: rate.Sometimes{First: 1, Interval: overflowLogInterval},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "importer")
	return s
}

// CreateImportJob inserts a pending job for url. Only presence of the URL is
// checked; a bad URL surfaces later as a failed job.
func (s *Service) CreateImportJob(ctx context.Context, userID uuid.UUID, url string) (*models.ImportJob, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrURLRequired
	}

	now := time.Now().UTC()
	job := &models.ImportJob{
		ID:        uuid.New(),
		UserID:    userID,
		URL:       url,
		Status:    models.ImportStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating import job: %w", err)
	}

	metrics.ImportJobsTotal.WithLabelValues(models.ImportStatusPending).Inc()
	s.mirror(ctx, job.ID, models.ImportStatusPending)
	return job, nil
}

// StartImport creates a job and hands it to the worker without waiting for
// the extraction. When the queue is full the job runs on its own goroutine.
func (s *Service) StartImport(ctx context.Context, userID uuid.UUID, url string) (*models.ImportJob, error) {
	job, err := s.CreateImportJob(ctx, userID, url)
	if err != nil {
		return nil, err
	}

	// Count the job before the send so the worker's Dec never runs first.
	metrics.ImportQueueDepth.Inc()
	select {
	case s.queue <- job.ID:
	default:
		metrics.ImportQueueDepth.Dec()
		metrics.ImportQueueOverflowTotal.Inc()
		s.overflowLog.Do(func() {
			s.logger.Warn("import queue full, processing jobs directly", "job_id", job.ID)
		})
		go s.ProcessImportJob(context.WithoutCancel(ctx), job.ID)
	}

	return job, nil
}

// Serve drains the queue one job at a time until ctx is cancelled. A job in
// flight at shutdown is allowed to reach its terminal state.
func (s *Service) Serve(ctx context.Context) error {
	s.logger.Info("import worker started", "queue_capacity", cap(s.queue))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("import worker stopped", "queued", len(s.queue))
			return ctx.Err()
		case id := <-s.queue:
			metrics.ImportQueueDepth.Dec()
			s.ProcessImportJob(context.WithoutCancel(ctx), id)
		}
	}
}

// ProcessImportJob runs one job to a terminal state. It never returns an
// error: every failure, panics included, is recorded on the job row.
func (s *Service) ProcessImportJob(ctx context.Context, jobID uuid.UUID) {
	log := s.logger.With("job_id", jobID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic processing import job", "panic", r)
			s.fail(ctx, log, jobID, fmt.Sprintf("import failed: %v", r))
		}
	}()

	job, err := s.store.GetImportJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("import job not found")
		return
	}
	if err != nil {
		log.Error("loading import job", logging.Err(err))
		return
	}

	// Claim. Only one caller can move the job out of pending.
	if err := s.store.UpdateImportJobStatus(ctx, jobID, models.ImportStatusProcessing); err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidTransition):
			log.Info("import job already claimed", "status", job.Status)
		case errors.Is(err, store.ErrNotFound):
			log.Info("import job deleted before processing")
		default:
			log.Error("claiming import job", logging.Err(err))
		}
		return
	}
	metrics.ImportJobsTotal.WithLabelValues(models.ImportStatusProcessing).Inc()
	s.mirror(ctx, jobID, models.ImportStatusProcessing)

	recipe, err := s.extractor.ImportRecipe(ctx, job.URL)
	if err != nil {
		log.Warn("import extraction failed", "url", job.URL, logging.Err(err))
		s.fail(ctx, log, jobID, err.Error())
		metrics.ImportJobDuration.Observe(time.Since(start).Seconds())
		return
	}

	err = s.store.UpdateImportJobStatus(ctx, jobID, models.ImportStatusCompleted, store.WithResult(recipe))
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info("import job deleted while processing")
		return
	case err != nil:
		log.Error("storing import result", logging.Err(err))
		s.fail(ctx, log, jobID, fmt.Sprintf("storing result: %v", err))
		return
	}

	metrics.ImportJobsTotal.WithLabelValues(models.ImportStatusCompleted).Inc()
	metrics.ImportJobDuration.Observe(time.Since(start).Seconds())
	s.mirror(ctx, jobID, models.ImportStatusCompleted)
	log.Info("import job completed", "title", recipe.Title, "duration", time.Since(start))
}

func (s *Service) fail(ctx context.Context, log *slog.Logger, jobID uuid.UUID, msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	err := s.store.UpdateImportJobStatus(ctx, jobID, models.ImportStatusFailed, store.WithErrorMessage(msg))
	if errors.Is(err, store.ErrNotFound) {
		log.Info("import job deleted while processing")
		return
	}
	if err != nil {
		log.Error("marking import job failed", logging.Err(err))
		return
	}
	metrics.ImportJobsTotal.WithLabelValues(models.ImportStatusFailed).Inc()
	s.mirror(ctx, jobID, models.ImportStatusFailed)
}

// mirror copies a status into the cache. Postgres stays the source of truth.
func (s *Service) mirror(ctx context.Context, jobID uuid.UUID, status string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetImportStatus(ctx, jobID, status, statusTTL); err != nil {
		s.logger.Debug("caching import status", "job_id", jobID, logging.Err(err))
	}
}

func (s *Service) GetImportJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	return s.store.GetImportJob(ctx, id)
}

// GetUserImportJobs returns the user's jobs, newest first.
func (s *Service) GetUserImportJobs(ctx context.Context, userID uuid.UUID) ([]*models.ImportJob, error) {
	return s.store.ListImportJobsByUser(ctx, userID)
}

func (s *Service) DeleteImportJob(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteImportJob(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.ImportStatusKey(id)); err != nil {
			s.logger.Debug("removing cached import status", "job_id", id, logging.Err(err))
		}
	}
	return nil
}

// CleanupOldImportJobs deletes jobs created before now minus the retention
// window and returns how many were removed.
func (s *Service) CleanupOldImportJobs(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.retention)
	n, err := s.store.DeleteImportJobsCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up import jobs: %w", err)
	}
	metrics.ImportJobsCleanedTotal.Add(float64(n))
	s.logger.Info("old import jobs removed", "count", n, "cutoff", cutoff)
	return n, nil
}
