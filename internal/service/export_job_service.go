package service

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/repository"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/export"
	"github.com/noah-isme/sccms-api/pkg/jobs"
	"github.com/noah-isme/sccms-api/pkg/validation"
)

// ExportJobType is the queue job type of asynchronous exports.
const ExportJobType = "export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
	Delete(ctx context.Context, id string) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

// ExportJobConfig governs retries and result retention.
type ExportJobConfig struct {
	ResultTTL  time.Duration
	MaxRetries int
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportJobService orchestrates the lifecycle of asynchronous exports.
type ExportJobService struct {
	repo      exportJobStore
	courses   courseReader
	queue     jobDispatcher
	exporter  *ExportService
	validator *validation.Validator
	logger    *zap.Logger
	cfg       ExportJobConfig
	now       func() time.Time
}

// NewExportJobService constructs the export job service.
func NewExportJobService(repo exportJobStore, courses courseReader, exporter *ExportService, validate *validation.Validator, logger *zap.Logger, cfg ExportJobConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ExportJobService{
		repo:      repo,
		courses:   courses,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       utcNow,
	}
}

// SetQueue wires the queue that runs export jobs.
func (s *ExportJobService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob validates the request, persists the job and enqueues it.
func (s *ExportJobService) CreateJob(ctx context.Context, actor Actor, req dto.ExportJobRequest) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if _, err := s.courses.GetByID(ctx, req.CourseID); err != nil {
		return nil, notFoundOr(err, "course")
	}

	job := &models.ExportJob{
		Type:      req.Type,
		CourseID:  req.CourseID,
		Format:    string(format),
		Params:    models.ExportParams{Kind: req.Kind, Status: req.Status},
		Status:    models.ExportStatusQueued,
		CreatedBy: actor.ID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.enqueue(job); err != nil {
		status := models.ExportStatusFailed
		msg := "failed to enqueue job"
		now := s.now()
		progress := 100
		if updateErr := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:     &status,
			Progress:   &progress,
			Error:      &msg,
			FinishedAt: &now,
		}); updateErr != nil {
			s.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", updateErr)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

func (s *ExportJobService) enqueue(job *models.ExportJob) error {
	if s.queue == nil {
		return appErrors.Clone(appErrors.ErrInternal, "export queue not configured")
	}
	return s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType})
}

// GetStatus exposes job metadata. Only administrators see jobs created by
// someone else.
func (s *ExportJobService) GetStatus(ctx context.Context, actor Actor, id string) (*dto.ExportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "export job")
	}
	if actor.Role != models.RoleAdmin && job.CreatedBy != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ExportStatusResponse{
		ID:       job.ID,
		Type:     job.Type,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.Status == models.ExportStatusFinished && job.ResultPath != nil {
		token, expiresAt, err := s.exporter.SignResult(job.ID, *job.ResultPath)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to sign export result")
		}
		if job.FinishedAt != nil {
			if retained := job.FinishedAt.Add(s.cfg.ResultTTL); retained.Before(expiresAt) {
				expiresAt = retained
			}
		}
		url := s.exporter.DownloadURL(token)
		expires := expiresAt.UTC().Format(time.RFC3339)
		resp.ResultURL = &url
		resp.ExpiresAt = &expires
	}
	if job.Error != nil && *job.Error != "" {
		resp.Error = job.Error
	}
	return resp, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	parsed, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, parsed.JobID)
	if err != nil {
		return nil, notFoundOr(err, "export job")
	}
	if job.ResultPath == nil || *job.ResultPath != parsed.Path {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.exporter.Open(parsed.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	format, _ := export.ParseFormat(job.Format)
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(parsed.Path),
		ContentType: format.ContentType(),
		ExpiresAt:   parsed.ExpiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs (e.g. after process restart).
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued export jobs", "error", err)
		return
	}
	for i := range pending {
		if err := s.enqueue(&pending[i]); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", pending[i].ID, "error", err)
		}
	}
}

// Cleanup removes expired results and their job rows, then sweeps stray
// files older than the retention.
func (s *ExportJobService) Cleanup(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	removed := 0
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			return removed, appErrors.Internal(err, "failed to list expired exports")
		}
		for _, job := range expired {
			if job.ResultPath != nil {
				if err := s.exporter.Delete(*job.ResultPath); err != nil {
					s.logger.Sugar().Warnw("cleanup delete failed", "job_id", job.ID, "error", err)
				}
			}
			if err := s.repo.Delete(ctx, job.ID); err != nil {
				return removed, appErrors.Internal(err, "failed to delete export job")
			}
			removed++
		}
		if len(expired) < 100 {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
	return removed, nil
}

// ExportWorker bridges queue jobs to ExportService.
type ExportWorker struct {
	repo       exportJobStore
	exporter   exportGenerator
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

// NewExportWorker constructs a worker. maxRetries must match the queue's
// retry count so the last attempt marks the job FAILED.
func NewExportWorker(repo exportJobStore, exporter exportGenerator, maxRetries int, metrics *MetricsService, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ExportWorker{
		repo:       repo,
		exporter:   exporter,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
		now:        utcNow,
	}
}

// Handle processes a queue job.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status == models.ExportStatusFinished || record.Status == models.ExportStatusFailed {
		return nil
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}
	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.ExportStatusFailed
			progress = 100
			now := w.now()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:     &failed,
				Progress:   &progress,
				Error:      &msg,
				FinishedAt: &now,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", updateErr)
			}
			w.metrics.RecordJobRun("export", err)
		} else {
			queued := models.ExportStatusQueued
			reset := 0
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:   &queued,
				Progress: &reset,
				Error:    &msg,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job queued", "job_id", job.ID, "error", updateErr)
			}
		}
		return err
	}
	finished := models.ExportStatusFinished
	progress = 100
	now := w.now()
	path := result.RelativePath
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:     &finished,
		Progress:   &progress,
		ResultPath: &path,
		Error:      &clear,
		FinishedAt: &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	w.metrics.RecordJobRun("export", nil)
	return nil
}
