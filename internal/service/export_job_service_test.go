package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/repository"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/jobs"
)

type exportJobRepoStub struct {
	jobs      map[string]*models.ExportJob
	deleted   []string
	updateErr error
	seq       int
}

func newExportJobRepoStub() *exportJobRepoStub {
	return &exportJobRepoStub{jobs: map[string]*models.ExportJob{}}
}

func (s *exportJobRepoStub) Create(ctx context.Context, job *models.ExportJob) error {
	s.seq++
	job.ID = fmt.Sprintf("job-%d", s.seq)
	copy := *job
	s.jobs[job.ID] = &copy
	return nil
}

func (s *exportJobRepoStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *job
	return &copy, nil
}

func (s *exportJobRepoStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultPath != nil {
		job.ResultPath = params.ResultPath
	}
	if params.Error != nil {
		job.Error = params.Error
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (s *exportJobRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range s.jobs {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *exportJobRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range s.jobs {
		if job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *exportJobRepoStub) Delete(ctx context.Context, id string) error {
	delete(s.jobs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type failingGenerator struct {
	err error
}

func (g failingGenerator) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	return nil, g.err
}

type exportJobFixture struct {
	svc      *ExportJobService
	worker   *ExportWorker
	repo     *exportJobRepoStub
	queue    *queueStub
	exporter *ExportService
}

func newExportJobFixture(t *testing.T) *exportJobFixture {
	t.Helper()
	exporter, _ := newExportServiceForTest(t, &exportAppsStub{})
	f := &exportJobFixture{repo: newExportJobRepoStub(), queue: &queueStub{}, exporter: exporter}
	f.svc = NewExportJobService(f.repo, newCourseRepoStub(exportCourse()), exporter, nil, nil, ExportJobConfig{ResultTTL: time.Hour, MaxRetries: 2})
	f.svc.SetQueue(f.queue)
	f.worker = NewExportWorker(f.repo, exporter, 2, nil, nil)
	return f
}

func TestExportJobServiceCreateJob(t *testing.T) {
	f := newExportJobFixture(t)

	resp, err := f.svc.CreateJob(context.Background(), secretaryActor, dto.ExportJobRequest{Type: models.ExportTypeNightShifts, CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	assert.Equal(t, "xlsx", f.repo.jobs[resp.ID].Format)
	assert.Equal(t, "secretary-1", f.repo.jobs[resp.ID].CreatedBy)
	assert.Equal(t, []jobs.Job{{ID: resp.ID, Type: ExportJobType}}, f.queue.jobs)

	_, err = f.svc.CreateJob(context.Background(), secretaryActor, dto.ExportJobRequest{Type: "grades", CourseID: "course-1"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CreateJob(context.Background(), secretaryActor, dto.ExportJobRequest{Type: models.ExportTypeAttendance, CourseID: "missing"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportJobServiceCreateJobEnqueueFailure(t *testing.T) {
	f := newExportJobFixture(t)
	f.queue.err = errors.New("queue full")

	_, err := f.svc.CreateJob(context.Background(), adminActor, dto.ExportJobRequest{Type: models.ExportTypeAttendance, CourseID: "course-1", Format: "csv"})
	require.Error(t, err)
	job := f.repo.jobs["job-1"]
	assert.Equal(t, models.ExportStatusFailed, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.FinishedAt)
}

func TestExportJobServiceCreateJobLogsFailedStatusUpdate(t *testing.T) {
	f := newExportJobFixture(t)
	core, logs := observer.New(zap.WarnLevel)
	f.svc.logger = zap.New(core)
	f.queue.err = errors.New("queue full")
	f.repo.updateErr = errors.New("db down")

	_, err := f.svc.CreateJob(context.Background(), adminActor, dto.ExportJobRequest{Type: models.ExportTypeAttendance, CourseID: "course-1", Format: "csv"})
	require.Error(t, err)
	assert.Equal(t, "failed to enqueue export job", appErrors.FromError(err).Message)

	entries := logs.FilterMessage("failed to mark job failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "job-1", entries[0].ContextMap()["job_id"])
	assert.Equal(t, "db down", entries[0].ContextMap()["error"])
}

func TestExportWorkerHandleAndDownload(t *testing.T) {
	f := newExportJobFixture(t)
	resp, err := f.svc.CreateJob(context.Background(), secretaryActor, dto.ExportJobRequest{Type: models.ExportTypeNightShifts, CourseID: "course-1", Format: "csv"})
	require.NoError(t, err)

	require.NoError(t, f.worker.Handle(context.Background(), f.queue.jobs[0]))
	job := f.repo.jobs[resp.ID]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultPath)

	_, err = f.svc.GetStatus(context.Background(), Actor{ID: "secretary-2", Role: models.RoleSecretary}, resp.ID)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	status, err := f.svc.GetStatus(context.Background(), secretaryActor, resp.ID)
	require.NoError(t, err)
	require.NotNil(t, status.ResultURL)
	require.NotNil(t, status.ExpiresAt)
	token := strings.TrimPrefix(*status.ResultURL, "/api/v1/export/")

	download, err := f.svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))

	_, err = f.svc.ResolveDownload(context.Background(), token+"x")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	forged, _, err := f.exporter.SignResult(resp.ID, "job-9/other.csv")
	require.NoError(t, err)
	_, err = f.svc.ResolveDownload(context.Background(), forged)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportWorkerRetriesThenFails(t *testing.T) {
	f := newExportJobFixture(t)
	resp, err := f.svc.CreateJob(context.Background(), adminActor, dto.ExportJobRequest{Type: models.ExportTypeAttendance, CourseID: "course-1"})
	require.NoError(t, err)
	worker := NewExportWorker(f.repo, failingGenerator{err: errors.New("disk full")}, 2, nil, nil)

	err = worker.Handle(context.Background(), jobs.Job{ID: resp.ID, Type: ExportJobType, Attempt: 1})
	require.Error(t, err)
	job := f.repo.jobs[resp.ID]
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.Equal(t, "disk full", *job.Error)

	err = worker.Handle(context.Background(), jobs.Job{ID: resp.ID, Type: ExportJobType, Attempt: 2})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusFailed, f.repo.jobs[resp.ID].Status)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: resp.ID, Type: ExportJobType}))
}

func TestExportJobServiceRecoverAndCleanup(t *testing.T) {
	f := newExportJobFixture(t)
	old := time.Now().UTC().Add(-2 * time.Hour)
	recent := time.Now().UTC()
	path := "job-a/old.csv"
	f.repo.jobs["job-a"] = &models.ExportJob{ID: "job-a", Status: models.ExportStatusFinished, FinishedAt: &old, ResultPath: &path}
	f.repo.jobs["job-b"] = &models.ExportJob{ID: "job-b", Status: models.ExportStatusFinished, FinishedAt: &recent}
	f.repo.jobs["job-c"] = &models.ExportJob{ID: "job-c", Status: models.ExportStatusQueued}

	f.svc.RecoverPendingJobs(context.Background())
	assert.Equal(t, []jobs.Job{{ID: "job-c", Type: ExportJobType}}, f.queue.jobs)

	removed, err := f.svc.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"job-a"}, f.repo.deleted)
	assert.Contains(t, f.repo.jobs, "job-b")
}
