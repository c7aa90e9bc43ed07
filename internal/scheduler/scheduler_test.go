package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/service"
)

type coursesStub struct {
	courses []models.Course
	status  models.CourseStatus
}

func (c *coursesStub) ListByStatus(ctx context.Context, status models.CourseStatus) ([]models.Course, error) {
	c.status = status
	return c.courses, nil
}

type generatorStub struct {
	calls []string
	dates []models.Date
	fail  map[string]error
}

func (g *generatorStub) GenerateDaily(ctx context.Context, actor service.Actor, courseID string, date models.Date) (*dto.GenerateReportsResult, error) {
	g.calls = append(g.calls, courseID)
	g.dates = append(g.dates, date)
	if err := g.fail[courseID]; err != nil {
		return nil, err
	}
	return &dto.GenerateReportsResult{Date: date, Created: []models.Report{{ID: "r"}}}, nil
}

type remindersStub struct {
	date models.Date
}

func (r *remindersStub) SendReminders(ctx context.Context, date models.Date) (int, error) {
	r.date = date
	return 3, nil
}

type cleanerStub struct {
	calls int
	err   error
}

func (c *cleanerStub) Cleanup(ctx context.Context) (int, error) {
	c.calls++
	return 1, c.err
}

type recorderStub struct {
	runs map[string]error
}

func (r *recorderStub) RecordJobRun(job string, err error) {
	r.runs[job] = err
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := New(Config{ExportCleanupSpec: "every tuesday"}, Deps{Exports: &cleanerStub{}}, nil, nil)
	require.Error(t, err)
}

func TestNewSkipsJobsWithoutDependencies(t *testing.T) {
	s, err := New(Config{DailyReportsSpec: "0 5 * * *", ExportCleanupSpec: "@every 1h"}, Deps{Exports: &cleanerStub{}}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestRunDailyReportsContinuesPastFailures(t *testing.T) {
	courses := &coursesStub{courses: []models.Course{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}}}
	gen := &generatorStub{fail: map[string]error{"c2": errors.New("boom")}}
	jakarta := time.FixedZone("WIB", 7*3600)
	s, err := New(Config{Location: jakarta}, Deps{Courses: courses, Reports: gen}, nil, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 7, 10, 20, 0, 0, 0, time.UTC) }

	err = s.RunDailyReports(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.CourseStatusInProgress, courses.status)
	assert.Equal(t, []string{"c1", "c2", "c3"}, gen.calls)
	assert.Equal(t, "2026-07-11", gen.dates[0].String())
}

func TestRunRecordsOutcomeAndRecoversPanics(t *testing.T) {
	rec := &recorderStub{runs: map[string]error{}}
	cleaner := &cleanerStub{}
	s, err := New(Config{}, Deps{Exports: cleaner, Reminders: &remindersStub{}}, rec, nil)
	require.NoError(t, err)

	s.run(JobExportCleanup, s.RunExportCleanup)
	assert.Equal(t, 1, cleaner.calls)
	assert.Contains(t, rec.runs, JobExportCleanup)
	assert.NoError(t, rec.runs[JobExportCleanup])

	s.run("broken", func(ctx context.Context) error { panic("nil map") })
	assert.EqualError(t, rec.runs["broken"], "panic: nil map")
}

func TestRunShiftRemindersUsesToday(t *testing.T) {
	reminders := &remindersStub{}
	s, err := New(Config{Location: time.UTC}, Deps{Reminders: reminders}, nil, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 7, 10, 17, 0, 0, 0, time.UTC) }

	require.NoError(t, s.RunShiftReminders(context.Background()))
	assert.Equal(t, "2026-07-10", reminders.date.String())
}
