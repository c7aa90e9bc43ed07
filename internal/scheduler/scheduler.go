// Package scheduler runs the periodic background work of the API: daily
// report generation, night-shift reminders and export cleanup.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/service"
)

const (
	JobDailyReports  = "daily_reports"
	JobShiftReminder = "shift_reminders"
	JobExportCleanup = "export_cleanup"
)

type courseLister interface {
	ListByStatus(ctx context.Context, status models.CourseStatus) ([]models.Course, error)
}

type reportGenerator interface {
	GenerateDaily(ctx context.Context, actor service.Actor, courseID string, date models.Date) (*dto.GenerateReportsResult, error)
}

type reminderSender interface {
	SendReminders(ctx context.Context, date models.Date) (int, error)
}

type exportCleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

type runRecorder interface {
	RecordJobRun(job string, err error)
}

// Config holds cron specs; an empty spec disables that job.
type Config struct {
	DailyReportsSpec   string
	ShiftRemindersSpec string
	ExportCleanupSpec  string
	Location           *time.Location
	Timeout            time.Duration
}

// Deps are the services driven by the scheduled jobs. Nil members disable
// their job.
type Deps struct {
	Courses   courseLister
	Reports   reportGenerator
	Reminders reminderSender
	Exports   exportCleaner
}

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron    *cron.Cron
	deps    Deps
	metrics runRecorder
	logger  *zap.Logger
	loc     *time.Location
	timeout time.Duration
	now     func() time.Time
}

var systemActor = service.Actor{ID: "", Role: models.RoleAdmin, IP: "scheduler"}

// New registers the configured jobs without starting them.
func New(cfg Config, deps Deps, metrics runRecorder, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	clog := cronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		deps:    deps,
		metrics: metrics,
		logger:  logger,
		loc:     cfg.Location,
		timeout: cfg.Timeout,
		now:     time.Now,
	}

	jobs := []struct {
		name    string
		spec    string
		enabled bool
		fn      func(context.Context) error
	}{
		{JobDailyReports, cfg.DailyReportsSpec, deps.Courses != nil && deps.Reports != nil, s.RunDailyReports},
		{JobShiftReminder, cfg.ShiftRemindersSpec, deps.Reminders != nil, s.RunShiftReminders},
		{JobExportCleanup, cfg.ExportCleanupSpec, deps.Exports != nil, s.RunExportCleanup},
	}
	for _, job := range jobs {
		if job.spec == "" || !job.enabled {
			continue
		}
		name, fn := job.name, job.fn
		if _, err := s.cron.AddFunc(job.spec, func() { s.run(name, fn) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", name, job.spec, err)
		}
		logger.Info("scheduled job", zap.String("job", name), zap.String("spec", job.spec))
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("scheduled job started", zap.String("job", name))
	err := s.safely(ctx, fn)
	if s.metrics != nil {
		s.metrics.RecordJobRun(name, err)
	}
	if err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Info("scheduled job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}

func (s *Scheduler) safely(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) today() models.Date {
	return models.NewDate(s.now().In(s.loc))
}

// RunDailyReports creates today's reports for every course in progress.
// A failing course is logged and the remaining courses still run.
func (s *Scheduler) RunDailyReports(ctx context.Context) error {
	courses, err := s.deps.Courses.ListByStatus(ctx, models.CourseStatusInProgress)
	if err != nil {
		return fmt.Errorf("list courses in progress: %w", err)
	}
	date := s.today()
	var failed int
	for _, course := range courses {
		result, err := s.deps.Reports.GenerateDaily(ctx, systemActor, course.ID, date)
		if err != nil {
			failed++
			s.logger.Warn("daily report generation failed", zap.String("course_id", course.ID), zap.Error(err))
			continue
		}
		s.logger.Info("daily reports generated",
			zap.String("course_id", course.ID),
			zap.String("date", date.String()),
			zap.Int("created", len(result.Created)),
			zap.Int("skipped", result.Skipped),
		)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d courses failed", failed, len(courses))
	}
	return nil
}

// RunShiftReminders notifies everyone assigned to tonight's shifts.
func (s *Scheduler) RunShiftReminders(ctx context.Context) error {
	sent, err := s.deps.Reminders.SendReminders(ctx, s.today())
	if err != nil {
		return err
	}
	s.logger.Info("shift reminders sent", zap.Int("count", sent))
	return nil
}

// RunExportCleanup removes expired export results.
func (s *Scheduler) RunExportCleanup(ctx context.Context) error {
	removed, err := s.deps.Exports.Cleanup(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", removed))
	}
	return nil
}

// cronLogger adapts zap to cron's logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
