package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/workflow"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/validation"
)

type reportRepository interface {
	CreateIfAbsent(ctx context.Context, report *models.Report) (bool, error)
	FindExisting(ctx context.Context, report *models.Report) (*models.Report, error)
	GetByID(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error)
	SaveContent(ctx context.Context, id, summary string, entries []models.ReportEntry, actorID string) error
	UpdateStatus(ctx context.Context, id string, t models.ReportTransition) error
}

type groupLister interface {
	GetByID(ctx context.Context, id string) (*models.StudentGroup, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error)
}

type shiftLister interface {
	GetByID(ctx context.Context, id string) (*models.NightShift, error)
	List(ctx context.Context, filter models.NightShiftFilter) ([]models.NightShift, error)
}

// ReportConfig holds the deadline rules of reports.
type ReportConfig struct {
	// DueGrace is added to the end of the report date to form due_at.
	DueGrace time.Duration
	Location *time.Location
}

// ReportService runs the attendance and night-shift report workflow.
type ReportService struct {
	repo      reportRepository
	courses   courseReader
	groups    groupLister
	members   applicantLister
	shifts    shiftLister
	notifier  notifier
	cache     courseCache
	recorder  recorder
	validator *validation.Validator
	logger    *zap.Logger
	cfg       ReportConfig
	now       func() time.Time
}

// NewReportService constructs a ReportService.
func NewReportService(repo reportRepository, courses courseReader, groups groupLister, members applicantLister, shifts shiftLister, notifier notifier, cache courseCache, audit auditWriter, metrics *MetricsService, validate *validation.Validator, logger *zap.Logger, cfg ReportConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ReportService{
		repo:      repo,
		courses:   courses,
		groups:    groups,
		members:   members,
		shifts:    shifts,
		notifier:  notifier,
		cache:     cache,
		recorder:  newRecorder(audit, metrics, logger),
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       utcNow,
	}
}

// List returns reports matching filter.
func (s *ReportService) List(ctx context.Context, filter models.ReportFilter) ([]models.Report, *models.Pagination, error) {
	reports, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list reports")
	}
	return reports, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a report with its entries.
func (s *ReportService) Get(ctx context.Context, id string) (*models.Report, error) {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "report")
	}
	return report, nil
}

// Create files a report for a group and date or for a night shift. When the
// slot is already taken the existing report is returned and created is false.
func (s *ReportService) Create(ctx context.Context, actor Actor, req dto.CreateReportRequest) (report *models.Report, created bool, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, err
	}
	course, err := s.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, false, notFoundOr(err, "course")
	}
	if !course.Editable() {
		return nil, false, appErrors.Clone(appErrors.ErrConflict, "course is "+string(course.Status))
	}

	report = &models.Report{
		CourseID:   course.ID,
		Type:       req.Type,
		ReportDate: req.ReportDate,
		Status:     models.ReportStatusNotYet,
	}
	switch req.Type {
	case models.ReportTypeAttendance:
		if req.GroupID == nil || *req.GroupID == "" {
			return nil, false, invalidPayload("group_id is required for attendance reports")
		}
		if req.ReportDate.IsZero() {
			return nil, false, invalidPayload("report_date is a required field")
		}
		group, err := s.groups.GetByID(ctx, *req.GroupID)
		if err != nil {
			return nil, false, notFoundOr(err, "group")
		}
		if group.CourseID != course.ID {
			return nil, false, appErrors.Clone(appErrors.ErrConflict, "group belongs to another course")
		}
		report.GroupID = &group.ID
	case models.ReportTypeNightShift:
		if req.NightShiftID == nil || *req.NightShiftID == "" {
			return nil, false, invalidPayload("night_shift_id is required for night-shift reports")
		}
		shift, err := s.shifts.GetByID(ctx, *req.NightShiftID)
		if err != nil {
			return nil, false, notFoundOr(err, "night shift")
		}
		if shift.CourseID != course.ID {
			return nil, false, appErrors.Clone(appErrors.ErrConflict, "night shift belongs to another course")
		}
		report.NightShiftID = &shift.ID
		report.ReportDate = shift.ShiftDate
	}

	if req.DueAt != nil {
		report.DueAt = req.DueAt.UTC()
	} else {
		report.DueAt = s.defaultDueAt(report.ReportDate)
	}
	report.Stamp(actor.ID, s.now())

	return s.createOrFind(ctx, actor, report)
}

func (s *ReportService) createOrFind(ctx context.Context, actor Actor, report *models.Report) (*models.Report, bool, error) {
	inserted, err := s.repo.CreateIfAbsent(ctx, report)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to create report")
	}
	if !inserted {
		existing, err := s.repo.FindExisting(ctx, report)
		if err != nil {
			return nil, false, notFoundOr(err, "report")
		}
		return existing, false, nil
	}
	s.recorder.log(ctx, actor, models.AuditActionCreate, "report", report.ID, nil, map[string]interface{}{
		"type": report.Type, "report_date": report.ReportDate, "group_id": report.GroupID, "night_shift_id": report.NightShiftID,
	})
	s.cache.InvalidateCourse(ctx, report.CourseID)
	return report, true, nil
}

func (s *ReportService) defaultDueAt(date models.Date) time.Time {
	return date.EndOfDay(s.cfg.Location).Add(s.cfg.DueGrace).UTC()
}

// Start moves a report from NotYet to Attending.
func (s *ReportService) Start(ctx context.Context, actor Actor, id string) (*models.Report, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.move(ctx, actor, report, models.ReportStatusAttending, ""); err != nil {
		return nil, err
	}
	return report, nil
}

// Save stores summary and attendance entries while the report is editable.
// It never changes the status.
func (s *ReportService) Save(ctx context.Context, actor Actor, id string, req dto.SaveReportRequest) (*models.Report, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.Status.Editable() {
		return nil, appErrors.Clone(appErrors.ErrReportLocked, "report is locked")
	}
	if report.Type == models.ReportTypeNightShift && len(req.Entries) > 0 {
		return nil, invalidPayload("night-shift reports do not take attendance entries")
	}

	entries := make([]models.ReportEntry, 0, len(req.Entries))
	seen := make(map[string]struct{}, len(req.Entries))
	for _, in := range req.Entries {
		if _, dup := seen[in.StudentID]; dup {
			return nil, invalidPayload("duplicate entry for student " + in.StudentID)
		}
		seen[in.StudentID] = struct{}{}
	}
	if len(req.Entries) > 0 {
		if err := s.checkMembers(ctx, report, req.Entries); err != nil {
			return nil, err
		}
	}
	for _, in := range req.Entries {
		entries = append(entries, models.ReportEntry{
			ReportID:   report.ID,
			StudentID:  in.StudentID,
			Attendance: in.Attendance,
			Note:       strings.TrimSpace(in.Note),
		})
	}

	if err := s.repo.SaveContent(ctx, report.ID, req.Summary, entries, actor.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrReportLocked, "report is locked")
		}
		return nil, appErrors.Internal(err, "failed to save report")
	}
	s.recorder.log(ctx, actor, models.AuditActionUpdate, "report", report.ID, nil, map[string]interface{}{
		"summary": req.Summary, "entries": len(entries),
	})
	return s.Get(ctx, report.ID)
}

// checkMembers rejects entries for students not placed in the report's group.
func (s *ReportService) checkMembers(ctx context.Context, report *models.Report, entries []dto.ReportEntryInput) error {
	placed := map[string]struct{}{}
	if report.GroupID != nil {
		apps, err := s.members.ListAll(ctx, models.ApplicationFilter{
			CourseID: report.CourseID,
			Kind:     models.ApplicationKindStudent,
			GroupID:  *report.GroupID,
			Statuses: models.PlaceableStatuses,
		})
		if err != nil {
			return appErrors.Internal(err, "failed to list group members")
		}
		for _, app := range apps {
			if app.StudentID != nil {
				placed[*app.StudentID] = struct{}{}
			}
		}
	}
	var details []string
	for _, in := range entries {
		if _, ok := placed[in.StudentID]; !ok {
			details = append(details, "student "+in.StudentID+" is not a member of this group")
		}
	}
	if len(details) > 0 {
		return invalidPayload(details...)
	}
	return nil
}

// Submit closes an Attending or Reopened report. It lands in Attended when
// submitted by due_at and in Late afterwards.
func (s *ReportService) Submit(ctx context.Context, actor Actor, id string) (*models.Report, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	to := models.ReportStatusAttended
	if s.now().After(report.DueAt) {
		to = models.ReportStatusLate
	}
	if err := s.move(ctx, actor, report, to, ""); err != nil {
		return nil, err
	}
	return report, nil
}

// MarkRead acknowledges a submitted report.
func (s *ReportService) MarkRead(ctx context.Context, actor Actor, id string) (*models.Report, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.move(ctx, actor, report, models.ReportStatusRead, ""); err != nil {
		return nil, err
	}
	return report, nil
}

// Reopen sends a submitted report back for editing and tells the submitter.
func (s *ReportService) Reopen(ctx context.Context, actor Actor, id string, req dto.ReopenReportRequest) (*models.Report, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if err := s.move(ctx, actor, report, models.ReportStatusReopened, reason); err != nil {
		return nil, err
	}

	if report.SubmittedBy != nil {
		submitter, courseID := *report.SubmittedBy, report.CourseID
		s.recorder.notify(ctx, s.notifier, &models.Notification{
			UserID:   &submitter,
			CourseID: &courseID,
			Type:     models.NotificationReportReopened,
			Title:    "Report reopened",
			Body: fmt.Sprintf("Your %s report for %s was reopened.\n\nReason: %s",
				strings.ToLower(strings.ReplaceAll(string(report.Type), "_", "-")), report.ReportDate, reason),
		})
	}
	return report, nil
}

func (s *ReportService) move(ctx context.Context, actor Actor, report *models.Report, to models.ReportStatus, reason string) error {
	from := report.Status
	if err := workflow.Check(workflow.EntityReport, actor.Role, string(from), string(to)); err != nil {
		return err
	}
	now := s.now()
	if err := s.repo.UpdateStatus(ctx, report.ID, models.ReportTransition{
		From: from, To: to, ActorID: actor.ID, Reason: reason, At: now,
	}); err != nil {
		return staleOr(err, "report")
	}

	report.Status = to
	report.Stamp(actor.ID, now)
	actorID := actor.ID
	switch to {
	case models.ReportStatusAttended, models.ReportStatusLate:
		report.SubmittedBy, report.SubmittedAt = &actorID, &now
	case models.ReportStatusRead:
		report.ReadBy, report.ReadAt = &actorID, &now
	case models.ReportStatusReopened:
		report.ReopenedBy, report.ReopenedAt = &actorID, &now
		report.ReopenReason = reason
	}

	var extra map[string]interface{}
	if reason != "" {
		extra = map[string]interface{}{"reason": reason}
	}
	s.recorder.transition(ctx, actor, workflow.EntityReport, report.ID, string(from), string(to), extra)
	s.cache.InvalidateCourse(ctx, report.CourseID)
	return nil
}

// GenerateDaily creates one attendance report per student group and one
// night-shift report per shift on date. Reports that already exist are
// counted as skipped.
func (s *ReportService) GenerateDaily(ctx context.Context, actor Actor, courseID string, date models.Date) (*dto.GenerateReportsResult, error) {
	if date.IsZero() {
		date = models.NewDate(s.now().In(s.cfg.Location))
	}
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, notFoundOr(err, "course")
	}
	if !course.Editable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is "+string(course.Status))
	}
	groups, err := s.groups.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list groups")
	}
	shifts, err := s.shifts.List(ctx, models.NightShiftFilter{CourseID: course.ID, From: &date, To: &date})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list night shifts")
	}

	result := &dto.GenerateReportsResult{Date: date, Created: []models.Report{}}
	dueAt := s.defaultDueAt(date)
	candidates := make([]*models.Report, 0, len(groups)+len(shifts))
	for i := range groups {
		groupID := groups[i].ID
		candidates = append(candidates, &models.Report{
			CourseID: course.ID, Type: models.ReportTypeAttendance, ReportDate: date, GroupID: &groupID,
		})
	}
	for i := range shifts {
		shiftID := shifts[i].ID
		candidates = append(candidates, &models.Report{
			CourseID: course.ID, Type: models.ReportTypeNightShift, ReportDate: date, NightShiftID: &shiftID,
		})
	}
	for _, report := range candidates {
		report.Status = models.ReportStatusNotYet
		report.DueAt = dueAt
		report.Stamp(actor.ID, s.now())
		saved, created, err := s.createOrFind(ctx, actor, report)
		if err != nil {
			return nil, err
		}
		if !created {
			result.Skipped++
			continue
		}
		result.Created = append(result.Created, *saved)
	}
	s.logger.Info("daily reports generated",
		zap.String("course_id", course.ID), zap.String("date", date.String()),
		zap.Int("created", len(result.Created)), zap.Int("skipped", result.Skipped))
	return result, nil
}

func invalidPayload(details ...string) error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid payload"), details...)
}
