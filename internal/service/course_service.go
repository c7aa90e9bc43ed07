package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/workflow"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/validation"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Update(ctx context.Context, course *models.Course) error
	UpdateStatus(ctx context.Context, id string, from, to models.CourseStatus, actorID string) error
}

type courseReader interface {
	GetByID(ctx context.Context, id string) (*models.Course, error)
}

// DashboardSources are the read models aggregated into a course dashboard.
type DashboardSources struct {
	Applications interface {
		CountByCourse(ctx context.Context, courseID string) ([]models.ApplicationStatusCount, error)
	}
	Groups interface {
		ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error)
	}
	Teams interface {
		ListByCourse(ctx context.Context, courseID string) ([]models.Team, error)
	}
	Reports interface {
		CountByCourse(ctx context.Context, courseID string) ([]models.ReportStatusCount, error)
	}
	NightShifts interface {
		List(ctx context.Context, filter models.NightShiftFilter) ([]models.NightShift, error)
	}
}

// CourseService manages courses, their lifecycle and the cached dashboard.
type CourseService struct {
	repo      courseRepository
	sources   DashboardSources
	cache     *CacheService
	cacheTTL  time.Duration
	recorder  recorder
	validator *validation.Validator
	logger    *zap.Logger
	now       func() time.Time
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, sources DashboardSources, cache *CacheService, cacheTTL time.Duration, audit auditWriter, metrics *MetricsService, validate *validation.Validator, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &CourseService{
		repo:      repo,
		sources:   sources,
		cache:     cache,
		cacheTTL:  cacheTTL,
		recorder:  newRecorder(audit, metrics, logger),
		validator: validate,
		logger:    logger,
		now:       utcNow,
	}
}

// List returns courses matching filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list courses")
	}
	return courses, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "course")
	}
	return course, nil
}

// Create registers a course in notStarted.
func (s *CourseService) Create(ctx context.Context, actor Actor, req dto.CourseRequest) (*models.Course, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	course := &models.Course{Status: models.CourseStatusNotStarted}
	applyCourseRequest(course, req)
	course.Stamp(actor.ID, s.now())

	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Internal(err, "failed to create course")
	}
	s.recorder.log(ctx, actor, models.AuditActionCreate, "course", course.ID, nil, course)
	return course, nil
}

// Update replaces the editable fields of a course. Closed and deleted
// courses are frozen.
func (s *CourseService) Update(ctx context.Context, actor Actor, id string, req dto.CourseRequest) (*models.Course, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !course.Editable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is "+string(course.Status)+" and can no longer be edited")
	}
	before := *course
	applyCourseRequest(course, req)
	course.Stamp(actor.ID, s.now())

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, notFoundOr(err, "course")
	}
	s.recorder.log(ctx, actor, models.AuditActionUpdate, "course", course.ID, before, course)
	s.cache.InvalidateCourse(ctx, course.ID)
	return course, nil
}

// ChangeStatus moves a course through its workflow.
func (s *CourseService) ChangeStatus(ctx context.Context, actor Actor, id string, req dto.StatusChangeRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from, to := course.Status, models.CourseStatus(req.Status)
	if err := workflow.Check(workflow.EntityCourse, actor.Role, string(from), string(to)); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, from, to, actor.ID); err != nil {
		return nil, staleOr(err, "course")
	}

	course.Status = to
	course.Stamp(actor.ID, s.now())
	s.recorder.transition(ctx, actor, workflow.EntityCourse, id, string(from), string(to), nil)
	s.cache.InvalidateCourse(ctx, id)
	s.logger.Info("course status changed", zap.String("course_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	return course, nil
}

// Delete soft deletes a course by moving it to deleted.
func (s *CourseService) Delete(ctx context.Context, actor Actor, id string) error {
	_, err := s.ChangeStatus(ctx, actor, id, dto.StatusChangeRequest{Status: string(models.CourseStatusDeleted)})
	return err
}

// Dashboard returns the aggregated course state and whether it came from
// the cache.
func (s *CourseService) Dashboard(ctx context.Context, id string) (*models.CourseDashboard, bool, error) {
	key := DashboardKey(id)
	var cached models.CourseDashboard
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	dash := &models.CourseDashboard{
		CourseID:    course.ID,
		CourseName:  course.Name,
		Status:      course.Status,
		GeneratedAt: s.now(),
	}
	if dash.Applications, err = s.sources.Applications.CountByCourse(ctx, id); err != nil {
		return nil, false, appErrors.Internal(err, "failed to count applications")
	}
	if dash.Groups, err = s.sources.Groups.ListByCourse(ctx, id); err != nil {
		return nil, false, appErrors.Internal(err, "failed to list groups")
	}
	if dash.Teams, err = s.sources.Teams.ListByCourse(ctx, id); err != nil {
		return nil, false, appErrors.Internal(err, "failed to list teams")
	}
	if dash.Reports, err = s.sources.Reports.CountByCourse(ctx, id); err != nil {
		return nil, false, appErrors.Internal(err, "failed to count reports")
	}
	shifts, err := s.sources.NightShifts.List(ctx, models.NightShiftFilter{CourseID: id})
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to list night shifts")
	}
	for _, shift := range shifts {
		switch models.Staffing(shift.ActiveAssigned, shift.RequiredStaff) {
		case models.StaffingFull:
			dash.NightShifts.Full++
		case models.StaffingPartial:
			dash.NightShifts.Partial++
		default:
			dash.NightShifts.Empty++
		}
	}

	s.cache.Set(ctx, key, dash, s.cacheTTL)
	return dash, false, nil
}

func (s *CourseService) validate(req dto.CourseRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}
	var details []string
	required := map[string]models.Date{
		"student_apply_start":   req.StudentApplyStart,
		"student_apply_end":     req.StudentApplyEnd,
		"volunteer_apply_start": req.VolunteerApplyStart,
		"volunteer_apply_end":   req.VolunteerApplyEnd,
		"start_date":            req.StartDate,
		"end_date":              req.EndDate,
	}
	for _, field := range []string{"student_apply_start", "student_apply_end", "volunteer_apply_start", "volunteer_apply_end", "start_date", "end_date"} {
		if required[field].IsZero() {
			details = append(details, field+" is a required field")
		}
	}
	if len(details) > 0 {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid payload"), details...)
	}

	if req.StudentApplyStart.After(req.StudentApplyEnd.Time) {
		details = append(details, "student_apply_start must not be after student_apply_end")
	}
	if req.VolunteerApplyStart.After(req.VolunteerApplyEnd.Time) {
		details = append(details, "volunteer_apply_start must not be after volunteer_apply_end")
	}
	if !req.StartDate.After(req.StudentApplyEnd.Time) || !req.StartDate.After(req.VolunteerApplyEnd.Time) {
		details = append(details, "start_date must be after both application periods end")
	}
	if req.EndDate.Before(req.StartDate.Time) {
		details = append(details, "end_date must not be before start_date")
	}
	if len(details) > 0 {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid course dates"), details...)
	}
	return nil
}

func applyCourseRequest(course *models.Course, req dto.CourseRequest) {
	course.Name = strings.TrimSpace(req.Name)
	course.Description = req.Description
	course.Location = strings.TrimSpace(req.Location)
	course.StudentApplyStart = req.StudentApplyStart
	course.StudentApplyEnd = req.StudentApplyEnd
	course.VolunteerApplyStart = req.VolunteerApplyStart
	course.VolunteerApplyEnd = req.VolunteerApplyEnd
	course.StartDate = req.StartDate
	course.EndDate = req.EndDate
	course.StudentCapacity = req.StudentCapacity
	course.VolunteerCapacity = req.VolunteerCapacity
}
