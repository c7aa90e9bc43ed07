package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/repository"
	"github.com/noah-isme/sccms-api/internal/workflow"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/validation"
)

type applicationRepository interface {
	Create(ctx context.Context, app *models.Application) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	Exists(ctx context.Context, courseID string, kind models.ApplicationKind, personID string) (bool, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus, reason string, clearPlacement bool, actorID string) error
	ApprovePending(ctx context.Context, courseID string, kind models.ApplicationKind, capacity int, actorID string) ([]models.Application, error)
}

type personLookup interface {
	GetByID(ctx context.Context, id string) (*models.Person, error)
}

// ApplicationService handles applications and their approval workflow.
type ApplicationService struct {
	repo       applicationRepository
	courses    courseReader
	students   personLookup
	volunteers personLookup
	notifier   notifier
	cache      courseCache
	recorder   recorder
	validator  *validation.Validator
	logger     *zap.Logger
	now        func() time.Time
}

// NewApplicationService constructs an ApplicationService.
func NewApplicationService(repo applicationRepository, courses courseReader, students, volunteers personLookup, notifier notifier, cache courseCache, audit auditWriter, metrics *MetricsService, validate *validation.Validator, logger *zap.Logger) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	return &ApplicationService{
		repo:       repo,
		courses:    courses,
		students:   students,
		volunteers: volunteers,
		notifier:   notifier,
		cache:      cache,
		recorder:   newRecorder(audit, metrics, logger),
		validator:  validate,
		logger:     logger,
		now:        utcNow,
	}
}

// List returns applications matching filter.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, *models.Pagination, error) {
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list applications")
	}
	return apps, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns one application.
func (s *ApplicationService) Get(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "application")
	}
	return app, nil
}

// Create registers a person for a course. The course must be recruiting or
// in progress and a person may apply once per course.
func (s *ApplicationService) Create(ctx context.Context, actor Actor, req dto.CreateApplicationRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	course, err := s.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, notFoundOr(err, "course")
	}
	if course.Status != models.CourseStatusRecruiting && course.Status != models.CourseStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is not accepting applications")
	}

	lookup, what := s.students, "student"
	if req.Kind == models.ApplicationKindVolunteer {
		lookup, what = s.volunteers, "volunteer"
	}
	person, err := lookup.GetByID(ctx, req.PersonID)
	if err != nil {
		return nil, notFoundOr(err, what)
	}
	if !person.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, what+" is inactive")
	}

	exists, err := s.repo.Exists(ctx, course.ID, req.Kind, person.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check existing application")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, what+" already applied to this course")
	}

	now := s.now()
	app := &models.Application{
		CourseID:        course.ID,
		Kind:            req.Kind,
		Status:          models.ApplicationStatusPending,
		AppliedAt:       now,
		Note:            strings.TrimSpace(req.Note),
		ApplicantName:   person.FullName,
		ApplicantEmail:  person.Email,
		ApplicantGender: person.Gender,
	}
	if req.Kind == models.ApplicationKindVolunteer {
		app.VolunteerID = &person.ID
	} else {
		app.StudentID = &person.ID
	}
	app.Stamp(actor.ID, now)

	if err := s.repo.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, what+" already applied to this course")
		}
		return nil, appErrors.Internal(err, "failed to create application")
	}
	s.recorder.log(ctx, actor, models.AuditActionCreate, "application", app.ID, nil, map[string]interface{}{
		"course_id": app.CourseID, "kind": app.Kind, "person_id": person.ID, "status": app.Status,
	})
	s.cache.InvalidateCourse(ctx, app.CourseID)
	return app, nil
}

// ChangeStatus moves an application through its workflow. Rejections need a
// reason, and leaving Approved or Enrolled for DropOut or Deleted clears the
// group and team placement.
func (s *ApplicationService) ChangeStatus(ctx context.Context, actor Actor, id string, req dto.StatusChangeRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, app, models.ApplicationStatus(req.Status), strings.TrimSpace(req.Reason))
}

func (s *ApplicationService) transition(ctx context.Context, actor Actor, app *models.Application, to models.ApplicationStatus, reason string) (*models.Application, error) {
	from := app.Status
	if err := workflow.Check(workflow.EntityApplication, actor.Role, string(from), string(to)); err != nil {
		return nil, err
	}
	if to == models.ApplicationStatusRejected && reason == "" {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid payload"), "reason is required when rejecting")
	}
	if to != models.ApplicationStatusRejected {
		reason = app.RejectionReason
	}
	clearPlacement := from.Placeable() && (to == models.ApplicationStatusDropOut || to == models.ApplicationStatusDeleted)

	if err := s.repo.UpdateStatus(ctx, app.ID, from, to, reason, clearPlacement, actor.ID); err != nil {
		return nil, staleOr(err, "application")
	}

	app.Status = to
	app.RejectionReason = reason
	if clearPlacement {
		app.GroupID, app.TeamID = nil, nil
	}
	app.Stamp(actor.ID, s.now())

	extra := map[string]interface{}{}
	if reason != "" && to == models.ApplicationStatusRejected {
		extra["reason"] = reason
	}
	if clearPlacement {
		extra["placement_cleared"] = true
	}
	s.recorder.transition(ctx, actor, workflow.EntityApplication, app.ID, string(from), string(to), extra)
	s.cache.InvalidateCourse(ctx, app.CourseID)
	s.notifyApplicant(ctx, app)
	return app, nil
}

// BulkChangeStatus applies one transition to many applications. Failures are
// collected per id and do not stop the remaining ids.
func (s *ApplicationService) BulkChangeStatus(ctx context.Context, actor Actor, req dto.BulkStatusRequest) (*dto.BulkStatusResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	result := &dto.BulkStatusResult{Updated: make([]string, 0, len(req.IDs))}
	var failures []string
	seen := make(map[string]struct{}, len(req.IDs))
	for _, id := range req.IDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		_, err := s.ChangeStatus(ctx, actor, id, dto.StatusChangeRequest{Status: req.Status, Reason: req.Reason})
		if err != nil {
			result.Failed++
			failures = append(failures, fmt.Sprintf("%s: %s", id, describe(err)))
			continue
		}
		result.Updated = append(result.Updated, id)
	}
	if len(failures) > 0 {
		return result, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "some applications could not be updated"), failures...)
	}
	return result, nil
}

// AutoApprove approves pending applications of a kind oldest first until the
// course capacity for that kind is reached.
func (s *ApplicationService) AutoApprove(ctx context.Context, actor Actor, courseID string, req dto.AutoApproveRequest) (*dto.AutoApproveResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	pending, approved := string(models.ApplicationStatusPending), string(models.ApplicationStatusApproved)
	if !workflow.CanTransition(workflow.EntityApplication, actor.Role, pending, approved) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not approve applications")
	}
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, notFoundOr(err, "course")
	}
	if !course.Editable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is "+string(course.Status))
	}

	capacity := course.CapacityFor(req.Kind)
	apps, err := s.repo.ApprovePending(ctx, course.ID, req.Kind, capacity, actor.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to approve pending applications")
	}

	for i := range apps {
		s.recorder.transition(ctx, actor, workflow.EntityApplication, apps[i].ID, pending, approved, map[string]interface{}{"auto": true})
		s.notifyApplicant(ctx, &apps[i])
	}
	if len(apps) > 0 {
		s.cache.InvalidateCourse(ctx, course.ID)
	}
	s.logger.Info("auto-approved applications",
		zap.String("course_id", course.ID), zap.String("kind", string(req.Kind)), zap.Int("approved", len(apps)))

	if apps == nil {
		apps = []models.Application{}
	}
	return &dto.AutoApproveResult{Approved: apps, Capacity: capacity}, nil
}

func (s *ApplicationService) notifyApplicant(ctx context.Context, app *models.Application) {
	var notificationType, title, body string
	courseName := "the course"
	if course, err := s.courses.GetByID(ctx, app.CourseID); err == nil {
		courseName = course.Name
	}
	switch app.Status {
	case models.ApplicationStatusApproved:
		notificationType = models.NotificationApplicationApproved
		title = "Your application was approved"
		body = fmt.Sprintf("Dear %s,\n\nyour application for %s has been approved. We look forward to seeing you.", app.ApplicantName, courseName)
	case models.ApplicationStatusRejected:
		notificationType = models.NotificationApplicationRejected
		title = "Your application was not accepted"
		body = fmt.Sprintf("Dear %s,\n\nwe are sorry to let you know that your application for %s was not accepted.", app.ApplicantName, courseName)
		if app.RejectionReason != "" {
			body += "\n\nReason: " + app.RejectionReason
		}
	default:
		return
	}
	courseID := app.CourseID
	s.recorder.notify(ctx, s.notifier, &models.Notification{
		CourseID:  &courseID,
		Type:      notificationType,
		Title:     title,
		Body:      body,
		Recipient: app.ApplicantEmail,
	})
}

func describe(err error) string {
	appErr := appErrors.FromError(err)
	if len(appErr.Details) > 0 {
		return appErr.Message + " (" + strings.Join(appErr.Details, "; ") + ")"
	}
	return appErr.Message
}
