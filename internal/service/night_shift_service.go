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
	"github.com/noah-isme/sccms-api/internal/repository"
	"github.com/noah-isme/sccms-api/internal/workflow"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/validation"
)

type nightShiftRepository interface {
	Create(ctx context.Context, shift *models.NightShift) error
	GetByID(ctx context.Context, id string) (*models.NightShift, error)
	List(ctx context.Context, filter models.NightShiftFilter) ([]models.NightShift, error)
	Update(ctx context.Context, shift *models.NightShift) error
	Delete(ctx context.Context, id string) error
	GetAssignment(ctx context.Context, id string) (*models.NightShiftAssignment, error)
	ListAssignments(ctx context.Context, shiftID string) ([]models.NightShiftAssignment, error)
	HasActiveAssignment(ctx context.Context, shiftID, userID string) (bool, error)
	Assign(ctx context.Context, assignment *models.NightShiftAssignment, required int) error
	Reject(ctx context.Context, id, reason, actorID string) error
	Reassign(ctx context.Context, previous, replacement *models.NightShiftAssignment, required int, actorID string) error
	Suggestions(ctx context.Context, shiftID string, limit int) ([]models.StaffSuggestion, error)
	ListForUser(ctx context.Context, userID string, from models.Date) ([]models.MyNightShift, error)
	ListActiveOn(ctx context.Context, date models.Date) ([]models.MyNightShift, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// NightShiftService schedules night shifts and staffs them.
type NightShiftService struct {
	repo      nightShiftRepository
	courses   courseReader
	rooms     roomLookup
	users     userLookup
	notifier  notifier
	cache     courseCache
	recorder  recorder
	validator *validation.Validator
	logger    *zap.Logger
	now       func() time.Time
}

// NewNightShiftService constructs a NightShiftService.
func NewNightShiftService(repo nightShiftRepository, courses courseReader, rooms roomLookup, users userLookup, notifier notifier, cache courseCache, audit auditWriter, metrics *MetricsService, validate *validation.Validator, logger *zap.Logger) *NightShiftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	return &NightShiftService{
		repo:      repo,
		courses:   courses,
		rooms:     rooms,
		users:     users,
		notifier:  notifier,
		cache:     cache,
		recorder:  newRecorder(audit, metrics, logger),
		validator: validate,
		logger:    logger,
		now:       utcNow,
	}
}

// List returns the shifts of a course with their staffing state.
func (s *NightShiftService) List(ctx context.Context, filter models.NightShiftFilter) ([]models.NightShift, error) {
	shifts, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list night shifts")
	}
	for i := range shifts {
		shifts[i].Staffing = models.Staffing(shifts[i].ActiveAssigned, shifts[i].RequiredStaff)
	}
	return shifts, nil
}

// Get returns a shift with every assignment ever made on it.
func (s *NightShiftService) Get(ctx context.Context, id string) (*dto.NightShiftDetail, error) {
	shift, err := s.getShift(ctx, id)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListAssignments(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assignments")
	}
	if assignments == nil {
		assignments = []models.NightShiftAssignment{}
	}
	return &dto.NightShiftDetail{NightShift: *shift, Assignments: assignments}, nil
}

func (s *NightShiftService) getShift(ctx context.Context, id string) (*models.NightShift, error) {
	shift, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "night shift")
	}
	shift.Staffing = models.Staffing(shift.ActiveAssigned, shift.RequiredStaff)
	return shift, nil
}

// Create schedules a shift for a room of the course.
func (s *NightShiftService) Create(ctx context.Context, actor Actor, courseID string, req dto.NightShiftRequest) (*models.NightShift, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, notFoundOr(err, "course")
	}
	if !course.Editable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is "+string(course.Status))
	}
	room, err := s.roomOf(ctx, course.ID, req.RoomID)
	if err != nil {
		return nil, err
	}

	shift := &models.NightShift{CourseID: course.ID}
	applyShiftRequest(shift, req)
	shift.Stamp(actor.ID, s.now())
	if err := s.repo.Create(ctx, shift); err != nil {
		return nil, appErrors.Internal(err, "failed to create night shift")
	}
	shift.RoomName = room.Name
	shift.RequiredStaff = room.NumberOfStaff
	shift.Staffing = models.Staffing(0, room.NumberOfStaff)

	s.recorder.log(ctx, actor, models.AuditActionCreate, "night_shift", shift.ID, nil, shift)
	s.cache.InvalidateCourse(ctx, course.ID)
	return shift, nil
}

// Update moves a shift to another room or time.
func (s *NightShiftService) Update(ctx context.Context, actor Actor, id string, req dto.NightShiftRequest) (*models.NightShift, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	shift, err := s.getShift(ctx, id)
	if err != nil {
		return nil, err
	}
	room, err := s.roomOf(ctx, shift.CourseID, req.RoomID)
	if err != nil {
		return nil, err
	}
	if room.NumberOfStaff < shift.ActiveAssigned {
		return nil, appErrors.Clone(appErrors.ErrConflict, "room requires fewer staff than are assigned")
	}

	before := *shift
	applyShiftRequest(shift, req)
	shift.Stamp(actor.ID, s.now())
	if err := s.repo.Update(ctx, shift); err != nil {
		return nil, notFoundOr(err, "night shift")
	}
	shift.RoomName = room.Name
	shift.RequiredStaff = room.NumberOfStaff
	shift.Staffing = models.Staffing(shift.ActiveAssigned, shift.RequiredStaff)

	s.recorder.log(ctx, actor, models.AuditActionUpdate, "night_shift", shift.ID, before, shift)
	s.cache.InvalidateCourse(ctx, shift.CourseID)
	return shift, nil
}

// Delete removes a shift and its assignments.
func (s *NightShiftService) Delete(ctx context.Context, actor Actor, id string) error {
	shift, err := s.getShift(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "night shift")
	}
	s.recorder.log(ctx, actor, models.AuditActionDelete, "night_shift", id, shift, nil)
	s.cache.InvalidateCourse(ctx, shift.CourseID)
	return nil
}

// Assign puts an active STAFF or MANAGER user on a shift that still has an
// open slot.
func (s *NightShiftService) Assign(ctx context.Context, actor Actor, shiftID string, req dto.AssignStaffRequest) (*models.NightShiftAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	shift, err := s.getShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	user, err := s.assignable(ctx, shift.ID, req.UserID)
	if err != nil {
		return nil, err
	}

	assignment := &models.NightShiftAssignment{
		NightShiftID: shift.ID,
		UserID:       user.ID,
		Status:       models.AssignmentStatusAssigned,
		UserName:     user.FullName,
	}
	assignment.Stamp(actor.ID, s.now())
	if err := s.repo.Assign(ctx, assignment, shift.RequiredStaff); err != nil {
		return nil, shiftFullOr(err, "failed to assign staff")
	}

	s.recorder.log(ctx, actor, models.AuditActionAssign, "night_shift_assignment", assignment.ID, nil, map[string]interface{}{
		"night_shift_id": shift.ID, "user_id": user.ID, "status": assignment.Status,
	})
	s.cache.InvalidateCourse(ctx, shift.CourseID)
	s.notifyAssigned(ctx, shift, user)
	return assignment, nil
}

// Reject declines an assignment. STAFF may only reject their own.
func (s *NightShiftService) Reject(ctx context.Context, actor Actor, assignmentID string, req dto.RejectAssignmentRequest) (*models.NightShiftAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	assignment, err := s.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, notFoundOr(err, "assignment")
	}
	if actor.Role == models.RoleStaff && assignment.UserID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "staff may only reject their own assignments")
	}
	from, to := assignment.Status, models.AssignmentStatusRejected
	if err := workflow.Check(workflow.EntityNightShiftAssignment, actor.Role, string(from), string(to)); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if err := s.repo.Reject(ctx, assignment.ID, reason, actor.ID); err != nil {
		return nil, staleOr(err, "assignment")
	}

	assignment.Status = to
	assignment.RejectionReason = reason
	assignment.Stamp(actor.ID, s.now())
	s.recorder.transition(ctx, actor, workflow.EntityNightShiftAssignment, assignment.ID, string(from), string(to), map[string]interface{}{"reason": reason})
	if shift, err := s.repo.GetByID(ctx, assignment.NightShiftID); err == nil {
		s.cache.InvalidateCourse(ctx, shift.CourseID)
	}
	return assignment, nil
}

// Reassign hands a rejected assignment to another user. The old row becomes
// reassigned and the new one is created in the same transaction.
func (s *NightShiftService) Reassign(ctx context.Context, actor Actor, assignmentID string, req dto.ReassignRequest) (*models.NightShiftAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	previous, err := s.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, notFoundOr(err, "assignment")
	}
	from, to := previous.Status, models.AssignmentStatusReassigned
	if err := workflow.Check(workflow.EntityNightShiftAssignment, actor.Role, string(from), string(to)); err != nil {
		return nil, err
	}
	shift, err := s.getShift(ctx, previous.NightShiftID)
	if err != nil {
		return nil, err
	}
	if req.UserID == previous.UserID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment must go to a different user")
	}
	user, err := s.assignable(ctx, shift.ID, req.UserID)
	if err != nil {
		return nil, err
	}

	replacement := &models.NightShiftAssignment{
		UserID:   user.ID,
		Status:   models.AssignmentStatusAssigned,
		UserName: user.FullName,
	}
	replacement.Stamp(actor.ID, s.now())
	if err := s.repo.Reassign(ctx, previous, replacement, shift.RequiredStaff, actor.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, staleOr(err, "assignment")
		}
		return nil, shiftFullOr(err, "failed to reassign")
	}

	s.recorder.transition(ctx, actor, workflow.EntityNightShiftAssignment, previous.ID, string(from), string(to), map[string]interface{}{
		"replacement_id": replacement.ID, "user_id": user.ID,
	})
	s.cache.InvalidateCourse(ctx, shift.CourseID)
	s.notifyAssigned(ctx, shift, user)
	return replacement, nil
}

// Suggestions returns candidate staff for a shift, least loaded first.
func (s *NightShiftService) Suggestions(ctx context.Context, shiftID string, limit int) ([]models.StaffSuggestion, error) {
	if _, err := s.getShift(ctx, shiftID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	suggestions, err := s.repo.Suggestions(ctx, shiftID, limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to suggest staff")
	}
	if suggestions == nil {
		suggestions = []models.StaffSuggestion{}
	}
	return suggestions, nil
}

// AutoAssign fills the open slots of one shift from its suggestions.
func (s *NightShiftService) AutoAssign(ctx context.Context, actor Actor, shiftID string) (*dto.ShiftAutoAssignResult, error) {
	shift, err := s.getShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	result := &dto.ShiftAutoAssignResult{Created: []models.NightShiftAssignment{}}
	if err := s.fill(ctx, actor, shift, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AutoAssignCourse fills every shift of the course from today on. Shifts
// that cannot be filled completely are listed as skipped.
func (s *NightShiftService) AutoAssignCourse(ctx context.Context, actor Actor, courseID string) (*dto.ShiftAutoAssignResult, error) {
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return nil, notFoundOr(err, "course")
	}
	today := models.NewDate(s.now())
	shifts, err := s.List(ctx, models.NightShiftFilter{CourseID: courseID, From: &today})
	if err != nil {
		return nil, err
	}
	result := &dto.ShiftAutoAssignResult{Created: []models.NightShiftAssignment{}}
	for i := range shifts {
		if err := s.fill(ctx, actor, &shifts[i], result); err != nil {
			return nil, err
		}
	}
	s.logger.Info("night shifts auto-assigned",
		zap.String("course_id", courseID), zap.Int("shifts", len(shifts)),
		zap.Int("created", len(result.Created)), zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

func (s *NightShiftService) fill(ctx context.Context, actor Actor, shift *models.NightShift, result *dto.ShiftAutoAssignResult) error {
	open := shift.OpenSlots()
	if open == 0 {
		return nil
	}
	suggestions, err := s.repo.Suggestions(ctx, shift.ID, open)
	if err != nil {
		return appErrors.Internal(err, "failed to suggest staff")
	}
	for _, candidate := range suggestions {
		assignment, err := s.Assign(ctx, actor, shift.ID, dto.AssignStaffRequest{UserID: candidate.UserID})
		if err != nil {
			if appErrors.FromError(err).Code == appErrors.ErrCapacityReached.Code {
				break
			}
			s.logger.Warn("auto-assign candidate skipped",
				zap.String("night_shift_id", shift.ID), zap.String("user_id", candidate.UserID), zap.Error(err))
			continue
		}
		result.Created = append(result.Created, *assignment)
		open--
	}
	if open > 0 {
		result.Skipped = append(result.Skipped, shift.ID)
	}
	return nil
}

// MyShifts lists the caller's assigned and rejected shifts from today on.
func (s *NightShiftService) MyShifts(ctx context.Context, userID string) ([]models.MyNightShift, error) {
	shifts, err := s.repo.ListForUser(ctx, userID, models.NewDate(s.now()))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list night shifts")
	}
	if shifts == nil {
		shifts = []models.MyNightShift{}
	}
	return shifts, nil
}

// SendReminders notifies every user actively assigned to a shift on date.
func (s *NightShiftService) SendReminders(ctx context.Context, date models.Date) (int, error) {
	active, err := s.repo.ListActiveOn(ctx, date)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list tonight's assignments")
	}
	for _, shift := range active {
		userID, courseID := shift.UserID, shift.CourseID
		s.recorder.notify(ctx, s.notifier, &models.Notification{
			UserID:   &userID,
			CourseID: &courseID,
			Type:     models.NotificationShiftReminder,
			Title:    "Night shift tonight",
			Body: fmt.Sprintf("Reminder: you are on night shift in %s (%s) from %s to %s.",
				shift.RoomName, shift.CourseName, shift.StartAt.Format("15:04"), shift.EndAt.Format("15:04")),
		})
	}
	return len(active), nil
}

func (s *NightShiftService) assignable(ctx context.Context, shiftID, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user is inactive")
	}
	if user.Role != models.RoleStaff && user.Role != models.RoleManager {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only STAFF or MANAGER users can take night shifts")
	}
	taken, err := s.repo.HasActiveAssignment(ctx, shiftID, user.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check existing assignment")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user is already assigned to this shift")
	}
	return user, nil
}

func (s *NightShiftService) notifyAssigned(ctx context.Context, shift *models.NightShift, user *models.User) {
	userID, courseID := user.ID, shift.CourseID
	s.recorder.notify(ctx, s.notifier, &models.Notification{
		UserID:    &userID,
		CourseID:  &courseID,
		Type:      models.NotificationShiftAssigned,
		Title:     "New night shift",
		Body:      fmt.Sprintf("You have been assigned to the night shift in %s on %s.", shift.RoomName, shift.ShiftDate),
		Recipient: user.Email,
	})
}

func (s *NightShiftService) roomOf(ctx context.Context, courseID, roomID string) (*models.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, notFoundOr(err, "room")
	}
	if room.CourseID != courseID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "room belongs to another course")
	}
	return room, nil
}

func (s *NightShiftService) validate(req dto.NightShiftRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}
	var details []string
	if req.ShiftDate.IsZero() {
		details = append(details, "shift_date is a required field")
	}
	if req.StartAt.IsZero() || req.EndAt.IsZero() {
		details = append(details, "start_at and end_at are required fields")
	} else if !req.EndAt.After(req.StartAt) {
		details = append(details, "end_at must be after start_at")
	}
	if len(details) > 0 {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid payload"), details...)
	}
	return nil
}

func applyShiftRequest(shift *models.NightShift, req dto.NightShiftRequest) {
	shift.RoomID = req.RoomID
	shift.ShiftDate = req.ShiftDate
	shift.StartAt = req.StartAt.UTC()
	shift.EndAt = req.EndAt.UTC()
	shift.Note = strings.TrimSpace(req.Note)
}

func shiftFullOr(err error, msg string) error {
	if errors.Is(err, repository.ErrShiftFull) {
		return appErrors.Clone(appErrors.ErrCapacityReached, "night shift is fully staffed")
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return appErrors.Clone(appErrors.ErrConflict, "user is already assigned to this shift")
	}
	return appErrors.Internal(err, msg)
}
