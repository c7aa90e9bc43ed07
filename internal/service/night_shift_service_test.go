package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/repository"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

type shiftRepoStub struct {
	shifts      map[string]*models.NightShift
	assignments map[string]*models.NightShiftAssignment
	suggestions []models.StaffSuggestion
	active      []models.MyNightShift
	listFilter  models.NightShiftFilter
	insertErr   error
	seq         int
}

func newShiftRepoStub(shifts ...models.NightShift) *shiftRepoStub {
	stub := &shiftRepoStub{shifts: map[string]*models.NightShift{}, assignments: map[string]*models.NightShiftAssignment{}}
	for i := range shifts {
		sh := shifts[i]
		stub.shifts[sh.ID] = &sh
	}
	return stub
}

func (s *shiftRepoStub) activeCount(shiftID string) int {
	n := 0
	for _, a := range s.assignments {
		if a.NightShiftID == shiftID && a.Status == models.AssignmentStatusAssigned {
			n++
		}
	}
	return n
}

func (s *shiftRepoStub) Create(ctx context.Context, shift *models.NightShift) error {
	shift.ID = "shift-new"
	copy := *shift
	s.shifts[shift.ID] = &copy
	return nil
}

func (s *shiftRepoStub) GetByID(ctx context.Context, id string) (*models.NightShift, error) {
	sh, ok := s.shifts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *sh
	copy.ActiveAssigned = s.activeCount(id)
	return &copy, nil
}

func (s *shiftRepoStub) List(ctx context.Context, filter models.NightShiftFilter) ([]models.NightShift, error) {
	s.listFilter = filter
	var out []models.NightShift
	for id := range s.shifts {
		sh, _ := s.GetByID(ctx, id)
		out = append(out, *sh)
	}
	return out, nil
}

func (s *shiftRepoStub) Update(ctx context.Context, shift *models.NightShift) error {
	copy := *shift
	s.shifts[shift.ID] = &copy
	return nil
}

func (s *shiftRepoStub) Delete(ctx context.Context, id string) error {
	delete(s.shifts, id)
	return nil
}

func (s *shiftRepoStub) GetAssignment(ctx context.Context, id string) (*models.NightShiftAssignment, error) {
	a, ok := s.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *a
	return &copy, nil
}

func (s *shiftRepoStub) ListAssignments(ctx context.Context, shiftID string) ([]models.NightShiftAssignment, error) {
	var out []models.NightShiftAssignment
	for _, a := range s.assignments {
		if a.NightShiftID == shiftID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *shiftRepoStub) HasActiveAssignment(ctx context.Context, shiftID, userID string) (bool, error) {
	for _, a := range s.assignments {
		if a.NightShiftID == shiftID && a.UserID == userID && a.Status == models.AssignmentStatusAssigned {
			return true, nil
		}
	}
	return false, nil
}

func (s *shiftRepoStub) insert(a *models.NightShiftAssignment) {
	s.seq++
	a.ID = fmt.Sprintf("asg-%d", s.seq)
	copy := *a
	s.assignments[a.ID] = &copy
}

func (s *shiftRepoStub) Assign(ctx context.Context, assignment *models.NightShiftAssignment, required int) error {
	if s.activeCount(assignment.NightShiftID) >= required {
		return repository.ErrShiftFull
	}
	if s.insertErr != nil {
		return s.insertErr
	}
	s.insert(assignment)
	return nil
}

func (s *shiftRepoStub) Reject(ctx context.Context, id, reason, actorID string) error {
	a, ok := s.assignments[id]
	if !ok || a.Status != models.AssignmentStatusAssigned {
		return sql.ErrNoRows
	}
	a.Status = models.AssignmentStatusRejected
	a.RejectionReason = reason
	return nil
}

func (s *shiftRepoStub) Reassign(ctx context.Context, previous, replacement *models.NightShiftAssignment, required int, actorID string) error {
	if s.activeCount(previous.NightShiftID) >= required {
		return repository.ErrShiftFull
	}
	a, ok := s.assignments[previous.ID]
	if !ok || a.Status != models.AssignmentStatusRejected {
		return sql.ErrNoRows
	}
	a.Status = models.AssignmentStatusReassigned
	replacement.NightShiftID = previous.NightShiftID
	prev := previous.ID
	replacement.ReassignedFrom = &prev
	s.insert(replacement)
	return nil
}

func (s *shiftRepoStub) Suggestions(ctx context.Context, shiftID string, limit int) ([]models.StaffSuggestion, error) {
	if len(s.suggestions) > limit {
		return s.suggestions[:limit], nil
	}
	return s.suggestions, nil
}

func (s *shiftRepoStub) ListForUser(ctx context.Context, userID string, from models.Date) ([]models.MyNightShift, error) {
	return nil, nil
}

func (s *shiftRepoStub) ListActiveOn(ctx context.Context, date models.Date) ([]models.MyNightShift, error) {
	return s.active, nil
}

type userMap map[string]*models.User

func (m userMap) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

type shiftFixture struct {
	svc      *NightShiftService
	repo     *shiftRepoStub
	notifier *notifierStub
	audit    *auditRecorder
}

func newShiftFixture(shifts ...models.NightShift) *shiftFixture {
	f := &shiftFixture{repo: newShiftRepoStub(shifts...), notifier: &notifierStub{}, audit: &auditRecorder{}}
	courses := newCourseRepoStub(models.Course{ID: "course-1", Status: models.CourseStatusInProgress})
	rooms := roomMap{
		"room-1": {ID: "room-1", CourseID: "course-1", Name: "Room 1", NumberOfStaff: 2},
		"room-0": {ID: "room-0", CourseID: "course-1", Name: "Storage", NumberOfStaff: 0},
	}
	users := userMap{
		"staff-1":   {ID: "staff-1", Role: models.RoleStaff, Active: true, FullName: "Sam", Email: "sam@example.com"},
		"staff-2":   {ID: "staff-2", Role: models.RoleStaff, Active: true, FullName: "Kim", Email: "kim@example.com"},
		"staff-3":   {ID: "staff-3", Role: models.RoleStaff, Active: true, FullName: "Lee"},
		"manager-1": {ID: "manager-1", Role: models.RoleManager, Active: true, FullName: "Max"},
		"sec-1":     {ID: "sec-1", Role: models.RoleSecretary, Active: true},
		"idle":      {ID: "idle", Role: models.RoleStaff, Active: false},
	}
	f.svc = NewNightShiftService(f.repo, courses, rooms, users, f.notifier, nil, f.audit, nil, nil, nil)
	f.svc.now = fixedClock(time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC))
	return f
}

func testShift() models.NightShift {
	return models.NightShift{
		ID: "shift-1", CourseID: "course-1", RoomID: "room-1", RoomName: "Room 1", RequiredStaff: 2,
		ShiftDate: models.NewDate(time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)),
	}
}

func TestNightShiftServiceCreateValidates(t *testing.T) {
	f := newShiftFixture()
	start := time.Date(2026, 7, 10, 22, 0, 0, 0, time.UTC)

	_, err := f.svc.Create(context.Background(), managerActor, "course-1", dto.NightShiftRequest{
		RoomID: "room-1", ShiftDate: models.NewDate(start), StartAt: start, EndAt: start.Add(-time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	shift, err := f.svc.Create(context.Background(), managerActor, "course-1", dto.NightShiftRequest{
		RoomID: "room-1", ShiftDate: models.NewDate(start), StartAt: start, EndAt: start.Add(8 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StaffingEmpty, shift.Staffing)
	assert.Equal(t, 2, shift.RequiredStaff)
}

func TestNightShiftServiceAssign(t *testing.T) {
	f := newShiftFixture(testShift())
	ctx := context.Background()

	a, err := f.svc.Assign(ctx, managerActor, "shift-1", dto.AssignStaffRequest{UserID: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusAssigned, a.Status)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotificationShiftAssigned, f.notifier.sent[0].Type)
	assert.Equal(t, "sam@example.com", f.notifier.sent[0].Recipient)

	_, err = f.svc.Assign(ctx, managerActor, "shift-1", dto.AssignStaffRequest{UserID: "staff-1"})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Assign(ctx, managerActor, "shift-1", dto.AssignStaffRequest{UserID: "sec-1"})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Assign(ctx, managerActor, "shift-1", dto.AssignStaffRequest{UserID: "idle"})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Assign(ctx, managerActor, "shift-1", dto.AssignStaffRequest{UserID: "manager-1"})
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, managerActor, "shift-1", dto.AssignStaffRequest{UserID: "staff-2"})
	assert.Equal(t, appErrors.ErrCapacityReached.Code, appErrors.FromError(err).Code)

	detail, err := f.svc.Get(ctx, "shift-1")
	require.NoError(t, err)
	assert.Equal(t, models.StaffingFull, detail.Staffing)
	assert.Len(t, detail.Assignments, 2)
}

func TestNightShiftServiceAssignLosingRaceIsConflict(t *testing.T) {
	f := newShiftFixture(testShift())
	f.repo.insertErr = repository.ErrDuplicate

	_, err := f.svc.Assign(context.Background(), managerActor, "shift-1", dto.AssignStaffRequest{UserID: "staff-1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "user is already assigned to this shift", appErr.Message)
	assert.Empty(t, f.notifier.sent)
}

func TestNightShiftServiceRejectAndReassign(t *testing.T) {
	f := newShiftFixture(testShift())
	ctx := context.Background()

	a, err := f.svc.Assign(ctx, managerActor, "shift-1", dto.AssignStaffRequest{UserID: "staff-1"})
	require.NoError(t, err)

	other := Actor{ID: "staff-2", Role: models.RoleStaff}
	_, err = f.svc.Reject(ctx, other, a.ID, dto.RejectAssignmentRequest{Reason: "sick"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Reassign(ctx, managerActor, a.ID, dto.ReassignRequest{UserID: "staff-2"})
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	rejected, err := f.svc.Reject(ctx, staffActor, a.ID, dto.RejectAssignmentRequest{Reason: " sick "})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusRejected, rejected.Status)
	assert.Equal(t, "sick", rejected.RejectionReason)

	_, err = f.svc.Reassign(ctx, staffActor, a.ID, dto.ReassignRequest{UserID: "staff-2"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	replacement, err := f.svc.Reassign(ctx, managerActor, a.ID, dto.ReassignRequest{UserID: "staff-2"})
	require.NoError(t, err)
	require.NotNil(t, replacement.ReassignedFrom)
	assert.Equal(t, a.ID, *replacement.ReassignedFrom)
	assert.Equal(t, models.AssignmentStatusReassigned, f.repo.assignments[a.ID].Status)
	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Equal(t, "staff-2", *last.UserID)
	assert.Equal(t, "kim@example.com", last.Recipient)
	assert.Contains(t, f.audit.actions(), models.AuditActionTransition)
}

func TestNightShiftServiceRejectRequiresReason(t *testing.T) {
	f := newShiftFixture(testShift())
	_, err := f.svc.Reject(context.Background(), managerActor, "asg-1", dto.RejectAssignmentRequest{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestNightShiftServiceAutoAssignFillsOpenSlots(t *testing.T) {
	f := newShiftFixture(testShift())
	f.repo.suggestions = []models.StaffSuggestion{{UserID: "staff-2"}, {UserID: "staff-3"}, {UserID: "staff-1"}}

	result, err := f.svc.AutoAssign(context.Background(), managerActor, "shift-1")
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	assert.Equal(t, "staff-2", result.Created[0].UserID)
	assert.Equal(t, "staff-3", result.Created[1].UserID)
	assert.Empty(t, result.Skipped)

	again, err := f.svc.AutoAssign(context.Background(), managerActor, "shift-1")
	require.NoError(t, err)
	assert.Empty(t, again.Created)
}

func TestNightShiftServiceAutoAssignCourseReportsShortfall(t *testing.T) {
	f := newShiftFixture(testShift())
	f.repo.suggestions = []models.StaffSuggestion{{UserID: "staff-1"}}

	result, err := f.svc.AutoAssignCourse(context.Background(), managerActor, "course-1")
	require.NoError(t, err)
	assert.Len(t, result.Created, 1)
	assert.Equal(t, []string{"shift-1"}, result.Skipped)
	require.NotNil(t, f.repo.listFilter.From)
	assert.Equal(t, "2026-07-10", f.repo.listFilter.From.String())
}

func TestNightShiftServiceSendReminders(t *testing.T) {
	f := newShiftFixture()
	start := time.Date(2026, 7, 10, 22, 0, 0, 0, time.UTC)
	f.repo.active = []models.MyNightShift{
		{UserID: "staff-1", CourseID: "course-1", CourseName: "Summer", RoomName: "Room 1", StartAt: start, EndAt: start.Add(8 * time.Hour)},
	}

	n, err := f.svc.SendReminders(context.Background(), models.NewDate(start))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotificationShiftReminder, f.notifier.sent[0].Type)
	assert.Contains(t, f.notifier.sent[0].Body, "22:00")
}
