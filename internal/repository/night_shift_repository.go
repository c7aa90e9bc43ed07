package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sccms-api/internal/models"
)

// ErrShiftFull is returned when a shift already has as many active
// assignments as its room requires.
var ErrShiftFull = errors.New("night shift is fully staffed")

const nightShiftSelect = `SELECT ns.id, ns.course_id, ns.room_id, ns.shift_date, ns.start_at, ns.end_at, ns.note,
ns.created_at, ns.updated_at, ns.created_by, ns.updated_by,
r.name AS room_name, r.number_of_staff AS required_staff,
(SELECT COUNT(*) FROM night_shift_assignments x WHERE x.night_shift_id = ns.id AND x.status = 'assigned') AS active_assigned
FROM night_shifts ns
JOIN rooms r ON r.id = ns.room_id`

const assignmentSelect = `SELECT a.id, a.night_shift_id, a.user_id, a.status, a.rejection_reason, a.reassigned_from,
a.created_at, a.updated_at, a.created_by, a.updated_by, u.full_name AS user_name
FROM night_shift_assignments a
JOIN users u ON u.id = a.user_id`

// NightShiftRepository persists night shifts and their staff assignments.
type NightShiftRepository struct {
	db *sqlx.DB
}

// NewNightShiftRepository constructs the repository.
func NewNightShiftRepository(db *sqlx.DB) *NightShiftRepository {
	return &NightShiftRepository{db: db}
}

// Create inserts a shift.
func (r *NightShiftRepository) Create(ctx context.Context, shift *models.NightShift) error {
	if shift.ID == "" {
		shift.ID = uuid.NewString()
	}
	if shift.CreatedAt.IsZero() {
		shift.Stamp("", time.Now().UTC())
	}
	const query = `INSERT INTO night_shifts (id, course_id, room_id, shift_date, start_at, end_at, note, created_at, updated_at, created_by, updated_by)
VALUES (:id, :course_id, :room_id, :shift_date, :start_at, :end_at, :note, :created_at, :updated_at, :created_by, :updated_by)`
	if _, err := r.db.NamedExecContext(ctx, query, shift); err != nil {
		return fmt.Errorf("create night shift: %w", err)
	}
	return nil
}

// GetByID returns a shift with room details and active count.
func (r *NightShiftRepository) GetByID(ctx context.Context, id string) (*models.NightShift, error) {
	var shift models.NightShift
	if err := r.db.GetContext(ctx, &shift, nightShiftSelect+` WHERE ns.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get night shift: %w", err)
	}
	return &shift, nil
}

// List returns shifts matching the filter ordered by date and room.
func (r *NightShiftRepository) List(ctx context.Context, filter models.NightShiftFilter) ([]models.NightShift, error) {
	var b conditionBuilder
	if filter.CourseID != "" {
		b.add("ns.course_id = ?", filter.CourseID)
	}
	if filter.RoomID != "" {
		b.add("ns.room_id = ?", filter.RoomID)
	}
	if filter.From != nil {
		b.add("ns.shift_date >= ?", *filter.From)
	}
	if filter.To != nil {
		b.add("ns.shift_date <= ?", *filter.To)
	}
	var shifts []models.NightShift
	if err := r.db.SelectContext(ctx, &shifts, nightShiftSelect+b.where()+` ORDER BY ns.shift_date ASC, r.name ASC`, b.args...); err != nil {
		return nil, fmt.Errorf("list night shifts: %w", err)
	}
	return shifts, nil
}

// Update persists editable fields.
func (r *NightShiftRepository) Update(ctx context.Context, shift *models.NightShift) error {
	const query = `UPDATE night_shifts SET room_id = :room_id, shift_date = :shift_date, start_at = :start_at, end_at = :end_at, note = :note, updated_at = :updated_at, updated_by = :updated_by WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, shift)
	if err != nil {
		return fmt.Errorf("update night shift: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a shift and its assignments.
func (r *NightShiftRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM night_shifts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete night shift: %w", err)
	}
	return expectAffected(res)
}

// GetAssignment returns an assignment by id.
func (r *NightShiftRepository) GetAssignment(ctx context.Context, id string) (*models.NightShiftAssignment, error) {
	var assignment models.NightShiftAssignment
	if err := r.db.GetContext(ctx, &assignment, assignmentSelect+` WHERE a.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get night shift assignment: %w", err)
	}
	return &assignment, nil
}

// ListAssignments returns every assignment of a shift, oldest first.
func (r *NightShiftRepository) ListAssignments(ctx context.Context, shiftID string) ([]models.NightShiftAssignment, error) {
	var assignments []models.NightShiftAssignment
	if err := r.db.SelectContext(ctx, &assignments, assignmentSelect+` WHERE a.night_shift_id = $1 ORDER BY a.created_at ASC`, shiftID); err != nil {
		return nil, fmt.Errorf("list night shift assignments: %w", err)
	}
	return assignments, nil
}

// HasActiveAssignment reports whether the user is actively assigned to the shift.
func (r *NightShiftRepository) HasActiveAssignment(ctx context.Context, shiftID, userID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM night_shift_assignments WHERE night_shift_id = $1 AND user_id = $2 AND status = 'assigned')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, shiftID, userID); err != nil {
		return false, fmt.Errorf("check active assignment: %w", err)
	}
	return exists, nil
}

// lockAndCount locks the shift row and returns its active assignment count.
func lockAndCount(ctx context.Context, tx *sqlx.Tx, shiftID string) (int, error) {
	if _, err := tx.ExecContext(ctx, `SELECT id FROM night_shifts WHERE id = $1 FOR UPDATE`, shiftID); err != nil {
		return 0, fmt.Errorf("lock night shift: %w", err)
	}
	var active int
	if err := tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM night_shift_assignments WHERE night_shift_id = $1 AND status = 'assigned'`, shiftID); err != nil {
		return 0, fmt.Errorf("count active assignments: %w", err)
	}
	return active, nil
}

func insertAssignment(ctx context.Context, tx *sqlx.Tx, assignment *models.NightShiftAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusAssigned
	}
	if assignment.CreatedAt.IsZero() {
		assignment.Stamp("", time.Now().UTC())
	}
	const query = `INSERT INTO night_shift_assignments (id, night_shift_id, user_id, status, rejection_reason, reassigned_from, created_at, updated_at, created_by, updated_by)
VALUES (:id, :night_shift_id, :user_id, :status, :rejection_reason, :reassigned_from, :created_at, :updated_at, :created_by, :updated_by)`
	if _, err := tx.NamedExecContext(ctx, query, assignment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create night shift assignment: %w", err)
	}
	return nil
}

// Assign inserts an active assignment unless the shift already holds
// required active assignments, in which case ErrShiftFull is returned.
func (r *NightShiftRepository) Assign(ctx context.Context, assignment *models.NightShiftAssignment, required int) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	active, err := lockAndCount(ctx, tx, assignment.NightShiftID)
	if err != nil {
		return err
	}
	if active >= required {
		err = ErrShiftFull
		return err
	}
	if err = insertAssignment(ctx, tx, assignment); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit assign: %w", err)
	}
	return nil
}

// Reject moves an assigned row to rejected. sql.ErrNoRows is returned when
// the assignment is no longer assigned.
func (r *NightShiftRepository) Reject(ctx context.Context, id, reason, actorID string) error {
	const query = `UPDATE night_shift_assignments SET status = 'rejected', rejection_reason = $2, updated_at = $3, updated_by = $4 WHERE id = $1 AND status = 'assigned'`
	res, err := r.db.ExecContext(ctx, query, id, reason, time.Now().UTC(), nullable(actorID))
	if err != nil {
		return fmt.Errorf("reject night shift assignment: %w", err)
	}
	return expectAffected(res)
}

// Reassign marks a rejected assignment reassigned and creates the
// replacement in one transaction.
func (r *NightShiftRepository) Reassign(ctx context.Context, previous *models.NightShiftAssignment, replacement *models.NightShiftAssignment, required int, actorID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reassign: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	active, err := lockAndCount(ctx, tx, previous.NightShiftID)
	if err != nil {
		return err
	}
	if active >= required {
		err = ErrShiftFull
		return err
	}

	res, err := tx.ExecContext(ctx, `UPDATE night_shift_assignments SET status = 'reassigned', updated_at = $2, updated_by = $3 WHERE id = $1 AND status = 'rejected'`,
		previous.ID, time.Now().UTC(), nullable(actorID))
	if err != nil {
		return fmt.Errorf("mark assignment reassigned: %w", err)
	}
	if err = expectAffected(res); err != nil {
		return err
	}

	replacement.NightShiftID = previous.NightShiftID
	prevID := previous.ID
	replacement.ReassignedFrom = &prevID
	if err = insertAssignment(ctx, tx, replacement); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reassign: %w", err)
	}
	return nil
}

// Suggestions lists active STAFF users free on the shift's date within the
// same course who never rejected this shift, least loaded first.
func (r *NightShiftRepository) Suggestions(ctx context.Context, shiftID string, limit int) ([]models.StaffSuggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT u.id AS user_id, u.full_name, u.email, u.role,
(SELECT COUNT(*) FROM night_shift_assignments x JOIN night_shifts s2 ON s2.id = x.night_shift_id
  WHERE x.user_id = u.id AND x.status = 'assigned' AND s2.course_id = ns.course_id) AS active_assignments
FROM users u
JOIN night_shifts ns ON ns.id = $1
WHERE u.active = TRUE AND u.role = 'STAFF'
AND NOT EXISTS (SELECT 1 FROM night_shift_assignments x JOIN night_shifts s2 ON s2.id = x.night_shift_id
  WHERE x.user_id = u.id AND x.status = 'assigned' AND s2.course_id = ns.course_id AND s2.shift_date = ns.shift_date)
AND NOT EXISTS (SELECT 1 FROM night_shift_assignments x
  WHERE x.user_id = u.id AND x.night_shift_id = ns.id AND x.status IN ('rejected', 'reassigned'))
ORDER BY active_assignments ASC, u.full_name ASC
LIMIT $2`
	var suggestions []models.StaffSuggestion
	if err := r.db.SelectContext(ctx, &suggestions, query, shiftID, limit); err != nil {
		return nil, fmt.Errorf("suggest staff: %w", err)
	}
	return suggestions, nil
}

const myShiftSelect = `SELECT a.id AS assignment_id, a.user_id, a.status, ns.id AS night_shift_id, ns.course_id, c.name AS course_name,
r.name AS room_name, ns.shift_date, ns.start_at, ns.end_at
FROM night_shift_assignments a
JOIN night_shifts ns ON ns.id = a.night_shift_id
JOIN rooms r ON r.id = ns.room_id
JOIN courses c ON c.id = ns.course_id`

// ListForUser returns the user's assigned and rejected shifts from the given
// date on.
func (r *NightShiftRepository) ListForUser(ctx context.Context, userID string, from models.Date) ([]models.MyNightShift, error) {
	query := myShiftSelect + ` WHERE a.user_id = $1 AND a.status IN ('assigned', 'rejected') AND ns.shift_date >= $2 ORDER BY ns.shift_date ASC, ns.start_at ASC`
	var shifts []models.MyNightShift
	if err := r.db.SelectContext(ctx, &shifts, query, userID, from); err != nil {
		return nil, fmt.Errorf("list night shifts for user: %w", err)
	}
	return shifts, nil
}

// ListActiveOn returns every active assignment of shifts on the given date.
func (r *NightShiftRepository) ListActiveOn(ctx context.Context, date models.Date) ([]models.MyNightShift, error) {
	query := myShiftSelect + ` WHERE a.status = 'assigned' AND ns.shift_date = $1 ORDER BY ns.start_at ASC`
	var shifts []models.MyNightShift
	if err := r.db.SelectContext(ctx, &shifts, query, date); err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}
	return shifts, nil
}
