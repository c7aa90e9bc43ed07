package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sccms-api/internal/models"
)

const applicationSelect = `SELECT a.id, a.course_id, a.kind, a.student_id, a.volunteer_id, a.status, a.applied_at, a.group_id, a.team_id, a.note, a.rejection_reason,
a.created_at, a.updated_at, a.created_by, a.updated_by,
COALESCE(s.full_name, v.full_name, '') AS applicant_name,
COALESCE(s.email, v.email, '') AS applicant_email,
COALESCE(s.gender, v.gender, '') AS applicant_gender
FROM applications a
LEFT JOIN students s ON s.id = a.student_id
LEFT JOIN volunteers v ON v.id = a.volunteer_id`

// ApplicationRepository persists student and volunteer applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = models.ApplicationStatusPending
	}
	now := time.Now().UTC()
	if app.AppliedAt.IsZero() {
		app.AppliedAt = now
	}
	if app.CreatedAt.IsZero() {
		app.Stamp("", now)
	}
	const query = `INSERT INTO applications (id, course_id, kind, student_id, volunteer_id, status, applied_at, note, created_at, updated_at, created_by, updated_by)
VALUES (:id, :course_id, :kind, :student_id, :volunteer_id, :status, :applied_at, :note, :created_at, :updated_at, :created_by, :updated_by)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetByID returns an application with its applicant details.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := r.db.GetContext(ctx, &app, applicationSelect+` WHERE a.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return &app, nil
}

// Exists reports whether the person already applied to the course.
func (r *ApplicationRepository) Exists(ctx context.Context, courseID string, kind models.ApplicationKind, personID string) (bool, error) {
	column := "student_id"
	if kind == models.ApplicationKindVolunteer {
		column = "volunteer_id"
	}
	query := `SELECT EXISTS(SELECT 1 FROM applications WHERE course_id = $1 AND ` + column + ` = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, courseID, personID); err != nil {
		return false, fmt.Errorf("check application exists: %w", err)
	}
	return exists, nil
}

func applicationConditions(filter models.ApplicationFilter) conditionBuilder {
	var b conditionBuilder
	if filter.CourseID != "" {
		b.add("a.course_id = ?", filter.CourseID)
	}
	if filter.Kind != "" {
		b.add("a.kind = ?", filter.Kind)
	}
	b.addIn("a.status", stringsOf(filter.Statuses))
	if filter.GroupID != "" {
		b.add("a.group_id = ?", filter.GroupID)
	}
	if filter.TeamID != "" {
		b.add("a.team_id = ?", filter.TeamID)
	}
	if filter.Unplaced {
		b.raw("a.group_id IS NULL AND a.team_id IS NULL")
	}
	if filter.Search != "" {
		b.add("LOWER(COALESCE(s.full_name, v.full_name)) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}
	return b
}

var applicationSorts = map[string]string{
	"applied_at":     "a.applied_at",
	"status":         "a.status",
	"applicant_name": "applicant_name",
	"created_at":     "a.created_at",
}

// List returns a page of applications with total count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	b := applicationConditions(filter)
	order := sortClause(filter.SortBy, filter.SortOrder, applicationSorts, "a.applied_at")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY %s LIMIT %d OFFSET %d", applicationSelect, b.where(), order, limit, offset)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, b.args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM applications a LEFT JOIN students s ON s.id = a.student_id LEFT JOIN volunteers v ON v.id = a.volunteer_id` + b.where()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, b.args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// ListAll returns every application matching the filter ordered by applicant
// name. Paging fields are ignored.
func (r *ApplicationRepository) ListAll(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	b := applicationConditions(filter)
	query := applicationSelect + b.where() + " ORDER BY applicant_name ASC, a.applied_at ASC"
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, b.args...); err != nil {
		return nil, fmt.Errorf("list all applications: %w", err)
	}
	return apps, nil
}

// UpdateStatus moves an application between statuses. When clearPlacement
// is set the group and team are removed in the same statement. sql.ErrNoRows
// is returned when the row no longer holds the expected status.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus, reason string, clearPlacement bool, actorID string) error {
	query := `UPDATE applications SET status = $3, rejection_reason = $4, updated_at = $5, updated_by = $6`
	if clearPlacement {
		query += `, group_id = NULL, team_id = NULL`
	}
	query += ` WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, reason, time.Now().UTC(), nullable(actorID))
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return expectAffected(res)
}

// SetGroup places a student application in a group, or removes it when
// groupID is nil.
func (r *ApplicationRepository) SetGroup(ctx context.Context, id string, groupID *string, actorID string) error {
	const query = `UPDATE applications SET group_id = $2, updated_at = $3, updated_by = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, groupID, time.Now().UTC(), nullable(actorID))
	if err != nil {
		return fmt.Errorf("set application group: %w", err)
	}
	return expectAffected(res)
}

// SetTeam places a volunteer application in a team, or removes it when
// teamID is nil.
func (r *ApplicationRepository) SetTeam(ctx context.Context, id string, teamID *string, actorID string) error {
	const query = `UPDATE applications SET team_id = $2, updated_at = $3, updated_by = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, teamID, time.Now().UTC(), nullable(actorID))
	if err != nil {
		return fmt.Errorf("set application team: %w", err)
	}
	return expectAffected(res)
}

// CountByStatuses counts applications of a kind in the given statuses.
func (r *ApplicationRepository) CountByStatuses(ctx context.Context, courseID string, kind models.ApplicationKind, statuses []models.ApplicationStatus) (int, error) {
	var b conditionBuilder
	b.add("course_id = ?", courseID)
	b.add("kind = ?", kind)
	b.addIn("status", stringsOf(statuses))
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM applications"+b.where(), b.args...); err != nil {
		return 0, fmt.Errorf("count applications by status: %w", err)
	}
	return count, nil
}

// CountByCourse returns the per kind and status breakdown of a course.
func (r *ApplicationRepository) CountByCourse(ctx context.Context, courseID string) ([]models.ApplicationStatusCount, error) {
	const query = `SELECT kind, status, COUNT(*) AS count FROM applications WHERE course_id = $1 GROUP BY kind, status ORDER BY kind, status`
	var counts []models.ApplicationStatusCount
	if err := r.db.SelectContext(ctx, &counts, query, courseID); err != nil {
		return nil, fmt.Errorf("count applications by course: %w", err)
	}
	return counts, nil
}

// ApprovePending approves Pending applications oldest first while the
// course has seats left for the kind. A capacity of zero approves every
// pending application. The course row is locked for the duration.
func (r *ApplicationRepository) ApprovePending(ctx context.Context, courseID string, kind models.ApplicationKind, capacity int, actorID string) (approved []models.Application, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approve pending: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		return nil, fmt.Errorf("lock course: %w", err)
	}

	limit := -1
	if capacity > 0 {
		var b conditionBuilder
		b.add("course_id = ?", courseID)
		b.add("kind = ?", kind)
		b.addIn("status", stringsOf(models.CapacityStatuses))
		var taken int
		if err = tx.GetContext(ctx, &taken, "SELECT COUNT(*) FROM applications"+b.where(), b.args...); err != nil {
			return nil, fmt.Errorf("count seats taken: %w", err)
		}
		limit = capacity - taken
		if limit <= 0 {
			if err = tx.Commit(); err != nil {
				return nil, fmt.Errorf("commit approve pending: %w", err)
			}
			return nil, nil
		}
	}

	query := applicationSelect + ` WHERE a.course_id = $1 AND a.kind = $2 AND a.status = 'Pending' ORDER BY a.applied_at ASC, a.id ASC`
	args := []interface{}{courseID, kind}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	var pending []models.Application
	if err = tx.SelectContext(ctx, &pending, query, args...); err != nil {
		return nil, fmt.Errorf("select pending applications: %w", err)
	}

	now := time.Now().UTC()
	for i := range pending {
		if _, err = tx.ExecContext(ctx, `UPDATE applications SET status = 'Approved', updated_at = $2, updated_by = $3 WHERE id = $1 AND status = 'Pending'`,
			pending[i].ID, now, nullable(actorID)); err != nil {
			return nil, fmt.Errorf("approve application %s: %w", pending[i].ID, err)
		}
		pending[i].Status = models.ApplicationStatusApproved
		pending[i].UpdatedAt = now
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve pending: %w", err)
	}
	return pending, nil
}

// ListPlacements returns applicants in the given statuses with their group
// or team and the room of their group.
func (r *ApplicationRepository) ListPlacements(ctx context.Context, courseID string, kind models.ApplicationKind, statuses []models.ApplicationStatus) ([]models.ApplicationPlacement, error) {
	var b conditionBuilder
	b.add("a.course_id = ?", courseID)
	if kind != "" {
		b.add("a.kind = ?", kind)
	}
	b.addIn("a.status", stringsOf(statuses))
	query := `SELECT a.id AS application_id, a.kind,
COALESCE(s.full_name, v.full_name, '') AS applicant_name,
COALESCE(g.name, t.name, '') AS placement_name,
COALESCE(rm.name, '') AS room_name
FROM applications a
LEFT JOIN students s ON s.id = a.student_id
LEFT JOIN volunteers v ON v.id = a.volunteer_id
LEFT JOIN student_groups g ON g.id = a.group_id
LEFT JOIN teams t ON t.id = a.team_id
LEFT JOIN rooms rm ON rm.id = g.room_id` + b.where() + ` ORDER BY placement_name ASC, applicant_name ASC`
	var rows []models.ApplicationPlacement
	if err := r.db.SelectContext(ctx, &rows, query, b.args...); err != nil {
		return nil, fmt.Errorf("list application placements: %w", err)
	}
	return rows, nil
}
