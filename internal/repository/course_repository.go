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

const courseColumns = `id, name, description, location, status, student_apply_start, student_apply_end, volunteer_apply_start, volunteer_apply_end, start_date, end_date, student_capacity, volunteer_capacity, created_at, updated_at, created_by, updated_by`

// CourseRepository persists courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.Status == "" {
		course.Status = models.CourseStatusNotStarted
	}
	if course.CreatedAt.IsZero() {
		course.Stamp("", time.Now().UTC())
	}
	const query = `INSERT INTO courses (id, name, description, location, status, student_apply_start, student_apply_end, volunteer_apply_start, volunteer_apply_end, start_date, end_date, student_capacity, volunteer_capacity, created_at, updated_at, created_by, updated_by)
VALUES (:id, :name, :description, :location, :status, :student_apply_start, :student_apply_end, :volunteer_apply_start, :volunteer_apply_end, :start_date, :end_date, :student_capacity, :volunteer_capacity, :created_at, :updated_at, :created_by, :updated_by)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// GetByID returns a course by id.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return &course, nil
}

// List returns courses matching the filter with the total count. Deleted
// courses are hidden unless the status filter names them.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var b conditionBuilder
	if len(filter.Statuses) > 0 {
		b.addIn("status", stringsOf(filter.Statuses))
	} else {
		b.raw("status <> 'deleted'")
	}
	if filter.Search != "" {
		b.add("(LOWER(name) LIKE ? OR LOWER(location) LIKE ?)", "%"+strings.ToLower(filter.Search)+"%")
	}

	order := sortClause(filter.SortBy, filter.SortOrder, map[string]string{
		"name":       "name",
		"start_date": "start_date",
		"status":     "status",
		"created_at": "created_at",
	}, "start_date")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM courses%s ORDER BY %s LIMIT %d OFFSET %d", courseColumns, b.where(), order, limit, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, b.args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM courses"+b.where(), b.args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// ListByStatus returns every course in the given status.
func (r *CourseRepository) ListByStatus(ctx context.Context, status models.CourseStatus) ([]models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE status = $1 ORDER BY start_date`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, status); err != nil {
		return nil, fmt.Errorf("list courses by status: %w", err)
	}
	return courses, nil
}

// Update persists editable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	const query = `UPDATE courses SET name = :name, description = :description, location = :location,
student_apply_start = :student_apply_start, student_apply_end = :student_apply_end,
volunteer_apply_start = :volunteer_apply_start, volunteer_apply_end = :volunteer_apply_end,
start_date = :start_date, end_date = :end_date, student_capacity = :student_capacity, volunteer_capacity = :volunteer_capacity,
updated_at = :updated_at, updated_by = :updated_by WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return expectAffected(res)
}

// UpdateStatus moves a course from one status to another. sql.ErrNoRows is
// returned when the row no longer holds the expected status.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id string, from, to models.CourseStatus, actorID string) error {
	const query = `UPDATE courses SET status = $3, updated_at = $4, updated_by = $5 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC(), nullable(actorID))
	if err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return expectAffected(res)
}
