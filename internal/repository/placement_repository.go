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

const teamSelect = `SELECT t.id, t.course_id, t.name, t.description, t.created_at, t.updated_at, t.created_by, t.updated_by,
(SELECT COUNT(*) FROM applications a WHERE a.team_id = t.id AND a.status IN ('Approved', 'Enrolled')) AS member_count
FROM teams t`

// TeamRepository persists volunteer teams.
type TeamRepository struct {
	db *sqlx.DB
}

// NewTeamRepository constructs the repository.
func NewTeamRepository(db *sqlx.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create inserts a team.
func (r *TeamRepository) Create(ctx context.Context, team *models.Team) error {
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	if team.CreatedAt.IsZero() {
		team.Stamp("", time.Now().UTC())
	}
	const query = `INSERT INTO teams (id, course_id, name, description, created_at, updated_at, created_by, updated_by)
VALUES (:id, :course_id, :name, :description, :created_at, :updated_at, :created_by, :updated_by)`
	if _, err := r.db.NamedExecContext(ctx, query, team); err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// GetByID returns a team with its member count.
func (r *TeamRepository) GetByID(ctx context.Context, id string) (*models.Team, error) {
	var team models.Team
	if err := r.db.GetContext(ctx, &team, teamSelect+` WHERE t.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	return &team, nil
}

// ListByCourse returns the teams of a course ordered by name.
func (r *TeamRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Team, error) {
	var teams []models.Team
	if err := r.db.SelectContext(ctx, &teams, teamSelect+` WHERE t.course_id = $1 ORDER BY t.name ASC`, courseID); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// Update persists editable fields.
func (r *TeamRepository) Update(ctx context.Context, team *models.Team) error {
	const query = `UPDATE teams SET name = :name, description = :description, updated_at = :updated_at, updated_by = :updated_by WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, team)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a team. Member applications become unplaced.
func (r *TeamRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	return expectAffected(res)
}

const groupSelect = `SELECT g.id, g.course_id, g.name, g.gender, g.capacity, g.room_id, g.created_at, g.updated_at, g.created_by, g.updated_by,
(SELECT COUNT(*) FROM applications a WHERE a.group_id = g.id AND a.status IN ('Approved', 'Enrolled')) AS member_count
FROM student_groups g`

// StudentGroupRepository persists student groups.
type StudentGroupRepository struct {
	db *sqlx.DB
}

// NewStudentGroupRepository constructs the repository.
func NewStudentGroupRepository(db *sqlx.DB) *StudentGroupRepository {
	return &StudentGroupRepository{db: db}
}

// Create inserts a group.
func (r *StudentGroupRepository) Create(ctx context.Context, group *models.StudentGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.Stamp("", time.Now().UTC())
	}
	const query = `INSERT INTO student_groups (id, course_id, name, gender, capacity, room_id, created_at, updated_at, created_by, updated_by)
VALUES (:id, :course_id, :name, :gender, :capacity, :room_id, :created_at, :updated_at, :created_by, :updated_by)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create student group: %w", err)
	}
	return nil
}

// GetByID returns a group with its member count.
func (r *StudentGroupRepository) GetByID(ctx context.Context, id string) (*models.StudentGroup, error) {
	var group models.StudentGroup
	if err := r.db.GetContext(ctx, &group, groupSelect+` WHERE g.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get student group: %w", err)
	}
	return &group, nil
}

// ListByCourse returns the groups of a course ordered by name.
func (r *StudentGroupRepository) ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error) {
	var groups []models.StudentGroup
	if err := r.db.SelectContext(ctx, &groups, groupSelect+` WHERE g.course_id = $1 ORDER BY g.name ASC`, courseID); err != nil {
		return nil, fmt.Errorf("list student groups: %w", err)
	}
	return groups, nil
}

// Update persists editable fields.
func (r *StudentGroupRepository) Update(ctx context.Context, group *models.StudentGroup) error {
	const query = `UPDATE student_groups SET name = :name, gender = :gender, capacity = :capacity, room_id = :room_id, updated_at = :updated_at, updated_by = :updated_by WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, group)
	if err != nil {
		return fmt.Errorf("update student group: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a group. Member applications become unplaced.
func (r *StudentGroupRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM student_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student group: %w", err)
	}
	return expectAffected(res)
}
