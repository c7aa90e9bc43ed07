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

const personColumns = `id, full_name, email, phone, gender, date_of_birth, address, note, active, created_at, updated_at, created_by, updated_by`

// PersonRepository persists students or volunteers. Both tables share one
// layout so a single implementation serves either.
type PersonRepository struct {
	db    *sqlx.DB
	table string
	kind  models.PersonKind
}

// NewStudentRepository returns a repository over the students table.
func NewStudentRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db, table: "students", kind: models.PersonKindStudent}
}

// NewVolunteerRepository returns a repository over the volunteers table.
func NewVolunteerRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db, table: "volunteers", kind: models.PersonKindVolunteer}
}

// Kind reports which people table the repository serves.
func (r *PersonRepository) Kind() models.PersonKind {
	return r.kind
}

// Create inserts a person.
func (r *PersonRepository) Create(ctx context.Context, person *models.Person) error {
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	if person.CreatedAt.IsZero() {
		person.Stamp("", time.Now().UTC())
	}
	query := `INSERT INTO ` + r.table + ` (id, full_name, email, phone, gender, date_of_birth, address, note, active, created_at, updated_at, created_by, updated_by)
VALUES (:id, :full_name, :email, :phone, :gender, :date_of_birth, :address, :note, :active, :created_at, :updated_at, :created_by, :updated_by)`
	if _, err := r.db.NamedExecContext(ctx, query, person); err != nil {
		return fmt.Errorf("create %s: %w", r.kind, err)
	}
	return nil
}

// GetByID returns a person by id.
func (r *PersonRepository) GetByID(ctx context.Context, id string) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM ` + r.table + ` WHERE id = $1`
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get %s: %w", r.kind, err)
	}
	return &person, nil
}

// List returns people matching the filter with total count.
func (r *PersonRepository) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error) {
	var b conditionBuilder
	if filter.Search != "" {
		b.add("(LOWER(full_name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?)", "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Gender != "" {
		b.add("gender = ?", filter.Gender)
	}
	if filter.Active != nil {
		b.add("active = ?", *filter.Active)
	}
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY full_name ASC LIMIT %d OFFSET %d", personColumns, r.table, b.where(), limit, offset)
	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, b.args...); err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", r.table, err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM "+r.table+b.where(), b.args...); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", r.table, err)
	}
	return people, total, nil
}

// Update persists editable fields.
func (r *PersonRepository) Update(ctx context.Context, person *models.Person) error {
	query := `UPDATE ` + r.table + ` SET full_name = :full_name, email = :email, phone = :phone, gender = :gender,
date_of_birth = :date_of_birth, address = :address, note = :note, active = :active, updated_at = :updated_at, updated_by = :updated_by WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, person)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.kind, err)
	}
	return expectAffected(res)
}

// Deactivate marks the person inactive.
func (r *PersonRepository) Deactivate(ctx context.Context, id, actorID string) error {
	query := `UPDATE ` + r.table + ` SET active = FALSE, updated_at = $2, updated_by = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), nullable(actorID))
	if err != nil {
		return fmt.Errorf("deactivate %s: %w", r.kind, err)
	}
	return expectAffected(res)
}
