package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sccms-api/internal/models"
)

func TestCourseListHidesDeletedByDefault(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE status <> 'deleted' AND (LOWER(name) LIKE $1 OR LOWER(location) LIKE $1) ORDER BY start_date DESC LIMIT 20 OFFSET 0")).
		WithArgs("%camp%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).AddRow("c1", "Camp", "recruiting"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE status <> 'deleted'")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{Search: "Camp"})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, models.CourseStatusRecruiting, courses[0].Status)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseListByExplicitStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE status IN ($1) ORDER BY name ASC")).
		WithArgs("deleted").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE status IN ($1)")).
		WithArgs("deleted").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), models.CourseFilter{
		Statuses:  []models.CourseStatus{models.CourseStatusDeleted},
		SortBy:    "name",
		SortOrder: "ASC",
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseUpdateStatusGuardsCurrentStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET status = $3, updated_at = $4, updated_by = $5 WHERE id = $1 AND status = $2")).
		WithArgs("c1", "inProgress", "closed", sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "c1", models.CourseStatusInProgress, models.CourseStatusClosed, "u1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
