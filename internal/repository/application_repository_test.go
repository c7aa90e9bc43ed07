package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sccms-api/internal/models"
)

func TestApplicationExistsUsesKindColumn(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM applications WHERE course_id = $1 AND volunteer_id = $2)")).
		WithArgs("c1", "v1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "c1", models.ApplicationKindVolunteer, "v1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationCreateMapsUniqueViolationToDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)
	studentID := "s1"

	mock.ExpectExec("INSERT INTO applications").WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_applications_student"})
	err := repo.Create(context.Background(), &models.Application{CourseID: "c1", Kind: models.ApplicationKindStudent, StudentID: &studentID})
	assert.ErrorIs(t, err, ErrDuplicate)

	mock.ExpectExec("INSERT INTO applications").WillReturnError(&pq.Error{Code: "23503"})
	err = repo.Create(context.Background(), &models.Application{CourseID: "c1", Kind: models.ApplicationKindStudent, StudentID: &studentID})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.course_id = $1 AND a.kind = $2 AND a.status IN ($3, $4) AND a.group_id IS NULL AND a.team_id IS NULL ORDER BY a.applied_at ASC LIMIT 20 OFFSET 0")).
		WithArgs("c1", "STUDENT", "Approved", "Enrolled").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "kind", "status", "applied_at", "applicant_name"}).
			AddRow("a1", "c1", "STUDENT", "Approved", now, "Ann"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications a")).
		WithArgs("c1", "STUDENT", "Approved", "Enrolled").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	apps, total, err := repo.List(context.Background(), models.ApplicationFilter{
		CourseID:  "c1",
		Kind:      models.ApplicationKindStudent,
		Statuses:  models.PlaceableStatuses,
		Unplaced:  true,
		SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "Ann", apps[0].ApplicantName)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationUpdateStatusClearsPlacement(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status = $3, rejection_reason = $4, updated_at = $5, updated_by = $6, group_id = NULL, team_id = NULL WHERE id = $1 AND status = $2")).
		WithArgs("a1", "Enrolled", "DropOut", "", sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "a1", models.ApplicationStatusEnrolled, models.ApplicationStatusDropOut, "", true, "u1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationUpdateStatusStale(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status = $3")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "a1", models.ApplicationStatusPending, models.ApplicationStatusApproved, "", false, "u1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestApprovePendingRespectsCapacity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT id FROM courses WHERE id = $1 FOR UPDATE")).WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications WHERE course_id = $1 AND kind = $2 AND status IN ($3, $4, $5)")).
		WithArgs("c1", "STUDENT", "Approved", "Enrolled", "Graduated").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("a.status = 'Pending' ORDER BY a.applied_at ASC, a.id ASC LIMIT $3")).
		WithArgs("c1", "STUDENT", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "kind", "status", "applied_at"}).
			AddRow("a1", "c1", "STUDENT", "Pending", now.Add(-time.Hour)).
			AddRow("a2", "c1", "STUDENT", "Pending", now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status = 'Approved'")).WithArgs("a1", sqlmock.AnyArg(), "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status = 'Approved'")).WithArgs("a2", sqlmock.AnyArg(), "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	approved, err := repo.ApprovePending(context.Background(), "c1", models.ApplicationKindStudent, 3, "u1")
	require.NoError(t, err)
	require.Len(t, approved, 2)
	assert.Equal(t, models.ApplicationStatusApproved, approved[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovePendingCourseFull(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("FOR UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications")).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectCommit()

	approved, err := repo.ApprovePending(context.Background(), "c1", models.ApplicationKindStudent, 5, "u1")
	require.NoError(t, err)
	assert.Empty(t, approved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovePendingRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("FOR UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("a.status = 'Pending'").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := repo.ApprovePending(context.Background(), "c1", models.ApplicationKindVolunteer, 0, "u1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
