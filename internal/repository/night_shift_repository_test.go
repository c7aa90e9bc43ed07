package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sccms-api/internal/models"
)

func TestAssignRejectsFullShift(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNightShiftRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT id FROM night_shifts WHERE id = $1 FOR UPDATE")).WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM night_shift_assignments WHERE night_shift_id = $1 AND status = 'assigned'")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.Assign(context.Background(), &models.NightShiftAssignment{NightShiftID: "s1", UserID: "u1"}, 2)
	assert.ErrorIs(t, err, ErrShiftFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignInsertsWhenSlotOpen(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNightShiftRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("FOR UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM night_shift_assignments")).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO night_shift_assignments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	assignment := &models.NightShiftAssignment{NightShiftID: "s1", UserID: "u1"}
	require.NoError(t, repo.Assign(context.Background(), assignment, 2))
	assert.NotEmpty(t, assignment.ID)
	assert.Equal(t, models.AssignmentStatusAssigned, assignment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignMapsUniqueViolationToDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNightShiftRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("FOR UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM night_shift_assignments")).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO night_shift_assignments").WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_night_shift_active_user"})
	mock.ExpectRollback()

	err := repo.Assign(context.Background(), &models.NightShiftAssignment{NightShiftID: "s1", UserID: "u1"}, 2)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReassignIsTransactional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNightShiftRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("FOR UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM night_shift_assignments")).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'reassigned'")).WithArgs("old", sqlmock.AnyArg(), "m1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO night_shift_assignments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	previous := &models.NightShiftAssignment{ID: "old", NightShiftID: "s1", UserID: "u1", Status: models.AssignmentStatusRejected}
	replacement := &models.NightShiftAssignment{UserID: "u2"}
	require.NoError(t, repo.Reassign(context.Background(), previous, replacement, 1, "m1"))
	require.NotNil(t, replacement.ReassignedFrom)
	assert.Equal(t, "old", *replacement.ReassignedFrom)
	assert.Equal(t, "s1", replacement.NightShiftID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReassignRollsBackWhenNoLongerRejected(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNightShiftRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("FOR UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM night_shift_assignments")).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'reassigned'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	previous := &models.NightShiftAssignment{ID: "old", NightShiftID: "s1"}
	err := repo.Reassign(context.Background(), previous, &models.NightShiftAssignment{UserID: "u2"}, 1, "m1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuggestionsDefaultsLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNightShiftRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY active_assignments ASC, u.full_name ASC LIMIT $2")).
		WithArgs("s1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "full_name", "email", "role", "active_assignments"}).
			AddRow("u1", "Ann", "ann@example.com", "STAFF", 0))

	suggestions, err := repo.Suggestions(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, models.RoleStaff, suggestions[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}
