package service

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/export"
	"github.com/noah-isme/sccms-api/pkg/storage"
)

type exportAppsStub struct {
	apps       []models.Application
	placements []models.ApplicationPlacement
	filter     models.ApplicationFilter
}

func (s *exportAppsStub) ListAll(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	s.filter = filter
	return s.apps, nil
}

func (s *exportAppsStub) ListPlacements(ctx context.Context, courseID string, kind models.ApplicationKind, statuses []models.ApplicationStatus) ([]models.ApplicationPlacement, error) {
	return s.placements, nil
}

type attendanceStub []models.AttendanceRow

func (a attendanceStub) ListAttendanceRows(ctx context.Context, courseID string) ([]models.AttendanceRow, error) {
	return a, nil
}

type exportShiftsStub struct {
	shifts      []models.NightShift
	assignments map[string][]models.NightShiftAssignment
}

func (s exportShiftsStub) List(ctx context.Context, filter models.NightShiftFilter) ([]models.NightShift, error) {
	return s.shifts, nil
}

func (s exportShiftsStub) ListAssignments(ctx context.Context, shiftID string) ([]models.NightShiftAssignment, error) {
	return s.assignments[shiftID], nil
}

func exportCourse() models.Course {
	return models.Course{
		ID:        "course-1",
		Name:      "Summer Camp",
		Location:  "Lakeside",
		Status:    models.CourseStatusInProgress,
		StartDate: models.NewDate(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)),
		EndDate:   models.NewDate(time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)),
	}
}

func newExportServiceForTest(t *testing.T, apps *exportAppsStub) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}

	shiftDate := models.NewDate(time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC))
	shifts := exportShiftsStub{
		shifts: []models.NightShift{{
			ID: "shift-1", ShiftDate: shiftDate, RoomName: "Hall",
			StartAt:       time.Date(2026, 7, 10, 22, 0, 0, 0, time.UTC),
			EndAt:         time.Date(2026, 7, 11, 6, 0, 0, 0, time.UTC),
			RequiredStaff: 2, ActiveAssigned: 1,
		}},
		assignments: map[string][]models.NightShiftAssignment{
			"shift-1": {
				{ID: "a1", Status: models.AssignmentStatusRejected, UserName: "Rae"},
				{ID: "a2", Status: models.AssignmentStatusAssigned, UserName: "Kim"},
			},
		},
	}
	attendance := attendanceStub{{ReportDate: shiftDate, GroupName: "A", StudentName: "Ana", Attendance: models.AttendancePresent, ReportStatus: models.ReportStatusAttended}}

	svc := NewExportService(newCourseRepoStub(exportCourse()), apps, attendance, shifts, store, signer, cfg, zap.NewNop())
	svc.now = fixedClock(time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC))
	return svc, store
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportServiceRenderApplicationsCSV(t *testing.T) {
	apps := &exportAppsStub{
		apps: []models.Application{
			{ID: "app-1", Kind: models.ApplicationKindStudent, Status: models.ApplicationStatusApproved, ApplicantName: "Ana", ApplicantEmail: "ana@example.com", AppliedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)},
			{ID: "app-2", Kind: models.ApplicationKindStudent, Status: models.ApplicationStatusApproved, ApplicantName: "Bo"},
		},
		placements: []models.ApplicationPlacement{{ApplicationID: "app-1", PlacementName: "Group A", RoomName: "Hall"}},
	}
	svc, _ := newExportServiceForTest(t, apps)

	file, err := svc.Render(context.Background(), ExportRequest{
		Type: models.ExportTypeApplications, CourseID: "course-1", Format: export.FormatCSV,
		Kind: models.ApplicationKindStudent, Status: models.ApplicationStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, "summer_camp_applications_20260710_120000.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, []models.ApplicationStatus{models.ApplicationStatusApproved}, apps.filter.Statuses)

	records := readCSV(t, file.Data)
	require.Len(t, records, 3)
	assert.Equal(t, "Name", records[0][0])
	assert.Equal(t, []string{"Ana", "ana@example.com", "", "STUDENT", "Approved", "2026-05-01 09:30", "Group A", "Hall", ""}, records[1])
	assert.Equal(t, "", records[2][6])
}

func TestExportServiceRenderNightShiftsListsActiveStaff(t *testing.T) {
	svc, _ := newExportServiceForTest(t, &exportAppsStub{})

	file, err := svc.Render(context.Background(), ExportRequest{Type: models.ExportTypeNightShifts, CourseID: "course-1", Format: export.FormatCSV})
	require.NoError(t, err)
	records := readCSV(t, file.Data)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"2026-07-10", "Hall", "22:00", "06:00", "2", "1", "partial", "Kim"}, records[1])
}

func TestExportServiceRenderAttendanceXLSX(t *testing.T) {
	svc, _ := newExportServiceForTest(t, &exportAppsStub{})

	file, err := svc.Render(context.Background(), ExportRequest{Type: models.ExportTypeAttendance, CourseID: "course-1", Format: export.FormatXLSX})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(file.Filename, ".xlsx"))
	assert.NotEmpty(t, file.Data)
}

func TestExportServiceRenderErrors(t *testing.T) {
	svc, _ := newExportServiceForTest(t, &exportAppsStub{})

	_, err := svc.Render(context.Background(), ExportRequest{Type: models.ExportTypeAttendance, CourseID: "missing", Format: export.FormatCSV})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Render(context.Background(), ExportRequest{Type: "grades", CourseID: "course-1", Format: export.FormatCSV})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCardsAndCertificates(t *testing.T) {
	apps := &exportAppsStub{}
	svc, _ := newExportServiceForTest(t, apps)

	_, err := svc.Cards(context.Background(), "course-1", "")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	_, err = svc.Cards(context.Background(), "course-1", "GUEST")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	apps.placements = []models.ApplicationPlacement{{ApplicationID: "app-1", Kind: models.ApplicationKindStudent, ApplicantName: "Ana", PlacementName: "Group A", RoomName: "Hall"}}
	cards, err := svc.Cards(context.Background(), "course-1", models.ApplicationKindStudent)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", cards.ContentType)
	assert.True(t, strings.HasPrefix(string(cards.Data), "%PDF"))

	apps.apps = []models.Application{{ID: "app-1", ApplicantName: "Ana", Status: models.ApplicationStatusGraduated}}
	certs, err := svc.Certificates(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "summer_camp_certificates_20260710_120000.pdf", certs.Filename)
	assert.Equal(t, []models.ApplicationStatus{models.ApplicationStatusGraduated}, apps.filter.Statuses)
	assert.Equal(t, models.ApplicationKindStudent, apps.filter.Kind)
}

func TestExportServiceGenerateStoresSignedResult(t *testing.T) {
	svc, store := newExportServiceForTest(t, &exportAppsStub{})
	job := &models.ExportJob{ID: "job-1", Type: models.ExportTypeNightShifts, CourseID: "course-1", Format: "csv"}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "job-1/summer_camp_night-shifts_20260710_120000.csv", result.RelativePath)
	assert.Equal(t, "/api/v1/export/"+result.Token, result.URL)
	assert.Equal(t, export.FormatCSV, result.Format)

	token, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", token.JobID)
	assert.Equal(t, result.RelativePath, token.Path)

	f, err := store.Open(result.RelativePath)
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Kim")

	_, err = svc.Generate(context.Background(), &models.ExportJob{ID: "job-2", Type: models.ExportTypeNightShifts, CourseID: "course-1", Format: "pdf"})
	require.Error(t, err)
}
