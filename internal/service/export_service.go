package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/export"
	"github.com/noah-isme/sccms-api/pkg/storage"
)

type exportApplications interface {
	ListAll(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error)
	ListPlacements(ctx context.Context, courseID string, kind models.ApplicationKind, statuses []models.ApplicationStatus) ([]models.ApplicationPlacement, error)
}

type attendanceSource interface {
	ListAttendanceRows(ctx context.Context, courseID string) ([]models.AttendanceRow, error)
}

type shiftSource interface {
	List(ctx context.Context, filter models.NightShiftFilter) ([]models.NightShift, error)
	ListAssignments(ctx context.Context, shiftID string) ([]models.NightShiftAssignment, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	Location  *time.Location
}

// ExportRequest selects one tabular dataset of a course.
type ExportRequest struct {
	Type     models.ExportType
	CourseID string
	Format   export.Format
	Kind     models.ApplicationKind
	Status   models.ApplicationStatus
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       export.Format
	ExpiresAt    time.Time
}

const contentTypePDF = "application/pdf"

// ExportService builds course datasets and renders them to spreadsheets and
// PDFs. Asynchronous results are persisted and signed for download.
type ExportService struct {
	courses    courseReader
	apps       exportApplications
	attendance attendanceSource
	shifts     shiftSource
	storage    fileStorage
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(courses courseReader, apps exportApplications, attendance attendanceSource, shifts shiftSource, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ExportService{
		courses:    courses,
		apps:       apps,
		attendance: attendance,
		shifts:     shifts,
		storage:    files,
		signer:     signer,
		logger:     logger,
		cfg:        cfg,
		now:        utcNow,
	}
}

// Render builds the requested dataset and renders it in memory.
func (s *ExportService) Render(ctx context.Context, req ExportRequest) (*ExportFile, error) {
	course, err := s.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, notFoundOr(err, "course")
	}
	dataset, err := s.buildDataset(ctx, course, req)
	if err != nil {
		return nil, err
	}
	data, err := export.WriterFor(req.Format).Render(dataset)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}
	return &ExportFile{
		Filename:    s.buildFilename(course.Name, string(req.Type), req.Format.Extension()),
		ContentType: req.Format.ContentType(),
		Data:        data,
	}, nil
}

// Cards renders one badge per approved or enrolled applicant.
func (s *ExportService) Cards(ctx context.Context, courseID string, kind models.ApplicationKind) (*ExportFile, error) {
	if kind != "" && kind != models.ApplicationKindStudent && kind != models.ApplicationKindVolunteer {
		return nil, appErrors.Clone(appErrors.ErrValidation, "kind must be STUDENT or VOLUNTEER")
	}
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, notFoundOr(err, "course")
	}
	placements, err := s.apps.ListPlacements(ctx, course.ID, kind, models.PlaceableStatuses)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load applicants")
	}
	if len(placements) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no approved applicants to print")
	}
	cards := make([]export.Card, 0, len(placements))
	for _, p := range placements {
		cards = append(cards, export.Card{
			Name:       p.ApplicantName,
			Kind:       strings.ToLower(string(p.Kind)),
			CourseName: course.Name,
			Placement:  p.PlacementName,
			Room:       p.RoomName,
		})
	}
	data, err := export.PDFCards(cards)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render cards")
	}
	return &ExportFile{Filename: s.buildFilename(course.Name, "cards", "pdf"), ContentType: contentTypePDF, Data: data}, nil
}

// Certificates renders a completion certificate for every graduated student.
func (s *ExportService) Certificates(ctx context.Context, courseID string) (*ExportFile, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, notFoundOr(err, "course")
	}
	graduates, err := s.apps.ListAll(ctx, models.ApplicationFilter{
		CourseID: course.ID,
		Kind:     models.ApplicationKindStudent,
		Statuses: []models.ApplicationStatus{models.ApplicationStatusGraduated},
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load graduates")
	}
	if len(graduates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course has no graduated students")
	}
	period := fmt.Sprintf("%s to %s", course.StartDate, course.EndDate)
	certs := make([]export.Certificate, 0, len(graduates))
	for _, app := range graduates {
		certs = append(certs, export.Certificate{
			StudentName: app.ApplicantName,
			CourseName:  course.Name,
			Location:    course.Location,
			Period:      period,
			IssuedOn:    course.EndDate.String(),
		})
	}
	data, err := export.PDFCertificates(certs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render certificates")
	}
	return &ExportFile{Filename: s.buildFilename(course.Name, "certificates", "pdf"), ContentType: contentTypePDF, Data: data}, nil
}

// Generate renders the dataset of a background job and stores it behind a
// signed download token.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	format, err := export.ParseFormat(job.Format)
	if err != nil {
		return nil, err
	}
	file, err := s.Render(ctx, ExportRequest{
		Type:     job.Type,
		CourseID: job.CourseID,
		Format:   format,
		Kind:     job.Params.Kind,
		Status:   job.Params.Status,
	})
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(job.ID+"/"+file.Filename, file.Data)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          s.DownloadURL(token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// DownloadURL returns the API path serving a signed token.
func (s *ExportService) DownloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/export/%s", prefix, token)
}

// SignResult issues a fresh token for a stored result.
func (s *ExportService) SignResult(jobID, relPath string) (string, time.Time, error) {
	return s.signer.Generate(jobID, relPath)
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.DownloadToken, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// ResultTTL is how long finished results stay downloadable.
func (s *ExportService) ResultTTL() time.Duration {
	return s.cfg.ResultTTL
}

func (s *ExportService) buildFilename(courseName, kind, ext string) string {
	timestamp := s.now().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(sanitizeFilename(courseName)), kind, timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, course *models.Course, req ExportRequest) (export.Dataset, error) {
	switch req.Type {
	case models.ExportTypeApplications:
		return s.buildApplicationDataset(ctx, course, req)
	case models.ExportTypeAttendance:
		return s.buildAttendanceDataset(ctx, course)
	case models.ExportTypeNightShifts:
		return s.buildNightShiftDataset(ctx, course)
	default:
		return export.Dataset{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export type %q", req.Type))
	}
}

func (s *ExportService) buildApplicationDataset(ctx context.Context, course *models.Course, req ExportRequest) (export.Dataset, error) {
	filter := models.ApplicationFilter{CourseID: course.ID, Kind: req.Kind}
	if req.Status != "" {
		filter.Statuses = []models.ApplicationStatus{req.Status}
	}
	apps, err := s.apps.ListAll(ctx, filter)
	if err != nil {
		return export.Dataset{}, appErrors.Internal(err, "failed to load applications")
	}
	placements, err := s.apps.ListPlacements(ctx, course.ID, req.Kind, models.PlaceableStatuses)
	if err != nil {
		return export.Dataset{}, appErrors.Internal(err, "failed to load placements")
	}
	placed := make(map[string]models.ApplicationPlacement, len(placements))
	for _, p := range placements {
		placed[p.ApplicationID] = p
	}

	rows := make([][]string, 0, len(apps))
	for _, app := range apps {
		p := placed[app.ID]
		rows = append(rows, []string{
			app.ApplicantName,
			app.ApplicantEmail,
			app.ApplicantGender,
			string(app.Kind),
			string(app.Status),
			app.AppliedAt.In(s.cfg.Location).Format("2006-01-02 15:04"),
			p.PlacementName,
			p.RoomName,
			app.Note,
		})
	}
	return export.Dataset{
		Title:   course.Name + " applications",
		Headers: []string{"Name", "Email", "Gender", "Kind", "Status", "Applied At", "Group/Team", "Room", "Note"},
		Rows:    rows,
	}, nil
}

func (s *ExportService) buildAttendanceDataset(ctx context.Context, course *models.Course) (export.Dataset, error) {
	entries, err := s.attendance.ListAttendanceRows(ctx, course.ID)
	if err != nil {
		return export.Dataset{}, appErrors.Internal(err, "failed to load attendance")
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.ReportDate.String(),
			e.GroupName,
			e.StudentName,
			string(e.Attendance),
			e.Note,
			string(e.ReportStatus),
		})
	}
	return export.Dataset{
		Title:   course.Name + " attendance",
		Headers: []string{"Date", "Group", "Student", "Attendance", "Note", "Report Status"},
		Rows:    rows,
	}, nil
}

func (s *ExportService) buildNightShiftDataset(ctx context.Context, course *models.Course) (export.Dataset, error) {
	shifts, err := s.shifts.List(ctx, models.NightShiftFilter{CourseID: course.ID})
	if err != nil {
		return export.Dataset{}, appErrors.Internal(err, "failed to load night shifts")
	}
	rows := make([][]string, 0, len(shifts))
	for _, shift := range shifts {
		assignments, err := s.shifts.ListAssignments(ctx, shift.ID)
		if err != nil {
			return export.Dataset{}, appErrors.Internal(err, "failed to load assignments")
		}
		var staff []string
		for _, a := range assignments {
			if a.Status == models.AssignmentStatusAssigned {
				staff = append(staff, a.UserName)
			}
		}
		rows = append(rows, []string{
			shift.ShiftDate.String(),
			shift.RoomName,
			shift.StartAt.In(s.cfg.Location).Format("15:04"),
			shift.EndAt.In(s.cfg.Location).Format("15:04"),
			strconv.Itoa(shift.RequiredStaff),
			strconv.Itoa(shift.ActiveAssigned),
			string(models.Staffing(shift.ActiveAssigned, shift.RequiredStaff)),
			strings.Join(staff, ", "),
		})
	}
	return export.Dataset{
		Title:   course.Name + " night shifts",
		Headers: []string{"Date", "Room", "Start", "End", "Required", "Assigned", "Staffing", "Staff"},
		Rows:    rows,
	}, nil
}
