package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sccms-api/internal/models"
)

const reportColumns = `id, course_id, type, report_date, group_id, night_shift_id, status, due_at, submitted_by, submitted_at, read_by, read_at,
reopened_by, reopened_at, reopen_reason, summary, created_at, updated_at, created_by, updated_by`

// ReportRepository persists attendance and night-shift reports.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// CreateIfAbsent inserts the report unless one already exists for the same
// group and date or the same night shift. It reports whether a row was
// inserted.
func (r *ReportRepository) CreateIfAbsent(ctx context.Context, report *models.Report) (bool, error) {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.ReportStatusNotYet
	}
	if report.CreatedAt.IsZero() {
		report.Stamp("", time.Now().UTC())
	}
	const query = `INSERT INTO reports (id, course_id, type, report_date, group_id, night_shift_id, status, due_at, summary, created_at, updated_at, created_by, updated_by)
VALUES (:id, :course_id, :type, :report_date, :group_id, :night_shift_id, :status, :due_at, :summary, :created_at, :updated_at, :created_by, :updated_by)
ON CONFLICT DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, report)
	if err != nil {
		return false, fmt.Errorf("create report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// FindExisting returns the report occupying the same slot as report.
func (r *ReportRepository) FindExisting(ctx context.Context, report *models.Report) (*models.Report, error) {
	var (
		query string
		args  []interface{}
	)
	if report.Type == models.ReportTypeNightShift {
		query = `SELECT ` + reportColumns + ` FROM reports WHERE type = 'NIGHT_SHIFT' AND night_shift_id = $1`
		args = []interface{}{report.NightShiftID}
	} else {
		query = `SELECT ` + reportColumns + ` FROM reports WHERE type = 'ATTENDANCE' AND group_id = $1 AND report_date = $2`
		args = []interface{}{report.GroupID, report.ReportDate}
	}
	var existing models.Report
	if err := r.db.GetContext(ctx, &existing, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find existing report: %w", err)
	}
	return &existing, nil
}

// GetByID returns a report with its attendance entries.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	if err := r.db.GetContext(ctx, &report, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	const entriesQuery = `SELECT e.report_id, e.student_id, s.full_name AS student_name, e.attendance, e.note
FROM report_entries e JOIN students s ON s.id = e.student_id WHERE e.report_id = $1 ORDER BY s.full_name ASC`
	if err := r.db.SelectContext(ctx, &report.Entries, entriesQuery, id); err != nil {
		return nil, fmt.Errorf("list report entries: %w", err)
	}
	return &report, nil
}

// List returns a page of reports with total count.
func (r *ReportRepository) List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error) {
	var b conditionBuilder
	if filter.CourseID != "" {
		b.add("course_id = ?", filter.CourseID)
	}
	if filter.Type != "" {
		b.add("type = ?", filter.Type)
	}
	b.addIn("status", stringsOf(filter.Statuses))
	if filter.Date != nil {
		b.add("report_date = ?", *filter.Date)
	}
	if filter.GroupID != "" {
		b.add("group_id = ?", filter.GroupID)
	}
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM reports%s ORDER BY report_date DESC, type ASC, created_at ASC LIMIT %d OFFSET %d", reportColumns, b.where(), limit, offset)
	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, query, b.args...); err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM reports"+b.where(), b.args...); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}
	return reports, total, nil
}

// SaveContent stores the summary and replaces the attendance entries in one
// transaction: entries missing from the payload are deleted and the rest
// upserted. It only touches reports still in an editable status and returns
// sql.ErrNoRows otherwise.
func (r *ReportRepository) SaveContent(ctx context.Context, id, summary string, entries []models.ReportEntry, actorID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save report: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE reports SET summary = $2, updated_at = $3, updated_by = $4 WHERE id = $1 AND status IN ('NotYet', 'Attending', 'Reopened')`,
		id, summary, now, nullable(actorID))
	if err != nil {
		return fmt.Errorf("update report summary: %w", err)
	}
	if err = expectAffected(res); err != nil {
		return err
	}

	keep := make([]string, 0, len(entries))
	for _, entry := range entries {
		keep = append(keep, entry.StudentID)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM report_entries WHERE report_id = $1 AND NOT (student_id = ANY($2))`, id, pq.Array(keep)); err != nil {
		return fmt.Errorf("delete dropped report entries: %w", err)
	}

	const upsert = `INSERT INTO report_entries (report_id, student_id, attendance, note, updated_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (report_id, student_id) DO UPDATE SET attendance = EXCLUDED.attendance, note = EXCLUDED.note, updated_at = EXCLUDED.updated_at`
	for _, entry := range entries {
		if _, err = tx.ExecContext(ctx, upsert, id, entry.StudentID, entry.Attendance, entry.Note, now); err != nil {
			return fmt.Errorf("upsert report entry %s: %w", entry.StudentID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save report: %w", err)
	}
	return nil
}

// UpdateStatus applies a transition guarded by the expected current status,
// stamping the submit, read or reopen columns that belong to the target.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, t models.ReportTransition) error {
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	actor := nullable(t.ActorID)

	query := `UPDATE reports SET status = $3, updated_at = $4, updated_by = $5`
	args := []interface{}{id, t.From, t.To, at, actor}
	switch t.To {
	case models.ReportStatusAttended, models.ReportStatusLate:
		query += `, submitted_by = $5, submitted_at = $4`
	case models.ReportStatusRead:
		query += `, read_by = $5, read_at = $4`
	case models.ReportStatusReopened:
		query += `, reopened_by = $5, reopened_at = $4, reopen_reason = $6`
		args = append(args, t.Reason)
	}
	query += ` WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	return expectAffected(res)
}

// CountByCourse returns the per type and status breakdown of a course.
func (r *ReportRepository) CountByCourse(ctx context.Context, courseID string) ([]models.ReportStatusCount, error) {
	const query = `SELECT type, status, COUNT(*) AS count FROM reports WHERE course_id = $1 GROUP BY type, status ORDER BY type, status`
	var counts []models.ReportStatusCount
	if err := r.db.SelectContext(ctx, &counts, query, courseID); err != nil {
		return nil, fmt.Errorf("count reports by course: %w", err)
	}
	return counts, nil
}

// ListAttendanceRows flattens every attendance entry of a course.
func (r *ReportRepository) ListAttendanceRows(ctx context.Context, courseID string) ([]models.AttendanceRow, error) {
	const query = `SELECT rp.report_date, g.name AS group_name, s.full_name AS student_name, e.attendance, e.note, rp.status AS report_status
FROM report_entries e
JOIN reports rp ON rp.id = e.report_id
JOIN student_groups g ON g.id = rp.group_id
JOIN students s ON s.id = e.student_id
WHERE rp.course_id = $1 AND rp.type = 'ATTENDANCE'
ORDER BY rp.report_date ASC, g.name ASC, s.full_name ASC`
	var rows []models.AttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("list attendance rows: %w", err)
	}
	return rows, nil
}
