package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/workflow"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

// Actor identifies who triggers a service operation.
type Actor struct {
	ID        string
	Role      models.UserRole
	IP        string
	UserAgent string
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type courseCache interface {
	InvalidateCourse(ctx context.Context, courseID string)
}

type notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// recorder writes audit rows and transition metrics. Failures never abort
// the operation that triggered them.
type recorder struct {
	audit   auditWriter
	metrics *MetricsService
	logger  *zap.Logger
}

func newRecorder(audit auditWriter, metrics *MetricsService, logger *zap.Logger) recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return recorder{audit: audit, metrics: metrics, logger: logger}
}

func (r recorder) log(ctx context.Context, actor Actor, action, resource, resourceID string, oldValues, newValues interface{}) {
	if r.audit == nil {
		return
	}
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		Resource:  resource,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
	if actor.ID != "" {
		id := actor.ID
		entry.UserID = &id
	}
	if resourceID != "" {
		rid := resourceID
		entry.ResourceID = &rid
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := r.audit.CreateAuditLog(ctx, entry); err != nil {
		r.logger.Warn("failed to write audit log",
			zap.String("action", action), zap.String("resource", resource), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func (r recorder) transition(ctx context.Context, actor Actor, entity workflow.Entity, id, from, to string, extra map[string]interface{}) {
	r.metrics.RecordTransition(string(entity), from, to)
	next := map[string]interface{}{"status": to}
	for k, v := range extra {
		next[k] = v
	}
	r.log(ctx, actor, models.AuditActionTransition, string(entity), id, map[string]interface{}{"status": from}, next)
}

func (r recorder) notify(ctx context.Context, n notifier, notification *models.Notification) {
	if n == nil || notification == nil {
		return
	}
	if err := n.Notify(ctx, notification); err != nil {
		r.logger.Warn("failed to queue notification", zap.String("type", notification.Type), zap.Error(err))
	}
}

// notFoundOr maps sql.ErrNoRows to NOT_FOUND and anything else to an
// internal error.
func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, "failed to load "+what)
}

// staleOr maps sql.ErrNoRows from a guarded update to a conflict: the row
// changed status between read and write.
func staleOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConflict, what+" was modified concurrently")
	}
	return appErrors.Internal(err, "failed to update "+what)
}

func paginate(page, pageSize, total int) *models.Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
