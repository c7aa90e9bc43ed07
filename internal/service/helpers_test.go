package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/sccms-api/internal/models"
)

type auditRecorder struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type notifierStub struct {
	sent []*models.Notification
	err  error
}

func (n *notifierStub) Notify(ctx context.Context, notification *models.Notification) error {
	if n == nil {
		return nil
	}
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

type cacheStub struct {
	invalidated []string
}

func (c *cacheStub) InvalidateCourse(ctx context.Context, courseID string) {
	if c == nil {
		return
	}
	c.invalidated = append(c.invalidated, courseID)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptr[T any](v T) *T {
	return &v
}

var (
	adminActor     = Actor{ID: "admin-1", Role: models.RoleAdmin}
	managerActor   = Actor{ID: "manager-1", Role: models.RoleManager}
	secretaryActor = Actor{ID: "secretary-1", Role: models.RoleSecretary}
	staffActor     = Actor{ID: "staff-1", Role: models.RoleStaff}
)
