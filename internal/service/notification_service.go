package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/jobs"
	"github.com/noah-isme/sccms-api/pkg/mailer"
	"github.com/noah-isme/sccms-api/pkg/validation"
)

// EmailJobType is the queue job type of notification emails.
const EmailJobType = "email"

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	UpdateEmailStatus(ctx context.Context, id string, status models.EmailStatus) error
	ListPendingEmails(ctx context.Context, limit int) ([]models.Notification, error)
}

type notificationUsers interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActiveByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error)
}

type applicantLister interface {
	ListAll(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// NotificationService stores in-app notifications and queues their email
// copies.
type NotificationService struct {
	repo      notificationRepository
	users     notificationUsers
	apps      applicantLister
	courses   courseReader
	queue     jobDispatcher
	sender    mailer.Sender
	recorder  recorder
	metrics   *MetricsService
	validator *validation.Validator
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService constructs a NotificationService. queue may be set
// later with SetQueue once the worker pool exists.
func NewNotificationService(repo notificationRepository, users notificationUsers, apps applicantLister, courses courseReader, sender mailer.Sender, audit auditWriter, metrics *MetricsService, validate *validation.Validator, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if sender == nil {
		sender = mailer.NewLogSender(logger, "")
	}
	return &NotificationService{
		repo:      repo,
		users:     users,
		apps:      apps,
		courses:   courses,
		sender:    sender,
		recorder:  newRecorder(audit, metrics, logger),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       utcNow,
	}
}

// SetQueue wires the queue that delivers emails.
func (s *NotificationService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// Notify stores n and queues its email copy. A notification for a user
// without an explicit recipient is emailed to the user's address.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	return s.deliver(ctx, n, true)
}

func (s *NotificationService) deliver(ctx context.Context, n *models.Notification, email bool) error {
	if !email {
		n.Recipient = ""
	} else if n.Recipient == "" && n.UserID != nil {
		if user, err := s.users.FindByID(ctx, *n.UserID); err == nil && user.Active {
			n.Recipient = user.Email
		}
	}
	n.EmailStatus = models.EmailStatusSkipped
	if n.Recipient != "" {
		n.EmailStatus = models.EmailStatusPending
	}
	n.CreatedAt = s.now()

	if err := s.repo.Create(ctx, n); err != nil {
		return appErrors.Internal(err, "failed to store notification")
	}
	if n.EmailStatus == models.EmailStatusPending {
		s.enqueue(n.ID)
	}
	return nil
}

// enqueue leaves the row PENDING on failure so RecoverPendingEmails can
// replay it.
func (s *NotificationService) enqueue(id string) {
	if s.queue == nil {
		s.logger.Warn("email queue not configured", zap.String("notification_id", id))
		return
	}
	if err := s.queue.Enqueue(jobs.Job{ID: id, Type: EmailJobType}); err != nil {
		s.logger.Warn("failed to enqueue email", zap.String("notification_id", id), zap.Error(err))
	}
}

// HandleEmail is the queue handler delivering one notification email.
func (s *NotificationService) HandleEmail(ctx context.Context, job jobs.Job) error {
	n, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if n.EmailStatus != models.EmailStatusPending {
		return nil
	}
	msg := mailer.Message{
		To:       []mailer.Address{{Email: n.Recipient}},
		Subject:  n.Title,
		Text:     n.Body,
		Category: strings.ToLower(n.Type),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.RecordEmail("retry")
		return err
	}
	if err := s.repo.UpdateEmailStatus(ctx, n.ID, models.EmailStatusSent); err != nil {
		s.logger.Warn("failed to mark email sent", zap.String("notification_id", n.ID), zap.Error(err))
	}
	s.metrics.RecordEmail("sent")
	return nil
}

// EmailGiveUp marks an email FAILED once the queue stops retrying it.
func (s *NotificationService) EmailGiveUp(ctx context.Context, job jobs.Job, cause error) {
	if err := s.repo.UpdateEmailStatus(context.WithoutCancel(ctx), job.ID, models.EmailStatusFailed); err != nil {
		s.logger.Warn("failed to mark email failed", zap.String("notification_id", job.ID), zap.Error(err))
	}
	s.metrics.RecordEmail("failed")
	s.logger.Error("email delivery failed", zap.String("notification_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(cause))
}

// RecoverPendingEmails requeues emails left PENDING by a previous process.
func (s *NotificationService) RecoverPendingEmails(ctx context.Context) {
	pending, err := s.repo.ListPendingEmails(ctx, 500)
	if err != nil {
		s.logger.Warn("failed to list pending emails", zap.Error(err))
		return
	}
	for _, n := range pending {
		s.enqueue(n.ID)
	}
	if len(pending) > 0 {
		s.logger.Info("requeued pending emails", zap.Int("count", len(pending)))
	}
}

// List returns the caller's notifications.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list notifications")
	}
	return items, paginate(filter.Page, filter.PageSize, total), nil
}

// MarkRead marks one of the user's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, id, userID, s.now()); err != nil {
		return notFoundOr(err, "notification")
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, appErrors.Internal(err, "failed to mark notifications read")
	}
	return n, nil
}

// Broadcast notifies every active user holding one of the roles, optionally
// with an email copy.
func (s *NotificationService) Broadcast(ctx context.Context, actor Actor, req dto.BroadcastRequest) (*dto.DeliveryResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	users, err := s.users.ListActiveByRoles(ctx, req.Roles)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list recipients")
	}

	result := &dto.DeliveryResult{}
	for i := range users {
		userID := users[i].ID
		n := &models.Notification{
			UserID:    &userID,
			Type:      models.NotificationBroadcast,
			Title:     strings.TrimSpace(req.Title),
			Body:      req.Body,
			Recipient: users[i].Email,
		}
		if err := s.deliver(ctx, n, req.Email); err != nil {
			return nil, err
		}
		if req.Email && n.EmailStatus == models.EmailStatusSkipped {
			result.Skipped++
			continue
		}
		result.Queued++
	}
	s.recorder.log(ctx, actor, models.AuditActionCreate, "broadcast", "", nil, map[string]interface{}{
		"roles": req.Roles, "title": req.Title, "email": req.Email, "recipients": result.Queued,
	})
	return result, nil
}

// CourseEmail emails every applicant of a course matching the filters. An
// address is mailed once even when it applied as student and volunteer.
func (s *NotificationService) CourseEmail(ctx context.Context, actor Actor, courseID string, req dto.CourseEmailRequest) (*dto.DeliveryResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, notFoundOr(err, "course")
	}
	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = []models.ApplicationStatus{
			models.ApplicationStatusPending, models.ApplicationStatusApproved, models.ApplicationStatusRejected,
			models.ApplicationStatusEnrolled, models.ApplicationStatusDropOut, models.ApplicationStatusGraduated,
		}
	}
	apps, err := s.apps.ListAll(ctx, models.ApplicationFilter{CourseID: course.ID, Kind: req.Kind, Statuses: statuses})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list applicants")
	}

	result := &dto.DeliveryResult{}
	seen := make(map[string]struct{}, len(apps))
	for _, app := range apps {
		email := strings.ToLower(strings.TrimSpace(app.ApplicantEmail))
		if email == "" {
			result.Skipped++
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}

		courseRef := course.ID
		n := &models.Notification{
			CourseID:  &courseRef,
			Type:      models.NotificationCourseEmail,
			Title:     strings.TrimSpace(req.Subject),
			Body:      req.Body,
			Recipient: email,
		}
		if err := s.deliver(ctx, n, true); err != nil {
			return nil, err
		}
		result.Queued++
	}
	s.recorder.log(ctx, actor, models.AuditActionCreate, "course_email", course.ID, nil, map[string]interface{}{
		"subject": req.Subject, "kind": req.Kind, "statuses": statuses, "queued": result.Queued, "skipped": result.Skipped,
	})
	return result, nil
}
