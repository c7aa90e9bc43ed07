package mailer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/pkg/config"
)

// Address is a named email recipient.
type Address struct {
	Name  string
	Email string
}

// Message is a single outgoing email.
type Message struct {
	To       []Address
	Subject  string
	Text     string
	HTML     string
	Category string
}

// Valid reports whether the message has at least one recipient and content.
func (m Message) Valid() bool {
	if len(m.To) == 0 {
		return false
	}
	for _, to := range m.To {
		if strings.TrimSpace(to.Email) == "" {
			return false
		}
	}
	return m.Text != "" || m.HTML != ""
}

// Sender delivers messages synchronously; callers queue them for retries.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the provider from config.
func New(cfg config.MailConfig, appName string, logger *zap.Logger) (Sender, error) {
	prefix := subjectPrefix(appName)
	switch cfg.Provider {
	case "", config.MailProviderLog:
		return NewLogSender(logger, prefix), nil
	case config.MailProviderSendgrid:
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires SENDGRID_API_KEY")
		}
		fromName := cfg.FromName
		if fromName == "" {
			fromName = appName
		}
		return NewSendgridSender(cfg.SendgridAPIKey, fromName, cfg.FromAddress, prefix), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

func subjectPrefix(appName string) string {
	if appName == "" {
		return ""
	}
	return "[" + appName + "] "
}
