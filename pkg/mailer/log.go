package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// LogSender writes emails to the logger instead of delivering them.
type LogSender struct {
	logger     *zap.Logger
	subjPrefix string
}

// NewLogSender returns a sender for development and tests.
func NewLogSender(logger *zap.Logger, subjPrefix string) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger, subjPrefix: subjPrefix}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if !msg.Valid() {
		return fmt.Errorf("email has no recipients or content")
	}
	to := make([]string, len(msg.To))
	for i, addr := range msg.To {
		to[i] = addr.Email
	}
	s.logger.Info("email",
		zap.Strings("to", to),
		zap.String("subject", s.subjPrefix+msg.Subject),
		zap.String("category", msg.Category),
		zap.String("text", msg.Text),
	)
	return nil
}
