package mail

import (
	"context"

	"compliance-engine/internal/common/logger"
)

// LogTransport writes emails to the log instead of sending them.
type LogTransport struct {
	logger logger.Logger
}

func NewLogTransport(log logger.Logger) *LogTransport {
	return &LogTransport{logger: logger.ForComponent(log, "mail")}
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Send(_ context.Context, to, subject, htmlBody string) error {
	t.logger.Info("Email not sent (log transport)", map[string]interface{}{
		"to":        to,
		"subject":   subject,
		"bodyBytes": len(htmlBody),
	})
	return nil
}
