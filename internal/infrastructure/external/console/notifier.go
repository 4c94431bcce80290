// Package console is the notification gateway used when no messaging
// backend is configured. Messages are written to the log.
package console

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/infrastructure/external/templates"
)

// Notifier logs rendered notifications
type Notifier struct {
	logger *zap.Logger
}

// NewNotifier creates a log-backed notification gateway
func NewNotifier(logger *zap.Logger) *Notifier {
	return &Notifier{logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, recipientID, templateID string, data map[string]interface{}) error {
	text, err := templates.Render(templateID, data)
	if err != nil {
		return err
	}

	n.logger.Info("Notification",
		zap.String("recipient", recipientID),
		zap.String("template", templateID),
		zap.String("text", text))
	return nil
}

var _ port.NotificationGateway = (*Notifier)(nil)
