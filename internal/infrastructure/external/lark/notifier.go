package lark

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/infrastructure/external/templates"
)

// ErrNoAddress means the recipient has neither a Lark open_id nor an email
var ErrNoAddress = errors.New("recipient has no lark address")

// Sender is the part of Client the notifier needs
type Sender interface {
	SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error)
}

// Notifier implements port.NotificationGateway over Lark IM.
// Recipients are resolved through the user directory: open_id first,
// email as fallback.
type Notifier struct {
	sender Sender
	users  port.UserRegistry
	logger *zap.Logger
}

// NewNotifier creates a Lark notification gateway
func NewNotifier(sender Sender, users port.UserRegistry, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		users:  users,
		logger: logger,
	}
}

// Notify renders templateID and sends it to recipientID
func (n *Notifier) Notify(ctx context.Context, recipientID, templateID string, data map[string]interface{}) error {
	text, err := templates.Render(templateID, data)
	if err != nil {
		return err
	}

	user, err := n.users.GetByID(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}

	var idType, id string
	switch {
	case user == nil:
		return fmt.Errorf("%w: unknown user %s", ErrNoAddress, recipientID)
	case user.LarkOpenID != "":
		idType, id = ReceiveIDOpenID, user.LarkOpenID
	case user.Email != "":
		idType, id = ReceiveIDEmail, user.Email
	default:
		return fmt.Errorf("%w: %s", ErrNoAddress, recipientID)
	}

	messageID, err := n.sender.SendText(ctx, idType, id, text)
	if err != nil {
		return err
	}

	n.logger.Debug("Lark notification delivered",
		zap.String("recipient", recipientID),
		zap.String("template", templateID),
		zap.String("message_id", messageID))
	return nil
}

var _ port.NotificationGateway = (*Notifier)(nil)
