package dispatcher

import (
	"context"

	"github.com/garyjia/doc-approval/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// ErrorHook observes handler failures after they are logged
type ErrorHook func(handlerName string, evt *event.Event, err error)
