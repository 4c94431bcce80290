// Package messaging publishes audit records to a RabbitMQ topic exchange.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
)

// DefaultExchange is used when Config.Exchange is empty
const DefaultExchange = "docapproval.audit"

// Config holds publisher configuration
type Config struct {
	URL      string
	Exchange string
}

// channel is the subset of *amqp.Channel used for publishing
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AuditPublisher implements port.AuditSink. Records are routed by action,
// e.g. "workflow.approve".
type AuditPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *zap.Logger
}

// NewAuditPublisher dials the broker and declares a durable topic exchange
func NewAuditPublisher(cfg Config, logger *zap.Logger) (*AuditPublisher, error) {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("Audit publisher initialized", zap.String("exchange", exchange))

	return &AuditPublisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Record publishes rec as a persistent JSON message
func (p *AuditPublisher) Record(ctx context.Context, rec port.AuditRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    rec.EventID,
		Timestamp:    time.Now(),
		Body:         body,
		Headers: amqp.Table{
			"action":      rec.Action,
			"document_id": rec.DocumentID,
			"actor_id":    rec.ActorID,
		},
	}

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx, p.exchange, rec.Action, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		p.logger.Error("Failed to publish audit record",
			zap.String("event_id", rec.EventID),
			zap.String("action", rec.Action),
			zap.Error(err))
		return fmt.Errorf("failed to publish audit record: %w", err)
	}
	return nil
}

// Close closes the channel and the connection
func (p *AuditPublisher) Close() error {
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			p.logger.Warn("Error closing RabbitMQ channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}
	return nil
}

var _ port.AuditSink = (*AuditPublisher)(nil)
