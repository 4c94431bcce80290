package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type mockChannel struct {
	published []published
	err       error
	closed    bool
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, published{exchange, key, msg})
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func TestAuditPublisher_Record(t *testing.T) {
	ch := &mockChannel{}
	p := &AuditPublisher{ch: ch, exchange: DefaultExchange, logger: zap.NewNop()}

	stage := 0
	rec := port.AuditRecord{
		EventID:    "01J",
		DocumentID: "doc1",
		ActorID:    "bob",
		Action:     "workflow.approve",
		InstanceID: "inst-1",
		StageIndex: &stage,
		Outcome:    "approve",
		Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Record(context.Background(), rec))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, "workflow.approve", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "01J", got.msg.MessageId)
	assert.Equal(t, "doc1", got.msg.Headers["document_id"])

	var decoded port.AuditRecord
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, "inst-1", decoded.InstanceID)
	require.NotNil(t, decoded.StageIndex)
	assert.Equal(t, 0, *decoded.StageIndex)
}

func TestAuditPublisher_RecordError(t *testing.T) {
	boom := errors.New("channel closed")
	p := &AuditPublisher{ch: &mockChannel{err: boom}, exchange: DefaultExchange, logger: zap.NewNop()}

	err := p.Record(context.Background(), port.AuditRecord{EventID: "e", Action: "permission.grant"})
	assert.ErrorIs(t, err, boom)
}

func TestAuditPublisher_Close(t *testing.T) {
	ch := &mockChannel{}
	p := &AuditPublisher{ch: ch, logger: zap.NewNop()}
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
