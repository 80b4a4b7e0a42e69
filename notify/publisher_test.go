package notify

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
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(t *testing.T, ch *fakeChannel) *AMQPPublisher {
	t.Helper()
	p := &AMQPPublisher{exchange: "orders_topic", logger: zap.NewNop()}
	p.dial = func() (*amqp.Connection, channel, error) { return nil, ch, nil }
	require.NoError(t, p.connect())
	return p
}

func TestPublishOrderPlaced(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(t, ch)
	assert.Equal(t, []string{"orders_topic:topic"}, ch.declared)

	at := time.Date(2025, 9, 12, 18, 45, 0, 0, time.UTC)
	err := p.PublishOrderPlaced(context.Background(), OrderEvent{
		OpID: "01J000", OrderID: 7, CustomerID: 3, ReceiptNumber: "20250001", Total: "27.00", OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, ch.published, 1)

	got := ch.published[0]
	assert.Equal(t, "orders_topic", got.exchange)
	assert.Equal(t, RoutingOrderPlaced, got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, "01J000", got.msg.MessageId)

	var ev OrderEvent
	require.NoError(t, json.Unmarshal(got.msg.Body, &ev))
	assert.Equal(t, int64(7), ev.OrderID)
	assert.Equal(t, "20250001", ev.ReceiptNumber)
	assert.True(t, at.Equal(ev.OccurredAt))
}

func TestPublishOrderDeletedError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p := newTestPublisher(t, ch)

	err := p.PublishOrderDeleted(context.Background(), OrderEvent{OrderID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), RoutingOrderDeleted)
}

func TestPublishReconnectsAfterClose(t *testing.T) {
	first := &fakeChannel{}
	p := newTestPublisher(t, first)
	require.NoError(t, p.Close())
	assert.True(t, first.closed)

	second := &fakeChannel{}
	p.dial = func() (*amqp.Connection, channel, error) { return nil, second, nil }
	require.NoError(t, p.PublishOrderPlaced(context.Background(), OrderEvent{OrderID: 2}))
	assert.Len(t, second.published, 1)
}

func TestNewAMQPPublisherRequiresURL(t *testing.T) {
	_, err := NewAMQPPublisher("", "orders_topic", nil)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishOrderPlaced(context.Background(), OrderEvent{}))
	assert.NoError(t, p.PublishOrderDeleted(context.Background(), OrderEvent{}))
	assert.NoError(t, p.Close())
}
