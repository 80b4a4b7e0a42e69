// Package notify publishes order events to RabbitMQ for receipt printers and
// kitchen screens.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"orderdesk/logging"
)

const (
	RoutingOrderPlaced  = "order.placed"
	RoutingOrderDeleted = "order.deleted"

	publishTimeout = 10 * time.Second
)

// OrderEvent is the JSON body of every order message.
type OrderEvent struct {
	OpID          string    `json:"opId"`
	OrderID       int64     `json:"orderId"`
	CustomerID    int64     `json:"customerId"`
	ReceiptNumber string    `json:"receiptNumber,omitempty"`
	OrderDate     string    `json:"orderDate,omitempty"`
	IsPickup      bool      `json:"isPickup"`
	Total         string    `json:"total,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher emits order events. Failures are reported to the caller, which
// decides whether they matter.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, ev OrderEvent) error
	PublishOrderDeleted(ctx context.Context, ev OrderEvent) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishOrderPlaced(context.Context, OrderEvent) error  { return nil }
func (Nop) PublishOrderDeleted(context.Context, OrderEvent) error { return nil }
func (Nop) Close() error                                          { return nil }

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	url      string
	exchange string
	conn     *amqp.Connection
	ch       channel
	dial     func() (*amqp.Connection, channel, error)
	logger   *zap.Logger
}

// NewAMQPPublisher dials url and declares the exchange.
func NewAMQPPublisher(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("notify: amqp url is required")
	}
	p := &AMQPPublisher{
		url:      url,
		exchange: exchange,
		logger:   logging.OrNop(logger).Named("notify"),
	}
	p.dial = p.dialBroker
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) dialBroker() (*amqp.Connection, channel, error) {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

// connect must be called with mu held or before the publisher is shared.
func (p *AMQPPublisher) connect() error {
	conn, ch, err := p.dial()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		if conn != nil {
			conn.Close()
		}
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) closed() bool {
	if p.ch == nil {
		return true
	}
	return p.conn != nil && p.conn.IsClosed()
}

func (p *AMQPPublisher) PublishOrderPlaced(ctx context.Context, ev OrderEvent) error {
	return p.publish(ctx, RoutingOrderPlaced, ev)
}

func (p *AMQPPublisher) PublishOrderDeleted(ctx context.Context, ev OrderEvent) error {
	return p.publish(ctx, RoutingOrderDeleted, ev)
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, ev OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed() {
		p.close()
		if err := p.connect(); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.OpID,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.logger.Debug("event published",
		zap.String("routing_key", routingKey), zap.Int64("order_id", ev.OrderID), zap.Int("bytes", len(body)))
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.close()
}

func (p *AMQPPublisher) close() error {
	var err error
	if p.ch != nil {
		err = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
			err = cerr
		}
		p.conn = nil
	}
	return err
}
