package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPForwarder republishes bus changes on a RabbitMQ fanout exchange so
// other processes can follow ride activity.
type AMQPForwarder struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger
}

func DialAMQP(url, exchange string, logger *slog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AMQPForwarder{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// Run forwards changes from bus until ctx is done.
func (f *AMQPForwarder) Run(ctx context.Context, bus *Bus) {
	changes, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := f.publish(ctx, c); err != nil {
				f.logger.Error("failed to forward change", "error", err, "collection", c.Collection, "id", c.ID)
			}
		}
	}
}

func (f *AMQPForwarder) publish(ctx context.Context, c Change) error {
	body, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return f.ch.PublishWithContext(ctx, f.exchange, c.Collection, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   c.At,
		Body:        body,
	})
}

func (f *AMQPForwarder) Close() error {
	f.ch.Close()
	return f.conn.Close()
}
