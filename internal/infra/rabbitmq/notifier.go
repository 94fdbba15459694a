// Package rabbitmq implements the Notification Port on a RabbitMQ topic
// exchange. Publishing is strictly best-effort from the core's point of
// view: a failed publish is the caller's problem to log, never to retry or
// roll back over. The actual chat delivery (Telegram or otherwise) is a
// downstream consumer of the exchange and out of scope.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the durable topic exchange all core events go through.
// Routing key = event name ("offer.new", "escalation.logist", ...).
const Exchange = "field_service.events"

// Notifier implements domain.NotificationPort.
type Notifier struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	mu     sync.Mutex // amqp channels are not safe for concurrent publish
	logger *slog.Logger
}

// Dial connects to the broker and declares the exchange.
func Dial(url string, logger *slog.Logger) (*Notifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Notifier{
		conn:   conn,
		ch:     ch,
		logger: logger.With("component", "rabbitmq-notifier"),
	}, nil
}

// Close releases the channel and connection.
func (n *Notifier) Close() {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
}

type envelope struct {
	ChatID  int64     `json:"chat_id"`
	Role    string    `json:"role"`
	Event   string    `json:"event"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

// Send publishes one event for one recipient.
func (n *Notifier) Send(ctx context.Context, to domain.Recipient, event string, payload any) error {
	body, err := json.Marshal(envelope{
		ChatID:  to.ChatID,
		Role:    to.Role,
		Event:   event,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	err = n.ch.PublishWithContext(ctx, Exchange, event, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}
