package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypePipelineStart    MessageType = "pipeline.start"
	MessageTypePipelineReset    MessageType = "pipeline.reset"
	MessageTypePipelineSnapshot MessageType = "pipeline.snapshot"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// StartCommand — payload команды pipeline.start.
type StartCommand struct {
	Payload *domain.AnalysisPayload `json:"payload"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// routingKeyFor возвращает routing key для типа сообщения.
func routingKeyFor(t MessageType) (RoutingKey, error) {
	switch t {
	case MessageTypePipelineStart:
		return RoutingKeyStart, nil
	case MessageTypePipelineReset:
		return RoutingKeyReset, nil
	case MessageTypePipelineSnapshot:
		return RoutingKeySnapshot, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, t)
	}
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange pipeline с routing key по типу.
func (p *Publisher) Publish(ctx context.Context, msg *Message, mode uint8) error {
	key, err := routingKeyFor(msg.Type)
	if err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangePipeline), // exchange
			string(key),              // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: mode,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangePipeline, key, err)
		}

		p.logger.Debug("published message",
			"routing_key", key,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishSnapshot публикует snapshot run.
// Snapshots не переживают рестарт брокера: важен только последний.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap domain.Snapshot) error {
	msg := NewMessage(MessageTypePipelineSnapshot, snap)
	return p.Publish(ctx, msg, amqp.Transient)
}

// SnapshotSink — sink, публикующий snapshots в RabbitMQ.
type SnapshotSink struct {
	publisher *Publisher
}

// NewSnapshotSink создаёт SnapshotSink.
func NewSnapshotSink(publisher *Publisher) *SnapshotSink {
	return &SnapshotSink{publisher: publisher}
}

// Publish реализует sink.Sink.
func (s *SnapshotSink) Publish(ctx context.Context, snap domain.Snapshot) error {
	return s.publisher.PublishSnapshot(ctx, snap)
}
