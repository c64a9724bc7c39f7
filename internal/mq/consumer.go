package mq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Handler — функция обработки сообщения.
// Возвращает error, если обработку стоит повторить.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — распарсенное сообщение.
	Message Message

	// Redelivered — сообщение доставляется повторно.
	Redelivered bool
}

// ack — действие над сообщением после обработки.
type ack int

const (
	ackOK ack = iota
	ackRequeue
	ackDeadLetter
)

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки (default: 1).
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start потребляет сообщения до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer cancel()

	for {
		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
		} else {
			c.logger.Info("consumer started", "queue", c.queue)
			c.processDeliveries(ctx, deliveries)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", c.queue)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (мы ack вручную)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// processDeliveries обрабатывает сообщения, пока канал открыт.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			switch c.handle(ctx, raw.Body, raw.Redelivered) {
			case ackOK:
				raw.Ack(false)
			case ackRequeue:
				raw.Nack(false, true)
			case ackDeadLetter:
				raw.Nack(false, false)
			}
		}
	}
}

// handle декодирует и обрабатывает одно сообщение.
//
// Некорректное сообщение уходит в DLQ сразу. Ошибка handler'а
// повторяется один раз; при повторной ошибке сообщение уходит в DLQ.
func (c *Consumer) handle(ctx context.Context, body []byte, redelivered bool) ack {
	msg, err := DecodeMessage(body)
	if err != nil {
		c.logger.Error("failed to decode message",
			"queue", c.queue,
			"error", err,
			"body", string(body),
		)
		return ackDeadLetter
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", msg.ID,
		"type", msg.Type,
		"redelivered", redelivered,
	)

	ctx = telemetry.WithLogger(ctx, c.logger.With(
		"queue", c.queue,
		"message_id", msg.ID,
		"type", msg.Type,
	))
	if err := c.handler(ctx, &Delivery{Message: msg, Redelivered: redelivered}); err != nil {
		c.logger.Error("handler failed",
			"queue", c.queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"redelivered", redelivered,
			"error", err,
		)
		if redelivered {
			return ackDeadLetter
		}
		return ackRequeue
	}
	return ackOK
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// DecodeMessage парсит тело AMQP сообщения.
// Payload остаётся json.RawMessage до вызова ParsePayload.
func DecodeMessage(body []byte) (Message, error) {
	var env struct {
		Message
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if env.ID == "" || env.Type == "" {
		return Message{}, fmt.Errorf("%w: missing id or type", ErrInvalidMessage)
	}

	msg := env.Message
	msg.Payload = env.Payload
	return msg, nil
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	var data []byte
	switch p := msg.Payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return result, fmt.Errorf("marshal payload: %w", err)
		}
		data = b
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return result, nil
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
