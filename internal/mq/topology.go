package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangePipeline Exchange = "conveyor.pipeline"
	ExchangeDLQ      Exchange = "conveyor.dlq"
)

// Queues — имена очередей.
const (
	QueueCommands    Queue = "pipeline.commands"
	QueueSnapshots   Queue = "pipeline.snapshots"
	QueueDLQCommands Queue = "dlq.commands"
)

// Routing keys.
const (
	RoutingKeyStart       RoutingKey = "command.start"
	RoutingKeyReset       RoutingKey = "command.reset"
	RoutingKeyCommands    RoutingKey = "command.*"
	RoutingKeySnapshot    RoutingKey = "snapshot"
	RoutingKeyDLQCommands RoutingKey = "commands"
)

// snapshotQueueMaxLength — сколько snapshots хранит очередь без потребителя.
// Потребителю важен только последний snapshot, старые вытесняются.
const snapshotQueueMaxLength = 1000

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// exchanges возвращает объявления обменников.
func exchanges() []exchangeDecl {
	return []exchangeDecl{
		{ExchangePipeline, "topic"},
		{ExchangeDLQ, "direct"},
	}
}

// queues возвращает объявления очередей.
func queues() []queueDecl {
	return []queueDecl{
		// pipeline.commands — с DLQ (отклонённые команды не теряются)
		{QueueCommands, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQCommands),
		}},

		// pipeline.snapshots — ограниченная очередь событий
		{QueueSnapshots, amqp.Table{
			"x-max-length": int32(snapshotQueueMaxLength),
			"x-overflow":   "drop-head",
		}},

		// dlq.commands — сама DLQ очередь
		{QueueDLQCommands, nil},
	}
}

// bindings возвращает привязки очередей к обменникам.
func bindings() []bindingDecl {
	return []bindingDecl{
		{QueueCommands, RoutingKeyCommands, ExchangePipeline},
		{QueueSnapshots, RoutingKeySnapshot, ExchangePipeline},
		{QueueDLQCommands, RoutingKeyDLQCommands, ExchangeDLQ},
	}
}

// SetupTopology объявляет exchanges, queues и bindings.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges() {
			if err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues() {
			if _, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings() {
			if err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Conveyor RabbitMQ Topology:

    conveyor.pipeline (topic)
    ├── pipeline.commands [routing: command.*]
    │       Consumer: conveyord (pipeline.start, pipeline.reset)
    │       DLQ: dlq.commands
    └── pipeline.snapshots [routing: snapshot]
            Consumer: display layer

    conveyor.dlq (direct)
    └── dlq.commands [routing: commands]
            Manual processing
  `
}
