// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация команд и snapshots, SnapshotSink
//   - consumer.go   — потребление команд из очереди
//
// Типы сообщений:
//   - pipeline.start    — запустить run с analysis payload
//   - pipeline.reset    — сбросить run в IDLE
//   - pipeline.snapshot — snapshot состояния run
//
// Exchanges:
//   - conveyor.pipeline — команды и snapshots
//   - conveyor.dlq      — dead letter queue
package mq
