// Package sink доставляет snapshots pipeline наблюдателям.
//
// Controller публикует snapshot после каждого изменения состояния run.
// Sink — единственный канал, по которому состояние уходит наружу:
//   - Broadcaster — in-memory подписки (SSE, CLI watch)
//   - mq.SnapshotSink — события в RabbitMQ
//   - repo.SnapshotRepo — последний snapshot в PostgreSQL
//   - telemetry.Metrics — Prometheus gauges
package sink
