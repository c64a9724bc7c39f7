// Package api содержит HTTP API для display layer.
//
// Структура:
//   - handler.go          — Handler с DI (pipeline, события, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - pipeline_handler.go — обработчики для /pipeline и /catalog
//   - events.go           — Server-Sent Events поток snapshots
//
// Состояние pipeline читается только через snapshots.
package api
