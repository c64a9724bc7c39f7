package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/catalog"
	"github.com/shaiso/Conveyor/internal/domain"
)

// Pipeline — операции Controller'а, которые нужны API.
type Pipeline interface {
	Start(ctx context.Context, payload *domain.AnalysisPayload) error
	Reset() error
	Snapshot() domain.Snapshot
	Catalog() *catalog.Catalog
}

// Events — источник snapshots для подписчиков (sink.Broadcaster).
type Events interface {
	Subscribe(buffer int) (<-chan domain.Snapshot, func())
}

// Default configuration values.
const defaultKeepAlive = 15 * time.Second

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	pipeline  Pipeline
	events    Events
	keepAlive time.Duration
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Pipeline Pipeline
	Events   Events

	// KeepAlive — интервал комментариев-пингов в SSE потоке (default: 15s).
	KeepAlive time.Duration

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		pipeline:  cfg.Pipeline,
		events:    cfg.Events,
		keepAlive: keepAlive,
		logger:    logger,
	}
}
