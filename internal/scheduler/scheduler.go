package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/orchestrator"
)

// Pipeline — то, что Scheduler запускает.
type Pipeline interface {
	Start(ctx context.Context, payload *domain.AnalysisPayload) error
	State() domain.RunState
}

// Scheduler — запуск run по cron-расписанию.
type Scheduler struct {
	pipeline Pipeline
	expr     string
	schedule cron.Schedule
	payload  PayloadFunc
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// Config — конфигурация Scheduler.
type Config struct {
	// Pipeline — запускаемый pipeline (обязателен).
	Pipeline Pipeline

	// Cron — cron-выражение (обязательно).
	Cron string

	// Payload — источник payload (обязателен).
	Payload PayloadFunc

	// Location — timezone расписания (default: UTC).
	Location *time.Location

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("%w: pipeline is required", ErrInvalidConfig)
	}
	if cfg.Payload == nil {
		return nil, fmt.Errorf("%w: payload source is required", ErrInvalidConfig)
	}
	schedule, err := ParseCron(cfg.Cron)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		pipeline: cfg.Pipeline,
		expr:     cfg.Cron,
		schedule: schedule,
		payload:  cfg.Payload,
		location: loc,
		now:      now,
		logger:   logger.With("component", "scheduler"),
	}, nil
}

// Tick обрабатывает одно срабатывание расписания.
// Возвращает true, если run был запущен.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	if state := s.pipeline.State(); !state.CanStart() {
		if state == domain.RunStateFailed {
			s.logger.Warn("pipeline failed, reset required before scheduled start")
		} else {
			s.logger.Debug("pipeline is not startable, skipping scheduled start", "state", state)
		}
		return false, nil
	}

	now := s.now()
	payload, err := s.payload(now)
	if err != nil {
		return false, fmt.Errorf("build payload: %w", err)
	}

	if err := s.pipeline.Start(ctx, payload); err != nil {
		// Run мог быть запущен через API между State и Start.
		if errors.Is(err, orchestrator.ErrPrecondition) {
			s.logger.Info("scheduled start rejected", "reason", err)
			return false, nil
		}
		return false, fmt.Errorf("start pipeline: %w", err)
	}

	s.logger.Info("scheduled run started",
		"payload_id", payload.ID,
		"next_due", s.schedule.Next(now.In(s.location)).UTC(),
	)
	return true, nil
}

// Start запускает cron. Срабатывания используют ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	s.cron = cron.New(cron.WithLocation(s.location), cron.WithParser(cronParser))
	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
	}))
	s.cron.Start()

	s.logger.Info("scheduler started",
		"cron", s.expr,
		"next_due", s.schedule.Next(s.now().In(s.location)).UTC(),
	)
}

// Stop останавливает cron и ждёт текущее срабатывание.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}
