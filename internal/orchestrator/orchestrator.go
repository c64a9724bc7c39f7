package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/catalog"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/sink"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Default configuration values.
const (
	DefaultStepTimeoutFactor = 3.0
	DefaultStepTimeoutGrace  = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
)

// Controller управляет единственным PipelineRun.
//
// Controller — единственный, кто меняет run:
//   - Start переводит run в RUNNING и запускает горутину выполнения шагов
//   - Горутина применяет тики executor'ов и публикует snapshots
//   - Reset возвращает run в IDLE, не трогая каталог
//
// Все изменения происходят под mu. Snapshots доставляются в sinks
// отдельной горутиной (publisher) в порядке версий, поэтому медленный
// sink не влияет на тики и таймауты шагов.
type Controller struct {
	catalog   *catalog.Catalog
	executors *worker.Registry
	pub       *publisher

	timeoutFactor float64
	timeoutGrace  time.Duration
	now           func() time.Time

	mu      sync.Mutex
	run     *domain.PipelineRun
	done    chan struct{}
	lastErr error
	closed  bool

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// Config — конфигурация Controller.
type Config struct {
	// Catalog — каталог шагов (обязателен).
	Catalog *catalog.Catalog

	// Executors — executors по ID шага (обязателен).
	Executors *worker.Registry

	// Sinks — получатели snapshots.
	Sinks []sink.Sink

	// StepTimeoutFactor — множитель номинальной длительности для таймаута шага (default: 3).
	StepTimeoutFactor float64

	// StepTimeoutGrace — добавка к таймауту шага (default: 10s).
	StepTimeoutGrace time.Duration

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	// Logger
	Logger *slog.Logger
}

// New создаёт Controller с run в состоянии IDLE.
func New(cfg Config) (*Controller, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrInvalidConfig)
	}
	if cfg.Executors == nil {
		return nil, fmt.Errorf("%w: executors are required", ErrInvalidConfig)
	}
	for _, id := range cfg.Catalog.IDs() {
		if cfg.Executors.Get(id) == nil {
			return nil, fmt.Errorf("%w: no executor for step %s", ErrInvalidConfig, id)
		}
	}
	if cfg.StepTimeoutFactor < 0 || cfg.StepTimeoutGrace < 0 {
		return nil, fmt.Errorf("%w: negative step timeout", ErrInvalidConfig)
	}

	factor := cfg.StepTimeoutFactor
	if factor == 0 {
		factor = DefaultStepTimeoutFactor
	}

	grace := cfg.StepTimeoutGrace
	if grace == 0 {
		grace = DefaultStepTimeoutGrace
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		catalog:       cfg.Catalog,
		executors:     cfg.Executors,
		pub:           newPublisher(sink.Multi(cfg.Sinks), defaultPublishTimeout, defaultPublishBacklog, logger),
		timeoutFactor: factor,
		timeoutGrace:  grace,
		now:           now,
		run:           domain.NewPipelineRun(cfg.Catalog.Steps()),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}, nil
}

// Catalog возвращает каталог шагов.
func (c *Controller) Catalog() *catalog.Catalog {
	return c.catalog
}

// Start запускает новый run.
//
// Возвращается сразу после перехода в RUNNING; шаги выполняются
// в фоне. Если ctx уже отменён, run не запускается.
func (c *Controller) Start(ctx context.Context, payload *domain.AnalysisPayload) error {
	if payload == nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, ErrNoPayload)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrShutdown
	}
	if !c.run.State.CanStart() {
		err := ErrResetRequired
		if c.run.State == domain.RunStateRunning {
			err = ErrRunActive
		}
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}

	runID := uuid.New()
	c.run.MarkRunning(runID, clonePayload(payload), c.now())
	c.done = make(chan struct{})
	c.lastErr = nil
	done := c.done
	c.wg.Add(1)
	c.publishLocked()
	c.mu.Unlock()

	logger := telemetry.WithRunID(c.logger, runID.String())
	logger.Info("pipeline run started",
		"steps", c.catalog.Len(),
		"payload_id", payload.ID,
	)

	go func() {
		defer c.wg.Done()
		c.execute(runID, done, logger)
	}()

	return nil
}

// Reset возвращает run в IDLE.
//
// Каталог (имена, описания, длительности, totals) не меняется.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if !c.run.State.CanReset() {
		c.mu.Unlock()
		return ErrInvalidReset
	}

	prev := c.run.State
	c.run.ResetSteps()
	c.lastErr = nil
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("pipeline reset", "previous_state", prev)
	return nil
}

// Snapshot возвращает копию текущего состояния run.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run.Snapshot()
}

// State возвращает текущее состояние run.
func (c *Controller) State() domain.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run.State
}

// LastError возвращает ошибку последнего упавшего run (*StepError) или nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Wait блокируется, пока текущий run не покинет RUNNING и его
// последний snapshot не дойдёт до sinks.
func (c *Controller) Wait(ctx context.Context) (domain.Snapshot, error) {
	c.mu.Lock()
	done := c.done
	running := c.run.State == domain.RunStateRunning
	c.mu.Unlock()

	if running {
		select {
		case <-done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}

	snap := c.Snapshot()
	if err := c.pub.flush(ctx, snap.Version); err != nil {
		return snap, err
	}
	return snap, nil
}

// Close останавливает Controller.
//
// Выполняющийся шаг получает отмену context и завершается с ErrShutdown;
// Close ждёт завершения горутины выполнения и доставки оставшихся snapshots.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.logger.Info("stopping pipeline controller...")
	c.cancel()
	c.wg.Wait()
	c.pub.close()
	c.logger.Info("pipeline controller stopped")
}

// execute последовательно выполняет шаги run.
func (c *Controller) execute(runID uuid.UUID, done chan struct{}, logger *slog.Logger) {
	defer close(done)

	started := c.now()
	for i := range c.catalog.Len() {
		desc, _ := c.catalog.Step(i)
		stepID := desc.ID
		stepLogger := telemetry.WithStepID(logger, stepID, i)

		req, err := c.beginStep(runID, i)
		if err == nil {
			stepLogger.Debug("step started", "nominal_duration", req.Step.NominalDuration)
			err = c.runStep(req, stepLogger)
		}
		if err == nil {
			err = c.completeStep(runID, i)
		}

		switch {
		case err == nil:
			stepLogger.Debug("step completed")
		case errors.Is(err, errRunSuperseded):
			return
		default:
			c.failRun(runID, i, &StepError{StepID: stepID, Index: i, Err: err})
			stepLogger.Error("pipeline run failed", "error", err)
			return
		}
	}

	if c.completeRun(runID) {
		logger.Info("pipeline run completed", "duration", c.now().Sub(started))
	}
}

// runStep выполняет один шаг с таймаутом.
//
// Executor работает в отдельной горутине: если он не реагирует на отмену
// context, шаг всё равно завершается по таймауту, а поздние тики
// отбрасываются.
func (c *Controller) runStep(req *worker.Request, logger *slog.Logger) error {
	timeout := c.stepTimeout(req.Step.NominalDuration)
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	gate := &tickGate{}
	emit := func(t worker.Tick) {
		c.applyTick(req.RunID, req.Index, t, gate)
	}

	executor := c.executors.Get(req.Step.ID)
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("executor panic: %v", r)
			}
		}()
		result <- executor.Execute(ctx, req, emit)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		select {
		case err = <-result:
		case <-time.After(100 * time.Millisecond):
			logger.Warn("executor did not return after cancellation")
			err = ctx.Err()
		}
	}
	gate.close()

	if err == nil {
		return nil
	}
	switch {
	case c.ctx.Err() != nil:
		return ErrShutdown
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrStepTimeout, timeout)
	default:
		return err
	}
}

// stepTimeout вычисляет защитный таймаут шага.
func (c *Controller) stepTimeout(nominal time.Duration) time.Duration {
	return time.Duration(float64(nominal)*c.timeoutFactor) + c.timeoutGrace
}

// publishLocked фиксирует новую версию run и ставит snapshot в очередь publisher'а.
// Вызывается под mu и не блокируется.
func (c *Controller) publishLocked() {
	c.run.Version++
	c.pub.enqueue(c.run.Snapshot())
}

// clonePayload копирует payload, чтобы вызывающий не мог изменить его во время run.
func clonePayload(p *domain.AnalysisPayload) *domain.AnalysisPayload {
	c := *p
	if p.Documents != nil {
		c.Documents = append([]string(nil), p.Documents...)
	}
	c.Inputs = maps.Clone(p.Inputs)
	return &c
}
