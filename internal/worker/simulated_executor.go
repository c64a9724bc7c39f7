package worker

import (
	"context"
	"fmt"
	"time"
)

// DefaultTicks — количество тиков симуляции по умолчанию (100/50 = 2% за тик).
const DefaultTicks = 50

// ProjectFunc вычисляет detail-метрики шага для прогресса.
type ProjectFunc func(stepID string, progress float64) map[string]int

// WaitFunc приостанавливает выполнение на d с учётом context.
type WaitFunc func(ctx context.Context, d time.Duration) error

// SimulatedExecutor — executor, который моделирует работу шага по времени.
//
// Номинальная длительность шага делится на Ticks равных интервалов.
// После каждого интервала прогресс растёт на 100/Ticks, а detail-метрики
// пересчитываются через проекцию каталога. Последний тик всегда ровно 100.
//
// Ожидание кооперативное: между тиками горутина спит на таймере и
// прерывается при отмене context.
type SimulatedExecutor struct {
	ticks   int
	project ProjectFunc
	wait    WaitFunc
}

// SimulatedConfig — конфигурация SimulatedExecutor.
type SimulatedConfig struct {
	// Ticks — количество интервалов (default: 50).
	Ticks int

	// Project — проекция метрик. Если nil, Details в тиках не заполняются
	// и их вычисляет Controller.
	Project ProjectFunc

	// Wait — функция ожидания (default: таймер с учётом context).
	Wait WaitFunc
}

// NewSimulatedExecutor создаёт SimulatedExecutor.
func NewSimulatedExecutor(cfg SimulatedConfig) (*SimulatedExecutor, error) {
	ticks := cfg.Ticks
	if ticks == 0 {
		ticks = DefaultTicks
	}
	if ticks < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTickCount, ticks)
	}

	wait := cfg.Wait
	if wait == nil {
		wait = Sleep
	}

	return &SimulatedExecutor{
		ticks:   ticks,
		project: cfg.Project,
		wait:    wait,
	}, nil
}

// Ticks возвращает количество тиков.
func (e *SimulatedExecutor) Ticks() int {
	return e.ticks
}

// Execute проходит все тики шага.
func (e *SimulatedExecutor) Execute(ctx context.Context, req *Request, emit EmitFunc) error {
	slice := req.Step.NominalDuration / time.Duration(e.ticks)

	for i := 1; i <= e.ticks; i++ {
		if err := e.wait(ctx, slice); err != nil {
			return fmt.Errorf("%w: %s tick %d/%d: %v", ErrStepCancelled, req.Step.ID, i, e.ticks, err)
		}

		// Считаем от номера тика, а не накоплением, чтобы не копить ошибку float
		progress := float64(i) * 100 / float64(e.ticks)
		if i == e.ticks {
			progress = 100
		}

		tick := Tick{Progress: progress}
		if e.project != nil {
			tick.Details = e.project(req.Step.ID, progress)
		}
		emit(tick)
	}

	return nil
}

// Sleep ждёт d или отмены context.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
