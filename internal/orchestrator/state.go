package orchestrator

import (
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/worker"
)

// tickGate закрывается, когда шаг завершён: поздние тики executor'а отбрасываются.
type tickGate struct {
	mu     sync.Mutex
	closed bool
}

func (g *tickGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func (g *tickGate) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// activeLocked проверяет, что горутина выполнения всё ещё владеет run.
// После reset или нового start старая горутина должна остановиться.
func (c *Controller) activeLocked(runID uuid.UUID) bool {
	return c.run.ID == runID && c.run.State == domain.RunStateRunning
}

// beginStep переводит шаг i в RUNNING.
func (c *Controller) beginStep(runID uuid.UUID, i int) (*worker.Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(runID) {
		return nil, errRunSuperseded
	}

	step := &c.run.Steps[i]
	if err := step.MarkRunning(c.now()); err != nil {
		return nil, err
	}
	c.run.CurrentStepIndex = i

	req := &worker.Request{
		RunID:   runID,
		Index:   i,
		Step:    step.Descriptor.Clone(),
		Payload: c.run.Payload,
	}
	c.publishLocked()
	return req, nil
}

// applyTick применяет промежуточный snapshot executor'а к шагу i.
//
// Прогресс не убывает и не превышает 100. Каждая метрика лежит
// в [предыдущее значение, total] и равна total только при progress = 100.
func (c *Controller) applyTick(runID uuid.UUID, i int, tick worker.Tick, gate *tickGate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gate.isClosed() || !c.activeLocked(runID) {
		return
	}
	step := &c.run.Steps[i]
	if step.Status != domain.StepStatusRunning {
		return
	}

	progress := clampProgress(step.Progress, tick.Progress)
	details := tick.Details
	if details == nil {
		details = c.catalog.Project(step.Descriptor.ID, progress)
	}
	step.Progress = progress
	step.Details = clampDetails(step.Descriptor.Details, step.Details, details, progress)

	c.publishLocked()
}

// completeStep переводит шаг i в COMPLETED с прогрессом 100.
func (c *Controller) completeStep(runID uuid.UUID, i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(runID) {
		return errRunSuperseded
	}
	if err := c.run.Steps[i].MarkCompleted(c.now()); err != nil {
		return err
	}
	c.publishLocked()
	return nil
}

// failRun помечает шаг i и весь run как FAILED. Следующие шаги остаются PENDING.
func (c *Controller) failRun(runID uuid.UUID, i int, stepErr *StepError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(runID) {
		return
	}
	now := c.now()
	if err := c.run.Steps[i].MarkFailed(now, stepErr.Err.Error()); err != nil {
		c.logger.Warn("step already finished", "step_id", stepErr.StepID, "error", err)
	}
	c.run.CurrentStepIndex = i
	c.run.MarkFailed(now, stepErr.Error())
	c.lastErr = stepErr
	c.publishLocked()
}

// completeRun переводит run в COMPLETED.
func (c *Controller) completeRun(runID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(runID) {
		return false
	}
	c.run.CurrentStepIndex = len(c.run.Steps) - 1
	c.run.MarkCompleted(c.now())
	c.publishLocked()
	return true
}

// clampProgress ограничивает новый прогресс диапазоном [prev, 100].
func clampProgress(prev, next float64) float64 {
	if math.IsNaN(next) || next < prev {
		return prev
	}
	return min(next, 100)
}

// clampDetails ограничивает значения метрик схемой шага.
// Метрики вне схемы отбрасываются, отсутствующие сохраняют прежнее значение.
func clampDetails(schema []domain.MetricDef, prev, next map[string]int, progress float64) map[string]int {
	out := make(map[string]int, len(schema))
	for _, m := range schema {
		if progress >= 100 {
			out[m.Name] = m.Total
			continue
		}

		upper := m.Total
		if upper > 0 {
			upper--
		}
		v, ok := next[m.Name]
		if !ok {
			v = prev[m.Name]
		}
		out[m.Name] = max(prev[m.Name], min(v, upper))
	}
	return out
}
