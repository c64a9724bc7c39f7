package orchestrator

import (
	"errors"
	"fmt"
)

// Ошибки Controller'а.
var (
	// ErrPrecondition — start отклонён: нет payload, run уже выполняется
	// или после FAILED не было reset.
	ErrPrecondition = errors.New("precondition failed")

	// ErrNoPayload — start вызван без analysis payload.
	ErrNoPayload = errors.New("analysis payload is required")

	// ErrRunActive — run уже в состоянии RUNNING.
	ErrRunActive = errors.New("pipeline run is already active")

	// ErrResetRequired — run в состоянии FAILED, перед start нужен reset.
	ErrResetRequired = errors.New("reset required after failed run")

	// ErrInvalidReset — reset вызван во время выполнения run.
	ErrInvalidReset = errors.New("cannot reset while pipeline is running")

	// ErrStepFailed — executor шага сообщил об ошибке.
	ErrStepFailed = errors.New("step failed")

	// ErrStepTimeout — шаг не завершился за отведённое время.
	ErrStepTimeout = errors.New("step timed out")

	// ErrShutdown — Controller остановлен.
	ErrShutdown = errors.New("controller shut down")

	// ErrInvalidConfig — некорректная конфигурация Controller'а.
	ErrInvalidConfig = errors.New("invalid controller config")

	// errRunSuperseded — run сброшен или перезапущен, горутина выполнения должна выйти.
	errRunSuperseded = errors.New("run superseded")
)

// StepError — ошибка выполнения конкретного шага.
//
// errors.Is(err, ErrStepFailed) истинно для любого StepError;
// Err хранит причину (ошибку executor'а, ErrStepTimeout, ErrShutdown).
type StepError struct {
	StepID string
	Index  int
	Err    error
}

// Error реализует интерфейс error.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (#%d): %v", e.StepID, e.Index, e.Err)
}

// Unwrap возвращает причину.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Is позволяет сопоставить StepError с ErrStepFailed.
func (e *StepError) Is(target error) bool {
	return target == ErrStepFailed
}
