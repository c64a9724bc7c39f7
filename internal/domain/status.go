package domain

// StepStatus — статус выполнения шага pipeline.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
type StepStatus string

const (
	// StepStatusPending — шаг ещё не запускался в текущем run.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusRunning — шаг выполняется executor'ом.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusCompleted — шаг дошёл до 100%.
	StepStatusCompleted StepStatus = "COMPLETED"

	// StepStatusFailed — executor сообщил об ошибке.
	StepStatusFailed StepStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода в рамках одного run.
// Возврат в PENDING возможен только через reset и здесь не учитывается.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	switch s {
	case StepStatusPending:
		return next == StepStatusRunning
	case StepStatusRunning:
		return next == StepStatusCompleted || next == StepStatusFailed
	default:
		return false
	}
}

// RunState — состояние pipeline run.
//
// Жизненный цикл:
//
//	IDLE → RUNNING → COMPLETED
//	               ↘ FAILED
//	COMPLETED | FAILED → IDLE (reset)
//	COMPLETED → RUNNING (повторный start)
type RunState string

const (
	// RunStateIdle — run не запускался или был сброшен.
	RunStateIdle RunState = "IDLE"

	// RunStateRunning — шаги выполняются.
	RunStateRunning RunState = "RUNNING"

	// RunStateCompleted — все шаги завершены.
	RunStateCompleted RunState = "COMPLETED"

	// RunStateFailed — один из шагов упал.
	RunStateFailed RunState = "FAILED"
)

// IsTerminal возвращает true, если run завершён (успешно или с ошибкой).
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed:
		return true
	default:
		return false
	}
}

// CanStart возвращает true, если из этого состояния допустим start.
// После FAILED нужен явный reset.
func (s RunState) CanStart() bool {
	return s == RunStateIdle || s == RunStateCompleted
}

// CanReset возвращает true, если из этого состояния допустим reset.
func (s RunState) CanReset() bool {
	return s != RunStateRunning
}
