package worker

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Executor — интерфейс выполнения одного шага pipeline.
//
// Execute выполняет шаг до конца и сообщает промежуточные snapshots через emit.
// nil означает, что шаг завершён (терминальный snapshot — progress = 100).
// Ошибка означает StepFailure: шаг не дошёл до 100.
//
// Реализации должны проверять ctx.Done(): context отменяется при таймауте
// шага и при остановке процесса.
type Executor interface {
	Execute(ctx context.Context, req *Request, emit EmitFunc) error
}

// ExecutorFunc — адаптер функции к Executor.
type ExecutorFunc func(ctx context.Context, req *Request, emit EmitFunc) error

// Execute вызывает f.
func (f ExecutorFunc) Execute(ctx context.Context, req *Request, emit EmitFunc) error {
	return f(ctx, req, emit)
}

// Request — входные данные для выполнения шага.
type Request struct {
	// RunID — идентификатор текущего run.
	RunID uuid.UUID

	// Index — позиция шага в каталоге.
	Index int

	// Step — дескриптор шага из каталога.
	Step domain.StepDescriptor

	// Payload — payload, с которым был запущен run.
	Payload *domain.AnalysisPayload
}

// Tick — промежуточный snapshot выполнения шага.
type Tick struct {
	// Progress — прогресс шага в процентах.
	Progress float64

	// Details — значения detail-метрик. nil — Controller посчитает их
	// через проекцию каталога.
	Details map[string]int
}

// EmitFunc получает промежуточные snapshots шага.
type EmitFunc func(Tick)

// Registry — реестр executor'ов по ID шага.
//
// Шаги без явной регистрации выполняются executor'ом по умолчанию.
type Registry struct {
	fallback  Executor
	executors map[string]Executor
}

// NewRegistry создаёт реестр с executor'ом по умолчанию.
func NewRegistry(fallback Executor) *Registry {
	return &Registry{
		fallback:  fallback,
		executors: make(map[string]Executor),
	}
}

// Register назначает executor для шага.
func (r *Registry) Register(stepID string, executor Executor) {
	r.executors[stepID] = executor
}

// Get возвращает executor для шага.
func (r *Registry) Get(stepID string) Executor {
	if executor, ok := r.executors[stepID]; ok {
		return executor
	}
	return r.fallback
}
