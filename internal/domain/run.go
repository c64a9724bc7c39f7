package domain

import (
	"time"

	"github.com/google/uuid"
)

// PipelineRun — единственный экземпляр run, которым владеет Controller.
//
// Создаётся один раз из каталога. Start и Reset меняют только run-состояние:
// дескрипторы шагов (имена, описания, длительности, totals) не изменяются.
type PipelineRun struct {
	// ID — идентификатор текущей попытки. uuid.Nil в IDLE.
	ID uuid.UUID

	// Steps — состояния шагов в порядке каталога.
	Steps []StepState

	// CurrentStepIndex — индекс шага, который выполняется (или выполнялся последним).
	CurrentStepIndex int

	// State — состояние run.
	State RunState

	// Payload — входные данные, с которыми был вызван start.
	Payload *AnalysisPayload

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time

	// FinishedAt — время перехода в COMPLETED или FAILED.
	FinishedAt *time.Time

	// Error — текст ошибки упавшего шага.
	Error string

	// Version — счётчик изменений, увеличивается при каждой публикации.
	Version uint64
}

// NewPipelineRun создаёт run в состоянии IDLE.
func NewPipelineRun(descriptors []StepDescriptor) *PipelineRun {
	steps := make([]StepState, len(descriptors))
	for i, d := range descriptors {
		steps[i] = NewStepState(d.Clone())
	}
	return &PipelineRun{
		Steps: steps,
		State: RunStateIdle,
	}
}

// OverallProgress возвращает среднее арифметическое прогресса всех шагов.
// Шаги, которые ещё не стартовали, считаются как 0.
func (r *PipelineRun) OverallProgress() float64 {
	if len(r.Steps) == 0 {
		return 0
	}
	var sum float64
	for i := range r.Steps {
		sum += r.Steps[i].Progress
	}
	return sum / float64(len(r.Steps))
}

// MarkRunning переводит run в RUNNING для новой попытки.
func (r *PipelineRun) MarkRunning(id uuid.UUID, payload *AnalysisPayload, now time.Time) {
	r.ResetSteps()
	r.ID = id
	r.Payload = payload
	r.State = RunStateRunning
	r.StartedAt = &now
}

// MarkCompleted переводит run в COMPLETED.
func (r *PipelineRun) MarkCompleted(now time.Time) {
	r.State = RunStateCompleted
	r.FinishedAt = &now
}

// MarkFailed переводит run в FAILED с ошибкой.
func (r *PipelineRun) MarkFailed(now time.Time, errMsg string) {
	r.State = RunStateFailed
	r.FinishedAt = &now
	r.Error = errMsg
}

// ResetSteps обнуляет run-состояние всех шагов и самого run, кроме Version.
func (r *PipelineRun) ResetSteps() {
	for i := range r.Steps {
		r.Steps[i].Reset()
	}
	r.ID = uuid.Nil
	r.Payload = nil
	r.CurrentStepIndex = 0
	r.State = RunStateIdle
	r.StartedAt = nil
	r.FinishedAt = nil
	r.Error = ""
}

// Duration возвращает продолжительность run.
func (r *PipelineRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// Snapshot возвращает неизменяемую копию run для наблюдателей.
func (r *PipelineRun) Snapshot() Snapshot {
	steps := make([]StepSnapshot, len(r.Steps))
	for i := range r.Steps {
		s := r.Steps[i].Clone()
		steps[i] = StepSnapshot{
			ID:                s.Descriptor.ID,
			Name:              s.Descriptor.Name,
			Description:       s.Descriptor.Description,
			NominalDurationMs: s.Descriptor.NominalDuration.Milliseconds(),
			Totals:            s.Descriptor.Details,
			Status:            s.Status,
			Progress:          s.Progress,
			Details:           s.Details,
			StartedAt:         s.StartedAt,
			FinishedAt:        s.FinishedAt,
			Error:             s.Error,
		}
	}

	snap := Snapshot{
		RunID:            r.ID,
		State:            r.State,
		CurrentStepIndex: r.CurrentStepIndex,
		OverallProgress:  r.OverallProgress(),
		Steps:            steps,
		Error:            r.Error,
		Version:          r.Version,
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		snap.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		snap.FinishedAt = &t
	}
	return snap
}
