package domain

import (
	"fmt"
	"maps"
	"time"
)

// MetricDef — описание detail-метрики шага.
//
// Total — ёмкость метрики: текущее значение никогда не превышает Total
// и равно ему ровно при progress = 100.
type MetricDef struct {
	// Name — имя метрики, например "extractedPages".
	Name string `json:"name" yaml:"name"`

	// Total — максимальное значение метрики.
	Total int `json:"total" yaml:"total"`
}

// StepDescriptor — неизменяемое описание шага из каталога.
type StepDescriptor struct {
	// ID — уникальный ключ шага.
	ID string `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// Description — описание шага для display layer.
	Description string `json:"description,omitempty"`

	// NominalDuration — номинальная длительность шага.
	NominalDuration time.Duration `json:"-"`

	// Details — схема detail-метрик в порядке каталога.
	Details []MetricDef `json:"details,omitempty"`
}

// Totals возвращает схему метрик как map (metric → total).
func (d StepDescriptor) Totals() map[string]int {
	totals := make(map[string]int, len(d.Details))
	for _, m := range d.Details {
		totals[m.Name] = m.Total
	}
	return totals
}

// ZeroDetails возвращает значения метрик для нового шага (metric → 0).
func (d StepDescriptor) ZeroDetails() map[string]int {
	details := make(map[string]int, len(d.Details))
	for _, m := range d.Details {
		details[m.Name] = 0
	}
	return details
}

// Clone возвращает глубокую копию дескриптора.
func (d StepDescriptor) Clone() StepDescriptor {
	c := d
	if d.Details != nil {
		c.Details = make([]MetricDef, len(d.Details))
		copy(c.Details, d.Details)
	}
	return c
}

// StepState — изменяемое состояние шага внутри run.
//
// Владелец — Controller. Наружу StepState уходит только в составе Snapshot.
type StepState struct {
	// Descriptor — данные каталога. Reset их не трогает.
	Descriptor StepDescriptor

	// Status — текущий статус шага.
	Status StepStatus

	// Progress — прогресс в процентах [0, 100].
	Progress float64

	// Details — текущие значения метрик (metric → value).
	Details map[string]int

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time

	// FinishedAt — время перехода в COMPLETED или FAILED.
	FinishedAt *time.Time

	// Error — текст ошибки, если шаг упал.
	Error string
}

// NewStepState создаёт шаг в начальном состоянии.
func NewStepState(d StepDescriptor) StepState {
	return StepState{
		Descriptor: d,
		Status:     StepStatusPending,
		Details:    d.ZeroDetails(),
	}
}

// Reset возвращает run-состояние шага к нулевым значениям.
func (s *StepState) Reset() {
	s.Status = StepStatusPending
	s.Progress = 0
	s.Details = s.Descriptor.ZeroDetails()
	s.StartedAt = nil
	s.FinishedAt = nil
	s.Error = ""
}

// MarkRunning переводит шаг в статус RUNNING.
func (s *StepState) MarkRunning(now time.Time) error {
	if err := s.transition(StepStatusRunning); err != nil {
		return err
	}
	s.StartedAt = &now
	return nil
}

// MarkCompleted переводит шаг в статус COMPLETED с прогрессом 100
// и метриками, равными их total.
func (s *StepState) MarkCompleted(now time.Time) error {
	if err := s.transition(StepStatusCompleted); err != nil {
		return err
	}
	s.Progress = 100
	s.Details = s.Descriptor.Totals()
	s.FinishedAt = &now
	return nil
}

// MarkFailed переводит шаг в статус FAILED.
// Прогресс и метрики остаются на последнем значении.
func (s *StepState) MarkFailed(now time.Time, errMsg string) error {
	if err := s.transition(StepStatusFailed); err != nil {
		return err
	}
	s.FinishedAt = &now
	s.Error = errMsg
	return nil
}

func (s *StepState) transition(next StepStatus) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: step %s %s → %s", ErrInvalidTransition, s.Descriptor.ID, s.Status, next)
	}
	s.Status = next
	return nil
}

// Duration возвращает продолжительность выполнения шага.
func (s *StepState) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}

// Clone возвращает глубокую копию состояния шага.
func (s StepState) Clone() StepState {
	c := s
	c.Descriptor = s.Descriptor.Clone()
	c.Details = maps.Clone(s.Details)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return c
}
