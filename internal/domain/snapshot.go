package domain

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot — неизменяемый срез состояния run на момент публикации.
//
// Это весь контракт чтения для display layer: progress bars,
// architecture diagram и real-time метрики строятся только из Snapshot.
type Snapshot struct {
	RunID            uuid.UUID      `json:"run_id"`
	State            RunState       `json:"run_state"`
	CurrentStepIndex int            `json:"current_step_index"`
	OverallProgress  float64        `json:"overall_progress"`
	Steps            []StepSnapshot `json:"steps"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
	Error            string         `json:"error,omitempty"`

	// Version — порядковый номер публикации. Позволяет потребителям
	// отбрасывать устаревшие snapshots.
	Version uint64 `json:"version"`
}

// StepSnapshot — состояние одного шага внутри Snapshot.
type StepSnapshot struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	NominalDurationMs int64          `json:"nominal_duration_ms"`
	Totals            []MetricDef    `json:"totals,omitempty"`
	Status            StepStatus     `json:"status"`
	Progress          float64        `json:"progress"`
	Details           map[string]int `json:"details"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// Step возвращает шаг по ID.
func (s Snapshot) Step(id string) (StepSnapshot, bool) {
	for _, st := range s.Steps {
		if st.ID == id {
			return st, true
		}
	}
	return StepSnapshot{}, false
}

// RunningCount возвращает количество шагов в статусе RUNNING.
func (s Snapshot) RunningCount() int {
	n := 0
	for _, st := range s.Steps {
		if st.Status == StepStatusRunning {
			n++
		}
	}
	return n
}

// CurrentStep возвращает текущий шаг, если индекс в границах.
func (s Snapshot) CurrentStep() (StepSnapshot, bool) {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Steps) {
		return StepSnapshot{}, false
	}
	return s.Steps[s.CurrentStepIndex], true
}

// AnalysisPayload — входные данные анализа.
//
// Для оркестратора важен только факт наличия payload: nil означает,
// что payload отсутствует. Содержимое формирует внешний сервис ingestion.
type AnalysisPayload struct {
	// ID — идентификатор анализа во внешней системе.
	ID string `json:"id,omitempty"`

	// Source — откуда пришёл payload (api, mq, scheduler, cli).
	Source string `json:"source,omitempty"`

	// Documents — ссылки на документы анализа.
	Documents []string `json:"documents,omitempty"`

	// Inputs — произвольные параметры анализа.
	Inputs map[string]any `json:"inputs,omitempty"`
}
