package api

import (
	"github.com/shaiso/Conveyor/internal/domain"
)

// Pipeline DTOs

// StartRequest — запрос на запуск run.
type StartRequest struct {
	Payload *domain.AnalysisPayload `json:"payload"`
}

// Catalog DTOs

// CatalogStepResponse — шаг каталога.
type CatalogStepResponse struct {
	Index             int                `json:"index"`
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	NominalDurationMs int64              `json:"nominal_duration_ms"`
	Details           []domain.MetricDef `json:"details"`
}

// CatalogResponse — каталог шагов.
type CatalogResponse struct {
	Steps             []CatalogStepResponse `json:"steps"`
	NominalDurationMs int64                 `json:"nominal_duration_ms"`
}

// CatalogStepFromDomain конвертирует domain.StepDescriptor в CatalogStepResponse.
func CatalogStepFromDomain(i int, d domain.StepDescriptor) CatalogStepResponse {
	details := d.Details
	if details == nil {
		details = []domain.MetricDef{}
	}
	return CatalogStepResponse{
		Index:             i,
		ID:                d.ID,
		Name:              d.Name,
		Description:       d.Description,
		NominalDurationMs: d.NominalDuration.Milliseconds(),
		Details:           details,
	}
}
