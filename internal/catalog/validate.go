package catalog

import (
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Validate выполняет полную валидацию набора шагов.
//
// Проверяет:
// - Наличие шагов
// - Уникальность ID шагов
// - Наличие имени
// - Положительную номинальную длительность
// - Корректность схемы detail-метрик
func Validate(steps []domain.StepDescriptor) error {
	if len(steps) == 0 {
		return ErrEmptyCatalog
	}

	stepIDs := make(map[string]bool, len(steps))
	for i := range steps {
		if err := ValidateStep(&steps[i], stepIDs); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStep валидирует один шаг.
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func ValidateStep(step *domain.StepDescriptor, stepIDs map[string]bool) error {
	if step.ID == "" {
		return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	if stepIDs[step.ID] {
		return NewValidationError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
	}
	stepIDs[step.ID] = true

	if step.Name == "" {
		return NewValidationError(step.ID, "name", "step has empty name", ErrEmptyName)
	}

	if step.NominalDuration <= 0 {
		return NewValidationError(step.ID, "duration",
			fmt.Sprintf("nominal duration must be positive, got %s", step.NominalDuration), ErrInvalidDuration)
	}

	return validateMetrics(step)
}

// validateMetrics проверяет схему detail-метрик шага.
func validateMetrics(step *domain.StepDescriptor) error {
	names := make(map[string]bool, len(step.Details))
	for _, m := range step.Details {
		if m.Name == "" {
			return NewValidationError(step.ID, "details",
				"metric has empty name", ErrInvalidMetric)
		}
		if m.Total < 0 {
			return NewValidationError(step.ID, "details",
				fmt.Sprintf("metric %s has negative total %d", m.Name, m.Total), ErrInvalidMetric)
		}
		if names[m.Name] {
			return NewValidationError(step.ID, "details",
				fmt.Sprintf("duplicate metric: %s", m.Name), ErrDuplicateMetric)
		}
		names[m.Name] = true
	}
	return nil
}
