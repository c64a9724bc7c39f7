package catalog

import "errors"

// Ошибки валидации каталога.
var (
	// ErrEmptyCatalog — каталог не содержит шагов.
	ErrEmptyCatalog = errors.New("catalog has no steps")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrEmptyName — шаг не имеет имени.
	ErrEmptyName = errors.New("step has empty name")

	// ErrInvalidDuration — номинальная длительность шага не положительна.
	ErrInvalidDuration = errors.New("invalid nominal duration")

	// ErrInvalidMetric — метрика без имени или с отрицательным total.
	ErrInvalidMetric = errors.New("invalid detail metric")

	// ErrDuplicateMetric — несколько метрик с одинаковым именем в одном шаге.
	ErrDuplicateMetric = errors.New("duplicate detail metric")
)

// Ошибки загрузки каталога.
var (
	// ErrUnknownFormat — неизвестный формат файла каталога.
	ErrUnknownFormat = errors.New("unknown catalog format")

	// ErrParse — файл каталога не удалось разобрать.
	ErrParse = errors.New("catalog parse failed")

	// ErrStepNotFound — шаг не найден в каталоге.
	ErrStepNotFound = errors.New("step not found in catalog")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
