package domain

import "errors"

// Ошибки domain слоя.
var (
	// ErrInvalidTransition — недопустимый переход статуса шага.
	ErrInvalidTransition = errors.New("invalid step status transition")
)
