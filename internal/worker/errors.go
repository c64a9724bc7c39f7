package worker

import "errors"

// Ошибки executor'ов.
var (
	// ErrStepFailed — работа шага завершилась ошибкой.
	ErrStepFailed = errors.New("step failed")

	// ErrStepCancelled — выполнение шага прервано через context.
	ErrStepCancelled = errors.New("step execution cancelled")

	// ErrInvalidTickCount — количество тиков симуляции не положительно.
	ErrInvalidTickCount = errors.New("invalid tick count")

	// ErrHTTPRequest — HTTP-запрос к analysis engine завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")

	// ErrRetryExhausted — все попытки опроса analysis engine исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)
