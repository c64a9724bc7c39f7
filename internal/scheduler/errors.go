package scheduler

import "errors"

var (
	// ErrInvalidCron — некорректное cron-выражение.
	ErrInvalidCron = errors.New("invalid cron expression")

	// ErrInvalidConfig — некорректная конфигурация Scheduler.
	ErrInvalidConfig = errors.New("invalid scheduler config")
)
