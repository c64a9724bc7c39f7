package config

import "errors"

// Ошибки конфигурации.
var (
	// ErrInvalidConfig — значение конфигурации вне допустимого диапазона.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrReadConfig — не удалось прочитать файл конфигурации.
	ErrReadConfig = errors.New("read config")
)
