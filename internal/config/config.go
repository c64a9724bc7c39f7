// Package config загружает конфигурацию conveyord.
//
// Источники (от высшего приоритета к низшему):
//  1. Переменные окружения с префиксом CONVEYOR_ (http.addr → CONVEYOR_HTTP_ADDR)
//  2. Общие переменные окружения: DB_URL, RABBITMQ_URL, LOG_LEVEL, LOG_FORMAT
//  3. Файл конфигурации (--config или CONVEYOR_CONFIG), YAML/JSON/TOML
//  4. Default
package config

import "time"

// Типы executor'ов шагов.
const (
	ExecutorSimulated = "simulated"
	ExecutorHTTP      = "http"
)

// Config — корневая конфигурация.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	DB       DBConfig       `mapstructure:"db"`
	MQ       MQConfig       `mapstructure:"mq"`
	Log      LogConfig      `mapstructure:"log"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// HTTPConfig — HTTP сервер (API, /healthz, /metrics).
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// DBConfig — PostgreSQL для хранения последнего snapshot.
type DBConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// MQConfig — RabbitMQ для snapshots и команд.
type MQConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// LogConfig — логирование.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CatalogConfig — каталог шагов. Пустой Path — встроенный каталог.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// ExecutorConfig — выполнение шагов.
type ExecutorConfig struct {
	// Kind — simulated или http.
	Kind string `mapstructure:"kind"`

	// Ticks — количество тиков симуляции на шаг.
	Ticks int `mapstructure:"ticks"`

	// BaseURL — адрес analysis engine для kind = http.
	BaseURL string `mapstructure:"base_url"`

	// PollInterval — интервал опроса job для kind = http.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// PipelineConfig — параметры Controller'а.
type PipelineConfig struct {
	StepTimeoutFactor float64       `mapstructure:"step_timeout_factor"`
	StepTimeoutGrace  time.Duration `mapstructure:"step_timeout_grace"`
}

// ScheduleConfig — запуск run по cron.
type ScheduleConfig struct {
	// Cron — cron выражение (5 полей или дескриптор вроде @hourly). Пустое — выключено.
	Cron string `mapstructure:"cron"`

	// PayloadSource — путь к JSON/YAML файлу с analysis payload.
	PayloadSource string `mapstructure:"payload_source"`

	// Documents — документы payload, если PayloadSource не задан.
	Documents []string `mapstructure:"documents"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		DB:   DBConfig{Enabled: false},
		MQ:   MQConfig{Enabled: false},
		Log:  LogConfig{Level: "INFO", Format: "json"},
		Executor: ExecutorConfig{
			Kind:         ExecutorSimulated,
			Ticks:        50,
			PollInterval: 500 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			StepTimeoutFactor: 3,
			StepTimeoutGrace:  10 * time.Second,
		},
	}
}
