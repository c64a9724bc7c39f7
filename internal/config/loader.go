package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "CONVEYOR"

// envAliases — общие переменные окружения, которые читаются наряду с CONVEYOR_*.
var envAliases = map[string]string{
	"db.url":     "DB_URL",
	"mq.url":     "RABBITMQ_URL",
	"log.level":  "LOG_LEVEL",
	"log.format": "LOG_FORMAT",
}

// Loader загружает Config через viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader создаёт Loader с default и env binding.
func NewLoader() *Loader {
	v := viper.New()

	d := Default()
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("db.enabled", d.DB.Enabled)
	v.SetDefault("db.url", d.DB.URL)
	v.SetDefault("mq.enabled", d.MQ.Enabled)
	v.SetDefault("mq.url", d.MQ.URL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("executor.kind", d.Executor.Kind)
	v.SetDefault("executor.ticks", d.Executor.Ticks)
	v.SetDefault("executor.base_url", d.Executor.BaseURL)
	v.SetDefault("executor.poll_interval", d.Executor.PollInterval)
	v.SetDefault("pipeline.step_timeout_factor", d.Pipeline.StepTimeoutFactor)
	v.SetDefault("pipeline.step_timeout_grace", d.Pipeline.StepTimeoutGrace)
	v.SetDefault("schedule.cron", d.Schedule.Cron)
	v.SetDefault("schedule.payload_source", d.Schedule.PayloadSource)
	v.SetDefault("schedule.documents", d.Schedule.Documents)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		// CONVEYOR_* имеет приоритет над общим именем.
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), alias)
	}

	return &Loader{v: v}
}

// Load читает конфигурацию. Пустой path — CONVEYOR_CONFIG, затем только default и env.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrReadConfig, path, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrReadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load — сокращение для NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Validate проверяет диапазоны значений.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.HTTP.Addr == "" {
		invalid("http.addr is required")
	}
	switch c.Executor.Kind {
	case ExecutorSimulated:
	case ExecutorHTTP:
		if c.Executor.BaseURL == "" {
			invalid("executor.base_url is required for http executor")
		}
	default:
		invalid("executor.kind must be %q or %q, got %q", ExecutorSimulated, ExecutorHTTP, c.Executor.Kind)
	}
	if c.Executor.Ticks < 0 {
		invalid("executor.ticks must not be negative, got %d", c.Executor.Ticks)
	}
	if c.Executor.PollInterval < 0 {
		invalid("executor.poll_interval must not be negative")
	}
	if c.Pipeline.StepTimeoutFactor < 0 {
		invalid("pipeline.step_timeout_factor must not be negative")
	}
	if c.Pipeline.StepTimeoutGrace < 0 {
		invalid("pipeline.step_timeout_grace must not be negative")
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			invalid("schedule.cron %q: %v", c.Schedule.Cron, err)
		}
	}

	return errors.Join(errs...)
}
