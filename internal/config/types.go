// Package config manages application configuration from a YAML file,
// environment variables, and default values.
package config

import "time"

// Config defines the application configuration. Values can be set via
// environment variables prefixed with CONVOCORE_ (e.g. CONVOCORE_GEMINI_API_KEY)
// or through config.yaml.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// DatabaseConfig controls SQLite storage.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`

	// RetentionMaxAge is the age past which ledger entries are eligible for
	// bulk cleanup. Zero disables retention cleanup entirely.
	RetentionMaxAge time.Duration `mapstructure:"retention_max_age"`
}

// GeminiConfig controls the external response generator.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"            validate:"required"`
	ModelName         string        `mapstructure:"model_name"         validate:"required"`
	Temperature       float32       `mapstructure:"temperature"        validate:"min=0,max=2"`
	SystemInstruction string        `mapstructure:"system_instruction"`
	MaxRetries        int           `mapstructure:"max_retries"        validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=0,max=300"`
	Timeout           time.Duration `mapstructure:"timeout"            validate:"min=1s,max=10m"`
}

// ChatConfig controls conversation retrieval and context assembly.
type ChatConfig struct {
	// ContextLimit is how many recent ledger entries feed the AI context.
	ContextLimit int `mapstructure:"context_limit" validate:"min=1,max=100"`

	// HistoryDefaultLimit applies when a history request omits limit.
	HistoryDefaultLimit int `mapstructure:"history_default_limit" validate:"min=1,max=500"`

	// HistoryMaxLimit caps the limit a history request may ask for.
	HistoryMaxLimit int `mapstructure:"history_max_limit" validate:"min=1,max=500"`
}

// TaskConfig enables one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}
