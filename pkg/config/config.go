package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for trustline-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8470"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Plan engine tuning
	Engine EngineConfig `yaml:"engine"`

	// Code generator (LLM) configuration
	Generator GeneratorConfig `yaml:"generator"`

	// Sandbox executor configuration
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Notification configuration
	Notifier NotifierConfig `yaml:"notifier"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"trustline"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"trustline_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	// ConnLifetime and ConnIdleTime bound how long pooled connections live.
	ConnLifetime time.Duration `yaml:"conn_lifetime" env:"PGCONN_LIFETIME" env-default:"45m"`
	ConnIdleTime time.Duration `yaml:"conn_idle_time" env:"PGCONN_IDLE_TIME" env-default:"15m"`
	SSLMode      string        `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// EngineConfig holds tuning knobs for the transformation plan lifecycle.
type EngineConfig struct {
	// MaxIterations is the default refinement budget for new plans.
	MaxIterations int `yaml:"max_iterations" env:"ENGINE_MAX_ITERATIONS" env-default:"5"`
	// AccuracyThreshold is the default sample accuracy a plan must reach (0..1).
	AccuracyThreshold float64 `yaml:"accuracy_threshold" env:"ENGINE_ACCURACY_THRESHOLD" env-default:"0.95"`
	// SampleRowLimit caps the sample size used during iteration runs.
	SampleRowLimit int `yaml:"sample_row_limit" env:"ENGINE_SAMPLE_ROW_LIMIT" env-default:"1000"`
	// ApprovalWindow is how long a pending approval stays decidable.
	ApprovalWindow time.Duration `yaml:"approval_window" env:"ENGINE_APPROVAL_WINDOW" env-default:"24h"`
	// ExpirySweepInterval is how often pending approvals are checked for expiry.
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval" env:"ENGINE_EXPIRY_SWEEP_INTERVAL" env-default:"1m"`
	// FailureTolerance is the fraction of failed rows a full execution may
	// carry and still count as completed. Above it, the execution is rolled back.
	FailureTolerance float64 `yaml:"failure_tolerance" env:"ENGINE_FAILURE_TOLERANCE" env-default:"0.01"`
}

// GeneratorConfig holds code generator (LLM) endpoint configuration.
type GeneratorConfig struct {
	// Provider selects the generator backend: "anthropic" or "openai".
	// "openai" also covers any OpenAI-compatible self-hosted endpoint.
	Provider string `yaml:"provider" env:"GENERATOR_PROVIDER" env-default:"anthropic"`
	BaseURL  string `yaml:"base_url" env:"GENERATOR_BASE_URL" env-default:""`
	Model    string `yaml:"model" env:"GENERATOR_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"GENERATOR_API_KEY"` // Secret - not in YAML
	// Timeout bounds a single generation call.
	Timeout time.Duration `yaml:"timeout" env:"GENERATOR_TIMEOUT" env-default:"120s"`
}

// SandboxConfig holds sandbox executor configuration.
type SandboxConfig struct {
	// Mode selects the executor backend: "http" (remote sandbox service)
	// or "wasm" (local Extism plugin).
	Mode     string `yaml:"mode" env:"SANDBOX_MODE" env-default:"http"`
	Endpoint string `yaml:"endpoint" env:"SANDBOX_ENDPOINT" env-default:"http://localhost:8471"`
	APIKey   string `yaml:"-" env:"SANDBOX_API_KEY"` // Secret - not in YAML
	// WasmModulePath points at the transformation runner module for wasm mode.
	WasmModulePath string `yaml:"wasm_module_path" env:"SANDBOX_WASM_MODULE_PATH" env-default:""`
	// Timeout bounds a single sandbox run (sample or full).
	Timeout time.Duration `yaml:"timeout" env:"SANDBOX_TIMEOUT" env-default:"10m"`
}

// NotifierConfig holds notification delivery configuration.
type NotifierConfig struct {
	// WebhookURL receives plan lifecycle notifications. Empty disables delivery
	// (notifications are still logged).
	WebhookURL string `yaml:"webhook_url" env:"NOTIFIER_WEBHOOK_URL" env-default:""`
	// TemplatesPath points at the YAML file with message templates per channel.
	TemplatesPath string `yaml:"templates_path" env:"NOTIFIER_TEMPLATES_PATH" env-default:"templates.yaml"`
	Timeout       time.Duration `yaml:"timeout" env:"NOTIFIER_TIMEOUT" env-default:"10s"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.MaxIterations < 1 {
		return fmt.Errorf("engine.max_iterations must be at least 1")
	}
	if c.Engine.AccuracyThreshold <= 0 || c.Engine.AccuracyThreshold > 1 {
		return fmt.Errorf("engine.accuracy_threshold must be in (0, 1]")
	}
	if c.Engine.FailureTolerance < 0 || c.Engine.FailureTolerance >= 1 {
		return fmt.Errorf("engine.failure_tolerance must be in [0, 1)")
	}
	if c.Engine.SampleRowLimit < 1 {
		return fmt.Errorf("engine.sample_row_limit must be at least 1")
	}

	switch c.Generator.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("generator.provider must be anthropic or openai, got %q", c.Generator.Provider)
	}

	switch c.Sandbox.Mode {
	case "http":
	case "wasm":
		if c.Sandbox.WasmModulePath == "" {
			return fmt.Errorf("sandbox.wasm_module_path is required for wasm mode")
		}
		if _, err := os.Stat(c.Sandbox.WasmModulePath); err != nil {
			return fmt.Errorf("sandbox wasm module does not exist: %w", err)
		}
	default:
		return fmt.Errorf("sandbox.mode must be http or wasm, got %q", c.Sandbox.Mode)
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
