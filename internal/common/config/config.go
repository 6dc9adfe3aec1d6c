// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Camunda   CamundaConfig           `mapstructure:"camunda"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	APIs      APIsConfig              `mapstructure:"apis"`
	Consensus ConsensusConfig         `mapstructure:"consensus"`
	Pricing   PricingConfig           `mapstructure:"pricing"`
	Registry  RegistryConfig          `mapstructure:"registry"`
	Ledger    LedgerConfig            `mapstructure:"ledger"`
	Logging   LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	PoolSize  int    `mapstructure:"pool_size"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// APIsConfig holds settings for the Completion Service.
type APIsConfig struct {
	GenAI struct {
		Provider string `mapstructure:"provider"` // "gemini" or "http"
		BaseURL  string `mapstructure:"base_url"`
		APIKey   string `mapstructure:"api_key"`
		Model    string `mapstructure:"model"`
		Timeout  int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"genai"`
}

// ConsensusConfig tunes the reply counts and retry budgets of AI steps.
type ConsensusConfig struct {
	Phase1Replies    int `mapstructure:"phase1_replies"`
	Phase2Replies    int `mapstructure:"phase2_replies"`
	Phase1MaxRetries int `mapstructure:"phase1_max_retries"`
	Phase2MaxRetries int `mapstructure:"phase2_max_retries"`
	TextReplies      int `mapstructure:"text_replies"`
	TextMaxRetries   int `mapstructure:"text_max_retries"`
	Concurrency      int `mapstructure:"concurrency"`
}

// PricingConfig overrides the built-in per-country conversion rates.
type PricingConfig struct {
	Rates  map[string]float64 `mapstructure:"rates"`
	Suffix string             `mapstructure:"suffix"`
}

// RegistryConfig points at the attribute registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// LedgerConfig controls where run failures go.
type LedgerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	TopicARN string `mapstructure:"topic_arn"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
