// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Compliance ComplianceConfig `mapstructure:"compliance"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Mail       MailConfig       `mapstructure:"mail"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
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
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig holds the timer settings for the sweep and drain loops.
// All durations are milliseconds.
type SchedulerConfig struct {
	SweepInterval int  `mapstructure:"sweep_interval"`
	DrainInterval int  `mapstructure:"drain_interval"`
	TickTimeout   int  `mapstructure:"tick_timeout"`
	RunOnStart    bool `mapstructure:"run_on_start"`
}

// ComplianceConfig holds the scanner's escalation policy.
type ComplianceConfig struct {
	// GraceWeeks is the week number after which a still non-compliant
	// allocation also produces a manager alert. Allocations may override it.
	GraceWeeks int `mapstructure:"grace_weeks"`
}

const (
	QueueBackendMemory   = "memory"
	QueueBackendRedis    = "redis"
	QueueBackendPostgres = "postgres"
)

// QueueConfig selects and tunes the dispatch queue backing.
type QueueConfig struct {
	Backend   string `mapstructure:"backend"`
	RedisKey  string `mapstructure:"redis_key"`
	BatchSize int    `mapstructure:"batch_size"`
}

const (
	MailProviderSES  = "ses"
	MailProviderSNS  = "sns"
	MailProviderSMTP = "smtp"
	MailProviderLog  = "log"
)

// MailConfig holds settings for the outbound mail transport.
type MailConfig struct {
	Provider         string `mapstructure:"provider"`
	FromAddress      string `mapstructure:"from_address"`
	Timeout          int    `mapstructure:"timeout"` // milliseconds
	TemplateRegistry string `mapstructure:"template_registry"`

	SES struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"ses"`

	SNS struct {
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`

	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		UseTLS   bool   `mapstructure:"use_tls"`
	} `mapstructure:"smtp"`
}

// ServerConfig holds the listener settings. Address serves health and
// metrics; AdminAddress serves the manual sweep and must only be reachable
// through the auth proxy that sets the caller identity headers.
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	AdminAddress string `mapstructure:"admin_address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
