package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
database:
  postgres:
    host: localhost
    database: allocations
    user: engine
  redis:
    address: localhost:6379
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 300000, cfg.Scheduler.SweepInterval)
	assert.Equal(t, 30000, cfg.Scheduler.DrainInterval)
	assert.Equal(t, 2, cfg.Compliance.GraceWeeks)
	assert.Equal(t, QueueBackendRedis, cfg.Queue.Backend)
	assert.Equal(t, "compliance:dispatch", cfg.Queue.RedisKey)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, MailProviderLog, cfg.Mail.Provider)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "127.0.0.1:8081", cfg.Server.AdminAddress)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "s3cret")
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
    password: ${TEST_PG_PASSWORD}
`))
	// password belongs to redis here; the point is the expansion.
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Redis.Password)
}

func TestLoadFromFile_ExplicitValues(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, `
database:
  postgres:
    host: db
    database: allocations
    user: engine
scheduler:
  sweep_interval: 60000
  drain_interval: 5000
  run_on_start: true
compliance:
  grace_weeks: 3
queue:
  backend: postgres
  batch_size: 25
mail:
  provider: smtp
  from_address: noreply@example.edu
  smtp:
    host: smtp.example.edu
`))
	require.NoError(t, err)

	assert.Equal(t, 60000, cfg.Scheduler.SweepInterval)
	assert.True(t, cfg.Scheduler.RunOnStart)
	assert.Equal(t, 3, cfg.Compliance.GraceWeeks)
	assert.Equal(t, QueueBackendPostgres, cfg.Queue.Backend)
	assert.Equal(t, 25, cfg.Queue.BatchSize)
	assert.Equal(t, "smtp.example.edu", cfg.Mail.SMTP.Host)
	assert.Equal(t, 587, cfg.Mail.SMTP.Port)
}

func TestLoadFromFile_ZeroGraceWeeksKept(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
compliance:
  grace_weeks: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Compliance.GraceWeeks, "zero escalates from week 1")
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Database.Postgres.Host = "db"
		cfg.Database.Postgres.Database = "allocations"
		cfg.Database.Postgres.User = "engine"
		cfg.Database.Redis.Address = "redis:6379"
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Database.Postgres.Host = "" }, wantErr: "database.postgres.host"},
		{name: "missing user", mutate: func(c *Config) { c.Database.Postgres.User = "" }, wantErr: "database.postgres.user"},
		{name: "unknown queue backend", mutate: func(c *Config) { c.Queue.Backend = "kafka" }, wantErr: "queue.backend"},
		{name: "redis backend needs address", mutate: func(c *Config) { c.Database.Redis.Address = "" }, wantErr: "database.redis.address"},
		{name: "memory backend needs no redis", mutate: func(c *Config) {
			c.Queue.Backend = QueueBackendMemory
			c.Database.Redis.Address = ""
		}},
		{name: "ses needs region", mutate: func(c *Config) {
			c.Mail.Provider = MailProviderSES
			c.Mail.FromAddress = "a@b.edu"
		}, wantErr: "mail.ses.region"},
		{name: "sns needs topic", mutate: func(c *Config) {
			c.Mail.Provider = MailProviderSNS
			c.Mail.FromAddress = "a@b.edu"
		}, wantErr: "mail.sns.topic_arn"},
		{name: "smtp needs from", mutate: func(c *Config) {
			c.Mail.Provider = MailProviderSMTP
			c.Mail.SMTP.Host = "smtp"
		}, wantErr: "mail.from_address"},
		{name: "unknown provider", mutate: func(c *Config) { c.Mail.Provider = "pigeon" }, wantErr: "mail.provider"},
		{name: "admin shares public listener", mutate: func(c *Config) { c.Server.AdminAddress = c.Server.Address }, wantErr: "server.admin_address"},
		{name: "negative grace", mutate: func(c *Config) { c.Compliance.GraceWeeks = -1 }, wantErr: "grace_weeks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, GetDuration(30000))
	assert.Equal(t, time.Duration(0), GetDuration(0))
}

func TestGetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.GetDSN())
}
