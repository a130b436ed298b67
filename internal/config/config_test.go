package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8000, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "testgen_db", cfg.Database.Database)
				assert.Equal(t, "testgen_jobs", cfg.RabbitMQ.JobQueue)
				assert.Equal(t, "testgen_events", cfg.RabbitMQ.EventExchange)
				assert.Equal(t, "ai-testgen-api", cfg.App.Name)
				assert.Equal(t, time.Hour, cfg.Jobs.ResultRetention)
				assert.Equal(t, "deepseek/deepseek-chat", cfg.LLM.Model)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8000},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "testgen_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:          "localhost",
			Port:          5672,
			JobQueue:      "testgen_jobs",
			EventExchange: "testgen_events",
		},
		Auth: AuthConfig{JWTSecret: "secret"},
		LLM:  LLMConfig{Model: "deepseek/deepseek-chat"},
		Worker: WorkerConfig{
			Concurrency:     4,
			JobTimeout:      time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "server port too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "server port too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing jwt secret",
			mutate:    func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr:   true,
			errString: "jwt_secret is required",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "missing job queue",
			mutate:    func(c *Config) { c.RabbitMQ.JobQueue = "" },
			wantErr:   true,
			errString: "job_queue is required",
		},
		{
			name:      "missing event exchange",
			mutate:    func(c *Config) { c.RabbitMQ.EventExchange = "" },
			wantErr:   true,
			errString: "event_exchange is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "concurrency must be greater than 0",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			wantErr:   true,
			errString: "job_timeout must be greater than 0",
		},
		{
			name:      "missing llm model",
			mutate:    func(c *Config) { c.LLM.Model = "" },
			wantErr:   true,
			errString: "llm model is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
