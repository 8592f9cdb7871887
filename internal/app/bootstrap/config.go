package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the lease service.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string
	AuditTopic   string

	HardCap           time.Duration
	DefaultIdleWindow time.Duration
	ActivityCoalesce  time.Duration

	FailureThreshold int
	FailureWindow    time.Duration
	FailureCooldown  time.Duration

	SweepInterval  time.Duration
	SweepBatchSize int
	Retention      time.Duration

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		AuditTopic   string   `yaml:"audit_topic"`
	} `yaml:"dependencies"`
	Lease struct {
		HardCapHours       int `yaml:"hard_cap_hours"`
		DefaultIdleMinutes int `yaml:"default_idle_minutes"`
		CoalesceSeconds    int `yaml:"coalesce_seconds"`
	} `yaml:"lease"`
	Sweep struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		BatchSize       int `yaml:"batch_size"`
		RetentionHours  int `yaml:"retention_hours"`
	} `yaml:"sweep"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:          "session-lease-service",
		HTTPPort:           8080,
		AuditTopic:         "lease.audit",
		HardCap:            12 * time.Hour,
		DefaultIdleWindow:  30 * time.Minute,
		ActivityCoalesce:   60 * time.Second,
		FailureThreshold:   5,
		FailureWindow:      10 * time.Minute,
		FailureCooldown:    15 * time.Minute,
		SweepInterval:      5 * time.Minute,
		SweepBatchSize:     500,
		Retention:          7 * 24 * time.Hour,
		MaxDBConns:         20,
		OutboxPollInterval: 2 * time.Second,
		OutboxBatchSize:    100,
		OutboxClaimTTL:     30 * time.Second,
		OutboxMaxRetries:   5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
		}
		if f.Dependencies.AuditTopic != "" {
			cfg.AuditTopic = f.Dependencies.AuditTopic
		}
		if f.Lease.HardCapHours > 0 {
			cfg.HardCap = time.Duration(f.Lease.HardCapHours) * time.Hour
		}
		if f.Lease.DefaultIdleMinutes > 0 {
			cfg.DefaultIdleWindow = time.Duration(f.Lease.DefaultIdleMinutes) * time.Minute
		}
		if f.Lease.CoalesceSeconds > 0 {
			cfg.ActivityCoalesce = time.Duration(f.Lease.CoalesceSeconds) * time.Second
		}
		if f.Sweep.IntervalSeconds > 0 {
			cfg.SweepInterval = time.Duration(f.Sweep.IntervalSeconds) * time.Second
		}
		if f.Sweep.BatchSize > 0 {
			cfg.SweepBatchSize = f.Sweep.BatchSize
		}
		if f.Sweep.RetentionHours > 0 {
			cfg.Retention = time.Duration(f.Sweep.RetentionHours) * time.Hour
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.AuditTopic = envOrDefault("AUDIT_TOPIC", cfg.AuditTopic)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.HardCap = time.Duration(envInt("LEASE_HARD_CAP_HOURS", int(cfg.HardCap.Hours()))) * time.Hour
	cfg.DefaultIdleWindow = time.Duration(envInt("LEASE_DEFAULT_IDLE_MINUTES", int(cfg.DefaultIdleWindow.Minutes()))) * time.Minute
	cfg.ActivityCoalesce = time.Duration(envInt("LEASE_COALESCE_SECONDS", int(cfg.ActivityCoalesce.Seconds()))) * time.Second

	cfg.FailureThreshold = envInt("FAILURE_THRESHOLD", cfg.FailureThreshold)
	cfg.FailureWindow = time.Duration(envInt("FAILURE_WINDOW_MINUTES", int(cfg.FailureWindow.Minutes()))) * time.Minute
	cfg.FailureCooldown = time.Duration(envInt("FAILURE_COOLDOWN_MINUTES", int(cfg.FailureCooldown.Minutes()))) * time.Minute

	cfg.SweepInterval = time.Duration(envInt("SWEEP_INTERVAL_SECONDS", int(cfg.SweepInterval.Seconds()))) * time.Second
	cfg.SweepBatchSize = envInt("SWEEP_BATCH_SIZE", cfg.SweepBatchSize)
	cfg.Retention = time.Duration(envInt("LEASE_RETENTION_HOURS", int(cfg.Retention.Hours()))) * time.Hour

	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_INTERVAL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
