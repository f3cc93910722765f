package config

import (
	"fmt"
	"time"

	"github.com/vietddude/resilience/internal/core/failure"
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/remote"
	"github.com/vietddude/resilience/internal/infra/storage/postgres"
	"github.com/vietddude/resilience/internal/resilience/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Retry        RetryConfig        `yaml:"retry"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Cache        CacheConfig        `yaml:"cache"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Remote       remote.Config      `yaml:"remote"`
	Redis        redisclient.Config `yaml:"redis"`
	Database     postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RetryConfig holds the retry policy for remote fetches.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor"`
}

// Policy converts the config into a retry policy.
func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  c.MaxAttempts,
		BaseDelay:    c.BaseDelay,
		MaxDelay:     c.MaxDelay,
		Multiplier:   c.Multiplier,
		JitterFactor: c.JitterFactor,
	}
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// CacheConfig holds in-memory cache settings.
type CacheConfig struct {
	MaxSize       int           `yaml:"max_size"` // 0 = unbounded
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0 = no sweeper
}

// OrchestratorConfig holds read-path settings.
type OrchestratorConfig struct {
	Namespace       string        `yaml:"namespace"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	LocalTTL        time.Duration `yaml:"local_ttl"`
	StaleKinds      []string      `yaml:"stale_kinds"`
	RetentionPeriod time.Duration `yaml:"retention_period"` // 0 = keep expired records
}

// Kinds resolves StaleKinds. A nil result selects the default set.
func (c OrchestratorConfig) Kinds() ([]failure.Kind, error) {
	if len(c.StaleKinds) == 0 {
		return nil, nil
	}
	kinds := make([]failure.Kind, 0, len(c.StaleKinds))
	for _, name := range c.StaleKinds {
		k, ok := failure.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown failure kind %q", name)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
