package orchestrator

import (
	"time"

	"github.com/calderhq/calder/internal/platform/envutil"
)

// Config is the orchestrator's environment-driven configuration.
type Config struct {
	Host string
	Port string

	LogMode string
	Env     string

	HeartbeatTimeout time.Duration
	CheckInterval    time.Duration
	MaxRetryAttempts int

	ShutdownTimeout time.Duration
}

func LoadConfig() Config {
	return Config{
		Host:             envutil.Str("HOST", "0.0.0.0"),
		Port:             envutil.Str("PORT", "3002"),
		LogMode:          envutil.Str("LOG_MODE", "dev"),
		Env:              envutil.Str("ENV", "development"),
		HeartbeatTimeout: envutil.Seconds("HEARTBEAT_TIMEOUT_SECS", 30*time.Second),
		CheckInterval:    envutil.Seconds("HEALTH_CHECK_INTERVAL_SECS", 10*time.Second),
		MaxRetryAttempts: envutil.Int("MAX_RETRY_ATTEMPTS", 3),
		ShutdownTimeout:  envutil.Seconds("SHUTDOWN_TIMEOUT_SECS", 15*time.Second),
	}
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
