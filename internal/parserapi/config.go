package parserapi

import (
	"time"

	"github.com/calderhq/calder/internal/platform/envutil"
)

type Config struct {
	Host string
	Port string

	LogMode string
	Env     string

	ShutdownTimeout time.Duration
}

func LoadConfig() Config {
	return Config{
		Host:            envutil.Str("HOST", "0.0.0.0"),
		Port:            envutil.Str("PORT", "3001"),
		LogMode:         envutil.Str("LOG_MODE", "dev"),
		Env:             envutil.Str("ENV", "development"),
		ShutdownTimeout: envutil.Seconds("SHUTDOWN_TIMEOUT_SECS", 15*time.Second),
	}
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
