package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBSource      string
	Port          string
	Env           string
	DailyCeiling  int64 // minor units; <= 0 disables the check
	OTPTTL        time.Duration
	NotifyWorkers int
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	ceiling, err := envInt64("DAILY_CEILING", 5_000_000) // $50,000.00
	if err != nil {
		return nil, err
	}

	ttl := 5 * time.Minute
	if raw := os.Getenv("OTP_TTL"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid OTP_TTL: %w", err)
		}
	}

	workers, err := envInt64("NOTIFY_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBSource:      dbSource,
		Port:          port,
		Env:           env,
		DailyCeiling:  ceiling,
		OTPTTL:        ttl,
		NotifyWorkers: int(workers),
	}, nil
}

func envInt64(name string, fallback int64) (int64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
