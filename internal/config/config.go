package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	HTTPPort    int

	SourcesFile          string
	DefaultOwner         string
	MaxConcurrentFetches int
	SchedulerTickSecs    int
	FetchTimeoutSecs     int
	BackoffCap           int

	ShortWindow           int
	LongWindow            int
	NeutralZonePct        float64
	ConditionThresholdPct float64

	TelegramBotToken      string
	AlertFailureThreshold int
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, running without the Redis cache")
	}
	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, failure alerts disabled")
	}

	cfg.HTTPPort = 8080
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	cfg.SourcesFile = strings.TrimSpace(os.Getenv("SOURCES_FILE"))
	if cfg.SourcesFile == "" {
		cfg.SourcesFile = "sources.json"
	}

	cfg.DefaultOwner = strings.TrimSpace(os.Getenv("DEFAULT_OWNER"))
	if cfg.DefaultOwner == "" {
		cfg.DefaultOwner = "default"
	}

	cfg.MaxConcurrentFetches = 6
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_FETCHES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentFetches = n
		}
	}

	cfg.SchedulerTickSecs = 30
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_TICK_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SchedulerTickSecs = n
		}
	}

	cfg.FetchTimeoutSecs = 10
	if v := strings.TrimSpace(os.Getenv("FETCH_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchTimeoutSecs = n
		}
	}

	// Cap on the backoff multiplier: the effective refresh interval never
	// exceeds interval * cap.
	cfg.BackoffCap = 64
	if v := strings.TrimSpace(os.Getenv("BACKOFF_CAP")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.BackoffCap = n
		}
	}

	cfg.ShortWindow = 5
	if v := strings.TrimSpace(os.Getenv("TREND_SHORT_WINDOW")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ShortWindow = n
		}
	}

	cfg.LongWindow = 20
	if v := strings.TrimSpace(os.Getenv("TREND_LONG_WINDOW")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > cfg.ShortWindow {
			cfg.LongWindow = n
		}
	}

	cfg.NeutralZonePct = 0.5
	if v := strings.TrimSpace(os.Getenv("TREND_NEUTRAL_ZONE_PCT")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n >= 0 {
			cfg.NeutralZonePct = n
		}
	}

	cfg.ConditionThresholdPct = 1.0
	if v := strings.TrimSpace(os.Getenv("CONDITION_THRESHOLD_PCT")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.ConditionThresholdPct = n
		}
	}

	cfg.AlertFailureThreshold = 3
	if v := strings.TrimSpace(os.Getenv("ALERT_FAILURE_THRESHOLD")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AlertFailureThreshold = n
		}
	}

	return cfg
}
