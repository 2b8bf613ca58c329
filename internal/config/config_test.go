package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("SOURCES_FILE", "")
	t.Setenv("DEFAULT_OWNER", "")
	t.Setenv("MAX_CONCURRENT_FETCHES", "")
	t.Setenv("SCHEDULER_TICK_SECS", "")
	t.Setenv("FETCH_TIMEOUT_SECS", "")
	t.Setenv("BACKOFF_CAP", "")
	t.Setenv("TREND_SHORT_WINDOW", "")
	t.Setenv("TREND_LONG_WINDOW", "")
	t.Setenv("TREND_NEUTRAL_ZONE_PCT", "")
	t.Setenv("CONDITION_THRESHOLD_PCT", "")
	t.Setenv("ALERT_FAILURE_THRESHOLD", "")

	cfg := Load()
	if cfg.RedisURL != "" {
		t.Fatalf("expected unset redis url to stay empty, got %s", cfg.RedisURL)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected default http port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.SourcesFile != "sources.json" || cfg.DefaultOwner != "default" {
		t.Fatalf("unexpected file/owner defaults: %s %s", cfg.SourcesFile, cfg.DefaultOwner)
	}
	if cfg.MaxConcurrentFetches != 6 || cfg.SchedulerTickSecs != 30 || cfg.FetchTimeoutSecs != 10 {
		t.Fatalf("unexpected scheduler defaults: %+v", cfg)
	}
	if cfg.BackoffCap != 64 {
		t.Fatalf("expected default backoff cap 64, got %d", cfg.BackoffCap)
	}
	if cfg.ShortWindow != 5 || cfg.LongWindow != 20 {
		t.Fatalf("unexpected window defaults: %d/%d", cfg.ShortWindow, cfg.LongWindow)
	}
	if cfg.NeutralZonePct != 0.5 || cfg.ConditionThresholdPct != 1.0 {
		t.Fatalf("unexpected threshold defaults: %+v", cfg)
	}
	if cfg.AlertFailureThreshold != 3 {
		t.Fatalf("expected default alert threshold 3, got %d", cfg.AlertFailureThreshold)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SOURCES_FILE", "/etc/feeds/sources.json")
	t.Setenv("DEFAULT_OWNER", "alice")
	t.Setenv("MAX_CONCURRENT_FETCHES", "12")
	t.Setenv("SCHEDULER_TICK_SECS", "15")
	t.Setenv("FETCH_TIMEOUT_SECS", "5")
	t.Setenv("BACKOFF_CAP", "4")
	t.Setenv("TREND_SHORT_WINDOW", "3")
	t.Setenv("TREND_LONG_WINDOW", "12")
	t.Setenv("TREND_NEUTRAL_ZONE_PCT", "0.25")
	t.Setenv("CONDITION_THRESHOLD_PCT", "2.5")
	t.Setenv("ALERT_FAILURE_THRESHOLD", "5")

	cfg := Load()
	if cfg.TelegramBotToken != "token" || cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.HTTPPort != 9090 || cfg.SourcesFile != "/etc/feeds/sources.json" || cfg.DefaultOwner != "alice" {
		t.Fatalf("unexpected env values: %+v", cfg)
	}
	if cfg.MaxConcurrentFetches != 12 || cfg.SchedulerTickSecs != 15 || cfg.FetchTimeoutSecs != 5 || cfg.BackoffCap != 4 {
		t.Fatalf("unexpected scheduler env values: %+v", cfg)
	}
	if cfg.ShortWindow != 3 || cfg.LongWindow != 12 {
		t.Fatalf("unexpected window env values: %d/%d", cfg.ShortWindow, cfg.LongWindow)
	}
	if cfg.NeutralZonePct != 0.25 || cfg.ConditionThresholdPct != 2.5 {
		t.Fatalf("unexpected threshold env values: %+v", cfg)
	}
	if cfg.AlertFailureThreshold != 5 {
		t.Fatalf("expected alert threshold 5, got %d", cfg.AlertFailureThreshold)
	}

	t.Setenv("HTTP_PORT", "bad")
	t.Setenv("MAX_CONCURRENT_FETCHES", "0")
	t.Setenv("SCHEDULER_TICK_SECS", "bad")
	t.Setenv("FETCH_TIMEOUT_SECS", "-1")
	t.Setenv("BACKOFF_CAP", "bad")
	t.Setenv("TREND_SHORT_WINDOW", "bad")
	t.Setenv("TREND_LONG_WINDOW", "2")
	t.Setenv("TREND_NEUTRAL_ZONE_PCT", "bad")
	t.Setenv("CONDITION_THRESHOLD_PCT", "0")
	t.Setenv("ALERT_FAILURE_THRESHOLD", "bad")
	cfg = Load()
	if cfg.HTTPPort != 8080 || cfg.MaxConcurrentFetches != 6 || cfg.SchedulerTickSecs != 30 {
		t.Fatalf("invalid numeric values should fall back to defaults: %+v", cfg)
	}
	if cfg.FetchTimeoutSecs != 10 || cfg.BackoffCap != 64 {
		t.Fatalf("invalid fetch values should fall back to defaults: %+v", cfg)
	}
	if cfg.ShortWindow != 5 || cfg.LongWindow != 20 {
		t.Fatalf("long window must exceed short window, got %d/%d", cfg.ShortWindow, cfg.LongWindow)
	}
	if cfg.NeutralZonePct != 0.5 || cfg.ConditionThresholdPct != 1.0 || cfg.AlertFailureThreshold != 3 {
		t.Fatalf("invalid threshold values should fall back to defaults: %+v", cfg)
	}
}
