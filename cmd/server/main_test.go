package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"tokenadvisor/internal/bot"
	"tokenadvisor/internal/config"
	"tokenadvisor/internal/domain"
	"tokenadvisor/internal/feed"
	"tokenadvisor/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := stubServerDeps()
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func TestMainWaitsForSchedulerDrain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := stubServerDeps()
	defer restore()

	release := make(chan struct{})
	startSchedulerFunc = func(*scheduler.Scheduler, context.Context) <-chan struct{} {
		done := make(chan struct{})
		go func() {
			<-release
			close(done)
		}()
		return done
	}

	finished := make(chan struct{})
	go func() {
		main()
		close(finished)
	}()

	select {
	case <-finished:
		t.Fatal("main exited before the scheduler drained")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit after the scheduler drained")
	}
}

func TestRegistryTokensDeduplicates(t *testing.T) {
	registry := mustRegistry(t)
	tokens := registryTokens(registry)
	if len(tokens) != 2 {
		t.Fatalf("expected 2 distinct tokens, got %v", tokens)
	}
	if tokens[0] != "bitcoin" || tokens[1] != "ethereum" {
		t.Fatalf("unexpected token order: %v", tokens)
	}
}

func stubServerDeps() func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitPostgres := initPostgresFunc
	origInitRedis := initRedisFunc
	origInitTracer := initTracerFunc
	origLoadRegistry := loadRegistryFunc
	origStartScheduler := startSchedulerFunc
	origStartTelegram := startTelegramBotFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			DefaultOwner:          "default",
			MaxConcurrentFetches:  2,
			SchedulerTickSecs:     1,
			FetchTimeoutSecs:      1,
			ShortWindow:           2,
			LongWindow:            4,
			NeutralZonePct:        0.5,
			ConditionThresholdPct: 1.0,
			AlertFailureThreshold: 3,
			HTTPPort:              8080,
			SourcesFile:           "sources.json",
		}
	}
	initPostgresFunc = func(context.Context, string) *pgxpool.Pool { return nil }
	initRedisFunc = func(context.Context, string) *redis.Client { return nil }
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	loadRegistryFunc = func(string, *feed.NormalizerSet) (*feed.Registry, error) {
		return feed.NewRegistry(nil, nil)
	}
	startSchedulerFunc = func(*scheduler.Scheduler, context.Context) <-chan struct{} {
		done := make(chan struct{})
		close(done)
		return done
	}
	startTelegramBotFunc = func(context.Context, string, string, int, bot.MarketQuerier, bot.Recommender) *bot.AlertDispatcher {
		return nil
	}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initPostgresFunc = origInitPostgres
		initRedisFunc = origInitRedis
		initTracerFunc = origInitTracer
		loadRegistryFunc = origLoadRegistry
		startSchedulerFunc = origStartScheduler
		startTelegramBotFunc = origStartTelegram
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}

func mustRegistry(t *testing.T) *feed.Registry {
	t.Helper()
	sources := []domain.DataSourceConfig{
		{
			Owner: "default", Key: "cg-btc", Kind: domain.KindPrice, Token: "bitcoin",
			Interval: 5 * time.Minute,
			Request:  domain.RequestTemplate{URL: "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"},
		},
		{
			Owner: "default", Key: "cg-btc-alt", Kind: domain.KindPrice, Token: "bitcoin",
			Interval: 10 * time.Minute,
			Request:  domain.RequestTemplate{URL: "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"},
		},
		{
			Owner: "default", Key: "cg-eth", Kind: domain.KindPrice, Token: "ethereum",
			Interval: 5 * time.Minute,
			Request:  domain.RequestTemplate{URL: "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd"},
		},
	}
	normalizers := feed.DefaultNormalizerSet(nil)
	registry, err := feed.NewRegistry(sources, normalizers)
	if err != nil {
		t.Fatalf("unexpected registry error: %v", err)
	}
	return registry
}
