package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"tokenadvisor/internal/advisor"
	"tokenadvisor/internal/bot"
	"tokenadvisor/internal/cache"
	"tokenadvisor/internal/config"
	"tokenadvisor/internal/db"
	"tokenadvisor/internal/domain"
	"tokenadvisor/internal/feed"
	"tokenadvisor/internal/handler"
	"tokenadvisor/internal/history"
	"tokenadvisor/internal/library"
	"tokenadvisor/internal/repository"
	"tokenadvisor/internal/scheduler"
	"tokenadvisor/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const warmLookback = 24 * time.Hour

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	initPostgresFunc     = db.InitPostgres
	initRedisFunc        = cache.InitRedis
	initTracerFunc       = tracing.InitTracer
	loadRegistryFunc     = feed.LoadRegistry
	startSchedulerFunc   = startScheduler
	startTelegramBotFunc = bot.StartTelegramBot
	newRouterFunc        = gin.Default
	setupSignalNotify    = ossignal.Notify
	waitForSignalFunc    = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc  = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error {
		return srv.Shutdown(ctx)
	}
)

func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := initPostgresFunc(ctx, cfg.DatabaseURL)
	redisClient := initRedisFunc(ctx, cfg.RedisURL)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Repositories and migrations. Both are optional: without Postgres the
	// service keeps prices in memory only and the library endpoints return 503.
	var historyRepo history.Repository
	var libSvc handler.LibraryService
	var librarySvc *library.Service
	if pool != nil {
		priceRepo := repository.NewPriceRepository(pool, tracer)
		libraryRepo := repository.NewLibraryRepository(pool, tracer)
		if err := priceRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run price migrations: %v", err)
		}
		if err := libraryRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run library migrations: %v", err)
		}
		historyRepo = priceRepo
		librarySvc = library.NewService(tracer, libraryRepo, nil)
		libSvc = librarySvc
	}

	// Feed registry from the sources file. A missing file is an empty
	// deployment, not an error; a malformed one refuses to start.
	normalizers := feed.DefaultNormalizerSet(nil)
	registry, err := loadRegistryFunc(cfg.SourcesFile, normalizers)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("sources file %s not found, starting with no feeds", cfg.SourcesFile)
			registry, _ = feed.NewRegistry(nil, normalizers)
		} else {
			log.Fatalf("failed to load sources: %v", err)
		}
	}

	store := history.NewStore(tracer, historyRepo, redisClient, history.Params{
		ShortWindow:    cfg.ShortWindow,
		LongWindow:     cfg.LongWindow,
		NeutralZonePct: cfg.NeutralZonePct,
		ConditionPct:   cfg.ConditionThresholdPct,
	})
	store.Warm(ctx, registryTokens(registry), warmLookback)

	fetcher := feed.NewFetcher(tracer, time.Duration(cfg.FetchTimeoutSecs)*time.Second)
	sched := scheduler.New(tracer, registry, fetcher, normalizers, store, scheduler.Options{
		MaxConcurrent: cfg.MaxConcurrentFetches,
		BackoffCap:    cfg.BackoffCap,
		Tick:          time.Duration(cfg.SchedulerTickSecs) * time.Second,
	})

	var recommender handler.Recommender
	var botAdvisor bot.Recommender
	if librarySvc != nil {
		engine := advisor.NewEngine(tracer, store, librarySvc, nil)
		recommender = engine
		botAdvisor = engine
	}

	alerts := startTelegramBotFunc(ctx, cfg.TelegramBotToken, cfg.DefaultOwner, cfg.AlertFailureThreshold, store, botAdvisor)
	if alerts != nil {
		outcomes := make(chan domain.FetchOutcome, 64)
		sched.Subscribe(outcomes)
		go alerts.Watch(ctx, outcomes)
	}

	schedDone := startSchedulerFunc(sched, ctx)

	h := handler.New(tracer, store, libSvc, recommender, cfg.DefaultOwner)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("tokenadvisor"))
	r.Use(cors.Default())
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()
	// The scheduler lets in-flight units finish or hit their fetch timeouts
	// before Start returns; wait for that before tearing the process down.
	<-schedDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

// startScheduler runs the scheduler until ctx is cancelled. The returned
// channel closes once Start has drained its in-flight work.
func startScheduler(s *scheduler.Scheduler, ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(ctx)
	}()
	return done
}

// registryTokens lists the distinct tokens the configured sources feed.
func registryTokens(registry *feed.Registry) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, src := range registry.Snapshot() {
		if _, ok := seen[src.Token]; ok {
			continue
		}
		seen[src.Token] = struct{}{}
		tokens = append(tokens, src.Token)
	}
	return tokens
}
