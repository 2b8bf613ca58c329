package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"tokenadvisor/internal/library"
	"tokenadvisor/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc = godotenv.Load
	openPool    = pgxpool.New
)

type options struct {
	owner string
	dir   string
}

func main() {
	loadEnvFunc()

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("parse options: %v", err)
	}

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := openPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}

	tracer := trace.NewNoopTracerProvider().Tracer("library-import")
	libraryRepo := repository.NewLibraryRepository(pool, tracer)
	if err := libraryRepo.RunMigrations(ctx); err != nil {
		log.Fatalf("run library migrations: %v", err)
	}
	svc := library.NewService(tracer, libraryRepo, nil)

	log.Printf("importing library documents: owner=%s dir=%s", opts.owner, opts.dir)

	report, err := svc.ImportDir(ctx, opts.owner, opts.dir)
	if err != nil {
		log.Fatalf("import %s: %v", opts.dir, err)
	}

	for _, result := range report.Results {
		if result.OK {
			log.Printf("imported %s: %s/%s", result.Document, opts.owner, result.Key)
			continue
		}
		log.Printf("failed %s: %s", result.Document, result.Error)
	}
	log.Printf("import complete: succeeded=%d failed=%d", report.Succeeded, report.Failed)

	if report.Failed > 0 {
		os.Exit(1)
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("importer", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	ownerDefault := strings.TrimSpace(getenv("DEFAULT_OWNER"))
	if ownerDefault == "" {
		ownerDefault = "default"
	}
	owner := fs.String("owner", ownerDefault, "owner scope for the imported entries (default from DEFAULT_OWNER)")
	dir := fs.String("dir", "", "directory of *.json strategy and knowledge documents")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if strings.TrimSpace(*owner) == "" {
		return options{}, fmt.Errorf("owner cannot be empty")
	}
	if strings.TrimSpace(*dir) == "" {
		return options{}, fmt.Errorf("dir is required")
	}

	return options{
		owner: strings.TrimSpace(*owner),
		dir:   strings.TrimSpace(*dir),
	}, nil
}
