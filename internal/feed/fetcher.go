package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"regexp"
	"time"

	"tokenadvisor/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const maxPayloadBytes = 1 << 20

var secretPlaceholder = regexp.MustCompile(`\$\{([A-Z0-9_]+)\}`)

// Fetcher performs exactly one request attempt per call. Retry policy lives
// in the scheduler, never here.
type Fetcher struct {
	client  *http.Client
	tracer  trace.Tracer
	timeout time.Duration
}

func NewFetcher(tracer trace.Tracer, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		tracer:  tracer,
		timeout: timeout,
	}
}

// Fetch executes the source's request template and returns the raw payload,
// or a FetchError classified as network, timeout or status.
func (f *Fetcher) Fetch(ctx context.Context, cfg domain.DataSourceConfig) ([]byte, error) {
	ctx, span := f.tracer.Start(ctx, "feed.fetch")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	method := cfg.Request.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.Request.URL, nil)
	if err != nil {
		return nil, &domain.FetchError{SourceKey: cfg.Key, Reason: domain.FetchFailureNetwork, Err: err}
	}
	for name, value := range cfg.Request.Headers {
		req.Header.Set(name, resolveSecrets(value))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		reason := domain.FetchFailureNetwork
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			reason = domain.FetchFailureTimeout
		}
		return nil, &domain.FetchError{SourceKey: cfg.Key, Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.FetchError{SourceKey: cfg.Key, Reason: domain.FetchFailureStatus, StatusCode: resp.StatusCode}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, &domain.FetchError{SourceKey: cfg.Key, Reason: domain.FetchFailureNetwork, Err: err}
	}
	return payload, nil
}

// resolveSecrets expands ${VAR} header placeholders from the environment so
// API keys stay out of the sources file.
func resolveSecrets(value string) string {
	return secretPlaceholder.ReplaceAllStringFunc(value, func(m string) string {
		name := secretPlaceholder.FindStringSubmatch(m)[1]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return m
	})
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	return errors.As(err, &t) && t.Timeout()
}
