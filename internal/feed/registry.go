package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tokenadvisor/internal/domain"
)

// Registry holds the validated set of configured data sources. It is
// immutable after Load; the scheduler works from per-cycle snapshots.
type Registry struct {
	sources []domain.DataSourceConfig
}

type sourceDoc struct {
	Owner           string                 `json:"owner"`
	Key             string                 `json:"key"`
	Kind            domain.SourceKind      `json:"kind"`
	Token           string                 `json:"token"`
	IntervalMinutes int                    `json:"interval_minutes"`
	Request         domain.RequestTemplate `json:"request"`
}

// LoadRegistry reads and validates the sources file. Any invalid entry is a
// ConfigError and rejects the whole file: a bad registry must never reach
// the scheduler.
func LoadRegistry(path string, normalizers *NormalizerSet) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Detail: fmt.Sprintf("read %s: %v", path, err), Err: err}
	}

	var docs []sourceDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, &domain.ConfigError{Detail: fmt.Sprintf("decode %s: %v", path, err)}
	}

	seen := make(map[string]struct{}, len(docs))
	sources := make([]domain.DataSourceConfig, 0, len(docs))
	for _, d := range docs {
		cfg := domain.DataSourceConfig{
			Owner:    d.Owner,
			Key:      d.Key,
			Kind:     d.Kind,
			Token:    d.Token,
			Interval: time.Duration(d.IntervalMinutes) * time.Minute,
			Request:  d.Request,
		}
		if err := validateSource(cfg, normalizers); err != nil {
			return nil, err
		}
		id := cfg.Owner + "/" + cfg.Key
		if _, dup := seen[id]; dup {
			return nil, &domain.ConfigError{SourceKey: cfg.Key, Detail: "duplicate (owner, key)"}
		}
		seen[id] = struct{}{}
		sources = append(sources, cfg)
	}

	return &Registry{sources: sources}, nil
}

// NewRegistry validates an in-memory source list. Used by tests and by
// callers that assemble configs without a file.
func NewRegistry(sources []domain.DataSourceConfig, normalizers *NormalizerSet) (*Registry, error) {
	seen := make(map[string]struct{}, len(sources))
	for _, cfg := range sources {
		if err := validateSource(cfg, normalizers); err != nil {
			return nil, err
		}
		id := cfg.Owner + "/" + cfg.Key
		if _, dup := seen[id]; dup {
			return nil, &domain.ConfigError{SourceKey: cfg.Key, Detail: "duplicate (owner, key)"}
		}
		seen[id] = struct{}{}
	}
	return &Registry{sources: append([]domain.DataSourceConfig(nil), sources...)}, nil
}

func validateSource(cfg domain.DataSourceConfig, normalizers *NormalizerSet) error {
	if cfg.Owner == "" || cfg.Key == "" {
		return &domain.ConfigError{SourceKey: cfg.Key, Detail: "owner and key are required"}
	}
	if cfg.Token == "" {
		return &domain.ConfigError{SourceKey: cfg.Key, Detail: "token is required"}
	}
	if cfg.Interval < time.Minute {
		return &domain.ConfigError{SourceKey: cfg.Key, Detail: "refresh interval must be at least one minute"}
	}
	if cfg.Request.URL == "" {
		return &domain.ConfigError{SourceKey: cfg.Key, Detail: "request url is required"}
	}
	if normalizers != nil && !normalizers.Supports(cfg.Kind) {
		return &domain.ConfigError{SourceKey: cfg.Key, Detail: fmt.Sprintf("unknown source kind %q", cfg.Kind)}
	}
	return nil
}

// Snapshot returns a copy of the configured sources for one refresh cycle.
func (r *Registry) Snapshot() []domain.DataSourceConfig {
	out := make([]domain.DataSourceConfig, len(r.sources))
	copy(out, r.sources)
	return out
}

func (r *Registry) Len() int { return len(r.sources) }
