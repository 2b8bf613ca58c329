package feed

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tokenadvisor/internal/domain"
)

func validSource() domain.DataSourceConfig {
	return domain.DataSourceConfig{
		Owner:    "default",
		Key:      "cg-btc",
		Kind:     domain.KindPrice,
		Token:    "bitcoin",
		Interval: 5 * time.Minute,
		Request: domain.RequestTemplate{
			URL: "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd",
		},
	}
}

func TestLoadRegistryReadsSourcesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	doc := `[
		{
			"owner": "default",
			"key": "cg-btc",
			"kind": "price",
			"token": "bitcoin",
			"interval_minutes": 5,
			"request": {"url": "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"}
		},
		{
			"owner": "default",
			"key": "etherscan-gas",
			"kind": "gas",
			"token": "eth-gas",
			"interval_minutes": 2,
			"request": {"url": "https://api.etherscan.io/api?module=gastracker&action=gasoracle"}
		}
	]`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write sources: %v", err)
	}

	registry, err := LoadRegistry(path, DefaultNormalizerSet(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.Len() != 2 {
		t.Fatalf("expected 2 sources, got %d", registry.Len())
	}
	if registry.Snapshot()[1].Interval != 2*time.Minute {
		t.Fatalf("unexpected interval: %s", registry.Snapshot()[1].Interval)
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.json"), DefaultNormalizerSet(nil))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}

func TestLoadRegistryRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write sources: %v", err)
	}

	var cfgErr *domain.ConfigError
	if _, err := LoadRegistry(path, DefaultNormalizerSet(nil)); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestNewRegistryValidation(t *testing.T) {
	normalizers := DefaultNormalizerSet(nil)

	cases := []struct {
		name   string
		mutate func(*domain.DataSourceConfig)
	}{
		{"missing owner", func(c *domain.DataSourceConfig) { c.Owner = "" }},
		{"missing key", func(c *domain.DataSourceConfig) { c.Key = "" }},
		{"missing token", func(c *domain.DataSourceConfig) { c.Token = "" }},
		{"sub-minute interval", func(c *domain.DataSourceConfig) { c.Interval = 30 * time.Second }},
		{"missing url", func(c *domain.DataSourceConfig) { c.Request.URL = "" }},
		{"unknown kind", func(c *domain.DataSourceConfig) { c.Kind = "weather" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := validSource()
			tc.mutate(&src)
			var cfgErr *domain.ConfigError
			if _, err := NewRegistry([]domain.DataSourceConfig{src}, normalizers); !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestNewRegistryRejectsDuplicateOwnerKey(t *testing.T) {
	a := validSource()
	b := validSource()
	b.Token = "ethereum"

	var cfgErr *domain.ConfigError
	if _, err := NewRegistry([]domain.DataSourceConfig{a, b}, DefaultNormalizerSet(nil)); !errors.As(err, &cfgErr) {
		t.Fatalf("expected duplicate ConfigError, got %v", err)
	}

	// Same key under another owner is fine.
	b.Owner = "alice"
	if _, err := NewRegistry([]domain.DataSourceConfig{a, b}, DefaultNormalizerSet(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	registry, err := NewRegistry([]domain.DataSourceConfig{validSource()}, DefaultNormalizerSet(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := registry.Snapshot()
	snap[0].Token = "mutated"

	if registry.Snapshot()[0].Token != "bitcoin" {
		t.Fatal("snapshot mutation leaked into registry")
	}
}
