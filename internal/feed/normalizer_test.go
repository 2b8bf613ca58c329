package feed

import (
	"errors"
	"testing"
	"time"

	"tokenadvisor/internal/domain"
)

func fixedNow() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }

func TestNormalizePricePayload(t *testing.T) {
	set := DefaultNormalizerSet(fixedNow)
	cfg := validSource()

	payload := []byte(`{"bitcoin":{"usd":43123.45,"usd_24h_change":-2.1,"usd_24h_vol":1234567.0}}`)
	record, err := set.Normalize(cfg, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Price != 43123.45 {
		t.Fatalf("unexpected price: %f", record.Price)
	}
	if record.Change24h == nil || *record.Change24h != -2.1 {
		t.Fatalf("unexpected change: %+v", record.Change24h)
	}
	if record.Volume == nil || *record.Volume != 1234567.0 {
		t.Fatalf("unexpected volume: %+v", record.Volume)
	}
	if record.Token != "bitcoin" || record.SourceKey != "cg-btc" {
		t.Fatalf("record not stamped with source identity: %+v", record)
	}
	if !record.ObservedAt.Equal(fixedNow()) {
		t.Fatalf("unexpected observed_at: %s", record.ObservedAt)
	}
}

func TestNormalizePriceOptionalFieldsAbsent(t *testing.T) {
	set := DefaultNormalizerSet(fixedNow)

	record, err := set.Normalize(validSource(), []byte(`{"bitcoin":{"usd":100}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Change24h != nil || record.Volume != nil {
		t.Fatalf("expected nil optional fields, got %+v", record)
	}
}

func TestNormalizePriceRejectsMissingUSD(t *testing.T) {
	set := DefaultNormalizerSet(fixedNow)

	var parseErr *domain.ParseError
	if _, err := set.Normalize(validSource(), []byte(`{"bitcoin":{"eur":100}}`)); !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if _, err := set.Normalize(validSource(), []byte(`[1,2,3]`)); !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for non-object, got %v", err)
	}
}

func TestNormalizePoolPayload(t *testing.T) {
	set := DefaultNormalizerSet(fixedNow)
	cfg := validSource()
	cfg.Kind = domain.KindPool
	cfg.Key = "dex-weth"
	cfg.Token = "weth"

	payload := []byte(`{"pairs":[{"priceUsd":"1850.42","liquidity":{"usd":5400000},"volume":{"h24":230000}}]}`)
	record, err := set.Normalize(cfg, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Price != 1850.42 {
		t.Fatalf("unexpected price: %f", record.Price)
	}
	if record.TVL == nil || *record.TVL != 5400000 {
		t.Fatalf("unexpected tvl: %+v", record.TVL)
	}
	if record.Volume == nil || *record.Volume != 230000 {
		t.Fatalf("unexpected volume: %+v", record.Volume)
	}

	var parseErr *domain.ParseError
	if _, err := set.Normalize(cfg, []byte(`{"pairs":[]}`)); !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for empty pairs, got %v", err)
	}
}

func TestNormalizeTVLPayload(t *testing.T) {
	set := DefaultNormalizerSet(fixedNow)
	cfg := validSource()
	cfg.Kind = domain.KindTVL
	cfg.Key = "llama-aave"
	cfg.Token = "aave-tvl"

	record, err := set.Normalize(cfg, []byte(`6543210.5`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Price != 6543210.5 || record.TVL == nil || *record.TVL != 6543210.5 {
		t.Fatalf("unexpected record: %+v", record)
	}

	record, err = set.Normalize(cfg, []byte(`{"tvl": 99.5}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Price != 99.5 {
		t.Fatalf("unexpected price: %f", record.Price)
	}

	var parseErr *domain.ParseError
	if _, err := set.Normalize(cfg, []byte(`{"value": 1}`)); !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestNormalizeGasPayload(t *testing.T) {
	set := DefaultNormalizerSet(fixedNow)
	cfg := validSource()
	cfg.Kind = domain.KindGas
	cfg.Key = "etherscan-gas"
	cfg.Token = "eth-gas"

	record, err := set.Normalize(cfg, []byte(`{"result":{"ProposeGasPrice":"25"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Price != 25 {
		t.Fatalf("unexpected gas price: %f", record.Price)
	}

	var parseErr *domain.ParseError
	if _, err := set.Normalize(cfg, []byte(`{"result":{}}`)); !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if _, err := set.Normalize(cfg, []byte(`{"result":{"ProposeGasPrice":"oops"}}`)); !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for non-numeric gas, got %v", err)
	}
}

func TestNormalizeUnknownKind(t *testing.T) {
	set := NewNormalizerSet(fixedNow)
	cfg := validSource()

	var parseErr *domain.ParseError
	if _, err := set.Normalize(cfg, []byte(`{}`)); !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for unregistered kind, got %v", err)
	}
}

type stubNormalizer struct{ kind domain.SourceKind }

func (s stubNormalizer) Kind() domain.SourceKind { return s.kind }

func (s stubNormalizer) Normalize(cfg domain.DataSourceConfig, payload []byte) (domain.PriceRecord, error) {
	return domain.PriceRecord{Price: 1}, nil
}

func TestRegisterNewKind(t *testing.T) {
	set := DefaultNormalizerSet(fixedNow)
	set.Register(stubNormalizer{kind: "funding"})

	if !set.Supports("funding") {
		t.Fatal("expected new kind to be supported")
	}

	cfg := validSource()
	cfg.Kind = "funding"
	record, err := set.Normalize(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Price != 1 || record.Token != "bitcoin" {
		t.Fatalf("unexpected record: %+v", record)
	}
}
