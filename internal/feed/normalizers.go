package feed

import (
	"tokenadvisor/internal/domain"

	"github.com/tidwall/gjson"
)

// priceNormalizer parses CoinGecko-style simple price payloads:
//
//	{"<coin-id>": {"usd": 1.23, "usd_24h_change": -2.1, "usd_24h_vol": 9.9}}
//
// Optional fields are dropped when absent; a payload without a usd price is
// a ParseError.
type priceNormalizer struct{}

func (priceNormalizer) Kind() domain.SourceKind { return domain.KindPrice }

func (priceNormalizer) Normalize(cfg domain.DataSourceConfig, payload []byte) (domain.PriceRecord, error) {
	parsed := gjson.ParseBytes(payload)
	if !parsed.IsObject() {
		return domain.PriceRecord{}, parseErr(cfg, "payload is not a JSON object")
	}

	var coin gjson.Result
	parsed.ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() && value.Get("usd").Exists() {
			coin = value
			return false
		}
		return true
	})
	if !coin.Exists() {
		return domain.PriceRecord{}, parseErr(cfg, "no usd price in payload")
	}

	record := domain.PriceRecord{Price: coin.Get("usd").Float()}
	if change := coin.Get("usd_24h_change"); change.Exists() {
		v := change.Float()
		record.Change24h = &v
	}
	if vol := coin.Get("usd_24h_vol"); vol.Exists() {
		v := vol.Float()
		record.Volume = &v
	}
	return record, nil
}

// poolNormalizer parses DEX pair payloads ({"pairs": [{"priceUsd": "...",
// "liquidity": {"usd": ...}, "volume": {"h24": ...}}]}). The first pair wins.
type poolNormalizer struct{}

func (poolNormalizer) Kind() domain.SourceKind { return domain.KindPool }

func (poolNormalizer) Normalize(cfg domain.DataSourceConfig, payload []byte) (domain.PriceRecord, error) {
	pair := gjson.GetBytes(payload, "pairs.0")
	if !pair.Exists() {
		return domain.PriceRecord{}, parseErr(cfg, "no pairs in payload")
	}

	price := pair.Get("priceUsd")
	if !price.Exists() {
		return domain.PriceRecord{}, parseErr(cfg, "pair has no priceUsd")
	}

	record := domain.PriceRecord{Price: price.Float()}
	if liq := pair.Get("liquidity.usd"); liq.Exists() {
		v := liq.Float()
		record.TVL = &v
	}
	if vol := pair.Get("volume.h24"); vol.Exists() {
		v := vol.Float()
		record.Volume = &v
	}
	return record, nil
}

// tvlNormalizer parses protocol TVL payloads: either a bare number or an
// object with a "tvl" field. The TVL is the series' primary observed value.
type tvlNormalizer struct{}

func (tvlNormalizer) Kind() domain.SourceKind { return domain.KindTVL }

func (tvlNormalizer) Normalize(cfg domain.DataSourceConfig, payload []byte) (domain.PriceRecord, error) {
	parsed := gjson.ParseBytes(payload)

	var tvl gjson.Result
	switch {
	case parsed.Type == gjson.Number:
		tvl = parsed
	case parsed.IsObject() && parsed.Get("tvl").Type == gjson.Number:
		tvl = parsed.Get("tvl")
	default:
		return domain.PriceRecord{}, parseErr(cfg, "no tvl value in payload")
	}

	v := tvl.Float()
	return domain.PriceRecord{Price: v, TVL: &v}, nil
}

// gasNormalizer parses gas oracle payloads ({"result": {"ProposeGasPrice":
// "25"}}). The proposed gas price in gwei is the primary observed value.
type gasNormalizer struct{}

func (gasNormalizer) Kind() domain.SourceKind { return domain.KindGas }

func (gasNormalizer) Normalize(cfg domain.DataSourceConfig, payload []byte) (domain.PriceRecord, error) {
	gas := gjson.GetBytes(payload, "result.ProposeGasPrice")
	if !gas.Exists() {
		return domain.PriceRecord{}, parseErr(cfg, "no result.ProposeGasPrice in payload")
	}
	price := gas.Float()
	if price <= 0 {
		return domain.PriceRecord{}, parseErr(cfg, "gas price is not a positive number")
	}
	return domain.PriceRecord{Price: price}, nil
}

func parseErr(cfg domain.DataSourceConfig, detail string) *domain.ParseError {
	return &domain.ParseError{SourceKey: cfg.Key, Kind: cfg.Kind, Detail: detail}
}
