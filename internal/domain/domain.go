package domain

import "time"

// SourceKind selects the normalizer used for a data source's payloads.
// The set is open: new kinds register their own normalizer.
type SourceKind string

const (
	KindPrice SourceKind = "price"
	KindPool  SourceKind = "pool"
	KindTVL   SourceKind = "tvl"
	KindGas   SourceKind = "gas"
)

// RequestTemplate describes the HTTP request for one refresh of a source.
// Header values may contain ${VAR} placeholders resolved from the environment.
type RequestTemplate struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

// DataSourceConfig is one configured external feed. (Owner, Key) is unique.
type DataSourceConfig struct {
	Owner    string          `json:"owner"`
	Key      string          `json:"key"`
	Kind     SourceKind      `json:"kind"`
	Token    string          `json:"token"`
	Interval time.Duration   `json:"interval"`
	Request  RequestTemplate `json:"request"`
}

// PriceRecord is the canonical, source-agnostic market observation.
// Records are immutable once appended; within one token's series
// ObservedAt is non-decreasing in storage order.
type PriceRecord struct {
	Token      string    `json:"token"`
	Price      float64   `json:"price"`
	Change24h  *float64  `json:"change_24h,omitempty"`
	Volume     *float64  `json:"volume,omitempty"`
	TVL        *float64  `json:"tvl,omitempty"`
	SourceKey  string    `json:"source_key"`
	ObservedAt time.Time `json:"observed_at"`
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// ExpectedReturn is the anticipated return range of a strategy, in percent.
type ExpectedReturn struct {
	Min       float64 `json:"min"`
	Target    float64 `json:"target"`
	Max       float64 `json:"max"`
	Timeframe string  `json:"timeframe"`
}

// StrategyEntry is a user-curated strategy. (Owner, Key) is unique and
// upserts by key are idempotent.
type StrategyEntry struct {
	Owner           string          `json:"owner"`
	Key             string          `json:"key"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	Risk            RiskLevel       `json:"risk"`
	Tags            []string        `json:"tags"`
	Steps           []string        `json:"steps"`
	Requirements    []string        `json:"requirements"`
	ExpectedReturns *ExpectedReturn `json:"expected_returns,omitempty"`
	Author          string          `json:"author,omitempty"`
	Version         string          `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// KnowledgeEntry is a user-curated free-text snippet keyed like a strategy.
type KnowledgeEntry struct {
	Owner     string    `json:"owner"`
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchQuery filters library entries. Tags use AND semantics; Text is a
// case-insensitive substring match on name/description/content.
type SearchQuery struct {
	Text string
	Tags []string
}

type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendFlat    Trend = "flat"
)

// MarketCondition is the derived tag used to match strategies and knowledge.
type MarketCondition string

const (
	ConditionOversold   MarketCondition = "oversold"
	ConditionOverbought MarketCondition = "overbought"
	ConditionNeutral    MarketCondition = "neutral"
)

type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// Recommendation is the value object returned to the caller. It is not
// persisted; MatchedKeys lists the library entries the rationale refers to.
type Recommendation struct {
	Pair        string    `json:"pair"`
	Signal      Signal    `json:"signal"`
	Confidence  float64   `json:"confidence"`
	Trend       Trend     `json:"trend"`
	Rationale   string    `json:"rationale"`
	MatchedKeys []string  `json:"matched_keys,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// FetchOutcome is the per-source event emitted after each scheduled refresh.
type FetchOutcome struct {
	Owner     string        `json:"owner"`
	SourceKey string        `json:"source_key"`
	OK        bool          `json:"ok"`
	Failures  int           `json:"failures"`
	Latency   time.Duration `json:"latency"`
	Err       error         `json:"-"`
}

// ImportResult reports the outcome for one document of a bulk import.
type ImportResult struct {
	Document string `json:"document"`
	Key      string `json:"key,omitempty"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// ImportReport aggregates a bulk import; failures never abort the batch.
type ImportReport struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []ImportResult `json:"results"`
}
