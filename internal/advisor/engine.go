package advisor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tokenadvisor/internal/domain"
	"tokenadvisor/internal/history"
	"tokenadvisor/internal/library"

	"go.opentelemetry.io/otel/trace"
)

// MarketReader reads current market signals from the price history.
type MarketReader interface {
	Latest(ctx context.Context, token string) (*domain.PriceRecord, error)
	Condition(ctx context.Context, token string) (domain.MarketCondition, history.TrendReport, error)
}

// LibrarySearcher finds the user's strategies and knowledge by tag.
type LibrarySearcher interface {
	Search(ctx context.Context, owner string, query domain.SearchQuery) (library.SearchResult, error)
}

// Engine fuses the current trend signal with the owner's strategy library
// into one recommendation. It is a pure read-then-compute path: safe to run
// concurrently for different (owner, pair) requests.
type Engine struct {
	tracer  trace.Tracer
	market  MarketReader
	library LibrarySearcher
	now     func() time.Time
}

func NewEngine(tracer trace.Tracer, market MarketReader, lib LibrarySearcher, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{tracer: tracer, market: market, library: lib, now: now}
}

// Recommend builds a recommendation for one token pair. An empty price
// history surfaces as NoDataError; it is never turned into a default Hold.
func (e *Engine) Recommend(ctx context.Context, owner, pair string) (domain.Recommendation, error) {
	ctx, span := e.tracer.Start(ctx, "advisor.recommend")
	defer span.End()

	latest, err := e.market.Latest(ctx, pair)
	if err != nil {
		return domain.Recommendation{}, err
	}

	condition, trend, err := e.market.Condition(ctx, pair)
	if err != nil {
		return domain.Recommendation{}, err
	}

	matches, err := e.library.Search(ctx, owner, domain.SearchQuery{Tags: []string{string(condition)}})
	if err != nil {
		return domain.Recommendation{}, fmt.Errorf("search library for %s: %w", condition, err)
	}

	signal, matchedKeys := decideSignal(condition, trend, matches)
	confidence := confidence(trend.DeltaPct, len(matchedKeys))

	rec := domain.Recommendation{
		Pair:        pair,
		Signal:      signal,
		Confidence:  confidence,
		Trend:       trend.Direction,
		MatchedKeys: matchedKeys,
		Rationale:   rationale(pair, latest, condition, trend, matchedKeys, signal),
		GeneratedAt: e.now().UTC(),
	}
	return rec, nil
}

// decideSignal maps (condition, top strategy match) to a signal. A flat
// trend or an empty match set always holds.
func decideSignal(condition domain.MarketCondition, trend history.TrendReport, matches library.SearchResult) (domain.Signal, []string) {
	keys := make([]string, 0, len(matches.Strategies)+len(matches.Knowledge))
	for _, s := range matches.Strategies {
		keys = append(keys, s.Key)
	}
	for _, k := range matches.Knowledge {
		keys = append(keys, k.Key)
	}

	if trend.Direction == domain.TrendFlat || len(matches.Strategies) == 0 {
		return domain.SignalHold, keys
	}

	top := matches.Strategies[0]
	switch condition {
	case domain.ConditionOversold:
		if isAccumulationStyle(top.Category) && top.Risk != domain.RiskHigh {
			return domain.SignalBuy, keys
		}
	case domain.ConditionOverbought:
		if isProfitTakingStyle(top.Category) {
			return domain.SignalSell, keys
		}
	}
	return domain.SignalHold, keys
}

func isAccumulationStyle(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, "accumul") || strings.Contains(c, "dca") || strings.Contains(c, "yield")
}

func isProfitTakingStyle(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, "profit") || strings.Contains(c, "exit") || strings.Contains(c, "rebalanc")
}

// confidence grows monotonically with trend magnitude and with the number
// of corroborating matches, clamped to [0, 1].
func confidence(deltaPct float64, matchCount int) float64 {
	magnitude := math.Min(math.Abs(deltaPct)*0.1, 0.6)
	corroboration := math.Min(float64(matchCount)*0.1, 0.4)
	c := magnitude + corroboration
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

func rationale(
	pair string,
	latest *domain.PriceRecord,
	condition domain.MarketCondition,
	trend history.TrendReport,
	matchedKeys []string,
	signal domain.Signal,
) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s at %.6f: %s trend (short avg %+.2f%% vs long avg), market looks %s",
		pair, latest.Price, trend.Direction, trend.DeltaPct, condition)
	if len(matchedKeys) > 0 {
		fmt.Fprintf(&sb, "; matched entries: %s", strings.Join(matchedKeys, ", "))
	} else {
		sb.WriteString("; no matching strategies or knowledge")
	}
	fmt.Fprintf(&sb, " -> %s", signal)
	return sb.String()
}
