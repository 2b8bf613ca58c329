package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"tokenadvisor/internal/domain"
	"tokenadvisor/internal/history"

	tele "gopkg.in/telebot.v3"
)

type MarketQuerier interface {
	Latest(ctx context.Context, token string) (*domain.PriceRecord, error)
	Trend(ctx context.Context, token string) (history.TrendReport, error)
}

type Recommender interface {
	Recommend(ctx context.Context, owner, pair string) (domain.Recommendation, error)
}

// StartTelegramBot wires the chat commands and returns the alert dispatcher
// so the scheduler's outcome feed can be attached to it. Returns nil when no
// bot token is configured. Command queries run under ctx: cancelling it cuts
// off in-flight lookups at shutdown.
func StartTelegramBot(ctx context.Context, token, defaultOwner string, failureThreshold int, market MarketQuerier, advisor Recommender) *AlertDispatcher {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}
	alerts := NewAlertDispatcher(b, failureThreshold)

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/price", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /price <token>\nExample: /price bitcoin")
		}
		token := strings.ToLower(args[0])
		record, err := market.Latest(ctx, token)
		if err != nil {
			if domain.IsNoData(err) {
				return c.Send(fmt.Sprintf("No data yet for %s. Is a feed configured?", token))
			}
			return c.Send(fmt.Sprintf("Error fetching price for %s: %v", token, err))
		}
		return c.Send(formatRecord(token, record))
	})

	b.Handle("/trend", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /trend <token>\nExample: /trend ethereum")
		}
		token := strings.ToLower(args[0])
		report, err := market.Trend(ctx, token)
		if err != nil {
			if domain.IsNoData(err) {
				return c.Send(fmt.Sprintf("No data yet for %s. Is a feed configured?", token))
			}
			return c.Send(fmt.Sprintf("Error computing trend for %s: %v", token, err))
		}
		return c.Send(fmt.Sprintf(
			"%s trend: %s\nShort avg: %.6f (window %d)\nLong avg: %.6f (window %d)\nDelta: %+.2f%%",
			token, report.Direction,
			report.Short.Value, report.Short.Window,
			report.Long.Value, report.Long.Window,
			report.DeltaPct,
		))
	})

	b.Handle("/recommend", func(c tele.Context) error {
		if advisor == nil {
			return c.Send("Recommendations unavailable")
		}
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /recommend <pair>\nExample: /recommend bitcoin")
		}
		pair := strings.ToLower(args[0])
		rec, err := advisor.Recommend(ctx, defaultOwner, pair)
		if err != nil {
			if domain.IsNoData(err) {
				return c.Send(fmt.Sprintf("No data yet for %s. Is a feed configured?", pair))
			}
			return c.Send(fmt.Sprintf("Error building recommendation for %s: %v", pair, err))
		}
		return c.Send(fmt.Sprintf(
			"%s: %s (confidence %.2f)\n%s",
			rec.Pair, strings.ToUpper(string(rec.Signal)), rec.Confidence, rec.Rationale,
		))
	})

	b.Handle("/alerts", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}

		mode, err := parseAlertMode(c.Args())
		if err != nil {
			return c.Send("Usage: /alerts on | /alerts off | /alerts status")
		}

		switch mode {
		case "on":
			if alerts.Subscribe(chat.ID) {
				return c.Send("Feed alerts enabled for this chat.")
			}
			return c.Send("Feed alerts are already enabled for this chat.")
		case "off":
			if alerts.Unsubscribe(chat.ID) {
				return c.Send("Feed alerts disabled for this chat.")
			}
			return c.Send("Feed alerts are already disabled for this chat.")
		default:
			if alerts.IsSubscribed(chat.ID) {
				return c.Send("Alerts status: ON")
			}
			return c.Send("Alerts status: OFF")
		}
	})

	log.Println("Telegram bot started")
	go b.Start()
	return alerts
}

func formatRecord(token string, r *domain.PriceRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nPrice: $%.6f", token, r.Price)
	if r.Change24h != nil {
		fmt.Fprintf(&sb, "\n24h Change: %.2f%%", *r.Change24h)
	}
	if r.Volume != nil {
		fmt.Fprintf(&sb, "\n24h Volume: $%.0f", *r.Volume)
	}
	if r.TVL != nil {
		fmt.Fprintf(&sb, "\nTVL: $%.0f", *r.TVL)
	}
	fmt.Fprintf(&sb, "\nAs of: %s (%s)", r.ObservedAt.UTC().Format(time.RFC822), r.SourceKey)
	return sb.String()
}
