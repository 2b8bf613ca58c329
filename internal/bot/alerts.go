package bot

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"tokenadvisor/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// AlertDispatcher broadcasts feed health alerts to subscribed chats. A source
// triggers one alert when its consecutive-failure count reaches the threshold
// and one recovery note on the first success after an alert.
type AlertDispatcher struct {
	sender    messageSender
	threshold int

	mu          sync.RWMutex
	subscribers map[int64]struct{}
	alerted     map[string]struct{}
}

func NewAlertDispatcher(sender messageSender, failureThreshold int) *AlertDispatcher {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &AlertDispatcher{
		sender:      sender,
		threshold:   failureThreshold,
		subscribers: make(map[int64]struct{}),
		alerted:     make(map[string]struct{}),
	}
}

func (d *AlertDispatcher) Subscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; exists {
		return false
	}
	d.subscribers[chatID] = struct{}{}
	return true
}

func (d *AlertDispatcher) Unsubscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; !exists {
		return false
	}
	delete(d.subscribers, chatID)
	return true
}

func (d *AlertDispatcher) IsSubscribed(chatID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.subscribers[chatID]
	return exists
}

func (d *AlertDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// Watch drains scheduler outcome events until the context is cancelled.
// Meant to run in its own goroutine.
func (d *AlertDispatcher) Watch(ctx context.Context, outcomes <-chan domain.FetchOutcome) {
	for {
		select {
		case <-ctx.Done():
			return
		case outcome, ok := <-outcomes:
			if !ok {
				return
			}
			if err := d.NotifyOutcome(ctx, outcome); err != nil {
				log.Printf("alert dispatch for %s/%s: %v", outcome.Owner, outcome.SourceKey, err)
			}
		}
	}
}

// NotifyOutcome folds one fetch outcome into the alert state and sends any
// resulting message to every subscribed chat.
func (d *AlertDispatcher) NotifyOutcome(ctx context.Context, outcome domain.FetchOutcome) error {
	_ = ctx
	if d == nil || d.sender == nil {
		return nil
	}

	msg, fire := d.fold(outcome)
	if !fire {
		return nil
	}

	chatIDs := d.snapshotSubscribers()
	if len(chatIDs) == 0 {
		return nil
	}

	var failures []string
	for _, chatID := range chatIDs {
		if _, err := d.sender.Send(&tele.Chat{ID: chatID}, msg); err != nil {
			failures = append(failures, fmt.Sprintf("chat %d: %v", chatID, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed sending %d alerts: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

// fold updates per-source alert state and returns the message to broadcast,
// if any.
func (d *AlertDispatcher) fold(outcome domain.FetchOutcome) (string, bool) {
	key := outcome.Owner + "/" + outcome.SourceKey

	d.mu.Lock()
	defer d.mu.Unlock()

	if outcome.OK {
		if _, wasAlerted := d.alerted[key]; wasAlerted {
			delete(d.alerted, key)
			return fmt.Sprintf("Feed recovered: %s is healthy again.", key), true
		}
		return "", false
	}

	if outcome.Failures < d.threshold {
		return "", false
	}
	if _, already := d.alerted[key]; already {
		return "", false
	}
	d.alerted[key] = struct{}{}

	reason := "unknown error"
	if outcome.Err != nil {
		reason = outcome.Err.Error()
	}
	return fmt.Sprintf("Feed alert: %s failed %d times in a row.\nLast error: %s", key, outcome.Failures, reason), true
}

func (d *AlertDispatcher) snapshotSubscribers() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chatIDs := make([]int64, 0, len(d.subscribers))
	for chatID := range d.subscribers {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	return chatIDs
}

func parseAlertMode(args []string) (string, error) {
	if len(args) == 0 {
		return "status", nil
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "on":
		return "on", nil
	case "off":
		return "off", nil
	case "status":
		return "status", nil
	default:
		return "", fmt.Errorf("invalid mode")
	}
}
