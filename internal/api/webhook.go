package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Event describes one completed ask turn, posted to the configured webhook
// for downstream automation.
type Event struct {
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
	Answer         string `json:"answer"`
}

// Notifier posts events to a webhook URL. Delivery is best-effort: failures
// are logged and never affect the request that produced the event.
type Notifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewNotifier(url string, logger *zap.Logger) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// NotifyingAsker decorates an Asker so every completed ask posts an event,
// regardless of the surface (HTTP or Telegram) the question arrived on.
type NotifyingAsker struct {
	asker    Asker
	notifier *Notifier
}

// NewNotifyingAsker wraps asker. notifier may be nil, in which case asks
// pass through unobserved.
func NewNotifyingAsker(asker Asker, notifier *Notifier) *NotifyingAsker {
	return &NotifyingAsker{asker: asker, notifier: notifier}
}

func (a *NotifyingAsker) Ask(ctx context.Context, conversationID, question string) (string, error) {
	answer, err := a.asker.Ask(ctx, conversationID, question)
	if err != nil {
		return "", err
	}
	a.notifier.Notify(ctx, Event{
		ConversationID: conversationID,
		Question:       question,
		Answer:         answer,
	})
	return answer, nil
}

// Notify posts the event. Safe to call on a nil notifier.
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	if n == nil {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		n.logger.Warn("failed to encode webhook event", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("failed to build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", zap.Error(err), zap.String("url", n.url))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		n.logger.Warn("webhook rejected event",
			zap.Int("status", resp.StatusCode),
			zap.String("url", n.url))
	}
}
