package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brickops/fieldsync/internal/events"
)

// LogNotifier writes alerts to the log. Always available, even fully
// offline.
type LogNotifier struct {
	logger *events.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *events.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithField("component", "alert_notifier")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.logger.WithFields(map[string]any{
		"building_id": alert.BuildingID,
		"score":       alert.Score,
		"band":        alert.Band,
	}).Warn(alert.Message)
	return nil
}

// WebhookNotifier POSTs alerts to a configured URL. Failures are
// logged, not returned; an unreachable webhook must never stall a
// refresh cycle.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *events.Logger
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string, logger *events.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.WithField("component", "webhook_notifier"),
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.WithError(err).WithField("building_id", alert.BuildingID).Warn("Alert webhook unreachable")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.WithFields(map[string]any{
			"building_id": alert.BuildingID,
			"status":      resp.StatusCode,
		}).Warn("Alert webhook rejected alert")
	}
	return nil
}

// MultiNotifier fans one alert out to several sinks.
type MultiNotifier []Notifier

// Notify implements Notifier. All sinks are attempted; the first error
// is returned.
func (m MultiNotifier) Notify(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
