// Package settlement composes the auction closer, the escrow ledger, and
// the external collaborators into the operations the HTTP surface exposes.
// Financial state always commits first; pushes to the notification service
// run after commit and are free to fail.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier pushes an event to the downstream notification service.
type Notifier interface {
	Notify(ctx context.Context, topic string, payload map[string]any) error
}

// HTTPNotifier delivers events to the notification collaborator over HTTP.
// It doubles as the outbox dispatcher, so retried deliveries and post-commit
// pushes travel the same wire.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPNotifier(baseURL string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("settlement: marshal notification: %w", err)
	}
	return n.Dispatch(ctx, topic, body)
}

// Dispatch implements outbox.Dispatcher.
func (n *HTTPNotifier) Dispatch(ctx context.Context, topic string, payload []byte) error {
	envelope, err := json.Marshal(map[string]json.RawMessage{
		"topic":   json.RawMessage(fmt.Sprintf("%q", topic)),
		"payload": json.RawMessage(payload),
	})
	if err != nil {
		return fmt.Errorf("settlement: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/events", bytes.NewReader(envelope))
	if err != nil {
		return fmt.Errorf("settlement: build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("settlement: notify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("settlement: notify: unexpected status %d", resp.StatusCode)
	}
	return nil
}
