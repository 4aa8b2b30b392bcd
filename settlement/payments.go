package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPPaymentClient fronts the payment gateway collaborator. Deposit captures
// buyer funds and returns the gateway's reference; the caller decides what a
// failure means (for auction funding it is fatal).
type HTTPPaymentClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPPaymentClient(baseURL string, timeout time.Duration) *HTTPPaymentClient {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPPaymentClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPPaymentClient) Deposit(ctx context.Context, buyerID string, amount int64, currency string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"buyerId":  buyerID,
		"amount":   amount,
		"currency": currency,
	})
	if err != nil {
		return "", fmt.Errorf("settlement: marshal deposit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/deposits", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("settlement: build deposit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("settlement: deposit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("settlement: deposit: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("settlement: decode deposit response: %w", err)
	}
	return out.Reference, nil
}
