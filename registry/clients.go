// Package registry wraps the external collaborators that describe agents:
// the capability registry (skills, region, data classes) and the reputation
// service (trust score, stake). Both are consumed over short-timeout HTTP
// calls; this core never implements them.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable wraps any transport failure against a collaborator. Callers
// decide whether it is fatal (capability registry) or degrades (reputation).
var ErrUnavailable = errors.New("registry: collaborator unavailable")

// CapabilityRecord is one agent as the external registry describes it.
type CapabilityRecord struct {
	AgentID     string   `json:"agentId"`
	Skills      []string `json:"skills"`
	Region      string   `json:"region"`
	DataClasses []string `json:"dataClasses"`
}

// ReputationRecord is the trust/stake answer for one agent.
type ReputationRecord struct {
	TrustScore float64 `json:"trustScore"`
	Stake      int64   `json:"stake"`
}

// CapabilityClient lists the candidate agent pool.
type CapabilityClient interface {
	Agents(ctx context.Context) ([]CapabilityRecord, error)
}

// ReputationClient resolves trust and stake for a set of agents. A partial
// answer is allowed; missing agents are simply absent from the map.
type ReputationClient interface {
	Scores(ctx context.Context, agentIDs []string) (map[string]ReputationRecord, error)
}

// HTTPCapabilityClient talks to the capability registry over JSON/HTTP.
type HTTPCapabilityClient struct {
	baseURL string
	client  *http.Client
}

func NewCapabilityClient(baseURL string, timeout time.Duration) *HTTPCapabilityClient {
	return &HTTPCapabilityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPCapabilityClient) Agents(ctx context.Context) ([]CapabilityRecord, error) {
	var out []CapabilityRecord
	if err := c.getJSON(ctx, c.baseURL+"/agents", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPCapabilityClient) getJSON(ctx context.Context, rawURL string, dst any) error {
	return getJSON(ctx, c.client, rawURL, dst)
}

// HTTPReputationClient talks to the reputation collaborator over JSON/HTTP.
type HTTPReputationClient struct {
	baseURL string
	client  *http.Client
}

func NewReputationClient(baseURL string, timeout time.Duration) *HTTPReputationClient {
	return &HTTPReputationClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPReputationClient) Scores(ctx context.Context, agentIDs []string) (map[string]ReputationRecord, error) {
	if len(agentIDs) == 0 {
		return map[string]ReputationRecord{}, nil
	}
	q := url.Values{"ids": []string{strings.Join(agentIDs, ",")}}
	var out map[string]ReputationRecord
	if err := getJSON(ctx, c.client, c.baseURL+"/scores?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("registry: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d from %s", ErrUnavailable, resp.StatusCode, rawURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("registry: decode response: %w", err)
	}
	return nil
}
