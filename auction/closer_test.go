package auction

import (
	"context"
	"testing"
	"time"

	"taskbroker/bid"
)

type fixedTrust map[string]float64

func (f fixedTrust) TrustScores(_ context.Context, _ []string) map[string]float64 {
	return map[string]float64(f)
}

func at(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func TestSelectWinner_CheapestWins(t *testing.T) {
	bids := []bid.Bid{
		{ID: "b1", AgentID: "a1", Amount: 100, SubmittedAt: at(5)},
		{ID: "b2", AgentID: "a2", Amount: 200, SubmittedAt: at(1)},
	}

	winner := selectWinner(context.Background(), bids, nil)
	if winner.ID != "b1" {
		t.Fatalf("expected cheapest bid b1, got %s", winner.ID)
	}
}

func TestSelectWinner_EarlierSubmissionBreaksPriceTie(t *testing.T) {
	// The ledger orders by (amount, submitted_at, agent_id); the first element
	// is the leader and a later equal-price bid never displaces it.
	bids := []bid.Bid{
		{ID: "b1", AgentID: "a1", Amount: 100, SubmittedAt: at(1)},
		{ID: "b2", AgentID: "a2", Amount: 100, SubmittedAt: at(2)},
	}

	winner := selectWinner(context.Background(), bids, fixedTrust{"a2": 0.99, "a1": 0.01})
	if winner.ID != "b1" {
		t.Fatalf("trust must not override an earlier submission, got %s", winner.ID)
	}
}

func TestSelectWinner_TrustBreaksFullTie(t *testing.T) {
	bids := []bid.Bid{
		{ID: "b1", AgentID: "a1", Amount: 100, SubmittedAt: at(1)},
		{ID: "b2", AgentID: "a2", Amount: 100, SubmittedAt: at(1)},
	}

	winner := selectWinner(context.Background(), bids, fixedTrust{"a1": 0.4, "a2": 0.8})
	if winner.AgentID != "a2" {
		t.Fatalf("expected higher-trust a2, got %s", winner.AgentID)
	}
}

func TestSelectWinner_AgentIDIsFinalKey(t *testing.T) {
	bids := []bid.Bid{
		{ID: "b2", AgentID: "a2", Amount: 100, SubmittedAt: at(1)},
		{ID: "b1", AgentID: "a1", Amount: 100, SubmittedAt: at(1)},
	}

	// Equal trust: lowest agent id wins deterministically.
	winner := selectWinner(context.Background(), bids, fixedTrust{"a1": 0.5, "a2": 0.5})
	if winner.AgentID != "a1" {
		t.Fatalf("expected a1 on agent-id tie-break, got %s", winner.AgentID)
	}
}

func TestSelectWinner_TrustSourceUnavailable(t *testing.T) {
	bids := []bid.Bid{
		{ID: "b1", AgentID: "a1", Amount: 100, SubmittedAt: at(1)},
		{ID: "b2", AgentID: "a2", Amount: 100, SubmittedAt: at(1)},
	}

	// An empty score map degrades to the agent-id ordering.
	winner := selectWinner(context.Background(), bids, fixedTrust{})
	if winner.AgentID != "a1" {
		t.Fatalf("expected a1 when trust is unavailable, got %s", winner.AgentID)
	}
}
