package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCapabilities struct {
	records []CapabilityRecord
	err     error
}

func (f *fakeCapabilities) Agents(_ context.Context) ([]CapabilityRecord, error) {
	return f.records, f.err
}

type fakeReputation struct {
	scores map[string]ReputationRecord
	err    error
}

func (f *fakeReputation) Scores(_ context.Context, _ []string) (map[string]ReputationRecord, error) {
	return f.scores, f.err
}

func TestCandidateProfiles_MergesReputation(t *testing.T) {
	d := NewDirectory(
		&fakeCapabilities{records: []CapabilityRecord{
			{AgentID: "a1", Skills: []string{"ocr"}, Region: "eu", DataClasses: []string{"pii"}},
			{AgentID: "a2", Skills: []string{"ocr"}},
		}},
		&fakeReputation{scores: map[string]ReputationRecord{
			"a1": {TrustScore: 0.8, Stake: 2000},
		}},
		time.Second,
	)

	profiles, err := d.CandidateProfiles(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].TrustScore == nil || *profiles[0].TrustScore != 0.8 || profiles[0].Stake != 2000 {
		t.Fatalf("a1 reputation not merged: %+v", profiles[0])
	}
	if profiles[1].TrustScore != nil {
		t.Fatalf("a2 without reputation must keep nil trust: %+v", profiles[1])
	}
}

func TestCandidateProfiles_CapabilityOutageIsFatal(t *testing.T) {
	d := NewDirectory(&fakeCapabilities{err: ErrUnavailable}, &fakeReputation{}, time.Second)

	if _, err := d.CandidateProfiles(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCandidateProfiles_ReputationOutageDegrades(t *testing.T) {
	d := NewDirectory(
		&fakeCapabilities{records: []CapabilityRecord{{AgentID: "a1"}}},
		&fakeReputation{err: ErrUnavailable},
		time.Second,
	)

	profiles, err := d.CandidateProfiles(context.Background())
	if err != nil {
		t.Fatalf("reputation outage must not be fatal: %v", err)
	}
	if profiles[0].TrustScore != nil {
		t.Fatal("expected nil trust score on reputation outage")
	}
}

func TestTrustScores_BestEffort(t *testing.T) {
	d := NewDirectory(&fakeCapabilities{}, &fakeReputation{scores: map[string]ReputationRecord{
		"a1": {TrustScore: 0.7},
	}}, time.Second)

	scores := d.TrustScores(context.Background(), []string{"a1", "a2"})
	if scores["a1"] != 0.7 {
		t.Fatalf("unexpected scores: %v", scores)
	}
	if _, ok := scores["a2"]; ok {
		t.Fatal("unknown agent must be absent")
	}

	down := NewDirectory(&fakeCapabilities{}, &fakeReputation{err: ErrUnavailable}, time.Second)
	if got := down.TrustScores(context.Background(), []string{"a1"}); len(got) != 0 {
		t.Fatalf("expected empty map on outage, got %v", got)
	}
}
