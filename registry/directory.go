package registry

import (
	"context"
	"time"

	"taskbroker/eligibility"
)

// Directory merges capability and reputation answers into the profiles the
// eligibility filter screens. The capability registry is authoritative for
// the candidate pool, so its failure is fatal; a reputation outage degrades
// to profiles without trust scores, which the filter treats as ineligible
// wherever a minimum trust is required.
type Directory struct {
	capabilities CapabilityClient
	reputation   ReputationClient
	timeout      time.Duration
}

func NewDirectory(capabilities CapabilityClient, reputation ReputationClient, timeout time.Duration) *Directory {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Directory{
		capabilities: capabilities,
		reputation:   reputation,
		timeout:      timeout,
	}
}

// CandidateProfiles returns the full agent pool with whatever reputation
// data was reachable.
func (d *Directory) CandidateProfiles(ctx context.Context) ([]eligibility.AgentProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	records, err := d.capabilities.Agents(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.AgentID)
	}

	scores, err := d.reputation.Scores(ctx, ids)
	if err != nil {
		// Fail closed: profiles keep a nil trust score.
		scores = nil
	}

	profiles := make([]eligibility.AgentProfile, 0, len(records))
	for _, rec := range records {
		p := eligibility.AgentProfile{
			ID:          rec.AgentID,
			Skills:      rec.Skills,
			Region:      rec.Region,
			DataClasses: rec.DataClasses,
		}
		if rep, ok := scores[rec.AgentID]; ok {
			score := rep.TrustScore
			p.TrustScore = &score
			p.Stake = rep.Stake
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// TrustScores resolves trust for a specific set of agents, best-effort.
// Unknown agents are absent from the result; an unreachable collaborator
// yields an empty map. The auction closer uses this for tie-breaks only, so
// degradation never blocks a close.
func (d *Directory) TrustScores(ctx context.Context, agentIDs []string) map[string]float64 {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	scores, err := d.reputation.Scores(ctx, agentIDs)
	if err != nil {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(scores))
	for id, rec := range scores {
		out[id] = rec.TrustScore
	}
	return out
}
