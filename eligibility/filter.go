// Package eligibility decides which agents may bid on a task. Evaluation is
// a pure function of the task requirements and the candidate profiles the
// caller assembled; collaborator outages surface here only as missing trust
// scores, which fail closed.
package eligibility

import (
	"taskbroker/task"
)

// AgentProfile is the merged view of an agent used for screening: registry
// data (skills, region, data classes) plus reputation data (trust, stake).
// TrustScore is nil when the reputation collaborator had no answer.
type AgentProfile struct {
	ID          string
	Skills      []string
	Region      string
	DataClasses []string
	TrustScore  *float64
	Stake       int64
}

// Check names identify which requirement an agent failed. They are stable
// strings exposed through the detailed eligibility report.
const (
	ReasonMissingSkills    = "missing_required_skills"
	ReasonDataClassDenied  = "data_class_not_permitted"
	ReasonRegionMismatch   = "region_mismatch"
	ReasonTrustUnknown     = "trust_score_unknown"
	ReasonTrustBelowMin    = "trust_score_below_minimum"
	ReasonStakeInsufficent = "stake_below_minimum"
)

// Decision is the outcome for one agent. Reasons lists every failed check,
// so a detailed report can show all gaps at once.
type Decision struct {
	AgentID  string
	Eligible bool
	Reasons  []string
}

// Evaluate screens one agent against the task requirements.
func Evaluate(req task.Requirements, agent AgentProfile) Decision {
	var reasons []string

	if !subset(req.Skills, agent.Skills) {
		reasons = append(reasons, ReasonMissingSkills)
	}
	if req.DataClass != "" && !contains(agent.DataClasses, req.DataClass) {
		reasons = append(reasons, ReasonDataClassDenied)
	}
	if req.Region != "" && agent.Region != req.Region {
		reasons = append(reasons, ReasonRegionMismatch)
	}
	if req.MinTrustScore != nil {
		switch {
		case agent.TrustScore == nil:
			reasons = append(reasons, ReasonTrustUnknown)
		case *agent.TrustScore < *req.MinTrustScore:
			reasons = append(reasons, ReasonTrustBelowMin)
		}
	}
	if agent.Stake < req.MinStake {
		reasons = append(reasons, ReasonStakeInsufficent)
	}

	return Decision{
		AgentID:  agent.ID,
		Eligible: len(reasons) == 0,
		Reasons:  reasons,
	}
}

// EvaluatePool screens every candidate, preserving input order.
func EvaluatePool(req task.Requirements, agents []AgentProfile) []Decision {
	out := make([]Decision, 0, len(agents))
	for _, a := range agents {
		out = append(out, Evaluate(req, a))
	}
	return out
}

// EligibleIDs returns just the ids of agents that passed every check.
func EligibleIDs(req task.Requirements, agents []AgentProfile) []string {
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		if Evaluate(req, a).Eligible {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func subset(required, offered []string) bool {
	for _, want := range required {
		if !contains(offered, want) {
			return false
		}
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
