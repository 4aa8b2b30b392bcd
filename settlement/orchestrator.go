package settlement

import (
	"context"
	"time"

	"taskbroker/auction"
	"taskbroker/eligibility"
	"taskbroker/escrow"
	"taskbroker/logger"
	"taskbroker/task"
)

// AuctionCloser ends one auction exactly once.
type AuctionCloser interface {
	Close(ctx context.Context, taskID string) (auction.Result, error)
}

// EscrowMover is the slice of the escrow service the orchestrator drives.
type EscrowMover interface {
	Release(ctx context.Context, escrowID, toAgentID string) (escrow.Escrow, error)
	Refund(ctx context.Context, escrowID string) (escrow.Escrow, error)
}

// TaskReader loads tasks for the eligibility report.
type TaskReader interface {
	Get(ctx context.Context, id string) (task.Task, error)
}

// ProfileSource assembles candidate agent profiles from the external
// registries.
type ProfileSource interface {
	CandidateProfiles(ctx context.Context) ([]eligibility.AgentProfile, error)
}

// Orchestrator sequences the settlement operations: close, release, refund,
// and the eligibility report. Notifications go out after the financial
// commit with a short deadline; a dead notification service never rolls
// back money.
type Orchestrator struct {
	closer        AuctionCloser
	escrows       EscrowMover
	tasks         TaskReader
	profiles      ProfileSource
	notifier      Notifier
	notifyTimeout time.Duration
	log           *logger.Logger
}

func NewOrchestrator(closer AuctionCloser, escrows EscrowMover, tasks TaskReader, profiles ProfileSource, notifier Notifier, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		closer:        closer,
		escrows:       escrows,
		tasks:         tasks,
		profiles:      profiles,
		notifier:      notifier,
		notifyTimeout: 2 * time.Second,
		log:           log,
	}
}

// CloseAuction closes the auction. The closer enqueues the outcome event in
// the closing transaction, and the outbox worker owns its delivery, so no
// direct push happens here.
func (o *Orchestrator) CloseAuction(ctx context.Context, taskID string) (auction.Result, error) {
	return o.closer.Close(ctx, taskID)
}

// ReleaseEscrow pays the assigned agent out of the hold.
func (o *Orchestrator) ReleaseEscrow(ctx context.Context, escrowID, toAgentID string) (escrow.Escrow, error) {
	esc, err := o.escrows.Release(ctx, escrowID, toAgentID)
	if err != nil {
		return escrow.Escrow{}, err
	}
	o.push(ctx, "escrow.released", map[string]any{
		"escrow_id": esc.ID,
		"task_id":   esc.TaskID,
		"agent_id":  toAgentID,
		"amount":    esc.Amount,
		"currency":  esc.Currency,
	})
	return esc, nil
}

// RefundEscrow returns the hold to the buyer.
func (o *Orchestrator) RefundEscrow(ctx context.Context, escrowID string) (escrow.Escrow, error) {
	esc, err := o.escrows.Refund(ctx, escrowID)
	if err != nil {
		return escrow.Escrow{}, err
	}
	o.push(ctx, "escrow.refunded", map[string]any{
		"escrow_id": esc.ID,
		"task_id":   esc.TaskID,
		"amount":    esc.Amount,
		"currency":  esc.Currency,
	})
	return esc, nil
}

// EligibilityReport is the screening result for one task's candidate pool.
// Decisions carry per-agent failure reasons and is populated only for
// detailed reports.
type EligibilityReport struct {
	TaskID           string                 `json:"taskId"`
	EligibleAgentIDs []string               `json:"eligibleAgentIds"`
	Decisions        []eligibility.Decision `json:"decisions,omitempty"`
}

// EligibleAgents screens the current candidate pool against the task's
// requirements. The capability registry is authoritative here, so its outage
// propagates to the caller.
func (o *Orchestrator) EligibleAgents(ctx context.Context, taskID string, detailed bool) (EligibilityReport, error) {
	t, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return EligibilityReport{}, err
	}

	profiles, err := o.profiles.CandidateProfiles(ctx)
	if err != nil {
		return EligibilityReport{}, err
	}

	report := EligibilityReport{
		TaskID:           t.ID,
		EligibleAgentIDs: eligibility.EligibleIDs(t.Requirements, profiles),
	}
	if detailed {
		report.Decisions = eligibility.EvaluatePool(t.Requirements, profiles)
	}
	return report, nil
}

func (o *Orchestrator) push(ctx context.Context, topic string, payload map[string]any) {
	if o.notifier == nil {
		return
	}
	// Detach from the caller's cancellation but keep a tight deadline.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.notifyTimeout)
	defer cancel()
	if err := o.notifier.Notify(nctx, topic, payload); err != nil {
		o.log.Warnw("notification push failed", "topic", topic, "error", err)
	}
}
