package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"taskbroker/auction"
	"taskbroker/auth"
	"taskbroker/bid"
	"taskbroker/dispute"
	"taskbroker/escrow"
	"taskbroker/task"
)

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	var req auth.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "CONFLICT", err.Error())
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		default:
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		}
		return
	}
	writeSuccess(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	var req auth.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
			return
		}
		s.writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

type requirementsPayload struct {
	Skills        []string `json:"skills"`
	DataClass     string   `json:"dataClass"`
	Region        string   `json:"region"`
	MinTrustScore *float64 `json:"minTrustScore"`
	MinStake      int64    `json:"minStake"`
}

type taskResponse struct {
	ID             string              `json:"id"`
	BuyerID        string              `json:"buyerId"`
	Title          string              `json:"title"`
	Status         string              `json:"status"`
	BudgetAmount   int64               `json:"budgetAmount"`
	BudgetCurrency string              `json:"budgetCurrency"`
	Requirements   requirementsPayload `json:"requirements"`
	AuctionType    string              `json:"auctionType"`
	AuctionEndsAt  string              `json:"auctionEndsAt"`
	CreatedAt      string              `json:"createdAt"`
}

func toTaskResponse(t task.Task) taskResponse {
	return taskResponse{
		ID:             t.ID,
		BuyerID:        t.BuyerID,
		Title:          t.Title,
		Status:         string(t.Status),
		BudgetAmount:   t.BudgetAmount,
		BudgetCurrency: t.BudgetCurrency,
		Requirements: requirementsPayload{
			Skills:        t.Requirements.Skills,
			DataClass:     t.Requirements.DataClass,
			Region:        t.Requirements.Region,
			MinTrustScore: t.Requirements.MinTrustScore,
			MinStake:      t.Requirements.MinStake,
		},
		AuctionType:   string(t.AuctionType),
		AuctionEndsAt: t.AuctionEndsAt.Format(time.RFC3339),
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	role := roleFrom(r)
	if role != auth.RoleBuyer && role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "only buyers create auctions")
		return
	}

	var req struct {
		TaskID          string              `json:"taskId"`
		Title           string              `json:"title"`
		BudgetAmount    int64               `json:"budgetAmount"`
		BudgetCurrency  string              `json:"budgetCurrency"`
		Requirements    requirementsPayload `json:"requirements"`
		AuctionType     string              `json:"auctionType"`
		DurationMinutes int                 `json:"durationMinutes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := s.taskService.Create(r.Context(), task.CreateParams{
		TaskID:         req.TaskID,
		BuyerID:        userIDFrom(r),
		Title:          req.Title,
		BudgetAmount:   req.BudgetAmount,
		BudgetCurrency: req.BudgetCurrency,
		Requirements: task.Requirements{
			Skills:        req.Requirements.Skills,
			DataClass:     req.Requirements.DataClass,
			Region:        req.Requirements.Region,
			MinTrustScore: req.Requirements.MinTrustScore,
			MinStake:      req.Requirements.MinStake,
		},
		AuctionType:     task.AuctionType(req.AuctionType),
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		if errors.Is(err, task.ErrFundingUnavailable) {
			s.writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	writeSuccess(w, http.StatusCreated, toTaskResponse(created))
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	if roleFrom(r) != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "sweep is admin-only")
		return
	}

	outcomes, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

// handleAuctionDetail routes /api/auctions/{id}/{action}.
func (s *Server) handleAuctionDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/auctions/")
	taskID, action, _ := strings.Cut(rest, "/")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "auction id required")
		return
	}

	switch action {
	case "bid":
		s.handleSubmitBid(w, r, taskID)
	case "close":
		s.handleCloseAuction(w, r, taskID)
	case "status":
		s.handleAuctionStatus(w, r, taskID)
	case "eligible-agents":
		s.handleEligibleAgents(w, r, taskID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown auction action")
	}
}

type bidResponse struct {
	BidID       string `json:"bidId"`
	ID          string `json:"id"`
	TaskID      string `json:"taskId"`
	AgentID     string `json:"agentId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submittedAt"`
}

func toBidResponse(b bid.Bid) bidResponse {
	return bidResponse{
		BidID:       b.ID,
		ID:          b.ID,
		TaskID:      b.TaskID,
		AgentID:     b.AgentID,
		Amount:      b.Amount,
		Currency:    b.Currency,
		Status:      string(b.Status),
		SubmittedAt: b.SubmittedAt.Format(time.RFC3339Nano),
	}
}

func (s *Server) handleSubmitBid(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	if roleFrom(r) != auth.RoleAgent {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "only agents bid")
		return
	}

	var req struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	placed, err := s.bidService.Submit(r.Context(), bid.SubmitParams{
		TaskID:   taskID,
		AgentID:  userIDFrom(r),
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toBidResponse(placed))
}

type closeWinner struct {
	AgentID string `json:"agentId"`
	Amount  int64  `json:"amount"`
}

// closeResponse carries winnerId/winningBid on assignment and an explicit
// winner:null on cancellation.
type closeResponse struct {
	TaskID       string       `json:"taskId"`
	Cancelled    bool         `json:"cancelled"`
	Winner       *closeWinner `json:"winner"`
	AssignmentID string       `json:"assignmentId,omitempty"`
	WinnerID     string       `json:"winnerId,omitempty"`
	WinningBid   int64        `json:"winningBid,omitempty"`
	Currency     string       `json:"currency,omitempty"`
}

func (s *Server) handleCloseAuction(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}

	role := roleFrom(r)
	if role != auth.RoleAdmin {
		t, err := s.taskService.Get(r.Context(), taskID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if role != auth.RoleBuyer || t.BuyerID != userIDFrom(r) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "only the posting buyer closes an auction")
			return
		}
	}

	res, err := s.settlementService.CloseAuction(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := closeResponse{
		TaskID:       res.TaskID,
		Cancelled:    res.Cancelled,
		AssignmentID: res.AssignmentID,
		WinnerID:     res.WinnerID,
		WinningBid:   res.WinningAmount,
		Currency:     res.Currency,
	}
	if !res.Cancelled {
		resp.Winner = &closeWinner{AgentID: res.WinnerID, Amount: res.WinningAmount}
	}
	writeSuccess(w, http.StatusOK, resp)
}

type assignmentResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	AgentID   string `json:"agentId"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type statusResponse struct {
	Task       taskResponse        `json:"task"`
	Bids       []bidResponse       `json:"bids"`
	Assignment *assignmentResponse `json:"assignment,omitempty"`
	Escrow     *escrowResponse     `json:"escrow,omitempty"`
}

func (s *Server) handleAuctionStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}

	t, err := s.taskService.Get(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	bids, err := s.bidService.ListByTask(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := statusResponse{Task: toTaskResponse(t), Bids: make([]bidResponse, 0, len(bids))}
	for _, b := range bids {
		resp.Bids = append(resp.Bids, toBidResponse(b))
	}

	if a, err := s.assignments.ByTask(r.Context(), taskID); err == nil {
		resp.Assignment = &assignmentResponse{
			ID:        a.ID,
			TaskID:    a.TaskID,
			AgentID:   a.AgentID,
			Status:    string(a.Status),
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
	} else if !errors.Is(err, auction.ErrAssignmentNotFound) {
		s.writeServiceError(w, err)
		return
	}

	if esc, err := s.escrowService.GetByTask(r.Context(), taskID); err == nil {
		er := toEscrowResponse(esc)
		resp.Escrow = &er
	} else if !errors.Is(err, escrow.ErrNotFound) {
		s.writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, resp)
}

func (s *Server) handleEligibleAgents(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	detailed := r.URL.Query().Get("detailed") == "true"

	report, err := s.settlementService.EligibleAgents(r.Context(), taskID, detailed)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

type escrowResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func toEscrowResponse(e escrow.Escrow) escrowResponse {
	return escrowResponse{
		ID:        e.ID,
		TaskID:    e.TaskID,
		Amount:    e.Amount,
		Currency:  e.Currency,
		Status:    string(e.Status),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	role := roleFrom(r)
	if role != auth.RoleBuyer && role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "only buyers release escrow")
		return
	}

	var req struct {
		EscrowID  string `json:"escrowId"`
		AgentID   string `json:"agentId"`
		ToAgentID string `json:"toAgentId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EscrowID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "escrowId required")
		return
	}

	toAgentID := req.AgentID
	if toAgentID == "" {
		toAgentID = req.ToAgentID
	}
	if toAgentID == "" {
		// Default recipient is the assigned agent.
		esc, err := s.escrowService.Get(r.Context(), req.EscrowID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		a, err := s.assignments.ByTask(r.Context(), esc.TaskID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		toAgentID = a.AgentID
	}

	esc, err := s.settlementService.ReleaseEscrow(r.Context(), req.EscrowID, toAgentID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"released": true,
		"escrow":   toEscrowResponse(esc),
	})
}

// handleSettleEscrow records the payment rail's confirmation that a released
// payout cleared externally.
func (s *Server) handleSettleEscrow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	if roleFrom(r) != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "settlement confirmation is admin-only")
		return
	}

	var req struct {
		EscrowID string `json:"escrowId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EscrowID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "escrowId required")
		return
	}

	esc, err := s.escrowService.MarkSettled(r.Context(), req.EscrowID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"settled": true,
		"escrow":  toEscrowResponse(esc),
	})
}

func (s *Server) handleRefundEscrow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	if roleFrom(r) != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "refund is admin-only")
		return
	}

	var req struct {
		EscrowID string `json:"escrowId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EscrowID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "escrowId required")
		return
	}

	esc, err := s.settlementService.RefundEscrow(r.Context(), req.EscrowID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toEscrowResponse(esc))
}

func (s *Server) handleEscrowDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/escrow/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "escrow id required")
		return
	}

	esc, err := s.escrowService.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toEscrowResponse(esc))
}

type disputeResponse struct {
	DisputeID        string   `json:"disputeId"`
	ID               string   `json:"id"`
	AssignmentID     string   `json:"assignmentId"`
	RaisedByRole     string   `json:"raisedByRole"`
	RaisedByID       string   `json:"raisedById"`
	Reason           string   `json:"reason"`
	Evidence         []string `json:"evidence"`
	Status           string   `json:"status"`
	Outcome          *string  `json:"outcome,omitempty"`
	SplitAgentAmount *int64   `json:"splitAgentAmount,omitempty"`
	CreatedAt        string   `json:"createdAt"`
	ResolvedAt       *string  `json:"resolvedAt,omitempty"`
}

func toDisputeResponse(rec dispute.Record) disputeResponse {
	resp := disputeResponse{
		DisputeID:        rec.ID,
		ID:               rec.ID,
		AssignmentID:     rec.AssignmentID,
		RaisedByRole:     string(rec.RaisedByRole),
		RaisedByID:       rec.RaisedByID,
		Reason:           rec.Reason,
		Evidence:         rec.Evidence,
		Status:           string(rec.Status),
		SplitAgentAmount: rec.SplitAgentAmount,
		CreatedAt:        rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.Outcome != nil {
		o := string(*rec.Outcome)
		resp.Outcome = &o
	}
	if rec.ResolvedAt != nil {
		at := rec.ResolvedAt.Format(time.RFC3339)
		resp.ResolvedAt = &at
	}
	return resp
}

func (s *Server) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	role := roleFrom(r)
	if role != auth.RoleBuyer && role != auth.RoleAgent {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "only parties to an assignment raise disputes")
		return
	}

	var req struct {
		TaskAssignmentID string   `json:"taskAssignmentId"`
		AssignmentID     string   `json:"assignmentId"`
		Reason           string   `json:"reason"`
		Evidence         []string `json:"evidence"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	assignmentID := req.TaskAssignmentID
	if assignmentID == "" {
		assignmentID = req.AssignmentID
	}

	rec, err := s.disputeService.Raise(r.Context(), dispute.RaiseParams{
		AssignmentID: assignmentID,
		RaisedByRole: dispute.RaisedByRole(role),
		RaisedByID:   userIDFrom(r),
		Reason:       req.Reason,
		Evidence:     req.Evidence,
	})
	if err != nil {
		if errors.Is(err, dispute.ErrAssignmentNotFound) || errors.Is(err, dispute.ErrDuplicate) {
			s.writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	writeSuccess(w, http.StatusCreated, toDisputeResponse(rec))
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}

	records, err := s.disputeService.List(r.Context(), r.URL.Query().Get("assignmentId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	items := make([]disputeResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toDisputeResponse(rec))
	}
	writeSuccess(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// handleDisputeDetail routes /api/disputes/{id} and /api/disputes/{id}/resolve.
func (s *Server) handleDisputeDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/disputes/")
	disputeID, action, _ := strings.Cut(rest, "/")
	if disputeID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "dispute id required")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		rec, err := s.disputeService.Get(r.Context(), disputeID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, toDisputeResponse(rec))
	case action == "resolve" && r.Method == http.MethodPost:
		s.handleResolveDispute(w, r, disputeID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
	}
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request, disputeID string) {
	var req struct {
		Outcome     string `json:"outcome"`
		AgentAmount int64  `json:"agentAmount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.disputeService.Resolve(r.Context(), string(roleFrom(r)), disputeID, dispute.Resolution{
		Outcome:     dispute.Outcome(req.Outcome),
		AgentAmount: req.AgentAmount,
	})
	if err != nil {
		if strings.Contains(err.Error(), "unknown outcome") {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toDisputeResponse(rec))
}

type statsResponse struct {
	AgentID       string `json:"agentId"`
	JobsCompleted int64  `json:"jobsCompleted"`
	RevenueTotal  int64  `json:"revenueTotal"`
}

// handleAgentStats routes /api/agents/{id}/stats.
func (s *Server) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "VALIDATION_ERROR", "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	agentID, action, _ := strings.Cut(rest, "/")
	if agentID == "" || action != "stats" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "expected /api/agents/{id}/stats")
		return
	}

	stats, err := s.escrowService.AgentStats(r.Context(), agentID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, statsResponse{
		AgentID:       agentID,
		JobsCompleted: stats.JobsCompleted,
		RevenueTotal:  stats.RevenueTotal,
	})
}
