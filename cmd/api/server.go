package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"taskbroker/auction"
	"taskbroker/auth"
	"taskbroker/bid"
	"taskbroker/dispute"
	"taskbroker/escrow"
	"taskbroker/logger"
	"taskbroker/registry"
	"taskbroker/settlement"
	"taskbroker/task"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

type authenticator interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
}

type taskService interface {
	Create(ctx context.Context, params task.CreateParams) (task.Task, error)
	Get(ctx context.Context, id string) (task.Task, error)
}

type bidService interface {
	Submit(ctx context.Context, params bid.SubmitParams) (bid.Bid, error)
	ListByTask(ctx context.Context, taskID string) ([]bid.Bid, error)
}

type settlementService interface {
	CloseAuction(ctx context.Context, taskID string) (auction.Result, error)
	ReleaseEscrow(ctx context.Context, escrowID, toAgentID string) (escrow.Escrow, error)
	RefundEscrow(ctx context.Context, escrowID string) (escrow.Escrow, error)
	EligibleAgents(ctx context.Context, taskID string, detailed bool) (settlement.EligibilityReport, error)
}

type escrowService interface {
	Get(ctx context.Context, id string) (escrow.Escrow, error)
	GetByTask(ctx context.Context, taskID string) (escrow.Escrow, error)
	MarkSettled(ctx context.Context, escrowID string) (escrow.Escrow, error)
	AgentStats(ctx context.Context, agentID string) (escrow.AgentStats, error)
}

type disputeService interface {
	Raise(ctx context.Context, params dispute.RaiseParams) (dispute.Record, error)
	Resolve(ctx context.Context, actorRole, disputeID string, res dispute.Resolution) (dispute.Record, error)
	Get(ctx context.Context, id string) (dispute.Record, error)
	List(ctx context.Context, assignmentID string) ([]dispute.Record, error)
}

type auctionSweeper interface {
	Sweep(ctx context.Context) ([]auction.SweepOutcome, error)
}

type assignmentReader interface {
	ByTask(ctx context.Context, taskID string) (auction.Assignment, error)
}

// Server is the HTTP surface of the broker. Handlers translate between the
// JSON envelope and the domain services; no business rules live here.
type Server struct {
	authService       authenticator
	taskService       taskService
	bidService        bidService
	settlementService settlementService
	escrowService     escrowService
	disputeService    disputeService
	sweeper           auctionSweeper
	assignments       assignmentReader
	log               *logger.Logger
}

func (s *Server) logger() *logger.Logger {
	if s.log == nil {
		return logger.Nop()
	}
	return s.log
}

// Handler builds the route table with auth applied to everything except
// register and login.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)

	mux.Handle("/api/auctions/create", s.requireAuth(s.handleCreateAuction))
	mux.Handle("/api/auctions/sweep", s.requireAuth(s.handleSweep))
	mux.Handle("/api/auctions/", s.requireAuth(s.handleAuctionDetail))
	mux.Handle("/api/escrow/release", s.requireAuth(s.handleReleaseEscrow))
	mux.Handle("/api/escrow/refund", s.requireAuth(s.handleRefundEscrow))
	mux.Handle("/api/escrow/settle", s.requireAuth(s.handleSettleEscrow))
	mux.Handle("/api/escrow/", s.requireAuth(s.handleEscrowDetail))
	mux.Handle("/api/disputes/create", s.requireAuth(s.handleCreateDispute))
	mux.Handle("/api/disputes", s.requireAuth(s.handleListDisputes))
	mux.Handle("/api/disputes/", s.requireAuth(s.handleDisputeDetail))
	mux.Handle("/api/agents/", s.requireAuth(s.handleAgentStats))

	return mux
}

func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	})
}

func userIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUserID).(string)
	return id
}

func roleFrom(r *http.Request) auth.Role {
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	return role
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &errorBody{Code: code, Message: message}})
}

// writeServiceError maps domain sentinels onto the error taxonomy. Anything
// unrecognized is a 500 with the detail kept out of the response body.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound),
		errors.Is(err, bid.ErrTaskNotFound),
		errors.Is(err, auction.ErrTaskNotFound),
		errors.Is(err, auction.ErrAssignmentNotFound),
		errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, dispute.ErrAssignmentNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, auction.ErrAlreadyClosed),
		errors.Is(err, bid.ErrNotOpen),
		errors.Is(err, escrow.ErrNotHeld),
		errors.Is(err, escrow.ErrAlreadyReleased),
		errors.Is(err, escrow.ErrAlreadyRefunded),
		errors.Is(err, escrow.ErrNotDisputed),
		errors.Is(err, escrow.ErrNotReleased),
		errors.Is(err, escrow.ErrRecipientMismatch),
		errors.Is(err, dispute.ErrDuplicate),
		errors.Is(err, dispute.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, bid.ErrNotEligible):
		writeError(w, http.StatusBadRequest, "INELIGIBLE", err.Error())
	case errors.Is(err, task.ErrFundingUnavailable),
		errors.Is(err, registry.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "EXTERNAL_UNAVAILABLE", err.Error())
	case errors.Is(err, dispute.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, bid.ErrInvalidAmount),
		errors.Is(err, bid.ErrCurrencyMismatch),
		errors.Is(err, dispute.ErrInvalidSplit),
		errors.Is(err, escrow.ErrSplitOutOfRange):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		s.logger().Errorw("unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return false
	}
	return true
}
