/*
handlers.go - HTTP API handlers for the mutual pool engine

PURPOSE:
  Exposes the policy ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger.

ENDPOINTS:
  Policies:
    POST   /api/policies                         Create policy
    GET    /api/policies                         List policies
    GET    /api/policies/{id}                    Full policy record
    GET    /api/policies/{id}/tags               Tags in creation order
    GET    /api/policies/{id}/participants       Participants in join order
    GET    /api/policies/{id}/premiums           Premium payment history
    GET    /api/policies/{id}/claims             Claims in submission order

  Operations:
    POST   /api/policies/{id}/premiums           Pay premium
    POST   /api/policies/{id}/claims             Submit claim
    POST   /api/policies/{id}/claims/{index}/approve  Approve claim
    POST   /api/policies/{id}/payouts            Process payout round

  Accounts:
    GET    /api/accounts/{id}/balance?token=     Token balance passthrough

CALLER IDENTITY:
  The front end authenticates and forwards the caller identity in the
  X-Caller-ID header. The ledger only authorizes. Mutating requests
  without the header get 401.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing caller identity
  - 403: Caller lacks the required role
  - 404: Unknown policy, claim, or token
  - 409: Already approved/paid, transfer rejected by token
  - 422: Approved claim exceeds the pool balance
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo scenario loader
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/pool-engine/insurance"
	"github.com/warp/pool-engine/insurance/token"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger   *insurance.Ledger
	Registry *token.Registry

	// DemoToken backs the scenario loader; nil disables scenarios.
	DemoToken *token.Memory

	// Handle the demo token is registered under.
	DemoTokenHandle string
}

// NewHandler creates a new handler around a ledger and token registry.
func NewHandler(ledger *insurance.Ledger, registry *token.Registry) *Handler {
	return &Handler{Ledger: ledger, Registry: registry}
}

// callerID extracts the authenticated caller identity forwarded by the
// front end. Empty means unauthenticated.
func callerID(r *http.Request) insurance.Identity {
	return insurance.Identity(r.Header.Get("X-Caller-ID"))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// CreatePolicy creates a new policy owned by the caller.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-Caller-ID header", nil)
		return
	}

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id, err := h.Ledger.CreatePolicy(r.Context(), caller, req.Name, req.DurationSeconds,
		req.Tags, req.Token, req.PayoutUnit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	policy, err := h.Ledger.Policy(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load created policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPolicyDTO(policy))
}

// ListPolicies returns all policies in id order.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Ledger.ListPolicies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPolicy returns a single policy record.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := policyID(w, r)
	if !ok {
		return
	}

	policy, err := h.Ledger.Policy(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(policy))
}

// GetPolicyTags returns a policy's tags in creation order.
func (h *Handler) GetPolicyTags(w http.ResponseWriter, r *http.Request) {
	id, ok := policyID(w, r)
	if !ok {
		return
	}

	tags, err := h.Ledger.PolicyTags(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, tags)
}

// GetPolicyParticipants returns a policy's participants in join order.
func (h *Handler) GetPolicyParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := policyID(w, r)
	if !ok {
		return
	}

	participants, err := h.Ledger.PolicyParticipants(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	out := make([]string, len(participants))
	for i, member := range participants {
		out[i] = string(member)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetPolicyClaims returns a policy's claims in submission order.
func (h *Handler) GetPolicyClaims(w http.ResponseWriter, r *http.Request) {
	id, ok := policyID(w, r)
	if !ok {
		return
	}

	policy, err := h.Ledger.Policy(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(policy).Claims)
}

// GetPolicyPremiums returns a policy's premium payment history.
func (h *Handler) GetPolicyPremiums(w http.ResponseWriter, r *http.Request) {
	id, ok := policyID(w, r)
	if !ok {
		return
	}

	payments, err := h.Ledger.Premiums(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	dtos := make([]PremiumPaymentDTO, len(payments))
	for i, payment := range payments {
		dtos[i] = PremiumPaymentDTO{
			Payer:  string(payment.Payer),
			Amount: payment.Amount.String(),
			PaidAt: payment.PaidAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// OPERATION HANDLERS
// =============================================================================

// PayPremium pays a premium into the policy pool as the caller.
func (h *Handler) PayPremium(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-Caller-ID header", nil)
		return
	}
	id, ok := policyID(w, r)
	if !ok {
		return
	}

	var req PayPremiumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	if err := h.Ledger.PayPremium(r.Context(), caller, id, amount); err != nil {
		writeLedgerError(w, err)
		return
	}

	policy, err := h.Ledger.Policy(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(policy))
}

// SubmitClaim records a claim for the caller.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-Caller-ID header", nil)
		return
	}
	id, ok := policyID(w, r)
	if !ok {
		return
	}

	var req SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	index, err := h.Ledger.SubmitClaim(r.Context(), caller, id, amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitClaimResponse{Index: index})
}

// ApproveClaim approves one claim as the caller (owner only).
func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-Caller-ID header", nil)
		return
	}
	id, ok := policyID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid claim index", err)
		return
	}

	if err := h.Ledger.ApproveClaim(r.Context(), caller, id, index); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProcessPayout settles approved, unpaid claims as the caller (owner only).
func (h *Handler) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-Caller-ID header", nil)
		return
	}
	id, ok := policyID(w, r)
	if !ok {
		return
	}

	paid, err := h.Ledger.ProcessPayout(r.Context(), caller, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessPayoutResponse{ClaimsPaid: paid})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// GetBalance returns an account's balance for a registered token.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := insurance.Identity(chi.URLParam(r, "id"))
	handle := r.URL.Query().Get("token")
	if handle == "" {
		writeError(w, http.StatusBadRequest, "Missing token query parameter", nil)
		return
	}

	tok, err := h.Registry.Resolve(handle)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	balance, err := tok.BalanceOf(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		Account: string(account),
		Token:   handle,
		Balance: balance.String(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func policyID(w http.ResponseWriter, r *http.Request) (insurance.PolicyID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy id", err)
		return 0, false
	}
	return insurance.PolicyID(id), true
}

// writeLedgerError maps domain errors to HTTP status codes.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, insurance.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	case insurance.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, insurance.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, insurance.ErrAlreadyApproved),
		errors.Is(err, insurance.ErrAlreadyPaid),
		errors.Is(err, insurance.ErrTransferFailed):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, insurance.ErrInsufficientPool):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient pool balance", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
