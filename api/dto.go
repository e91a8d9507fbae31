/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Domain validation lives in the ledger; handlers only check that the
  request parses. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/pool-engine/insurance"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CreatePolicyRequest is the request to create a policy.
type CreatePolicyRequest struct {
	Name            string   `json:"name"`
	DurationSeconds int64    `json:"duration_seconds"`
	Tags            []string `json:"tags"`
	Token           string   `json:"token"`
	PayoutUnit      int64    `json:"payout_unit"`
}

// PolicyDTO represents a policy in API responses.
type PolicyDTO struct {
	ID              int64      `json:"id"`
	Owner           string     `json:"owner"`
	Name            string     `json:"name"`
	DurationSeconds int64      `json:"duration_seconds"`
	Tags            []string   `json:"tags"`
	Token           string     `json:"token"`
	PayoutUnit      int64      `json:"payout_unit"`
	Participants    []string   `json:"participants"`
	TotalPremium    string     `json:"total_premium"`
	RemainingPayout string     `json:"remaining_payout"`
	Claims          []ClaimDTO `json:"claims"`
	PayoutProcessed bool       `json:"payout_processed"`
	CreatedAt       string     `json:"created_at"`
}

// ClaimDTO represents a claim in API responses.
type ClaimDTO struct {
	Index       int    `json:"index"`
	Claimant    string `json:"claimant"`
	Amount      string `json:"amount"`
	Approved    bool   `json:"approved"`
	Paid        bool   `json:"paid"`
	SubmittedAt string `json:"submitted_at"`
}

// PayPremiumRequest is the request to pay a premium.
type PayPremiumRequest struct {
	Amount string `json:"amount"`
}

// SubmitClaimRequest is the request to submit a claim.
type SubmitClaimRequest struct {
	Amount string `json:"amount"`
}

// SubmitClaimResponse returns the index of the recorded claim.
type SubmitClaimResponse struct {
	Index int `json:"index"`
}

// ProcessPayoutResponse reports how many claims were settled.
type ProcessPayoutResponse struct {
	ClaimsPaid int `json:"claims_paid"`
}

// PremiumPaymentDTO represents one inflow record.
type PremiumPaymentDTO struct {
	Payer  string `json:"payer"`
	Amount string `json:"amount"`
	PaidAt string `json:"paid_at"`
}

// BalanceDTO is the token balance passthrough response.
type BalanceDTO struct {
	Account string `json:"account"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

// LoadScenarioRequest selects a demo scenario by name.
type LoadScenarioRequest struct {
	Name string `json:"name"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPolicyDTO(p *insurance.Policy) PolicyDTO {
	participants := make([]string, len(p.Participants))
	for i, member := range p.Participants {
		participants[i] = string(member)
	}

	claims := make([]ClaimDTO, len(p.Claims))
	for i, claim := range p.Claims {
		claims[i] = ClaimDTO{
			Index:       i,
			Claimant:    string(claim.Claimant),
			Amount:      claim.Amount.String(),
			Approved:    claim.Approved,
			Paid:        claim.Paid,
			SubmittedAt: claim.SubmittedAt.Format(time.RFC3339),
		}
	}

	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	return PolicyDTO{
		ID:              int64(p.ID),
		Owner:           string(p.Owner),
		Name:            p.Name,
		DurationSeconds: p.DurationSeconds,
		Tags:            tags,
		Token:           p.Token,
		PayoutUnit:      p.PayoutUnit,
		Participants:    participants,
		TotalPremium:    p.TotalPremium.String(),
		RemainingPayout: p.RemainingPayout.String(),
		Claims:          claims,
		PayoutProcessed: p.PayoutProcessed,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
}
