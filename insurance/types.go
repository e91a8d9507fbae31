/*
Package insurance provides the core mutual-pool policy ledger.

PURPOSE:
  This package contains the domain types and the PolicyLedger state
  machine for a pooled-risk insurance arrangement: an owner defines a
  policy, participants pay premiums in a fungible token into a shared
  pool, participants submit claims, the owner approves them, and
  approved claims are paid out of the pool's remaining balance.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identity: An authenticated caller (supplied by the front end)
  - Policy: A named, owned risk pool with participants and claims
  - Claim: A participant's request to withdraw funds, subject to approval
  - PremiumPayment: An immutable record of a premium inflow

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all token quantities
  2. Type Safety: Strong typing for identities and policy ids
  3. Append-only history: Claims and premium payments are never deleted
  4. Derived state: payoutProcessed is a convenience flag; per-claim
     Paid is the primary truth

SEE ALSO:
  - ledger.go: The PolicyLedger operations and invariants
  - token.go: FungibleToken interface consumed by the ledger
  - store.go: Persistence interface
*/
package insurance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Identity is an authenticated caller identity. The ledger never
// authenticates; it only authorizes the identity it is handed against
// stored roles (owner, participant).
type Identity string

// PolicyID is a dense, zero-based, sequentially assigned policy id.
type PolicyID int64

// PoolAccount returns the token account holding a policy's pooled
// premiums. Derived deterministically from the policy id.
func PoolAccount(id PolicyID) Identity {
	return Identity(fmt.Sprintf("pool-%d", id))
}

// =============================================================================
// POLICY - A named, owned risk pool
// =============================================================================

type Policy struct {
	ID    PolicyID
	Owner Identity
	Name  string

	// DurationSeconds is an advisory expiry hint. Nothing in the ledger
	// enforces it.
	DurationSeconds int64

	// Tags are fixed at creation, order-preserving.
	Tags []string

	// Token is the handle of the fungible token used for this policy's
	// premiums and payouts.
	Token string

	// PayoutUnit scales premium inflow into pool-balance growth:
	// RemainingPayout grows by paid amount * PayoutUnit.
	PayoutUnit int64

	// Participants is unique and insertion-ordered; the owner is always
	// the first member.
	Participants []Identity

	// TotalPremium accumulates raw token amounts paid in. Monotone.
	TotalPremium decimal.Decimal

	// RemainingPayout is the pool balance available for approved claims.
	// Never negative.
	RemainingPayout decimal.Decimal

	// Claims is append-only, in submission order.
	Claims []Claim

	// PayoutProcessed is true once at least one claim has been paid.
	// Per-claim Paid flags are the primary record.
	PayoutProcessed bool

	CreatedAt time.Time
}

// IsParticipant reports whether id is a current participant.
func (p *Policy) IsParticipant(id Identity) bool {
	for _, member := range p.Participants {
		if member == id {
			return true
		}
	}
	return false
}

// AddParticipant appends id if not already present. Order-preserving.
func (p *Policy) AddParticipant(id Identity) {
	if !p.IsParticipant(id) {
		p.Participants = append(p.Participants, id)
	}
}

// Clone returns a deep copy. Stores hand out clones so callers can
// never mutate persisted state in place.
func (p *Policy) Clone() *Policy {
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	cp.Participants = append([]Identity(nil), p.Participants...)
	cp.Claims = append([]Claim(nil), p.Claims...)
	return &cp
}

// =============================================================================
// CLAIM - A request to withdraw from the pool
// =============================================================================

type Claim struct {
	Claimant Identity
	Amount   decimal.Decimal

	// Approved is set at most once, by the policy owner.
	Approved bool

	// Paid is set at most once, when a payout round settles the claim.
	// Paying requires prior approval.
	Paid bool

	SubmittedAt time.Time
}

// =============================================================================
// PREMIUM PAYMENT - Immutable inflow record
// =============================================================================

// PremiumPayment records one successful premium inflow. Append-only;
// a policy's TotalPremium always equals the sum of its payments.
type PremiumPayment struct {
	PolicyID PolicyID
	Payer    Identity
	Amount   decimal.Decimal
	PaidAt   time.Time
}
