/*
store.go - Persistence interface for the policy ledger

PURPOSE:
  Low-level persistence behind the PolicyLedger. The ledger owns all
  invariants; the store only keeps records and hands out deep copies.

RULES:
  - Policy ids are dense, zero-based, assigned in creation order by
    CreatePolicy. Never reused.
  - Premium payments are append-only. No update, no delete.
  - GetPolicy/ListPolicies return copies; mutations go through
    SavePolicy as a whole-record write.

IMPLEMENTATIONS:
  - store.Memory (insurance/store): in-memory, for tests and dev
  - sqlite.Store (store/sqlite): durable, WAL-mode SQLite
*/
package insurance

import "context"

type Store interface {
	// CreatePolicy persists a new policy and assigns the next dense id.
	CreatePolicy(ctx context.Context, p *Policy) (PolicyID, error)

	// GetPolicy returns a deep copy, or ErrPolicyNotFound.
	GetPolicy(ctx context.Context, id PolicyID) (*Policy, error)

	// SavePolicy overwrites the mutable state of an existing policy
	// (participants, totals, claims, payoutProcessed) atomically.
	SavePolicy(ctx context.Context, p *Policy) error

	// ListPolicies returns deep copies of all policies in id order.
	ListPolicies(ctx context.Context) ([]*Policy, error)

	// RecordPremium appends an immutable premium payment record.
	RecordPremium(ctx context.Context, payment PremiumPayment) error

	// Premiums returns a policy's payment history in payment order.
	Premiums(ctx context.Context, id PolicyID) ([]PremiumPayment, error)
}
