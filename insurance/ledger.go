/*
ledger.go - The PolicyLedger state machine

PURPOSE:
  Owns all policy records, participant sets, claims, and the
  premium/payout bookkeeping. Premiums accumulate into the pool's
  remaining payout balance; claims are recorded, approved by the owner,
  and paid out of the pool exactly once each.

LIFECYCLE:
  createPolicy -> payPremium* -> submitClaim* -> approveClaim* -> processPayout*

BOOKKEEPING INVARIANTS:
  1. RemainingPayout >= 0 always; equals scaled premium inflow minus
     processed payouts.
  2. TotalPremium equals the sum of recorded premium payments.
  3. A claim is approved at most once, paid at most once, and paying
     requires prior approval.
  4. Participants are unique, insertion-ordered, and always include the
     owner.
  5. Policy ids are dense and zero-based, in creation order.

ATOMICITY:
  Every operation validates first, moves tokens second, persists last.
  A failed transfer therefore leaves no observable state change. All
  mutating operations are serialized by a ledger-wide mutex; reads see
  consistent snapshots (stores hand out deep copies).

SCALING RULE:
  Paying a premium of amount A on a policy with payout unit U grows
  RemainingPayout by exactly A * U. TotalPremium grows by the raw A.

SEE ALSO:
  - types.go: Policy, Claim, PremiumPayment
  - store.go: Persistence interface
  - token.go: FungibleToken interface
*/
package insurance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the single authority over policy state. All mutations are
// strictly serialized; token transfers are the only external step.
type Ledger struct {
	mu     sync.Mutex
	store  Store
	tokens TokenResolver
}

func NewLedger(store Store, tokens TokenResolver) *Ledger {
	return &Ledger{store: store, tokens: tokens}
}

// =============================================================================
// CREATE
// =============================================================================

// CreatePolicy allocates the next policy id and stores the immutable
// policy metadata. The caller becomes the owner and first participant.
// Any caller may create policies.
func (l *Ledger) CreatePolicy(
	ctx context.Context,
	caller Identity,
	name string,
	durationSeconds int64,
	tags []string,
	tokenHandle string,
	payoutUnit int64,
) (PolicyID, error) {
	if caller == "" {
		return 0, fmt.Errorf("%w: missing caller identity", ErrInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: policy name must not be empty", ErrInvalidInput)
	}
	if durationSeconds <= 0 {
		return 0, fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidInput, durationSeconds)
	}
	if payoutUnit <= 0 {
		return 0, fmt.Errorf("%w: payout unit must be positive, got %d", ErrInvalidInput, payoutUnit)
	}
	if _, err := l.tokens.Resolve(tokenHandle); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	policy := &Policy{
		Owner:           caller,
		Name:            name,
		DurationSeconds: durationSeconds,
		Tags:            append([]string(nil), tags...),
		Token:           tokenHandle,
		PayoutUnit:      payoutUnit,
		Participants:    []Identity{caller},
		TotalPremium:    decimal.Zero,
		RemainingPayout: decimal.Zero,
		CreatedAt:       time.Now().UTC(),
	}

	return l.store.CreatePolicy(ctx, policy)
}

// =============================================================================
// PREMIUMS
// =============================================================================

// PayPremium pulls amount of the policy token from the caller into the
// policy's pool account, then records the inflow. The caller becomes a
// participant if not already one. Two payments are two independent
// inflows; this is deliberately not idempotent.
//
// Order matters: the transfer happens before any state is persisted,
// so a rejected transfer leaves the policy untouched.
func (l *Ledger) PayPremium(ctx context.Context, caller Identity, id PolicyID, amount decimal.Decimal) error {
	if caller == "" {
		return fmt.Errorf("%w: missing caller identity", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: premium amount must be positive, got %s", ErrInvalidInput, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	policy, err := l.store.GetPolicy(ctx, id)
	if err != nil {
		return err
	}

	tok, err := l.tokens.Resolve(policy.Token)
	if err != nil {
		return err
	}

	if err := tok.TransferFrom(ctx, SpenderAccount, caller, PoolAccount(id), amount); err != nil {
		return &TransferError{
			Token:  policy.Token,
			From:   caller,
			To:     PoolAccount(id),
			Amount: amount,
			Err:    err,
		}
	}

	policy.AddParticipant(caller)
	policy.TotalPremium = policy.TotalPremium.Add(amount)
	policy.RemainingPayout = policy.RemainingPayout.Add(amount.Mul(decimal.NewFromInt(policy.PayoutUnit)))

	if err := l.store.SavePolicy(ctx, policy); err != nil {
		return err
	}
	return l.store.RecordPremium(ctx, PremiumPayment{
		PolicyID: id,
		Payer:    caller,
		Amount:   amount,
		PaidAt:   time.Now().UTC(),
	})
}

// =============================================================================
// CLAIMS
// =============================================================================

// SubmitClaim appends an unapproved, unpaid claim for the caller.
// Only participants may claim. The pool balance is not checked here;
// validation happens at payout time.
func (l *Ledger) SubmitClaim(ctx context.Context, caller Identity, id PolicyID, amount decimal.Decimal) (int, error) {
	if caller == "" {
		return 0, fmt.Errorf("%w: missing caller identity", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: claim amount must be positive, got %s", ErrInvalidInput, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	policy, err := l.store.GetPolicy(ctx, id)
	if err != nil {
		return 0, err
	}
	if !policy.IsParticipant(caller) {
		return 0, fmt.Errorf("%w: %s is not a participant of policy %d", ErrUnauthorized, caller, id)
	}

	policy.Claims = append(policy.Claims, Claim{
		Claimant:    caller,
		Amount:      amount,
		SubmittedAt: time.Now().UTC(),
	})

	if err := l.store.SavePolicy(ctx, policy); err != nil {
		return 0, err
	}
	return len(policy.Claims) - 1, nil
}

// ApproveClaim marks a claim approved. Owner only. Approving twice is
// an error, not a silent no-op.
func (l *Ledger) ApproveClaim(ctx context.Context, caller Identity, id PolicyID, claimIndex int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	policy, err := l.store.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	if caller != policy.Owner {
		return fmt.Errorf("%w: only the owner of policy %d may approve claims", ErrUnauthorized, id)
	}
	if claimIndex < 0 || claimIndex >= len(policy.Claims) {
		return fmt.Errorf("%w: policy %d has no claim %d", ErrClaimNotFound, id, claimIndex)
	}
	if policy.Claims[claimIndex].Paid {
		return fmt.Errorf("%w: policy %d claim %d", ErrAlreadyPaid, id, claimIndex)
	}
	if policy.Claims[claimIndex].Approved {
		return fmt.Errorf("%w: policy %d claim %d", ErrAlreadyApproved, id, claimIndex)
	}

	policy.Claims[claimIndex].Approved = true
	return l.store.SavePolicy(ctx, policy)
}

// =============================================================================
// PAYOUT
// =============================================================================

// ProcessPayout pays every approved, unpaid claim in submission order
// and returns how many claims were settled. Owner only.
//
// All eligible claims are checked against the running pool balance
// before any tokens move: if any of them cannot fit, the call fails
// with ErrInsufficientPool and nothing changes.
//
// Settlement is then per-claim: each successful transfer is persisted
// immediately (claim marked paid, RemainingPayout debited) before the
// next transfer starts. If a transfer fails mid-round, earlier claims
// stay paid, the failing claim and all later ones stay unpaid, and the
// call returns ErrTransferFailed. No debit ever happens without a
// successful transfer.
func (l *Ledger) ProcessPayout(ctx context.Context, caller Identity, id PolicyID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	policy, err := l.store.GetPolicy(ctx, id)
	if err != nil {
		return 0, err
	}
	if caller != policy.Owner {
		return 0, fmt.Errorf("%w: only the owner of policy %d may process payouts", ErrUnauthorized, id)
	}

	var eligible []int
	running := policy.RemainingPayout
	for i, claim := range policy.Claims {
		if !claim.Approved || claim.Paid {
			continue
		}
		if claim.Amount.GreaterThan(running) {
			return 0, &InsufficientPoolError{
				PolicyID:   id,
				ClaimIndex: i,
				Available:  running,
				Requested:  claim.Amount,
			}
		}
		running = running.Sub(claim.Amount)
		eligible = append(eligible, i)
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	tok, err := l.tokens.Resolve(policy.Token)
	if err != nil {
		return 0, err
	}

	paid := 0
	for _, i := range eligible {
		claim := policy.Claims[i]
		if err := tok.Transfer(ctx, PoolAccount(id), claim.Claimant, claim.Amount); err != nil {
			return paid, &TransferError{
				Token:  policy.Token,
				From:   PoolAccount(id),
				To:     claim.Claimant,
				Amount: claim.Amount,
				Err:    err,
			}
		}

		policy.Claims[i].Paid = true
		policy.RemainingPayout = policy.RemainingPayout.Sub(claim.Amount)
		policy.PayoutProcessed = true
		if err := l.store.SavePolicy(ctx, policy); err != nil {
			return paid, err
		}
		paid++
	}
	return paid, nil
}

// =============================================================================
// READS
// =============================================================================

// Policy returns the full policy record for id.
func (l *Ledger) Policy(ctx context.Context, id PolicyID) (*Policy, error) {
	return l.store.GetPolicy(ctx, id)
}

// PolicyTags returns a policy's tags in creation order.
func (l *Ledger) PolicyTags(ctx context.Context, id PolicyID) ([]string, error) {
	policy, err := l.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	return policy.Tags, nil
}

// PolicyParticipants returns a policy's participants in join order.
func (l *Ledger) PolicyParticipants(ctx context.Context, id PolicyID) ([]Identity, error) {
	policy, err := l.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	return policy.Participants, nil
}

// Premiums returns a policy's premium payment history.
func (l *Ledger) Premiums(ctx context.Context, id PolicyID) ([]PremiumPayment, error) {
	if _, err := l.store.GetPolicy(ctx, id); err != nil {
		return nil, err
	}
	return l.store.Premiums(ctx, id)
}

// ListPolicies returns all policies in id order.
func (l *Ledger) ListPolicies(ctx context.Context) ([]*Policy, error) {
	return l.store.ListPolicies(ctx)
}
