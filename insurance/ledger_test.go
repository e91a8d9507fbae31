package insurance_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pool-engine/insurance"
	"github.com/warp/pool-engine/insurance/store"
	"github.com/warp/pool-engine/insurance/token"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testToken = "TOK"

func newTestLedger(t *testing.T) (*insurance.Ledger, *token.Memory) {
	t.Helper()

	registry := token.NewRegistry()
	tok := token.NewMemory()
	registry.Register(testToken, tok)

	ledger := insurance.NewLedger(store.NewMemory(), registry)
	return ledger, tok
}

// fund mints balance for an account and approves the ledger spender.
func fund(t *testing.T, tok *token.Memory, account insurance.Identity, amount int64) {
	t.Helper()
	tok.Mint(account, decimal.NewFromInt(amount))
	require.NoError(t, tok.Approve(context.Background(), account, insurance.SpenderAccount, decimal.NewFromInt(amount)))
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// =============================================================================
// POLICY CREATION
// =============================================================================

func TestLedger_CreatePolicy(t *testing.T) {
	// GIVEN: A fresh ledger
	// WHEN: Creating a policy
	// THEN: The record holds exactly the supplied data, zero totals,
	//       and the owner as sole participant

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, []string{"tag1", "tag2"}, testToken, 10)
	require.NoError(t, err)
	assert.Equal(t, insurance.PolicyID(0), id)

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, insurance.Identity("alice"), policy.Owner)
	assert.Equal(t, "Policy 1", policy.Name)
	assert.Equal(t, int64(3600), policy.DurationSeconds)
	assert.Equal(t, []string{"tag1", "tag2"}, policy.Tags)
	assert.Equal(t, testToken, policy.Token)
	assert.Equal(t, int64(10), policy.PayoutUnit)
	assert.Equal(t, []insurance.Identity{"alice"}, policy.Participants)
	assert.True(t, policy.TotalPremium.IsZero())
	assert.True(t, policy.RemainingPayout.IsZero())
	assert.Empty(t, policy.Claims)
	assert.False(t, policy.PayoutProcessed)
}

func TestLedger_CreatePolicy_DenseSequentialIDs(t *testing.T) {
	// GIVEN: A fresh ledger
	// WHEN: Creating N policies
	// THEN: Ids are 0..N-1 in creation order

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for want := int64(0); want < 5; want++ {
		id, err := ledger.CreatePolicy(ctx, "alice", "Policy", 3600, nil, testToken, 1)
		require.NoError(t, err)
		assert.Equal(t, insurance.PolicyID(want), id)
	}

	policies, err := ledger.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 5)
	for i, p := range policies {
		assert.Equal(t, insurance.PolicyID(i), p.ID)
	}
}

func TestLedger_CreatePolicy_Validation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		policyName string
		duration   int64
		token      string
		payoutUnit int64
		wantErr    error
	}{
		{"empty name", "", 3600, testToken, 10, insurance.ErrInvalidInput},
		{"blank name", "   ", 3600, testToken, 10, insurance.ErrInvalidInput},
		{"zero duration", "P", 0, testToken, 10, insurance.ErrInvalidInput},
		{"negative duration", "P", -1, testToken, 10, insurance.ErrInvalidInput},
		{"zero payout unit", "P", 3600, testToken, 0, insurance.ErrInvalidInput},
		{"unknown token", "P", 3600, "NOPE", 10, insurance.ErrUnknownToken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.CreatePolicy(ctx, "alice", tc.policyName, tc.duration, nil, tc.token, tc.payoutUnit)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	// Nothing was created
	policies, err := ledger.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Empty(t, policies)
}

// =============================================================================
// ACCESSORS
// =============================================================================

func TestLedger_Accessors(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, []string{"tag1", "tag2"}, testToken, 10)
	require.NoError(t, err)

	tags, err := ledger.PolicyTags(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"tag1", "tag2"}, tags)

	participants, err := ledger.PolicyParticipants(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []insurance.Identity{"alice"}, participants)
}

func TestLedger_Accessors_UnknownPolicy(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Policy(ctx, 42)
	assert.ErrorIs(t, err, insurance.ErrPolicyNotFound)

	_, err = ledger.PolicyTags(ctx, 42)
	assert.ErrorIs(t, err, insurance.ErrPolicyNotFound)

	_, err = ledger.PolicyParticipants(ctx, 42)
	assert.ErrorIs(t, err, insurance.ErrPolicyNotFound)

	_, err = ledger.Premiums(ctx, 42)
	assert.ErrorIs(t, err, insurance.ErrPolicyNotFound)
}

// =============================================================================
// PREMIUMS
// =============================================================================

func TestLedger_PayPremium_ScalesRemainingPayout(t *testing.T) {
	// GIVEN: A policy with payout unit 10
	// WHEN: A second participant pays a 10000-unit premium
	// THEN: TotalPremium grows by 10000, RemainingPayout by 100000,
	//       and the payer joins the participant set exactly once

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 20000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)

	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(10000)))

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.True(t, policy.TotalPremium.Equal(dec(10000)), "total premium %s", policy.TotalPremium)
	assert.True(t, policy.RemainingPayout.Equal(dec(100000)), "remaining payout %s", policy.RemainingPayout)
	assert.Equal(t, []insurance.Identity{"alice", "bob"}, policy.Participants)

	// Pool account received the raw token amount
	balance, err := tok.BalanceOf(ctx, insurance.PoolAccount(id))
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(10000)))
}

func TestLedger_PayPremium_TwoPaymentsAccumulate(t *testing.T) {
	// Paying twice is two independent inflows, not idempotent.

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 1)
	require.NoError(t, err)

	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(300)))
	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(200)))

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.True(t, policy.TotalPremium.Equal(dec(500)))
	assert.True(t, policy.RemainingPayout.Equal(dec(500)))
	assert.Equal(t, []insurance.Identity{"alice", "bob"}, policy.Participants,
		"bob joins exactly once")

	// TotalPremium equals the sum of the recorded payment history
	payments, err := ledger.Premiums(ctx, id)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	sum := decimal.Zero
	for _, payment := range payments {
		assert.Equal(t, insurance.Identity("bob"), payment.Payer)
		sum = sum.Add(payment.Amount)
	}
	assert.True(t, policy.TotalPremium.Equal(sum))
}

func TestLedger_PayPremium_TransferFailure_NoStateChange(t *testing.T) {
	// GIVEN: A payer with no allowance for the ledger spender
	// WHEN: Paying a premium
	// THEN: The call fails with ErrTransferFailed and nothing changed

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	tok.Mint("bob", dec(1000)) // Balance but no allowance

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)

	err = ledger.PayPremium(ctx, "bob", id, dec(100))
	assert.ErrorIs(t, err, insurance.ErrTransferFailed)

	var transferErr *insurance.TransferError
	assert.ErrorAs(t, err, &transferErr)

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.True(t, policy.TotalPremium.IsZero())
	assert.True(t, policy.RemainingPayout.IsZero())
	assert.Equal(t, []insurance.Identity{"alice"}, policy.Participants,
		"failed payment must not add a participant")

	payments, err := ledger.Premiums(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestLedger_PayPremium_Validation(t *testing.T) {
	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)

	assert.ErrorIs(t, ledger.PayPremium(ctx, "bob", id, dec(0)), insurance.ErrInvalidInput)
	assert.ErrorIs(t, ledger.PayPremium(ctx, "bob", id, dec(-5)), insurance.ErrInvalidInput)
	assert.ErrorIs(t, ledger.PayPremium(ctx, "bob", 42, dec(10)), insurance.ErrPolicyNotFound)
}

// =============================================================================
// CLAIMS
// =============================================================================

func TestLedger_SubmitClaim(t *testing.T) {
	// GIVEN: A participant
	// WHEN: Submitting a claim
	// THEN: The claim is appended, unapproved and unpaid, with no payout

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 2", 3600, []string{"tag3", "tag4"}, testToken, 10)
	require.NoError(t, err)
	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(100)))

	index, err := ledger.SubmitClaim(ctx, "bob", id, dec(100))
	require.NoError(t, err)
	assert.Equal(t, 0, index)

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	require.Len(t, policy.Claims, 1)
	claim := policy.Claims[0]
	assert.Equal(t, insurance.Identity("bob"), claim.Claimant)
	assert.True(t, claim.Amount.Equal(dec(100)))
	assert.False(t, claim.Approved)
	assert.False(t, claim.Paid)
}

func TestLedger_SubmitClaim_NonParticipant_Rejected(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)

	_, err = ledger.SubmitClaim(ctx, "mallory", id, dec(50))
	assert.ErrorIs(t, err, insurance.ErrUnauthorized)

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, policy.Claims)
}

func TestLedger_SubmitClaim_OwnerIsImplicitParticipant(t *testing.T) {
	// The owner is a participant from creation and may claim without
	// ever paying a premium.

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)

	_, err = ledger.SubmitClaim(ctx, "alice", id, dec(50))
	assert.NoError(t, err)
}

func TestLedger_SubmitClaim_ExceedingPool_AcceptedAtSubmission(t *testing.T) {
	// Pool balance is not validated at submission time.

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)

	_, err = ledger.SubmitClaim(ctx, "alice", id, dec(999999))
	assert.NoError(t, err, "submission does not check the pool")
}

// =============================================================================
// APPROVAL
// =============================================================================

func TestLedger_ApproveClaim(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)
	index, err := ledger.SubmitClaim(ctx, "alice", id, dec(100))
	require.NoError(t, err)

	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, index))

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.True(t, policy.Claims[index].Approved)
	assert.False(t, policy.Claims[index].Paid)
}

func TestLedger_ApproveClaim_Twice_Rejected(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)
	index, err := ledger.SubmitClaim(ctx, "alice", id, dec(100))
	require.NoError(t, err)

	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, index))
	err = ledger.ApproveClaim(ctx, "alice", id, index)
	assert.ErrorIs(t, err, insurance.ErrAlreadyApproved)
}

func TestLedger_ApproveClaim_NonOwner_Rejected(t *testing.T) {
	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)
	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(100)))
	index, err := ledger.SubmitClaim(ctx, "bob", id, dec(50))
	require.NoError(t, err)

	err = ledger.ApproveClaim(ctx, "bob", id, index)
	assert.ErrorIs(t, err, insurance.ErrUnauthorized)

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.False(t, policy.Claims[index].Approved)
}

func TestLedger_ApproveClaim_UnknownIndex_Rejected(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)

	assert.ErrorIs(t, ledger.ApproveClaim(ctx, "alice", id, 0), insurance.ErrClaimNotFound)
	assert.ErrorIs(t, ledger.ApproveClaim(ctx, "alice", id, -1), insurance.ErrClaimNotFound)
}

// =============================================================================
// PAYOUT
// =============================================================================

func TestLedger_ProcessPayout_SingleClaim(t *testing.T) {
	// GIVEN: A funded pool with one approved claim for 100
	// WHEN: The owner processes the payout
	// THEN: The claim is paid, RemainingPayout drops by exactly 100,
	//       and the claimant's token balance rises by exactly 100

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 3", 3600, []string{"tag5", "tag6"}, testToken, 10)
	require.NoError(t, err)
	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(100)))

	index, err := ledger.SubmitClaim(ctx, "bob", id, dec(100))
	require.NoError(t, err)
	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, index))

	before, err := tok.BalanceOf(ctx, "bob")
	require.NoError(t, err)

	paid, err := ledger.ProcessPayout(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, 1, paid)

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.True(t, policy.Claims[index].Paid)
	assert.True(t, policy.PayoutProcessed)
	assert.True(t, policy.RemainingPayout.Equal(dec(900)),
		"1000 scaled inflow minus 100 payout, got %s", policy.RemainingPayout)

	after, err := tok.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, after.Sub(before).Equal(dec(100)),
		"claimant receives exactly the claim amount")
}

func TestLedger_ProcessPayout_MultipleClaims_SubmissionOrder(t *testing.T) {
	// All approved, unpaid claims are settled in submission order.

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)
	fund(t, tok, "carol", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)
	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(500)))
	require.NoError(t, ledger.PayPremium(ctx, "carol", id, dec(500)))

	first, err := ledger.SubmitClaim(ctx, "bob", id, dec(200))
	require.NoError(t, err)
	second, err := ledger.SubmitClaim(ctx, "carol", id, dec(300))
	require.NoError(t, err)
	unapproved, err := ledger.SubmitClaim(ctx, "bob", id, dec(50))
	require.NoError(t, err)

	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, first))
	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, second))

	paid, err := ledger.ProcessPayout(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, 2, paid)

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.True(t, policy.Claims[first].Paid)
	assert.True(t, policy.Claims[second].Paid)
	assert.False(t, policy.Claims[unapproved].Paid, "unapproved claim is never paid")
	assert.True(t, policy.RemainingPayout.Equal(dec(9500)),
		"10000 scaled inflow minus 500 payouts, got %s", policy.RemainingPayout)
}

func TestLedger_ProcessPayout_AlreadyPaidClaim_NotPaidAgain(t *testing.T) {
	// A second round must not touch claims settled in the first.

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)
	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(500)))

	index, err := ledger.SubmitClaim(ctx, "bob", id, dec(100))
	require.NoError(t, err)
	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, index))

	paid, err := ledger.ProcessPayout(ctx, "alice", id)
	require.NoError(t, err)
	require.Equal(t, 1, paid)

	balanceAfterFirst, err := tok.BalanceOf(ctx, "bob")
	require.NoError(t, err)

	// Second round: nothing eligible
	paid, err = ledger.ProcessPayout(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, 0, paid)

	balanceAfterSecond, err := tok.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, balanceAfterFirst.Equal(balanceAfterSecond), "no double payment")

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.True(t, policy.RemainingPayout.Equal(dec(4900)))
}

func TestLedger_ProcessPayout_InsufficientPool_NoStateChange(t *testing.T) {
	// GIVEN: An approved claim larger than the remaining pool
	// WHEN: Processing the payout
	// THEN: The call fails with ErrInsufficientPool before any token
	//       moves; the claim stays unpaid and the balance unchanged

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 1)
	require.NoError(t, err)
	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(100)))

	index, err := ledger.SubmitClaim(ctx, "bob", id, dec(500))
	require.NoError(t, err)
	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, index))

	_, err = ledger.ProcessPayout(ctx, "alice", id)
	assert.ErrorIs(t, err, insurance.ErrInsufficientPool)

	var poolErr *insurance.InsufficientPoolError
	require.ErrorAs(t, err, &poolErr)
	assert.Equal(t, index, poolErr.ClaimIndex)
	assert.True(t, poolErr.Available.Equal(dec(100)))
	assert.True(t, poolErr.Requested.Equal(dec(500)))

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.False(t, policy.Claims[index].Paid)
	assert.False(t, policy.PayoutProcessed)
	assert.True(t, policy.RemainingPayout.Equal(dec(100)), "balance unchanged")
}

func TestLedger_ProcessPayout_OversizedClaimBlocksWholeRound(t *testing.T) {
	// The eligibility check runs before any transfer: one oversized
	// approved claim fails the whole round, including claims that
	// would have fit on their own.

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 1)
	require.NoError(t, err)
	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(100)))

	big, err := ledger.SubmitClaim(ctx, "bob", id, dec(500))
	require.NoError(t, err)
	small, err := ledger.SubmitClaim(ctx, "bob", id, dec(10))
	require.NoError(t, err)
	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, big))
	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, small))

	_, err = ledger.ProcessPayout(ctx, "alice", id)
	assert.ErrorIs(t, err, insurance.ErrInsufficientPool)

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.False(t, policy.Claims[big].Paid)
	assert.False(t, policy.Claims[small].Paid)
	assert.True(t, policy.RemainingPayout.Equal(dec(100)))
}

func TestLedger_ProcessPayout_TransferFailure_CommitsEarlierClaims(t *testing.T) {
	// With payout unit > 1 the scaled pool balance can exceed the raw
	// tokens actually held by the pool account, so a claim can pass the
	// pool check and still be rejected by the token. Earlier claims in
	// the round stay settled; the failing one is never debited.

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)
	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(100))) // Pool holds 100 tokens, balance 1000

	first, err := ledger.SubmitClaim(ctx, "bob", id, dec(60))
	require.NoError(t, err)
	second, err := ledger.SubmitClaim(ctx, "bob", id, dec(80))
	require.NoError(t, err)
	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, first))
	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, second))

	paid, err := ledger.ProcessPayout(ctx, "alice", id)
	assert.ErrorIs(t, err, insurance.ErrTransferFailed)
	assert.Equal(t, 1, paid)

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.True(t, policy.Claims[first].Paid, "settled claim stays settled")
	assert.False(t, policy.Claims[second].Paid, "failed claim stays unpaid")
	assert.True(t, policy.RemainingPayout.Equal(dec(940)),
		"only the settled claim was debited, got %s", policy.RemainingPayout)
	assert.True(t, policy.PayoutProcessed)
}

func TestLedger_ProcessPayout_NonOwner_Rejected(t *testing.T) {
	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 1000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)
	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(100)))

	_, err = ledger.ProcessPayout(ctx, "bob", id)
	assert.ErrorIs(t, err, insurance.ErrUnauthorized)
}

func TestLedger_ProcessPayout_NoEligibleClaims_NoOp(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 10)
	require.NoError(t, err)

	paid, err := ledger.ProcessPayout(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, 0, paid)

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.False(t, policy.PayoutProcessed)
}

// =============================================================================
// INVARIANT SWEEP
// =============================================================================

func TestLedger_RemainingPayoutNeverNegative(t *testing.T) {
	// Run a mixed operation sequence and check the balance invariant
	// after every step.

	ledger, tok := newTestLedger(t)
	ctx := context.Background()
	fund(t, tok, "bob", 10000)
	fund(t, tok, "carol", 10000)

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 2)
	require.NoError(t, err)

	checkInvariant := func() {
		policy, err := ledger.Policy(ctx, id)
		require.NoError(t, err)
		assert.False(t, policy.RemainingPayout.IsNegative(),
			"remaining payout went negative: %s", policy.RemainingPayout)
	}

	require.NoError(t, ledger.PayPremium(ctx, "bob", id, dec(50)))
	checkInvariant()

	index, err := ledger.SubmitClaim(ctx, "bob", id, dec(40))
	require.NoError(t, err)
	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, index))
	_, err = ledger.ProcessPayout(ctx, "alice", id)
	require.NoError(t, err)
	checkInvariant()

	require.NoError(t, ledger.PayPremium(ctx, "carol", id, dec(25)))
	checkInvariant()

	// Oversized claim cannot drive the balance negative
	index, err = ledger.SubmitClaim(ctx, "carol", id, dec(1000))
	require.NoError(t, err)
	require.NoError(t, ledger.ApproveClaim(ctx, "alice", id, index))
	_, err = ledger.ProcessPayout(ctx, "alice", id)
	assert.ErrorIs(t, err, insurance.ErrInsufficientPool)
	checkInvariant()
}

func TestLedger_ConcurrentPremiums_AllRecorded(t *testing.T) {
	// Two simultaneous payers must both be fully reflected.

	ledger, tok := newTestLedger(t)
	ctx := context.Background()

	id, err := ledger.CreatePolicy(ctx, "alice", "Policy 1", 3600, nil, testToken, 1)
	require.NoError(t, err)

	const payers = 8
	const payments = 10

	done := make(chan error, payers)
	for i := 0; i < payers; i++ {
		payer := insurance.Identity(string(rune('a'+i)) + "-payer")
		fund(t, tok, payer, payments)
		go func(payer insurance.Identity) {
			for j := 0; j < payments; j++ {
				if err := ledger.PayPremium(ctx, payer, id, dec(1)); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(payer)
	}
	for i := 0; i < payers; i++ {
		require.NoError(t, <-done)
	}

	policy, err := ledger.Policy(ctx, id)
	require.NoError(t, err)
	assert.True(t, policy.TotalPremium.Equal(dec(payers*payments)),
		"all concurrent payments recorded, got %s", policy.TotalPremium)
	assert.Len(t, policy.Participants, payers+1, "owner plus each payer exactly once")

	history, err := ledger.Premiums(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, payers*payments)
}
