/*
token.go - Fungible token collaborator interfaces

PURPOSE:
  The ledger moves value through an external fungible token. It trusts
  the token's return value as the source of truth for whether value
  moved: a transfer error is a hard failure of the enclosing operation.

FLOW:
  payPremium:    TransferFrom(ledger spender, payer -> pool account)
  processPayout: Transfer(pool account -> claimant)

SEE ALSO:
  - token/memory.go: In-memory implementation for tests and demos
  - token/registry.go: Handle resolution
*/
package insurance

import (
	"context"

	"github.com/shopspring/decimal"
)

// SpenderAccount is the identity the ledger acts as when pulling
// premiums via TransferFrom. Payers approve this account.
const SpenderAccount Identity = "policy-ledger"

// FungibleToken is the narrow token interface the ledger consumes.
// Implementations decide how allowances and balances actually work;
// the ledger only cares whether a movement succeeded.
type FungibleToken interface {
	// Approve lets spender move up to amount from owner's balance.
	Approve(ctx context.Context, owner, spender Identity, amount decimal.Decimal) error

	// TransferFrom moves amount from owner to recipient on behalf of
	// spender, consuming allowance.
	TransferFrom(ctx context.Context, spender, owner, recipient Identity, amount decimal.Decimal) error

	// Transfer moves amount from one account to another.
	Transfer(ctx context.Context, from, to Identity, amount decimal.Decimal) error

	// BalanceOf returns the current balance of an account.
	BalanceOf(ctx context.Context, account Identity) (decimal.Decimal, error)
}

// TokenResolver resolves a policy's stored token handle to a live
// FungibleToken. Returns ErrUnknownToken for unregistered handles.
type TokenResolver interface {
	Resolve(handle string) (FungibleToken, error)
}
