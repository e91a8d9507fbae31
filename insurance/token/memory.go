/*
Package token provides FungibleToken implementations and handle resolution.

PURPOSE:
  The ledger consumes tokens through the narrow insurance.FungibleToken
  interface. This package supplies the in-memory token used by tests,
  demos, and the dev server, plus the registry that maps the token
  handle stored on a policy to a live implementation.

MEMORY TOKEN SEMANTICS:
  Standard fungible-token rules:
  - Transfer fails if the sender's balance is insufficient
  - TransferFrom additionally consumes the owner->spender allowance
  - Mint creates balance out of thin air (test/demo funding only)
  All amounts are decimal.Decimal; balances never go negative.
*/
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/pool-engine/insurance"
)

var (
	// ErrInsufficientBalance is returned when a movement exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrInsufficientAllowance is returned when TransferFrom exceeds the
	// owner's allowance for the spender.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// =============================================================================
// MEMORY TOKEN
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	balances   map[insurance.Identity]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal
}

type allowanceKey struct {
	Owner   insurance.Identity
	Spender insurance.Identity
}

func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[insurance.Identity]decimal.Decimal),
		allowances: make(map[allowanceKey]decimal.Decimal),
	}
}

// Mint credits an account. Test and demo funding only.
func (m *Memory) Mint(account insurance.Identity, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = m.balance(account).Add(amount)
}

func (m *Memory) Approve(_ context.Context, owner, spender insurance.Identity, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative allowance %s", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{Owner: owner, Spender: spender}] = amount
	return nil
}

func (m *Memory) TransferFrom(_ context.Context, spender, owner, recipient insurance.Identity, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := allowanceKey{Owner: owner, Spender: spender}
	allowance := m.allowances[key]
	if allowance.LessThan(amount) {
		return fmt.Errorf("%w: %s allows %s to move %s, wanted %s",
			ErrInsufficientAllowance, owner, spender, allowance, amount)
	}
	if err := m.move(owner, recipient, amount); err != nil {
		return err
	}
	m.allowances[key] = allowance.Sub(amount)
	return nil
}

func (m *Memory) Transfer(_ context.Context, from, to insurance.Identity, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(from, to, amount)
}

func (m *Memory) BalanceOf(_ context.Context, account insurance.Identity) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance(account), nil
}

// move requires m.mu held for writing.
func (m *Memory) move(from, to insurance.Identity, amount decimal.Decimal) error {
	if m.balance(from).LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, wanted %s",
			ErrInsufficientBalance, from, m.balance(from), amount)
	}
	m.balances[from] = m.balance(from).Sub(amount)
	m.balances[to] = m.balance(to).Add(amount)
	return nil
}

func (m *Memory) balance(account insurance.Identity) decimal.Decimal {
	if b, ok := m.balances[account]; ok {
		return b
	}
	return decimal.Zero
}
