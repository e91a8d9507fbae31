/*
errors.go - Centralized error types for the policy ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these to status codes with errors.Is.

ERROR CATEGORIES:
  1. Input errors - Validation failures on caller-supplied values
  2. Lookup errors - Unknown policy or claim references
  3. Authorization errors - Caller lacks the required role
  4. Settlement errors - Token movement or pool balance failures

SEE ALSO:
  - ledger.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package insurance

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for empty names, non-positive amounts,
	// durations, or payout units.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPolicyNotFound is returned when a referenced policy doesn't exist.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrClaimNotFound is returned when a claim index is out of range.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrUnauthorized is returned when the caller lacks the required role:
	// a non-owner approving or processing, or a non-participant claiming.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransferFailed is returned when the token rejects a movement.
	// The enclosing operation leaves no partial state behind.
	ErrTransferFailed = errors.New("token transfer failed")

	// ErrAlreadyApproved is returned when approving an approved claim.
	ErrAlreadyApproved = errors.New("claim already approved")

	// ErrAlreadyPaid is returned when a paid claim is touched again.
	ErrAlreadyPaid = errors.New("claim already paid")

	// ErrInsufficientPool is returned when an approved claim exceeds the
	// pool's remaining payout balance.
	ErrInsufficientPool = errors.New("insufficient pool balance")

	// ErrUnknownToken is returned when a token handle cannot be resolved.
	ErrUnknownToken = errors.New("unknown token")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPoolError details a pool shortage at payout time.
type InsufficientPoolError struct {
	PolicyID   PolicyID
	ClaimIndex int
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientPoolError) Error() string {
	return fmt.Sprintf("insufficient pool for policy %d claim %d: available %s, requested %s",
		e.PolicyID, e.ClaimIndex, e.Available, e.Requested)
}

func (e *InsufficientPoolError) Unwrap() error {
	return ErrInsufficientPool
}

// TransferError wraps a token failure with the movement that failed.
type TransferError struct {
	Token  string
	From   Identity
	To     Identity
	Amount decimal.Decimal
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %s %s from %s to %s failed: %v",
		e.Amount, e.Token, e.From, e.To, e.Err)
}

func (e *TransferError) Unwrap() error {
	return ErrTransferFailed
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrClaimNotFound) ||
		errors.Is(err, ErrUnknownToken)
}

// IsClientError returns true if the error is due to caller input or a
// resolvable conflict, rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrAlreadyApproved) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrInsufficientPool)
}
