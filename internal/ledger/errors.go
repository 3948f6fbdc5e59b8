package ledger

import "errors"

// Domain errors. Every engine operation returns one of these (possibly
// wrapped) on failure; nothing in the ledger is fatal to the process.
// Messages are short and safe to show to callers.
var (
	// ErrUnauthorized covers missing sessions, non-owners and non-admins.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the account or transaction id did not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the account is not active or the transaction is
	// no longer pending (the retry-safe "already processed" case).
	ErrInvalidState = errors.New("invalid state")

	// ErrInsufficientFunds rejects a withdrawal the balance cannot cover,
	// at request time or at approval time.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWithdrawalsFrozen rejects new withdrawal requests on a frozen
	// account regardless of balance.
	ErrWithdrawalsFrozen = errors.New("withdrawals frozen")

	// ErrValidation covers out-of-bounds amounts and malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict reports a concurrent mutation detected by the store.
	// The failed unit of work left no changes; the caller may retry.
	ErrConflict = errors.New("conflicting concurrent update")
)
