// Package store defines the persistence contract of the ledger. Two backends
// implement it (SQLite and Postgres); the one in use is chosen once at
// startup and the engine never branches on it.
package store

import (
	"context"
	"errors"

	"demobank/internal/models"
	"demobank/internal/money"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("concurrent modification detected")
)

// CreateUserParams describes a new user record.
type CreateUserParams struct {
	ID       string
	Email    string
	FullName string
	Role     models.Role
}

// CreateAccountParams describes a new account.
type CreateAccountParams struct {
	UserID         string
	AccountNumber  string
	AccountType    models.AccountType
	Currency       string
	OpeningBalance money.Amount
}

// UnitOfWork is the transactional surface the engine works against. Every
// method runs inside one store transaction; the whole unit commits or rolls
// back as one. Reads through it are isolated from concurrent writers: the
// Postgres backend locks rows (SELECT ... FOR UPDATE), the SQLite backend
// relies on the compare-and-set balance guard.
type UnitOfWork interface {
	// AccountForUpdate reads an account with the intent to modify it.
	AccountForUpdate(ctx context.Context, accountID string) (*models.Account, error)

	// TransactionForUpdate reads a transaction with the intent to modify it.
	TransactionForUpdate(ctx context.Context, txID string) (*models.Transaction, error)

	// InsertTransaction appends a transaction record exactly as given,
	// including status, balance-after snapshot and display date.
	InsertTransaction(ctx context.Context, tx *models.Transaction) error

	// SetTransactionCompleted marks a transaction completed and records the
	// resulting balance snapshot. A non-empty displayDate overwrites the
	// presentation-ordering field.
	SetTransactionCompleted(ctx context.Context, txID string, balanceAfter money.Amount, displayDate string) error

	// SetTransactionFailed marks a transaction failed. Balance is untouched.
	SetTransactionFailed(ctx context.Context, txID string) error

	// CompareAndSetBalance writes a new balance. With a non-nil expected
	// value the write only succeeds if the stored balance still equals it
	// (ErrConflict otherwise). A nil expected value is the unconditional
	// admin override used by the direct balance escape hatch.
	CompareAndSetBalance(ctx context.Context, accountID string, expected *money.Amount, next money.Amount) (*models.Account, error)
}

// Store is the contract every backend must satisfy. Plain reads and
// single-row admin toggles live directly on the store; anything touching a
// transaction together with a balance goes through WithinTx.
type Store interface {
	// --- Users ---
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)

	// --- Accounts ---
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	AccountByID(ctx context.Context, accountID string) (*models.Account, error)
	AccountsByOwner(ctx context.Context, userID string) ([]models.Account, error)
	AllAccounts(ctx context.Context) ([]models.AccountWithOwner, error)
	SetWithdrawalsAllowed(ctx context.Context, accountID string, allowed bool) (*models.Account, error)
	SetAccountStatus(ctx context.Context, accountID string, status models.AccountStatus) (*models.Account, error)

	// --- Transactions ---
	TransactionByID(ctx context.Context, txID string) (*models.Transaction, error)
	// TransactionsByAccount lists history in display order (display_date
	// descending). Admin date edits make this order non-causal on purpose.
	TransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.Transaction, error)
	// CompletedByCreation lists completed transactions in immutable
	// creation order, the only order balance replay may use.
	CompletedByCreation(ctx context.Context, accountID string) ([]models.Transaction, error)
	PendingTransactions(ctx context.Context) ([]models.TransactionWithAccount, error)
	AllTransactions(ctx context.Context, limit int) ([]models.TransactionWithAccount, error)
	SetTransactionDisplayDate(ctx context.Context, txID, displayDate string) (*models.Transaction, error)

	// --- Unit of work ---
	// WithinTx runs fn inside one all-or-nothing store transaction.
	WithinTx(ctx context.Context, fn func(uow UnitOfWork) error) error

	// --- Lifecycle ---
	Close()
}
