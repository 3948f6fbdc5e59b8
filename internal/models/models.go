package models

import (
	"time"

	"demobank/internal/money"
)

// Role of an authenticated caller.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AccountType distinguishes the two retail account products.
type AccountType string

const (
	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
)

// AccountStatus is the lifecycle state of an account. Accounts are never
// hard-deleted; closure is a status change.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

// TransactionType determines the sign of a transaction's balance effect.
// Amounts are stored as positive magnitudes; deposits add, withdrawals and
// transfers subtract.
type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeTransfer   TransactionType = "transfer"
)

// TransactionStatus is the state machine position of a transaction.
// pending -> completed | failed; completed and failed are terminal.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// User is the minimal owner record the ledger needs for account ownership
// and admin listings. Credentials and sessions live outside this system.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"full_name" db:"full_name"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Account holds a single-currency balance owned by one user.
type Account struct {
	ID             string        `json:"id" db:"id"`
	UserID         string        `json:"user_id" db:"user_id"`
	AccountNumber  string        `json:"account_number" db:"account_number"`
	AccountType    AccountType   `json:"account_type" db:"account_type"`
	Balance        money.Amount  `json:"balance" db:"balance"`
	OpeningBalance money.Amount  `json:"opening_balance" db:"opening_balance"`
	Currency       string        `json:"currency" db:"currency"`
	Status         AccountStatus `json:"status" db:"status"`
	// AllowWithdrawals blocks new withdrawal requests when false. It is
	// independent of Status: an active account can be withdrawal-frozen.
	AllowWithdrawals bool      `json:"allow_withdrawals" db:"allow_withdrawals"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Transaction is a record of a balance-affecting event on one account.
// Once completed or failed it is immutable except for DisplayDate.
type Transaction struct {
	ID          string            `json:"id" db:"id"`
	AccountID   string            `json:"account_id" db:"account_id"`
	Type        TransactionType   `json:"type" db:"type"`
	Amount      money.Amount      `json:"amount" db:"amount"`
	Description string            `json:"description" db:"description"`
	Status      TransactionStatus `json:"status" db:"status"`
	// BalanceAfter snapshots the account balance at the moment the
	// transaction reached its terminal accounting effect. For a pending
	// withdrawal it records the balance at request time, which the request
	// did not change.
	BalanceAfter *money.Amount `json:"balance_after" db:"balance_after"`
	// CreatedAt is the immutable creation instant. Balance replay uses
	// this order and nothing else.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	// DisplayDate is the mutable presentation-ordering key. Admins may
	// overwrite it with arbitrary text, including non-chronological or
	// non-parseable values; history listings sort by it descending.
	DisplayDate string `json:"display_date" db:"display_date"`
}

// AccountWithOwner joins an account with its owner for admin listings.
type AccountWithOwner struct {
	Account Account `json:"account"`
	User    User    `json:"user"`
}

// TransactionWithAccount joins a transaction with its account and owner for
// the admin pending queue and history views.
type TransactionWithAccount struct {
	Transaction Transaction `json:"transaction"`
	Account     Account     `json:"account"`
	User        User        `json:"user"`
}
