// Package ledger implements the rules governing how account balances change.
// Every operation that touches both a transaction record and a balance runs
// inside one all-or-nothing store transaction: either the status change and
// the balance change are both durably applied, or neither is.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"demobank/internal/auth"
	"demobank/internal/events"
	"demobank/internal/models"
	"demobank/internal/money"
	"demobank/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// displayDateFormat is the default value of the mutable display-date field:
// fixed-width UTC so that untouched dates sort chronologically even under
// plain string comparison.
const displayDateFormat = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Store  store.Store
	Gate   auth.Gate
	Events events.Publisher
	// Currencies restricts account creation to the listed ISO-4217 codes.
	// Empty means any three-letter code is accepted.
	Currencies []string
}

// Engine orchestrates all balance-affecting operations. It consults the
// authorization gate for policy branches and delegates all durability and
// isolation to the store.
type Engine struct {
	store      store.Store
	gate       auth.Gate
	events     events.Publisher
	currencies map[string]struct{}
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		store:  cfg.Store,
		gate:   cfg.Gate,
		events: cfg.Events,
	}
	if e.events == nil {
		e.events = events.NopPublisher{}
	}
	if len(cfg.Currencies) > 0 {
		e.currencies = make(map[string]struct{}, len(cfg.Currencies))
		for _, c := range cfg.Currencies {
			e.currencies[c] = struct{}{}
		}
	}
	return e
}

// DepositResult is returned by Deposit.
type DepositResult struct {
	Transaction *models.Transaction `json:"transaction"`
	NewBalance  money.Amount        `json:"new_balance"`
}

func (e *Engine) identity(ctx context.Context) (auth.Identity, error) {
	id, err := e.gate.CurrentIdentity(ctx)
	if err != nil {
		return auth.Identity{}, ErrUnauthorized
	}
	return id, nil
}

func (e *Engine) requireAdmin(ctx context.Context) (auth.Identity, error) {
	id, err := e.identity(ctx)
	if err != nil {
		return auth.Identity{}, err
	}
	if !id.IsAdmin() {
		return auth.Identity{}, ErrUnauthorized
	}
	return id, nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	}
	return err
}

// Deposit credits an account owned by the caller (admins may credit any
// account). The transaction is created pending and advanced to completed
// within the same unit of work; deposits never remain visibly pending.
func (e *Engine) Deposit(ctx context.Context, accountID string, amount money.Amount, description string) (*DepositResult, error) {
	id, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := amount.ValidateOperation(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if description == "" {
		description = "Deposit"
	}

	now := time.Now().UTC()
	tx := &models.Transaction{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Type:        models.TypeDeposit,
		Amount:      amount,
		Description: description,
		Status:      models.StatusPending,
		CreatedAt:   now,
		DisplayDate: now.Format(displayDateFormat),
	}

	var newBalance money.Amount
	err = e.store.WithinTx(ctx, func(uow store.UnitOfWork) error {
		account, err := uow.AccountForUpdate(ctx, accountID)
		if err != nil {
			return mapStoreErr(err)
		}
		if account.UserID != id.UserID && !id.IsAdmin() {
			return ErrUnauthorized
		}
		if account.Status != models.AccountActive {
			return fmt.Errorf("%w: account is not active", ErrInvalidState)
		}

		if err := uow.InsertTransaction(ctx, tx); err != nil {
			return mapStoreErr(err)
		}
		newBalance = account.Balance.Add(amount)
		if _, err := uow.CompareAndSetBalance(ctx, accountID, &account.Balance, newBalance); err != nil {
			return mapStoreErr(err)
		}
		return uow.SetTransactionCompleted(ctx, tx.ID, newBalance, "")
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	tx.Status = models.StatusCompleted
	tx.BalanceAfter = &newBalance

	zap.L().Info("Deposit completed",
		zap.String("account_id", accountID),
		zap.String("transaction_id", tx.ID),
		zap.String("amount", amount.String()),
		zap.String("new_balance", newBalance.String()))
	e.publishCompleted(tx, newBalance)

	return &DepositResult{Transaction: tx, NewBalance: newBalance}, nil
}

// RequestWithdrawal records a withdrawal for later administrative approval.
// The balance is not debited; the snapshot stores the balance at request
// time. When funds are insufficient no transaction row is created at all.
func (e *Engine) RequestWithdrawal(ctx context.Context, accountID string, amount money.Amount, description string) (*models.Transaction, error) {
	id, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := amount.ValidateOperation(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if description == "" {
		description = "Withdrawal request"
	}

	now := time.Now().UTC()
	tx := &models.Transaction{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Type:        models.TypeWithdrawal,
		Amount:      amount,
		Description: description,
		Status:      models.StatusPending,
		CreatedAt:   now,
		DisplayDate: now.Format(displayDateFormat),
	}

	err = e.store.WithinTx(ctx, func(uow store.UnitOfWork) error {
		account, err := uow.AccountForUpdate(ctx, accountID)
		if err != nil {
			return mapStoreErr(err)
		}
		if account.UserID != id.UserID {
			return ErrUnauthorized
		}
		if account.Status != models.AccountActive {
			return fmt.Errorf("%w: account is not active", ErrInvalidState)
		}
		if !account.AllowWithdrawals {
			return ErrWithdrawalsFrozen
		}
		if account.Balance.Cmp(amount) < 0 {
			return ErrInsufficientFunds
		}

		balanceAtRequest := account.Balance
		tx.BalanceAfter = &balanceAtRequest
		return mapStoreErr(uow.InsertTransaction(ctx, tx))
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	zap.L().Info("Withdrawal requested",
		zap.String("account_id", accountID),
		zap.String("transaction_id", tx.ID),
		zap.String("amount", amount.String()))
	return tx, nil
}

// ApproveTransaction applies a pending transaction's balance effect and
// marks it completed. For withdrawals the funds check runs again at approval
// time: the balance may have drifted since the request. A non-empty
// customDate overwrites the display date; the creation instant is immutable.
func (e *Engine) ApproveTransaction(ctx context.Context, txID, customDate string) (*models.Transaction, error) {
	if _, err := e.requireAdmin(ctx); err != nil {
		return nil, err
	}

	var approved *models.Transaction
	err := e.store.WithinTx(ctx, func(uow store.UnitOfWork) error {
		tx, err := uow.TransactionForUpdate(ctx, txID)
		if err != nil {
			return mapStoreErr(err)
		}
		if tx.Status != models.StatusPending {
			return fmt.Errorf("%w: transaction already processed", ErrInvalidState)
		}

		account, err := uow.AccountForUpdate(ctx, tx.AccountID)
		if err != nil {
			return mapStoreErr(err)
		}

		var newBalance money.Amount
		switch tx.Type {
		case models.TypeDeposit:
			newBalance = account.Balance.Add(tx.Amount)
		default: // withdrawal, transfer
			if account.Balance.Cmp(tx.Amount) < 0 {
				return ErrInsufficientFunds
			}
			newBalance = account.Balance.Sub(tx.Amount)
		}

		if _, err := uow.CompareAndSetBalance(ctx, account.ID, &account.Balance, newBalance); err != nil {
			return mapStoreErr(err)
		}
		if err := uow.SetTransactionCompleted(ctx, tx.ID, newBalance, customDate); err != nil {
			return mapStoreErr(err)
		}

		tx.Status = models.StatusCompleted
		tx.BalanceAfter = &newBalance
		if customDate != "" {
			tx.DisplayDate = customDate
		}
		approved = tx
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	zap.L().Info("Transaction approved",
		zap.String("transaction_id", approved.ID),
		zap.String("account_id", approved.AccountID),
		zap.String("type", string(approved.Type)),
		zap.String("balance_after", approved.BalanceAfter.String()))
	e.publishCompleted(approved, *approved.BalanceAfter)

	return approved, nil
}

// RejectTransaction marks a pending transaction failed. The balance is
// untouched: a pending withdrawal was never debited, so there is nothing to
// reverse. Retrying against a terminal transaction fails with ErrInvalidState.
func (e *Engine) RejectTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	if _, err := e.requireAdmin(ctx); err != nil {
		return nil, err
	}

	var rejected *models.Transaction
	err := e.store.WithinTx(ctx, func(uow store.UnitOfWork) error {
		tx, err := uow.TransactionForUpdate(ctx, txID)
		if err != nil {
			return mapStoreErr(err)
		}
		if tx.Status != models.StatusPending {
			return fmt.Errorf("%w: transaction already processed", ErrInvalidState)
		}
		if err := uow.SetTransactionFailed(ctx, tx.ID); err != nil {
			return mapStoreErr(err)
		}
		tx.Status = models.StatusFailed
		rejected = tx
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	zap.L().Info("Transaction rejected",
		zap.String("transaction_id", rejected.ID),
		zap.String("account_id", rejected.AccountID))
	return rejected, nil
}

// AdminCustomEntry inserts a completed transaction directly, bypassing the
// normal preconditions: the balance may go negative and the display date is
// whatever the administrator supplies. The immutable creation instant still
// records when the entry was actually made, so replay stays truthful.
func (e *Engine) AdminCustomEntry(ctx context.Context, accountID string, txType models.TransactionType, amount money.Amount, description, displayDate string) (*models.Transaction, error) {
	if _, err := e.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := amount.ValidateOperation(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	switch txType {
	case models.TypeDeposit, models.TypeWithdrawal, models.TypeTransfer:
	default:
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, txType)
	}
	if description == "" {
		description = "Admin Created"
	}

	now := time.Now().UTC()
	if displayDate == "" {
		displayDate = now.Format(displayDateFormat)
	}
	tx := &models.Transaction{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		Status:      models.StatusCompleted,
		CreatedAt:   now,
		DisplayDate: displayDate,
	}

	err := e.store.WithinTx(ctx, func(uow store.UnitOfWork) error {
		account, err := uow.AccountForUpdate(ctx, accountID)
		if err != nil {
			return mapStoreErr(err)
		}

		newBalance := account.Balance
		if txType == models.TypeDeposit {
			newBalance = newBalance.Add(amount)
		} else {
			newBalance = newBalance.Sub(amount)
		}
		tx.BalanceAfter = &newBalance

		if err := uow.InsertTransaction(ctx, tx); err != nil {
			return mapStoreErr(err)
		}
		_, err = uow.CompareAndSetBalance(ctx, accountID, &account.Balance, newBalance)
		return mapStoreErr(err)
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	zap.L().Info("Admin entry recorded",
		zap.String("account_id", accountID),
		zap.String("transaction_id", tx.ID),
		zap.String("type", string(txType)),
		zap.String("balance_after", tx.BalanceAfter.String()))
	e.publishCompleted(tx, *tx.BalanceAfter)

	return tx, nil
}

// SetAccountBalance overwrites an account balance with no transaction
// record. Privileged escape hatch: it bypasses the ledger entirely and
// breaks replayability for the account, which is why it exists only for
// administrators.
func (e *Engine) SetAccountBalance(ctx context.Context, accountID string, newBalance money.Amount) (*models.Account, error) {
	if _, err := e.requireAdmin(ctx); err != nil {
		return nil, err
	}

	var account *models.Account
	err := e.store.WithinTx(ctx, func(uow store.UnitOfWork) error {
		var err error
		account, err = uow.CompareAndSetBalance(ctx, accountID, nil, newBalance)
		return mapStoreErr(err)
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	zap.L().Warn("Account balance overridden",
		zap.String("account_id", accountID),
		zap.String("new_balance", newBalance.String()))
	return account, nil
}

// ToggleWithdrawals flips the per-account freeze flag. Pending withdrawals
// are not rolled back; only new requests are blocked while frozen.
func (e *Engine) ToggleWithdrawals(ctx context.Context, accountID string, allowed bool) (*models.Account, error) {
	if _, err := e.requireAdmin(ctx); err != nil {
		return nil, err
	}
	account, err := e.store.SetWithdrawalsAllowed(ctx, accountID, allowed)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	zap.L().Info("Withdrawal freeze toggled",
		zap.String("account_id", accountID),
		zap.Bool("allow_withdrawals", allowed))
	return account, nil
}

// SetAccountStatus suspends, closes or reactivates an account. Accounts are
// never deleted.
func (e *Engine) SetAccountStatus(ctx context.Context, accountID string, status models.AccountStatus) (*models.Account, error) {
	if _, err := e.requireAdmin(ctx); err != nil {
		return nil, err
	}
	switch status {
	case models.AccountActive, models.AccountSuspended, models.AccountClosed:
	default:
		return nil, fmt.Errorf("%w: unknown account status %q", ErrValidation, status)
	}
	account, err := e.store.SetAccountStatus(ctx, accountID, status)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return account, nil
}

// UpdateTransactionDate overwrites a transaction's display date with
// arbitrary admin-supplied text. Display order is presentation only; the
// creation instant and balance replay are unaffected.
func (e *Engine) UpdateTransactionDate(ctx context.Context, txID, displayDate string) (*models.Transaction, error) {
	if _, err := e.requireAdmin(ctx); err != nil {
		return nil, err
	}
	tx, err := e.store.SetTransactionDisplayDate(ctx, txID, displayDate)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return tx, nil
}

// CreateAccount provisions an account for a user. Callers may open accounts
// for themselves; administrators for anyone.
func (e *Engine) CreateAccount(ctx context.Context, userID string, accountType models.AccountType, currency string) (*models.Account, error) {
	id, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	if userID != id.UserID && !id.IsAdmin() {
		return nil, ErrUnauthorized
	}
	switch accountType {
	case models.AccountChecking, models.AccountSavings:
	default:
		return nil, fmt.Errorf("%w: unknown account type %q", ErrValidation, accountType)
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	}
	if e.currencies != nil {
		if _, ok := e.currencies[currency]; !ok {
			return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, currency)
		}
	}
	if _, err := e.store.UserByID(ctx, userID); err != nil {
		return nil, mapStoreErr(err)
	}

	// Generated numbers can collide with an existing account; try a fresh
	// one a few times before giving up.
	var account *models.Account
	for attempt := 0; ; attempt++ {
		account, err = e.store.CreateAccount(ctx, store.CreateAccountParams{
			UserID:         userID,
			AccountNumber:  generateAccountNumber(),
			AccountType:    accountType,
			Currency:       currency,
			OpeningBalance: money.Zero,
		})
		if err == nil {
			break
		}
		if attempt < 2 && errors.Is(err, store.ErrConflict) {
			continue
		}
		return nil, mapStoreErr(err)
	}

	zap.L().Info("Account created",
		zap.String("account_id", account.ID),
		zap.String("user_id", userID),
		zap.String("account_number", account.AccountNumber))
	return account, nil
}

// GetAccount returns one account, visible to its owner and to admins.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	id, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if account.UserID != id.UserID && !id.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return account, nil
}

// GetTransaction returns one transaction, visible to the owner of its
// account and to admins.
func (e *Engine) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	id, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := e.store.TransactionByID(ctx, txID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	account, err := e.store.AccountByID(ctx, tx.AccountID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if account.UserID != id.UserID && !id.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return tx, nil
}

// Accounts lists the caller's own accounts in insertion order.
func (e *Engine) Accounts(ctx context.Context) ([]models.Account, error) {
	id, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := e.store.AccountsByOwner(ctx, id.UserID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return accounts, nil
}

// AllAccounts lists every account with its owner. Admin only.
func (e *Engine) AllAccounts(ctx context.Context) ([]models.AccountWithOwner, error) {
	if _, err := e.requireAdmin(ctx); err != nil {
		return nil, err
	}
	accounts, err := e.store.AllAccounts(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return accounts, nil
}

// ListTransactions returns account history in display order, newest first.
// Because admins may overwrite display dates, this order is presentation
// order, not causal order.
func (e *Engine) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	id, err := e.identity(ctx)
	if err != nil {
		return nil, err
	}
	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if account.UserID != id.UserID && !id.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	txs, err := e.store.TransactionsByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return txs, nil
}

// PendingTransactions is the admin approval queue.
func (e *Engine) PendingTransactions(ctx context.Context) ([]models.TransactionWithAccount, error) {
	if _, err := e.requireAdmin(ctx); err != nil {
		return nil, err
	}
	txs, err := e.store.PendingTransactions(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return txs, nil
}

// AllTransactions is the admin history view across every account.
func (e *Engine) AllTransactions(ctx context.Context, limit int) ([]models.TransactionWithAccount, error) {
	if _, err := e.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	txs, err := e.store.AllTransactions(ctx, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return txs, nil
}

// ReplayBalance recomputes an account's balance from its opening balance and
// every completed transaction in immutable creation order. For accounts
// never touched by the direct balance override, the result equals the stored
// balance exactly.
func (e *Engine) ReplayBalance(ctx context.Context, accountID string) (money.Amount, error) {
	id, err := e.identity(ctx)
	if err != nil {
		return money.Zero, err
	}
	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return money.Zero, mapStoreErr(err)
	}
	if account.UserID != id.UserID && !id.IsAdmin() {
		return money.Zero, ErrUnauthorized
	}

	txs, err := e.store.CompletedByCreation(ctx, accountID)
	if err != nil {
		return money.Zero, mapStoreErr(err)
	}
	balance := account.OpeningBalance
	for _, tx := range txs {
		if tx.Type == models.TypeDeposit {
			balance = balance.Add(tx.Amount)
		} else {
			balance = balance.Sub(tx.Amount)
		}
	}
	return balance, nil
}

func (e *Engine) publishCompleted(tx *models.Transaction, balanceAfter money.Amount) {
	evt := events.TransactionCompleted{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		Type:          string(tx.Type),
		Amount:        tx.Amount,
		BalanceAfter:  balanceAfter,
		OccurredAt:    time.Now().UTC(),
	}
	if err := e.events.Publish(events.TopicTransactionCompleted, evt); err != nil {
		zap.L().Warn("Failed to publish transaction event",
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
	}
}

func generateAccountNumber() string {
	return fmt.Sprintf("%010d", rand.Int63n(10_000_000_000))
}
