// Package sqlite is the file-backed storage backend. Concurrent balance
// writers are detected optimistically: the balance update carries the
// expected current value and a zero-row update surfaces as store.ErrConflict.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"demobank/internal/models"
	"demobank/internal/money"
	"demobank/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Store must satisfy store.Store.
var _ store.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, cfg models.DatabaseConfig) (*Store, error) {
	if cfg.SQLitePath == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	dsn := cfg.SQLitePath
	if cfg.SQLitePath != ":memory:" {
		dsn += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.SQLitePath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database", zap.Error(err))
	}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner) (*models.User, error) {
	var u models.User
	if err := sc.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanAccount(sc scanner) (*models.Account, error) {
	var (
		a          models.Account
		balanceStr string
		openingStr string
	)
	err := sc.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.AccountType, &balanceStr, &openingStr,
		&a.Currency, &a.Status, &a.AllowWithdrawals, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Balance, err = money.Parse(balanceStr); err != nil {
		return nil, fmt.Errorf("stored balance %q: %w", balanceStr, err)
	}
	if a.OpeningBalance, err = money.Parse(openingStr); err != nil {
		return nil, fmt.Errorf("stored opening balance %q: %w", openingStr, err)
	}
	return &a, nil
}

func scanTransaction(sc scanner) (*models.Transaction, error) {
	var (
		t            models.Transaction
		amountStr    string
		balanceAfter sql.NullString
	)
	err := sc.Scan(&t.ID, &t.AccountID, &t.Type, &amountStr, &t.Description, &t.Status,
		&balanceAfter, &t.CreatedAt, &t.DisplayDate)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = money.Parse(amountStr); err != nil {
		return nil, fmt.Errorf("stored amount %q: %w", amountStr, err)
	}
	if balanceAfter.Valid {
		ba, err := money.Parse(balanceAfter.String)
		if err != nil {
			return nil, fmt.Errorf("stored balance_after %q: %w", balanceAfter.String, err)
		}
		t.BalanceAfter = &ba
	}
	return &t, nil
}

func scanTransactionWithAccount(sc scanner) (*models.TransactionWithAccount, error) {
	var (
		row          models.TransactionWithAccount
		amountStr    string
		balanceAfter sql.NullString
		balanceStr   string
		openingStr   string
	)
	t, a, u := &row.Transaction, &row.Account, &row.User
	err := sc.Scan(
		&t.ID, &t.AccountID, &t.Type, &amountStr, &t.Description, &t.Status,
		&balanceAfter, &t.CreatedAt, &t.DisplayDate,
		&a.ID, &a.UserID, &a.AccountNumber, &a.AccountType, &balanceStr, &openingStr,
		&a.Currency, &a.Status, &a.AllowWithdrawals, &a.CreatedAt, &a.UpdatedAt,
		&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = money.Parse(amountStr); err != nil {
		return nil, fmt.Errorf("stored amount %q: %w", amountStr, err)
	}
	if balanceAfter.Valid {
		ba, err := money.Parse(balanceAfter.String)
		if err != nil {
			return nil, fmt.Errorf("stored balance_after %q: %w", balanceAfter.String, err)
		}
		t.BalanceAfter = &ba
	}
	if a.Balance, err = money.Parse(balanceStr); err != nil {
		return nil, fmt.Errorf("stored balance %q: %w", balanceStr, err)
	}
	if a.OpeningBalance, err = money.Parse(openingStr); err != nil {
		return nil, fmt.Errorf("stored opening balance %q: %w", openingStr, err)
	}
	return &row, nil
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, params store.CreateUserParams) (*models.User, error) {
	u := &models.User{
		ID:        params.ID,
		Email:     params.Email,
		FullName:  params.FullName,
		Role:      params.Role,
		CreatedAt: time.Now().UTC(),
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	_, err := s.db.ExecContext(ctx, queryInsertUser, u.ID, u.Email, u.FullName, u.Role, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, userID string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserByID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// --- Accounts ---

func (s *Store) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	now := time.Now().UTC()
	a := &models.Account{
		ID:               uuid.New().String(),
		UserID:           params.UserID,
		AccountNumber:    params.AccountNumber,
		AccountType:      params.AccountType,
		Balance:          params.OpeningBalance,
		OpeningBalance:   params.OpeningBalance,
		Currency:         params.Currency,
		Status:           models.AccountActive,
		AllowWithdrawals: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	_, err := s.db.ExecContext(ctx, queryInsertAccount,
		a.ID, a.UserID, a.AccountNumber, a.AccountType, a.Balance.String(), a.OpeningBalance.String(),
		a.Currency, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			// Duplicate account number; the caller picks a new one and retries.
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return a, nil
}

func (s *Store) AccountByID(ctx context.Context, accountID string) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountByID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (s *Store) AccountsByOwner(ctx context.Context, userID string) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAccountsByOwner, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *Store) AllAccounts(ctx context.Context) ([]models.AccountWithOwner, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAllAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var result []models.AccountWithOwner
	for rows.Next() {
		var (
			row        models.AccountWithOwner
			balanceStr string
			openingStr string
		)
		a, u := &row.Account, &row.User
		err := rows.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.AccountType, &balanceStr, &openingStr,
			&a.Currency, &a.Status, &a.AllowWithdrawals, &a.CreatedAt, &a.UpdatedAt,
			&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if a.Balance, err = money.Parse(balanceStr); err != nil {
			return nil, fmt.Errorf("stored balance %q: %w", balanceStr, err)
		}
		if a.OpeningBalance, err = money.Parse(openingStr); err != nil {
			return nil, fmt.Errorf("stored opening balance %q: %w", openingStr, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *Store) SetWithdrawalsAllowed(ctx context.Context, accountID string, allowed bool) (*models.Account, error) {
	res, err := s.db.ExecContext(ctx, querySetWithdrawalsAllowed, allowed, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.AccountByID(ctx, accountID)
}

func (s *Store) SetAccountStatus(ctx context.Context, accountID string, status models.AccountStatus) (*models.Account, error) {
	res, err := s.db.ExecContext(ctx, querySetAccountStatus, status, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.AccountByID(ctx, accountID)
}

// --- Transactions ---

func (s *Store) TransactionByID(ctx context.Context, txID string) (*models.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, queryGetTransactionByID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func (s *Store) TransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, queryGetTransactionsByAccount, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *Store) CompletedByCreation(ctx context.Context, accountID string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, queryGetCompletedByCreation, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (s *Store) PendingTransactions(ctx context.Context) ([]models.TransactionWithAccount, error) {
	rows, err := s.db.QueryContext(ctx, queryGetPendingTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()
	return collectJoined(rows)
}

func (s *Store) AllTransactions(ctx context.Context, limit int) ([]models.TransactionWithAccount, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAllTransactions, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return collectJoined(rows)
}

func collectJoined(rows *sql.Rows) ([]models.TransactionWithAccount, error) {
	var result []models.TransactionWithAccount
	for rows.Next() {
		row, err := scanTransactionWithAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, *row)
	}
	return result, rows.Err()
}

func (s *Store) SetTransactionDisplayDate(ctx context.Context, txID, displayDate string) (*models.Transaction, error) {
	res, err := s.db.ExecContext(ctx, querySetTransactionDisplayDate, displayDate, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction date: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.TransactionByID(ctx, txID)
}

// --- Unit of work ---

// isBusy reports whether err is the lock/stale-snapshot class SQLite raises
// when a concurrent writer got there first. In WAL mode the loser of a
// write-write race sees SQLITE_BUSY_SNAPSHOT on its first write statement.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func (s *Store) WithinTx(ctx context.Context, fn func(uow store.UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&unitOfWork{tx: tx}); err != nil {
		if isBusy(err) {
			return store.ErrConflict
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) AccountForUpdate(ctx context.Context, accountID string) (*models.Account, error) {
	a, err := scanAccount(u.tx.QueryRowContext(ctx, queryGetAccountByID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (u *unitOfWork) TransactionForUpdate(ctx context.Context, txID string) (*models.Transaction, error) {
	t, err := scanTransaction(u.tx.QueryRowContext(ctx, queryGetTransactionByID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func (u *unitOfWork) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	var balanceAfter any
	if t.BalanceAfter != nil {
		balanceAfter = t.BalanceAfter.String()
	}
	_, err := u.tx.ExecContext(ctx, queryInsertTransaction,
		t.ID, t.AccountID, t.Type, t.Amount.String(), t.Description, t.Status,
		balanceAfter, t.CreatedAt, t.DisplayDate)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) SetTransactionCompleted(ctx context.Context, txID string, balanceAfter money.Amount, displayDate string) error {
	var (
		res sql.Result
		err error
	)
	if displayDate != "" {
		res, err = u.tx.ExecContext(ctx, querySetTransactionCompletedWithDate, balanceAfter.String(), displayDate, txID)
	} else {
		res, err = u.tx.ExecContext(ctx, querySetTransactionCompleted, balanceAfter.String(), txID)
	}
	if err != nil {
		return fmt.Errorf("failed to complete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) SetTransactionFailed(ctx context.Context, txID string) error {
	res, err := u.tx.ExecContext(ctx, querySetTransactionFailed, txID)
	if err != nil {
		return fmt.Errorf("failed to fail transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) CompareAndSetBalance(ctx context.Context, accountID string, expected *money.Amount, next money.Amount) (*models.Account, error) {
	var (
		res sql.Result
		err error
	)
	if expected != nil {
		res, err = u.tx.ExecContext(ctx, queryCompareAndSetBalance, next.String(), accountID, expected.String())
	} else {
		res, err = u.tx.ExecContext(ctx, querySetBalance, next.String(), accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a vanished account from a lost optimistic race.
		if _, lookupErr := u.AccountForUpdate(ctx, accountID); errors.Is(lookupErr, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrConflict
	}
	return u.AccountForUpdate(ctx, accountID)
}
