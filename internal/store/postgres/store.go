// Package postgres is the Postgres storage backend, built on pgx. Balance
// writers serialize through row locks: the unit of work reads accounts and
// transactions with SELECT ... FOR UPDATE, so the funds check and the
// subsequent write see the same row version.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"demobank/internal/models"
	"demobank/internal/money"
	"demobank/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check: *Store must satisfy store.Store.
var _ store.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg models.DatabaseConfig) (*Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres DSN cannot be empty")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Connected to Postgres")
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

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
		balanceAfter *string
	)
	err := sc.Scan(&t.ID, &t.AccountID, &t.Type, &amountStr, &t.Description, &t.Status,
		&balanceAfter, &t.CreatedAt, &t.DisplayDate)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = money.Parse(amountStr); err != nil {
		return nil, fmt.Errorf("stored amount %q: %w", amountStr, err)
	}
	if balanceAfter != nil {
		ba, err := money.Parse(*balanceAfter)
		if err != nil {
			return nil, fmt.Errorf("stored balance_after %q: %w", *balanceAfter, err)
		}
		t.BalanceAfter = &ba
	}
	return &t, nil
}

func getAccount(ctx context.Context, q querier, query, accountID string) (*models.Account, error) {
	a, err := scanAccount(q.QueryRow(ctx, query, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func getTransaction(ctx context.Context, q querier, query, txID string) (*models.Transaction, error) {
	t, err := scanTransaction(q.QueryRow(ctx, query, txID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, params store.CreateUserParams) (*models.User, error) {
	u := &models.User{
		ID:       params.ID,
		Email:    params.Email,
		FullName: params.FullName,
		Role:     params.Role,
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	u.CreatedAt = time.Now().UTC()
	if _, err := s.pool.Exec(ctx, queryInsertUser, u.ID, u.Email, u.FullName, u.Role, u.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, userID string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, queryGetUserByID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err := s.pool.Exec(ctx, queryInsertAccount,
		a.ID, a.UserID, a.AccountNumber, a.AccountType, a.Balance.String(), a.OpeningBalance.String(),
		a.Currency, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCodeUniqueViolation {
			// Duplicate account number; the caller picks a new one and retries.
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return a, nil
}

func (s *Store) AccountByID(ctx context.Context, accountID string) (*models.Account, error) {
	return getAccount(ctx, s.pool, queryGetAccountByID, accountID)
}

func (s *Store) AccountsByOwner(ctx context.Context, userID string) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, queryGetAccountsByOwner, userID)
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
	rows, err := s.pool.Query(ctx, queryGetAllAccounts)
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
	tag, err := s.pool.Exec(ctx, querySetWithdrawalsAllowed, allowed, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	return s.AccountByID(ctx, accountID)
}

func (s *Store) SetAccountStatus(ctx context.Context, accountID string, status models.AccountStatus) (*models.Account, error) {
	tag, err := s.pool.Exec(ctx, querySetAccountStatus, status, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	return s.AccountByID(ctx, accountID)
}

// --- Transactions ---

func (s *Store) TransactionByID(ctx context.Context, txID string) (*models.Transaction, error) {
	return getTransaction(ctx, s.pool, queryGetTransactionByID, txID)
}

func (s *Store) TransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, queryGetTransactionsByAccount, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *Store) CompletedByCreation(ctx context.Context, accountID string) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, queryGetCompletedByCreation, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
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
	rows, err := s.pool.Query(ctx, queryGetPendingTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()
	return collectJoined(rows)
}

func (s *Store) AllTransactions(ctx context.Context, limit int) ([]models.TransactionWithAccount, error) {
	rows, err := s.pool.Query(ctx, queryGetAllTransactions, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return collectJoined(rows)
}

func collectJoined(rows pgx.Rows) ([]models.TransactionWithAccount, error) {
	var result []models.TransactionWithAccount
	for rows.Next() {
		var (
			row          models.TransactionWithAccount
			amountStr    string
			balanceAfter *string
			balanceStr   string
			openingStr   string
		)
		t, a, u := &row.Transaction, &row.Account, &row.User
		err := rows.Scan(
			&t.ID, &t.AccountID, &t.Type, &amountStr, &t.Description, &t.Status,
			&balanceAfter, &t.CreatedAt, &t.DisplayDate,
			&a.ID, &a.UserID, &a.AccountNumber, &a.AccountType, &balanceStr, &openingStr,
			&a.Currency, &a.Status, &a.AllowWithdrawals, &a.CreatedAt, &a.UpdatedAt,
			&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if t.Amount, err = money.Parse(amountStr); err != nil {
			return nil, fmt.Errorf("stored amount %q: %w", amountStr, err)
		}
		if balanceAfter != nil {
			ba, err := money.Parse(*balanceAfter)
			if err != nil {
				return nil, fmt.Errorf("stored balance_after %q: %w", *balanceAfter, err)
			}
			t.BalanceAfter = &ba
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

func (s *Store) SetTransactionDisplayDate(ctx context.Context, txID, displayDate string) (*models.Transaction, error) {
	tag, err := s.pool.Exec(ctx, querySetTransactionDisplayDate, displayDate, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	return s.TransactionByID(ctx, txID)
}

// --- Unit of work ---

// Postgres error codes surfaced by concurrent units of work under
// RepeatableRead: a blocked FOR UPDATE whose row was rewritten fails with a
// serialization failure; lock-order inversions fail with a deadlock.
const (
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
	pgCodeUniqueViolation      = "23505"
)

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCodeSerializationFailure || pgErr.Code == pgCodeDeadlockDetected
	}
	return false
}

func (s *Store) WithinTx(ctx context.Context, fn func(uow store.UnitOfWork) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&unitOfWork{tx: tx}); err != nil {
		if isSerializationFailure(err) {
			return store.ErrConflict
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type unitOfWork struct {
	tx pgx.Tx
}

func (u *unitOfWork) AccountForUpdate(ctx context.Context, accountID string) (*models.Account, error) {
	return getAccount(ctx, u.tx, queryGetAccountForUpdate, accountID)
}

func (u *unitOfWork) TransactionForUpdate(ctx context.Context, txID string) (*models.Transaction, error) {
	return getTransaction(ctx, u.tx, queryGetTransactionForUpdate, txID)
}

func (u *unitOfWork) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	var balanceAfter *string
	if t.BalanceAfter != nil {
		s := t.BalanceAfter.String()
		balanceAfter = &s
	}
	_, err := u.tx.Exec(ctx, queryInsertTransaction,
		t.ID, t.AccountID, t.Type, t.Amount.String(), t.Description, t.Status,
		balanceAfter, t.CreatedAt, t.DisplayDate)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) SetTransactionCompleted(ctx context.Context, txID string, balanceAfter money.Amount, displayDate string) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if displayDate != "" {
		tag, err = u.tx.Exec(ctx, querySetTransactionCompletedWithDate, balanceAfter.String(), displayDate, txID)
	} else {
		tag, err = u.tx.Exec(ctx, querySetTransactionCompleted, balanceAfter.String(), txID)
	}
	if err != nil {
		return fmt.Errorf("failed to complete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) SetTransactionFailed(ctx context.Context, txID string) error {
	tag, err := u.tx.Exec(ctx, querySetTransactionFailed, txID)
	if err != nil {
		return fmt.Errorf("failed to fail transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) CompareAndSetBalance(ctx context.Context, accountID string, expected *money.Amount, next money.Amount) (*models.Account, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if expected != nil {
		tag, err = u.tx.Exec(ctx, queryCompareAndSetBalance, next.String(), accountID, expected.String())
	} else {
		tag, err = u.tx.Exec(ctx, querySetBalance, next.String(), accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, lookupErr := u.AccountForUpdate(ctx, accountID); errors.Is(lookupErr, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrConflict
	}
	return getAccount(ctx, u.tx, queryGetAccountByID, accountID)
}
