package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"demobank/internal/models"
	"demobank/internal/money"
	"demobank/internal/store"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	st, err := New(context.Background(), models.DatabaseConfig{
		SQLitePath:   ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	return st, st.Close
}

func seedAccount(t *testing.T, st *Store, opening string) *models.Account {
	ctx := context.Background()
	user, err := st.CreateUser(ctx, store.CreateUserParams{
		Email:    "owner@test.local",
		FullName: "Owner",
		Role:     models.RoleUser,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	openingAmount, err := money.Parse(opening)
	if err != nil {
		t.Fatalf("Bad opening amount: %v", err)
	}
	account, err := st.CreateAccount(ctx, store.CreateAccountParams{
		UserID:         user.ID,
		AccountNumber:  "1234567890",
		AccountType:    models.AccountChecking,
		Currency:       "USD",
		OpeningBalance: openingAmount,
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return account
}

func TestCreateAccount_RoundTrip(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	account := seedAccount(t, st, "100.00")

	got, err := st.AccountByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("AccountByID failed: %v", err)
	}
	if got.Balance.String() != "100.0000" {
		t.Errorf("Expected balance 100.0000, got %s", got.Balance.String())
	}
	if got.OpeningBalance.String() != "100.0000" {
		t.Errorf("Expected opening balance 100.0000, got %s", got.OpeningBalance.String())
	}
	if !got.AllowWithdrawals {
		t.Error("New accounts should allow withdrawals")
	}
	if got.Status != models.AccountActive {
		t.Errorf("New accounts should be active, got %s", got.Status)
	}
}

func TestAccountByID_NotFound(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := st.AccountByID(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCompareAndSetBalance_StaleExpectation(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	account := seedAccount(t, st, "100.00")
	ctx := context.Background()

	stale, _ := money.Parse("90.00") // does not match the stored 100
	next, _ := money.Parse("50.00")

	err := st.WithinTx(ctx, func(uow store.UnitOfWork) error {
		_, err := uow.CompareAndSetBalance(ctx, account.ID, &stale, next)
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("Expected ErrConflict on stale expected balance, got %v", err)
	}

	// The failed unit of work must not have moved the balance.
	got, _ := st.AccountByID(ctx, account.ID)
	if got.Balance.String() != "100.0000" {
		t.Errorf("Balance should be unchanged, got %s", got.Balance.String())
	}
}

func TestCompareAndSetBalance_MissingAccount(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	next, _ := money.Parse("50.00")

	err := st.WithinTx(ctx, func(uow store.UnitOfWork) error {
		_, err := uow.CompareAndSetBalance(ctx, "missing", nil, next)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCompareAndSetBalance_NilExpectedOverrides(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	account := seedAccount(t, st, "100.00")
	ctx := context.Background()

	next, _ := money.Parse("-42.00")
	err := st.WithinTx(ctx, func(uow store.UnitOfWork) error {
		updated, err := uow.CompareAndSetBalance(ctx, account.ID, nil, next)
		if err != nil {
			return err
		}
		if updated.Balance.String() != "-42.0000" {
			t.Errorf("Expected -42.0000, got %s", updated.Balance.String())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unconditional write failed: %v", err)
	}
}

func TestWithinTx_LostRaceIsConflict(t *testing.T) {
	// A real race needs two connections, so use a file-backed store rather
	// than the single-connection in-memory one.
	st, err := New(context.Background(), models.DatabaseConfig{
		SQLitePath:   filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 2,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	defer st.Close()

	account := seedAccount(t, st, "100.00")
	ctx := context.Background()

	competing, _ := money.Parse("90.00")
	final, _ := money.Parse("80.00")

	err = st.WithinTx(ctx, func(uow store.UnitOfWork) error {
		a, err := uow.AccountForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}

		// A competing unit of work commits between our read and our write.
		innerErr := st.WithinTx(ctx, func(inner store.UnitOfWork) error {
			_, err := inner.CompareAndSetBalance(ctx, account.ID, &a.Balance, competing)
			return err
		})
		if innerErr != nil {
			t.Fatalf("Competing write failed: %v", innerErr)
		}

		_, err = uow.CompareAndSetBalance(ctx, account.ID, &a.Balance, final)
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("Lost race should surface as ErrConflict, got %v", err)
	}

	// The winner's write survives; the loser left no trace.
	got, err := st.AccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("AccountByID failed: %v", err)
	}
	if got.Balance.String() != "90.0000" {
		t.Errorf("Expected the competing write to stand at 90.0000, got %s", got.Balance.String())
	}
}

func TestCreateAccount_DuplicateNumberIsConflict(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	account := seedAccount(t, st, "0.00")

	_, err := st.CreateAccount(context.Background(), store.CreateAccountParams{
		UserID:         account.UserID,
		AccountNumber:  account.AccountNumber,
		AccountType:    models.AccountChecking,
		Currency:       "USD",
		OpeningBalance: money.Zero,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("Expected ErrConflict for duplicate account number, got %v", err)
	}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	account := seedAccount(t, st, "100.00")
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.WithinTx(ctx, func(uow store.UnitOfWork) error {
		amount, _ := money.Parse("10.00")
		tx := &models.Transaction{
			ID:          "tx-rollback",
			AccountID:   account.ID,
			Type:        models.TypeDeposit,
			Amount:      amount,
			Description: "doomed",
			Status:      models.StatusPending,
			CreatedAt:   time.Now().UTC(),
			DisplayDate: "2026-01-01T00:00:00.000000000Z",
		}
		if err := uow.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the callback error, got %v", err)
	}

	if _, err := st.TransactionByID(ctx, "tx-rollback"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Insert should have rolled back, got %v", err)
	}
}

func TestTransactionsByAccount_DisplayOrder(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	account := seedAccount(t, st, "0.00")
	ctx := context.Background()
	amount, _ := money.Parse("10.00")

	// Insert creation order: old, new, middle (by display date).
	dates := map[string]string{
		"tx-old":    "2020-01-01T00:00:00.000000000Z",
		"tx-new":    "2026-01-01T00:00:00.000000000Z",
		"tx-middle": "2023-01-01T00:00:00.000000000Z",
	}
	for id, date := range dates {
		err := st.WithinTx(ctx, func(uow store.UnitOfWork) error {
			return uow.InsertTransaction(ctx, &models.Transaction{
				ID:          id,
				AccountID:   account.ID,
				Type:        models.TypeDeposit,
				Amount:      amount,
				Description: id,
				Status:      models.StatusCompleted,
				CreatedAt:   time.Now().UTC(),
				DisplayDate: date,
			})
		})
		if err != nil {
			t.Fatalf("Insert %s failed: %v", id, err)
		}
	}

	txs, err := st.TransactionsByAccount(ctx, account.ID, 10)
	if err != nil {
		t.Fatalf("TransactionsByAccount failed: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(txs))
	}
	wantOrder := []string{"tx-new", "tx-middle", "tx-old"}
	for i, want := range wantOrder {
		if txs[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, txs[i].ID)
		}
	}
}

func TestCompletedByCreation_FiltersAndOrders(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	account := seedAccount(t, st, "0.00")
	ctx := context.Background()
	amount, _ := money.Parse("10.00")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rows := []struct {
		id      string
		status  models.TransactionStatus
		created time.Time
	}{
		{"tx-second", models.StatusCompleted, base.Add(2 * time.Minute)},
		{"tx-pending", models.StatusPending, base.Add(1 * time.Minute)},
		{"tx-first", models.StatusCompleted, base},
		{"tx-failed", models.StatusFailed, base.Add(3 * time.Minute)},
	}
	for _, row := range rows {
		err := st.WithinTx(ctx, func(uow store.UnitOfWork) error {
			return uow.InsertTransaction(ctx, &models.Transaction{
				ID:          row.id,
				AccountID:   account.ID,
				Type:        models.TypeDeposit,
				Amount:      amount,
				Description: row.id,
				Status:      row.status,
				CreatedAt:   row.created,
				DisplayDate: row.created.Format("2006-01-02T15:04:05.000000000Z07:00"),
			})
		})
		if err != nil {
			t.Fatalf("Insert %s failed: %v", row.id, err)
		}
	}

	txs, err := st.CompletedByCreation(ctx, account.ID)
	if err != nil {
		t.Fatalf("CompletedByCreation failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("Expected only completed transactions, got %d", len(txs))
	}
	if txs[0].ID != "tx-first" || txs[1].ID != "tx-second" {
		t.Errorf("Expected creation order [tx-first tx-second], got [%s %s]", txs[0].ID, txs[1].ID)
	}
}

func TestSetTransactionCompleted_KeepsDisplayDateWhenEmpty(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	account := seedAccount(t, st, "0.00")
	ctx := context.Background()
	amount, _ := money.Parse("10.00")
	balanceAfter, _ := money.Parse("10.00")

	err := st.WithinTx(ctx, func(uow store.UnitOfWork) error {
		return uow.InsertTransaction(ctx, &models.Transaction{
			ID:          "tx-1",
			AccountID:   account.ID,
			Type:        models.TypeDeposit,
			Amount:      amount,
			Description: "d",
			Status:      models.StatusPending,
			CreatedAt:   time.Now().UTC(),
			DisplayDate: "original-date",
		})
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err = st.WithinTx(ctx, func(uow store.UnitOfWork) error {
		return uow.SetTransactionCompleted(ctx, "tx-1", balanceAfter, "")
	})
	if err != nil {
		t.Fatalf("SetTransactionCompleted failed: %v", err)
	}

	tx, _ := st.TransactionByID(ctx, "tx-1")
	if tx.DisplayDate != "original-date" {
		t.Errorf("Empty display date must keep the existing value, got %q", tx.DisplayDate)
	}
	if tx.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", tx.Status)
	}
	if tx.BalanceAfter == nil || tx.BalanceAfter.String() != "10.0000" {
		t.Error("Balance snapshot not persisted")
	}
}

func TestSetWithdrawalsAllowed(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	account := seedAccount(t, st, "0.00")
	ctx := context.Background()

	updated, err := st.SetWithdrawalsAllowed(ctx, account.ID, false)
	if err != nil {
		t.Fatalf("SetWithdrawalsAllowed failed: %v", err)
	}
	if updated.AllowWithdrawals {
		t.Error("Flag should be off")
	}

	if _, err := st.SetWithdrawalsAllowed(ctx, "missing", false); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
