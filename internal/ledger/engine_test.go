package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"demobank/internal/auth"
	"demobank/internal/models"
	"demobank/internal/money"
	"demobank/internal/store"
	"demobank/internal/store/sqlite"
)

func setupEngineTest(t *testing.T) (*Engine, store.Store, func()) {
	ctx := context.Background()

	st, err := sqlite.New(ctx, models.DatabaseConfig{
		SQLitePath:   ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}

	engine := NewEngine(EngineConfig{
		Store:      st,
		Gate:       auth.ContextGate{},
		Currencies: []string{"USD", "EUR"},
	})

	cleanup := func() {
		st.Close()
	}
	return engine, st, cleanup
}

func seedUser(t *testing.T, st store.Store, id string, role models.Role) *models.User {
	user, err := st.CreateUser(context.Background(), store.CreateUserParams{
		ID:       id,
		Email:    id + "@test.local",
		FullName: "Test " + id,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("Failed to seed user %s: %v", id, err)
	}
	return user
}

func seedAccount(t *testing.T, st store.Store, userID, opening string) *models.Account {
	openingAmount, err := money.Parse(opening)
	if err != nil {
		t.Fatalf("Bad opening balance %q: %v", opening, err)
	}
	account, err := st.CreateAccount(context.Background(), store.CreateAccountParams{
		UserID:         userID,
		AccountNumber:  "0000000001",
		AccountType:    models.AccountChecking,
		Currency:       "USD",
		OpeningBalance: openingAmount,
	})
	if err != nil {
		t.Fatalf("Failed to seed account: %v", err)
	}
	return account
}

func userCtx(userID string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: userID, Role: models.RoleUser})
}

func adminCtx(userID string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: userID, Role: models.RoleAdmin})
}

func mustAmount(t *testing.T, s string) money.Amount {
	a, err := money.Parse(s)
	if err != nil {
		t.Fatalf("Bad amount %q: %v", s, err)
	}
	return a
}

func TestDeposit_CreditsBalance(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	account := seedAccount(t, st, "alice", "40.00")

	result, err := engine.Deposit(userCtx("alice"), account.ID, mustAmount(t, "25.50"), "")
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if result.NewBalance.String() != "65.5000" {
		t.Errorf("Expected balance 65.5000, got %s", result.NewBalance.String())
	}
	if result.Transaction.Status != models.StatusCompleted {
		t.Errorf("Deposit should complete immediately, got status %s", result.Transaction.Status)
	}
	if result.Transaction.Description != "Deposit" {
		t.Errorf("Expected default description, got %q", result.Transaction.Description)
	}
	if result.Transaction.BalanceAfter == nil || result.Transaction.BalanceAfter.String() != "65.5000" {
		t.Error("Balance snapshot on the transaction should match the new balance")
	}

	stored, err := st.AccountByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("AccountByID failed: %v", err)
	}
	if stored.Balance.String() != "65.5000" {
		t.Errorf("Stored balance should be 65.5000, got %s", stored.Balance.String())
	}
}

func TestDeposit_NotOwner(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "mallory", models.RoleUser)
	account := seedAccount(t, st, "alice", "100.00")

	_, err := engine.Deposit(userCtx("mallory"), account.ID, mustAmount(t, "10.00"), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestDeposit_AdminIntoAnyAccount(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "0.00")

	result, err := engine.Deposit(adminCtx("root"), account.ID, mustAmount(t, "10.00"), "Correction")
	if err != nil {
		t.Fatalf("Admin deposit failed: %v", err)
	}
	if result.NewBalance.String() != "10.0000" {
		t.Errorf("Expected 10.0000, got %s", result.NewBalance.String())
	}
}

func TestDeposit_SuspendedAccount(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	account := seedAccount(t, st, "alice", "100.00")
	if _, err := st.SetAccountStatus(context.Background(), account.ID, models.AccountSuspended); err != nil {
		t.Fatalf("SetAccountStatus failed: %v", err)
	}

	_, err := engine.Deposit(userCtx("alice"), account.ID, mustAmount(t, "10.00"), "")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for suspended account, got %v", err)
	}
}

func TestDeposit_Anonymous(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	account := seedAccount(t, st, "alice", "0.00")

	_, err := engine.Deposit(context.Background(), account.ID, mustAmount(t, "10.00"), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized without identity, got %v", err)
	}
}

func TestRequestWithdrawal_PendingDoesNotDebit(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	account := seedAccount(t, st, "alice", "100.00")

	tx, err := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "60.00"), "")
	if err != nil {
		t.Fatalf("RequestWithdrawal failed: %v", err)
	}
	if tx.Status != models.StatusPending {
		t.Errorf("Expected pending status, got %s", tx.Status)
	}
	if tx.BalanceAfter == nil || tx.BalanceAfter.String() != "100.0000" {
		t.Error("Snapshot should hold the balance at request time")
	}

	stored, _ := st.AccountByID(context.Background(), account.ID)
	if stored.Balance.String() != "100.0000" {
		t.Errorf("Pending withdrawal must not move the balance, got %s", stored.Balance.String())
	}
}

func TestRequestWithdrawal_InsufficientFundsLeavesNoRecord(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	account := seedAccount(t, st, "alice", "50.00")

	_, err := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "60.00"), "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	txs, err := st.TransactionsByAccount(context.Background(), account.ID, 10)
	if err != nil {
		t.Fatalf("TransactionsByAccount failed: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("Rejected request must not create a transaction, found %d", len(txs))
	}
}

func TestRequestWithdrawal_Frozen(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "100.00")

	if _, err := engine.ToggleWithdrawals(adminCtx("root"), account.ID, false); err != nil {
		t.Fatalf("ToggleWithdrawals failed: %v", err)
	}

	_, err := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "10.00"), "")
	if !errors.Is(err, ErrWithdrawalsFrozen) {
		t.Errorf("Expected ErrWithdrawalsFrozen, got %v", err)
	}

	// Deposits stay available while frozen.
	if _, err := engine.Deposit(userCtx("alice"), account.ID, mustAmount(t, "5.00"), ""); err != nil {
		t.Errorf("Deposit should work on a frozen account: %v", err)
	}

	// Unfreeze and retry.
	if _, err := engine.ToggleWithdrawals(adminCtx("root"), account.ID, true); err != nil {
		t.Fatalf("ToggleWithdrawals failed: %v", err)
	}
	if _, err := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "10.00"), ""); err != nil {
		t.Errorf("Withdrawal should work after unfreezing: %v", err)
	}
}

func TestRequestWithdrawal_OwnerOnly(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "100.00")

	_, err := engine.RequestWithdrawal(adminCtx("root"), account.ID, mustAmount(t, "10.00"), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Withdrawal requests are owner-only, expected ErrUnauthorized, got %v", err)
	}
}

func TestApprove_DebitsBalance(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "100.00")

	pending, err := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "60.00"), "")
	if err != nil {
		t.Fatalf("RequestWithdrawal failed: %v", err)
	}

	approved, err := engine.ApproveTransaction(adminCtx("root"), pending.ID, "")
	if err != nil {
		t.Fatalf("ApproveTransaction failed: %v", err)
	}
	if approved.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", approved.Status)
	}
	if approved.BalanceAfter.String() != "40.0000" {
		t.Errorf("Expected balance after 40.0000, got %s", approved.BalanceAfter.String())
	}

	stored, _ := st.AccountByID(context.Background(), account.ID)
	if stored.Balance.String() != "40.0000" {
		t.Errorf("Expected stored balance 40.0000, got %s", stored.Balance.String())
	}
}

func TestApprove_RechecksFunds(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "100.00")

	pending, err := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "60.00"), "")
	if err != nil {
		t.Fatalf("RequestWithdrawal failed: %v", err)
	}

	// Drain the account below the requested amount before approval.
	if _, err := engine.AdminCustomEntry(adminCtx("root"), account.ID, models.TypeWithdrawal,
		mustAmount(t, "50.00"), "Fee", ""); err != nil {
		t.Fatalf("AdminCustomEntry failed: %v", err)
	}

	_, err = engine.ApproveTransaction(adminCtx("root"), pending.ID, "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds at approval time, got %v", err)
	}

	// The request stays pending and the balance is untouched by the failed approval.
	tx, _ := st.TransactionByID(context.Background(), pending.ID)
	if tx.Status != models.StatusPending {
		t.Errorf("Failed approval must leave the transaction pending, got %s", tx.Status)
	}
	stored, _ := st.AccountByID(context.Background(), account.ID)
	if stored.Balance.String() != "50.0000" {
		t.Errorf("Expected balance 50.0000, got %s", stored.Balance.String())
	}
}

func TestApprove_AlreadyProcessed(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "100.00")

	pending, _ := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "60.00"), "")
	if _, err := engine.ApproveTransaction(adminCtx("root"), pending.ID, ""); err != nil {
		t.Fatalf("First approval failed: %v", err)
	}

	_, err := engine.ApproveTransaction(adminCtx("root"), pending.ID, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Second approval should fail with ErrInvalidState, got %v", err)
	}

	// The balance effect applied exactly once.
	stored, _ := st.AccountByID(context.Background(), account.ID)
	if stored.Balance.String() != "40.0000" {
		t.Errorf("Expected balance 40.0000 after single approval, got %s", stored.Balance.String())
	}
}

func TestApprove_RequiresAdmin(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	account := seedAccount(t, st, "alice", "100.00")

	pending, _ := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "60.00"), "")

	_, err := engine.ApproveTransaction(userCtx("alice"), pending.ID, "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for non-admin, got %v", err)
	}
}

func TestApprove_CustomDateKeepsCreationInstant(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "100.00")

	pending, _ := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "60.00"), "")

	approved, err := engine.ApproveTransaction(adminCtx("root"), pending.ID, "1999-12-31")
	if err != nil {
		t.Fatalf("ApproveTransaction failed: %v", err)
	}
	if approved.DisplayDate != "1999-12-31" {
		t.Errorf("Expected display date 1999-12-31, got %q", approved.DisplayDate)
	}

	stored, _ := st.TransactionByID(context.Background(), pending.ID)
	if stored.DisplayDate != "1999-12-31" {
		t.Errorf("Display date not persisted, got %q", stored.DisplayDate)
	}
	if !stored.CreatedAt.Equal(pending.CreatedAt) {
		t.Error("Creation instant must never change")
	}
}

func TestReject_NoBalanceChange(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "100.00")

	pending, _ := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "60.00"), "")

	rejected, err := engine.RejectTransaction(adminCtx("root"), pending.ID)
	if err != nil {
		t.Fatalf("RejectTransaction failed: %v", err)
	}
	if rejected.Status != models.StatusFailed {
		t.Errorf("Expected failed status, got %s", rejected.Status)
	}

	stored, _ := st.AccountByID(context.Background(), account.ID)
	if stored.Balance.String() != "100.0000" {
		t.Errorf("Reject must not move the balance, got %s", stored.Balance.String())
	}

	// Terminal transactions cannot be approved afterwards.
	if _, err := engine.ApproveTransaction(adminCtx("root"), pending.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Approving a rejected transaction should fail with ErrInvalidState, got %v", err)
	}
}

func TestAdminCustomEntry_AllowsNegativeBalance(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "10.00")

	tx, err := engine.AdminCustomEntry(adminCtx("root"), account.ID, models.TypeWithdrawal,
		mustAmount(t, "40.00"), "Chargeback", "")
	if err != nil {
		t.Fatalf("AdminCustomEntry failed: %v", err)
	}
	if tx.Status != models.StatusCompleted {
		t.Errorf("Admin entries complete immediately, got %s", tx.Status)
	}
	if tx.BalanceAfter.String() != "-30.0000" {
		t.Errorf("Expected -30.0000, got %s", tx.BalanceAfter.String())
	}

	stored, _ := st.AccountByID(context.Background(), account.ID)
	if !stored.Balance.IsNegative() {
		t.Error("Admin entry should be able to push the balance negative")
	}
}

func TestAdminCustomEntry_BackdatedOrdering(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "0.00")

	if _, err := engine.Deposit(userCtx("alice"), account.ID, mustAmount(t, "100.00"), "Recent"); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	backdated, err := engine.AdminCustomEntry(adminCtx("root"), account.ID, models.TypeDeposit,
		mustAmount(t, "5.00"), "Backdated interest", "1999-01-01T00:00:00.000000000Z")
	if err != nil {
		t.Fatalf("AdminCustomEntry failed: %v", err)
	}

	txs, err := engine.ListTransactions(userCtx("alice"), account.ID, 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(txs))
	}
	// Newest display date first: the backdated entry sorts last.
	if txs[len(txs)-1].ID != backdated.ID {
		t.Error("Backdated entry should sort last in display order")
	}
}

func TestAdminCustomEntry_RequiresAdmin(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	account := seedAccount(t, st, "alice", "10.00")

	_, err := engine.AdminCustomEntry(userCtx("alice"), account.ID, models.TypeDeposit,
		mustAmount(t, "40.00"), "", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestSetAccountBalance_NoTransactionRecord(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "10.00")

	updated, err := engine.SetAccountBalance(adminCtx("root"), account.ID, mustAmount(t, "999.99"))
	if err != nil {
		t.Fatalf("SetAccountBalance failed: %v", err)
	}
	if updated.Balance.String() != "999.9900" {
		t.Errorf("Expected 999.9900, got %s", updated.Balance.String())
	}

	txs, _ := st.TransactionsByAccount(context.Background(), account.ID, 10)
	if len(txs) != 0 {
		t.Errorf("Direct balance override must not create transactions, found %d", len(txs))
	}
}

func TestUpdateTransactionDate_ChangesDisplayOrderOnly(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "0.00")

	first, err := engine.Deposit(userCtx("alice"), account.ID, mustAmount(t, "10.00"), "First")
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if _, err := engine.Deposit(userCtx("alice"), account.ID, mustAmount(t, "20.00"), "Second"); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	// Push the first deposit into the future so it sorts newest.
	moved, err := engine.UpdateTransactionDate(adminCtx("root"), first.Transaction.ID, "2999-01-01T00:00:00.000000000Z")
	if err != nil {
		t.Fatalf("UpdateTransactionDate failed: %v", err)
	}
	if moved.DisplayDate != "2999-01-01T00:00:00.000000000Z" {
		t.Errorf("Display date not updated, got %q", moved.DisplayDate)
	}

	txs, _ := engine.ListTransactions(userCtx("alice"), account.ID, 0)
	if txs[0].ID != first.Transaction.ID {
		t.Error("Redated transaction should sort first in display order")
	}

	// Replay still follows creation order and is unaffected by the edit.
	replayed, err := engine.ReplayBalance(userCtx("alice"), account.ID)
	if err != nil {
		t.Fatalf("ReplayBalance failed: %v", err)
	}
	if replayed.String() != "30.0000" {
		t.Errorf("Expected replay 30.0000, got %s", replayed.String())
	}
}

func TestReplayBalance_MatchesStoredBalance(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "100.00")

	if _, err := engine.Deposit(userCtx("alice"), account.ID, mustAmount(t, "25.50"), ""); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	pending, err := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "60.00"), "")
	if err != nil {
		t.Fatalf("RequestWithdrawal failed: %v", err)
	}
	if _, err := engine.ApproveTransaction(adminCtx("root"), pending.ID, ""); err != nil {
		t.Fatalf("ApproveTransaction failed: %v", err)
	}
	// A rejected request and a still-pending one must not count.
	rejectMe, _ := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "5.00"), "")
	if _, err := engine.RejectTransaction(adminCtx("root"), rejectMe.ID); err != nil {
		t.Fatalf("RejectTransaction failed: %v", err)
	}
	if _, err := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "7.00"), ""); err != nil {
		t.Fatalf("RequestWithdrawal failed: %v", err)
	}

	stored, _ := st.AccountByID(context.Background(), account.ID)
	replayed, err := engine.ReplayBalance(userCtx("alice"), account.ID)
	if err != nil {
		t.Fatalf("ReplayBalance failed: %v", err)
	}
	if !replayed.Equal(stored.Balance) {
		t.Errorf("Replay %s does not match stored balance %s", replayed.String(), stored.Balance.String())
	}
	if replayed.String() != "65.5000" {
		t.Errorf("Expected 65.5000, got %s", replayed.String())
	}
}

func TestCreateAccount_CurrencyValidation(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)

	if _, err := engine.CreateAccount(userCtx("alice"), "alice", models.AccountSavings, "XXX"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for unsupported currency, got %v", err)
	}

	account, err := engine.CreateAccount(userCtx("alice"), "alice", models.AccountSavings, "EUR")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if len(account.AccountNumber) != 10 {
		t.Errorf("Expected 10-digit account number, got %q", account.AccountNumber)
	}
	if !account.Balance.Equal(money.Zero) {
		t.Errorf("New accounts start at zero, got %s", account.Balance.String())
	}
}

func TestCreateAccount_ForOtherUserRequiresAdmin(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "bob", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)

	if _, err := engine.CreateAccount(userCtx("alice"), "bob", models.AccountChecking, "USD"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.CreateAccount(adminCtx("root"), "bob", models.AccountChecking, "USD"); err != nil {
		t.Errorf("Admin should create accounts for anyone: %v", err)
	}
}

func TestGetAccount_Visibility(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "mallory", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "5.00")

	if _, err := engine.GetAccount(userCtx("alice"), account.ID); err != nil {
		t.Errorf("Owner read failed: %v", err)
	}
	if _, err := engine.GetAccount(adminCtx("root"), account.ID); err != nil {
		t.Errorf("Admin read failed: %v", err)
	}
	if _, err := engine.GetAccount(userCtx("mallory"), account.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for stranger, got %v", err)
	}
	if _, err := engine.GetAccount(userCtx("alice"), "no-such-account"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetTransaction_Visibility(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "mallory", models.RoleUser)
	account := seedAccount(t, st, "alice", "0.00")

	deposited, err := engine.Deposit(userCtx("alice"), account.ID, mustAmount(t, "10.00"), "")
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if _, err := engine.GetTransaction(userCtx("alice"), deposited.Transaction.ID); err != nil {
		t.Errorf("Owner read failed: %v", err)
	}
	if _, err := engine.GetTransaction(userCtx("mallory"), deposited.Transaction.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for stranger, got %v", err)
	}
	if _, err := engine.GetTransaction(userCtx("alice"), "no-such-tx"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPendingTransactions_AdminQueue(t *testing.T) {
	engine, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	seedUser(t, st, "root", models.RoleAdmin)
	account := seedAccount(t, st, "alice", "100.00")

	if _, err := engine.RequestWithdrawal(userCtx("alice"), account.ID, mustAmount(t, "10.00"), ""); err != nil {
		t.Fatalf("RequestWithdrawal failed: %v", err)
	}
	if _, err := engine.Deposit(userCtx("alice"), account.ID, mustAmount(t, "10.00"), ""); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	queue, err := engine.PendingTransactions(adminCtx("root"))
	if err != nil {
		t.Fatalf("PendingTransactions failed: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("Expected 1 pending transaction, got %d", len(queue))
	}
	if queue[0].Transaction.Type != models.TypeWithdrawal {
		t.Errorf("Expected the pending withdrawal, got %s", queue[0].Transaction.Type)
	}

	if _, err := engine.PendingTransactions(userCtx("alice")); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Queue is admin-only, got %v", err)
	}
}

// conflictingStore fails every unit of work the way a store does when a
// concurrent writer commits first.
type conflictingStore struct {
	store.Store
}

func (conflictingStore) WithinTx(context.Context, func(store.UnitOfWork) error) error {
	return store.ErrConflict
}

func TestDeposit_LostRaceIsConflict(t *testing.T) {
	_, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)
	account := seedAccount(t, st, "alice", "100.00")

	racing := NewEngine(EngineConfig{Store: conflictingStore{st}, Gate: auth.ContextGate{}})
	_, err := racing.Deposit(userCtx("alice"), account.ID, mustAmount(t, "10.00"), "")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict when the write race is lost, got %v", err)
	}
}

// collidingStore rejects the first n account inserts with the duplicate
// account-number conflict, then behaves normally.
type collidingStore struct {
	store.Store
	remaining int
	numbers   []string
}

func (c *collidingStore) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	c.numbers = append(c.numbers, params.AccountNumber)
	if c.remaining > 0 {
		c.remaining--
		return nil, store.ErrConflict
	}
	return c.Store.CreateAccount(ctx, params)
}

func TestCreateAccount_RetriesOnNumberCollision(t *testing.T) {
	_, st, cleanup := setupEngineTest(t)
	defer cleanup()

	seedUser(t, st, "alice", models.RoleUser)

	colliding := &collidingStore{Store: st, remaining: 2}
	engine := NewEngine(EngineConfig{Store: colliding, Gate: auth.ContextGate{}, Currencies: []string{"USD"}})

	account, err := engine.CreateAccount(userCtx("alice"), "alice", models.AccountChecking, "USD")
	if err != nil {
		t.Fatalf("CreateAccount should retry past collisions: %v", err)
	}
	if account == nil {
		t.Fatal("Expected the account to be created")
	}
	if len(colliding.numbers) != 3 {
		t.Fatalf("Expected 3 insert attempts, got %d", len(colliding.numbers))
	}
	if colliding.numbers[0] == colliding.numbers[2] {
		t.Error("Retries should generate a fresh account number")
	}

	exhausted := &collidingStore{Store: st, remaining: 10}
	engine = NewEngine(EngineConfig{Store: exhausted, Gate: auth.ContextGate{}, Currencies: []string{"USD"}})
	if _, err := engine.CreateAccount(userCtx("alice"), "alice", models.AccountChecking, "USD"); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict after exhausting retries, got %v", err)
	}
}
