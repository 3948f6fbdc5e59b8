// Seeder provisions demo users, accounts and a few transactions so the
// service has something to show on first run. Safe to re-run: it skips
// seeding when users already exist.
package main

import (
	"context"
	"os"

	"demobank/internal/auth"
	"demobank/internal/common"
	"demobank/internal/config"
	"demobank/internal/ledger"
	"demobank/internal/models"
	"demobank/internal/money"
	"demobank/internal/store"
	"demobank/internal/store/postgres"
	"demobank/internal/store/sqlite"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	var ledgerStore store.Store
	switch cfg.Database.Backend {
	case "postgres":
		ledgerStore, err = postgres.New(ctx, cfg.Database)
	default:
		ledgerStore, err = sqlite.New(ctx, cfg.Database)
	}
	if err != nil {
		zap.L().Fatal("Failed to initialize store", zap.Error(err))
	}
	defer ledgerStore.Close()

	admin, err := ledgerStore.CreateUser(ctx, store.CreateUserParams{
		Email:    "admin@demobank.test",
		FullName: "Demo Admin",
		Role:     models.RoleAdmin,
	})
	if err != nil {
		zap.L().Info("Admin user not created, assuming database is already seeded", zap.Error(err))
		os.Exit(0)
	}

	alice, err := ledgerStore.CreateUser(ctx, store.CreateUserParams{
		Email:    "alice@demobank.test",
		FullName: "Alice Martin",
		Role:     models.RoleUser,
	})
	if err != nil {
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	bob, err := ledgerStore.CreateUser(ctx, store.CreateUserParams{
		Email:    "bob@demobank.test",
		FullName: "Bob Okafor",
		Role:     models.RoleUser,
	})
	if err != nil {
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	engine := ledger.NewEngine(ledger.EngineConfig{
		Store: ledgerStore,
		Gate:  auth.ContextGate{},
	})

	adminCtx := auth.WithIdentity(ctx, auth.Identity{UserID: admin.ID, Role: models.RoleAdmin})

	for _, seed := range []struct {
		user    *models.User
		deposit string
	}{
		{alice, "100.00"},
		{bob, "250.00"},
	} {
		account, err := engine.CreateAccount(adminCtx, seed.user.ID, models.AccountChecking, "USD")
		if err != nil {
			zap.L().Fatal("Failed to create account",
				zap.String("user_id", seed.user.ID),
				zap.Error(err))
		}

		amount, err := money.ParseOperationAmount(seed.deposit)
		if err != nil {
			zap.L().Fatal("Bad seed amount", zap.Error(err))
		}
		deposited, err := engine.Deposit(adminCtx, account.ID, amount, "Opening deposit")
		if err != nil {
			zap.L().Fatal("Failed to seed deposit",
				zap.String("account_id", account.ID),
				zap.Error(err))
		}

		// Sanity check: the ledger must replay to the stored balance.
		replayed, err := engine.ReplayBalance(adminCtx, account.ID)
		if err != nil {
			zap.L().Fatal("Failed to replay balance", zap.Error(err))
		}
		if !replayed.Equal(deposited.NewBalance) {
			zap.L().Fatal("Ledger replay mismatch",
				zap.String("account_id", account.ID),
				zap.String("stored", deposited.NewBalance.String()),
				zap.String("replayed", replayed.String()))
		}

		zap.L().Info("Seeded account",
			zap.String("user", seed.user.Email),
			zap.String("account_id", account.ID),
			zap.String("account_number", account.AccountNumber),
			zap.String("balance", seed.deposit))
	}

	zap.L().Info("Seeding complete",
		zap.String("admin_id", admin.ID),
		zap.String("alice_id", alice.ID),
		zap.String("bob_id", bob.ID))
}
