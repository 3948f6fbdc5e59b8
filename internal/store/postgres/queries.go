package postgres

const (
	// User queries
	queryInsertUser = `
		INSERT INTO users (id, email, full_name, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	queryGetUserByID = `
		SELECT id, email, full_name, role, created_at
		FROM users
		WHERE id = $1`

	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (
			id, user_id, account_number, account_type, balance, opening_balance,
			currency, status, allow_withdrawals, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10)`

	queryGetAccountByID = `
		SELECT id, user_id, account_number, account_type, balance::text, opening_balance::text,
		       currency, status, allow_withdrawals, created_at, updated_at
		FROM accounts
		WHERE id = $1`

	queryGetAccountForUpdate = `
		SELECT id, user_id, account_number, account_type, balance::text, opening_balance::text,
		       currency, status, allow_withdrawals, created_at, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE`

	queryGetAccountsByOwner = `
		SELECT id, user_id, account_number, account_type, balance::text, opening_balance::text,
		       currency, status, allow_withdrawals, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at`

	queryGetAllAccounts = `
		SELECT a.id, a.user_id, a.account_number, a.account_type, a.balance::text, a.opening_balance::text,
		       a.currency, a.status, a.allow_withdrawals, a.created_at, a.updated_at,
		       u.id, u.email, u.full_name, u.role, u.created_at
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at`

	querySetWithdrawalsAllowed = `
		UPDATE accounts
		SET allow_withdrawals = $1, updated_at = NOW()
		WHERE id = $2`

	querySetAccountStatus = `
		UPDATE accounts
		SET status = $1, updated_at = NOW()
		WHERE id = $2`

	querySetBalance = `
		UPDATE accounts
		SET balance = $1::numeric, updated_at = NOW()
		WHERE id = $2`

	queryCompareAndSetBalance = `
		UPDATE accounts
		SET balance = $1::numeric, updated_at = NOW()
		WHERE id = $2 AND balance = $3::numeric`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO transactions (
			id, account_id, type, amount, description, status,
			balance_after, created_at, display_date
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8, $9)`

	queryGetTransactionByID = `
		SELECT id, account_id, type, amount::text, description, status,
		       balance_after::text, created_at, display_date
		FROM transactions
		WHERE id = $1`

	queryGetTransactionForUpdate = `
		SELECT id, account_id, type, amount::text, description, status,
		       balance_after::text, created_at, display_date
		FROM transactions
		WHERE id = $1
		FOR UPDATE`

	queryGetTransactionsByAccount = `
		SELECT id, account_id, type, amount::text, description, status,
		       balance_after::text, created_at, display_date
		FROM transactions
		WHERE account_id = $1
		ORDER BY display_date DESC
		LIMIT $2`

	queryGetCompletedByCreation = `
		SELECT id, account_id, type, amount::text, description, status,
		       balance_after::text, created_at, display_date
		FROM transactions
		WHERE account_id = $1 AND status = 'completed'
		ORDER BY created_at`

	queryGetPendingTransactions = `
		SELECT t.id, t.account_id, t.type, t.amount::text, t.description, t.status,
		       t.balance_after::text, t.created_at, t.display_date,
		       a.id, a.user_id, a.account_number, a.account_type, a.balance::text, a.opening_balance::text,
		       a.currency, a.status, a.allow_withdrawals, a.created_at, a.updated_at,
		       u.id, u.email, u.full_name, u.role, u.created_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		JOIN users u ON u.id = a.user_id
		WHERE t.status = 'pending'
		ORDER BY t.display_date DESC`

	queryGetAllTransactions = `
		SELECT t.id, t.account_id, t.type, t.amount::text, t.description, t.status,
		       t.balance_after::text, t.created_at, t.display_date,
		       a.id, a.user_id, a.account_number, a.account_type, a.balance::text, a.opening_balance::text,
		       a.currency, a.status, a.allow_withdrawals, a.created_at, a.updated_at,
		       u.id, u.email, u.full_name, u.role, u.created_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		JOIN users u ON u.id = a.user_id
		ORDER BY t.display_date DESC
		LIMIT $1`

	querySetTransactionCompleted = `
		UPDATE transactions
		SET status = 'completed', balance_after = $1::numeric
		WHERE id = $2`

	querySetTransactionCompletedWithDate = `
		UPDATE transactions
		SET status = 'completed', balance_after = $1::numeric, display_date = $2
		WHERE id = $3`

	querySetTransactionFailed = `
		UPDATE transactions
		SET status = 'failed'
		WHERE id = $1`

	querySetTransactionDisplayDate = `
		UPDATE transactions
		SET display_date = $1
		WHERE id = $2`
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		account_number TEXT NOT NULL UNIQUE,
		account_type TEXT NOT NULL DEFAULT 'checking',
		balance NUMERIC(19,4) NOT NULL DEFAULT 0,
		opening_balance NUMERIC(19,4) NOT NULL DEFAULT 0,
		currency VARCHAR(3) NOT NULL DEFAULT 'USD',
		status TEXT NOT NULL DEFAULT 'active',
		allow_withdrawals BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id),
		type TEXT NOT NULL,
		amount NUMERIC(19,4) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		balance_after NUMERIC(19,4),
		created_at TIMESTAMPTZ NOT NULL,
		display_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_account_created ON transactions(account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_display ON transactions(display_date);
`
