package sqlite

const (
	// User queries
	queryInsertUser = `
		INSERT INTO users (id, email, full_name, role, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryGetUserByID = `
		SELECT id, email, full_name, role, created_at
		FROM users
		WHERE id = ?`

	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (
			id, user_id, account_number, account_type, balance, opening_balance,
			currency, status, allow_withdrawals, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`

	queryGetAccountByID = `
		SELECT id, user_id, account_number, account_type, balance, opening_balance,
		       currency, status, allow_withdrawals, created_at, updated_at
		FROM accounts
		WHERE id = ?`

	queryGetAccountsByOwner = `
		SELECT id, user_id, account_number, account_type, balance, opening_balance,
		       currency, status, allow_withdrawals, created_at, updated_at
		FROM accounts
		WHERE user_id = ?
		ORDER BY created_at`

	queryGetAllAccounts = `
		SELECT a.id, a.user_id, a.account_number, a.account_type, a.balance, a.opening_balance,
		       a.currency, a.status, a.allow_withdrawals, a.created_at, a.updated_at,
		       u.id, u.email, u.full_name, u.role, u.created_at
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at`

	querySetWithdrawalsAllowed = `
		UPDATE accounts
		SET allow_withdrawals = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	querySetAccountStatus = `
		UPDATE accounts
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	querySetBalance = `
		UPDATE accounts
		SET balance = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryCompareAndSetBalance = `
		UPDATE accounts
		SET balance = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND balance = ?`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO transactions (
			id, account_id, type, amount, description, status,
			balance_after, created_at, display_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionByID = `
		SELECT id, account_id, type, amount, description, status,
		       balance_after, created_at, display_date
		FROM transactions
		WHERE id = ?`

	queryGetTransactionsByAccount = `
		SELECT id, account_id, type, amount, description, status,
		       balance_after, created_at, display_date
		FROM transactions
		WHERE account_id = ?
		ORDER BY display_date DESC
		LIMIT ?`

	queryGetCompletedByCreation = `
		SELECT id, account_id, type, amount, description, status,
		       balance_after, created_at, display_date
		FROM transactions
		WHERE account_id = ? AND status = 'completed'
		ORDER BY created_at`

	queryGetPendingTransactions = `
		SELECT t.id, t.account_id, t.type, t.amount, t.description, t.status,
		       t.balance_after, t.created_at, t.display_date,
		       a.id, a.user_id, a.account_number, a.account_type, a.balance, a.opening_balance,
		       a.currency, a.status, a.allow_withdrawals, a.created_at, a.updated_at,
		       u.id, u.email, u.full_name, u.role, u.created_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		JOIN users u ON u.id = a.user_id
		WHERE t.status = 'pending'
		ORDER BY t.display_date DESC`

	queryGetAllTransactions = `
		SELECT t.id, t.account_id, t.type, t.amount, t.description, t.status,
		       t.balance_after, t.created_at, t.display_date,
		       a.id, a.user_id, a.account_number, a.account_type, a.balance, a.opening_balance,
		       a.currency, a.status, a.allow_withdrawals, a.created_at, a.updated_at,
		       u.id, u.email, u.full_name, u.role, u.created_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		JOIN users u ON u.id = a.user_id
		ORDER BY t.display_date DESC
		LIMIT ?`

	querySetTransactionCompleted = `
		UPDATE transactions
		SET status = 'completed', balance_after = ?
		WHERE id = ?`

	querySetTransactionCompletedWithDate = `
		UPDATE transactions
		SET status = 'completed', balance_after = ?, display_date = ?
		WHERE id = ?`

	querySetTransactionFailed = `
		UPDATE transactions
		SET status = 'failed'
		WHERE id = ?`

	querySetTransactionDisplayDate = `
		UPDATE transactions
		SET display_date = ?
		WHERE id = ?`
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		account_number TEXT NOT NULL UNIQUE,
		account_type TEXT NOT NULL DEFAULT 'checking',
		balance TEXT NOT NULL DEFAULT '0.0000',
		opening_balance TEXT NOT NULL DEFAULT '0.0000',
		currency TEXT NOT NULL DEFAULT 'USD',
		status TEXT NOT NULL DEFAULT 'active',
		allow_withdrawals INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		balance_after TEXT,
		created_at TIMESTAMP NOT NULL,
		display_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_account_created ON transactions(account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_display ON transactions(display_date);
`
