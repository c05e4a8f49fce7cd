// Package modelstorage provides types for querying persisted collections.

package modelstorage

type UserStorageEntry struct {
	ID           uint    `db:"id"`
	UserID       string  `db:"user_id"`
	Email        string  `db:"email"`
	Name         string  `db:"name"`
	PasswordHash string  `db:"password_hash"`
	Balance      float64 `db:"balance"`
	RegisteredAt string  `db:"registered_at"`
	LastLoginAt  string  `db:"last_login_at"`
}

type TransactionStorageEntry struct {
	ID            uint    `db:"id"`
	TransactionID string  `db:"transaction_id"`
	UserID        string  `db:"user_id"`
	UserEmail     string  `db:"user_email"`
	UserName      string  `db:"user_name"`
	Type          string  `db:"type"`
	Amount        float64 `db:"amount"`
	Status        string  `db:"status"`
	Plan          string  `db:"plan"`
	BTCAmount     float64 `db:"btc_amount"`
	TxHash        string  `db:"tx_hash"`
	CreatedAt     string  `db:"created_at"`
}

type PlanStorageEntry struct {
	ID             uint    `db:"id"`
	Name           string  `db:"name"`
	DailyPercent   float64 `db:"daily_percent"`
	MinimumDeposit float64 `db:"minimum_deposit"`
	DurationDays   int     `db:"duration_days"`
}

type ProfitStorageEntry struct {
	ID            uint    `db:"id"`
	UserID        string  `db:"user_id"`
	TransactionID string  `db:"transaction_id"`
	Amount        float64 `db:"amount"`
	ProfitDate    string  `db:"profit_date"`
}
