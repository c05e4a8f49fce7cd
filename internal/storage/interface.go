package storage

import (
	"context"

	"github.com/capitalengine/capitalengine/internal/models/modelstorage"
)

// Registrar defines the account collection contract. Emails are keyed in
// lowercase; CheckUser maintains the per-email failed-attempt counter.
type Registrar interface {
	AddNewUser(ctx context.Context, user modelstorage.UserStorageEntry) error
	CheckUser(ctx context.Context, email, password string) (modelstorage.UserStorageEntry, error)
	GetUser(ctx context.Context, userID string) (modelstorage.UserStorageEntry, error)
	GetAllUsers(ctx context.Context) ([]modelstorage.UserStorageEntry, error)
	GetLoginAttempts(ctx context.Context, email string) (int, error)
}

// Ledger defines the transaction collection contract. UpdateTransactionStatus
// performs the status transition and its balance effect atomically and only
// when the transaction is still pending.
type Ledger interface {
	AddNewTransaction(ctx context.Context, entry modelstorage.TransactionStorageEntry) error
	GetUserTransactions(ctx context.Context, userID string) ([]modelstorage.TransactionStorageEntry, error)
	GetAllTransactions(ctx context.Context) ([]modelstorage.TransactionStorageEntry, error)
	UpdateTransactionStatus(ctx context.Context, transactionID, status string) (modelstorage.TransactionStorageEntry, error)
	SetUserBalance(ctx context.Context, userID string, amount float64) (modelstorage.UserStorageEntry, error)
	GetCurrentAmount(ctx context.Context, userID string) (float64, error)
}

type PlanVault interface {
	GetPlans(ctx context.Context) ([]modelstorage.PlanStorageEntry, error)
	GetPlan(ctx context.Context, name string) (modelstorage.PlanStorageEntry, error)
}

// ProfitLedger accrues daily profits for completed deposits inside their plan
// window. Accrual is keyed by (transaction, date) and therefore idempotent per
// calendar day.
type ProfitLedger interface {
	AccrueProfits(ctx context.Context, profitDate string) ([]modelstorage.ProfitStorageEntry, error)
	GetUserProfits(ctx context.Context, userID string) ([]modelstorage.ProfitStorageEntry, error)
}

type Wiper interface {
	WipeAll(ctx context.Context) error
}

type Storage interface {
	Registrar
	Ledger
	PlanVault
	ProfitLedger
	Wiper
}
