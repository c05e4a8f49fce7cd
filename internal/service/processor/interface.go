package processor

import (
	"context"

	"github.com/capitalengine/capitalengine/internal/models/modeldto"
)

// Accountant defines account store operations: registration, authentication
// and session-view reads.
type Accountant interface {
	AddNewUser(ctx context.Context, credentials modeldto.Credentials) (string, *modeldto.User, error)
	LoginUser(ctx context.Context, credentials modeldto.Credentials) (string, *modeldto.User, error)
	ResetPassword(ctx context.Context, email string) error
	GetUser(ctx context.Context, userID string) (*modeldto.User, error)
	GetUserID(accessToken string) (string, error)
}

// Bookkeeper defines transaction store operations for the session user.
type Bookkeeper interface {
	AddNewDeposit(ctx context.Context, userID string, deposit modeldto.NewDeposit) (*modeldto.Transaction, error)
	AddNewWithdrawal(ctx context.Context, userID string, withdrawal modeldto.NewWithdrawal) (*modeldto.Transaction, error)
	GetBalance(ctx context.Context, userID string) (*modeldto.Balance, error)
	GetUserTransactions(ctx context.Context, userID string) ([]modeldto.Transaction, error)
	GetUserProfits(ctx context.Context, userID string) ([]modeldto.Profit, error)
	GetPlans(ctx context.Context) ([]modeldto.Plan, error)
}

// Administrator defines privileged operations backing the admin view.
type Administrator interface {
	LoginAdmin(ctx context.Context, password string) (string, error)
	GetAllUsers(ctx context.Context) ([]modeldto.User, error)
	GetAllTransactions(ctx context.Context) ([]modeldto.Transaction, error)
	SetUserBalance(ctx context.Context, userID string, newBalance float64) (*modeldto.User, error)
	UpdateTransactionStatus(ctx context.Context, transactionID, status string) (*modeldto.Transaction, error)
	WipeAllData(ctx context.Context) error
}

type Processor interface {
	Accountant
	Bookkeeper
	Administrator
}
