package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/capitalengine/capitalengine/internal/logger"
	"github.com/capitalengine/capitalengine/internal/models/modelstorage"
	storageErrors "github.com/capitalengine/capitalengine/internal/storage/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	return InitStorage(logger.InitLog())
}

func addTestUser(t *testing.T, st *Storage, userID, email, password string, balance float64) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().Format(time.RFC3339)
	err = st.AddNewUser(context.Background(), modelstorage.UserStorageEntry{
		UserID:       userID,
		Email:        email,
		Name:         "Test User",
		PasswordHash: string(hash),
		Balance:      balance,
		RegisteredAt: now,
		LastLoginAt:  now,
	})
	require.NoError(t, err)
	if balance != 0 {
		_, err = st.SetUserBalance(context.Background(), userID, balance)
		require.NoError(t, err)
	}
}

func TestAddNewUser(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()
	addTestUser(t, st, "u1", "Alice@Example.com", "password1", 0)

	entry, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", entry.Email)
	assert.Equal(t, float64(0), entry.Balance)

	err = st.AddNewUser(ctx, modelstorage.UserStorageEntry{UserID: "u2", Email: "alice@example.com"})
	var alreadyExistsError *storageErrors.AlreadyExistsError
	assert.ErrorAs(t, err, &alreadyExistsError)
}

func TestCheckUser(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()
	addTestUser(t, st, "u1", "alice@example.com", "password1", 0)

	_, err := st.CheckUser(ctx, "alice@example.com", "wrong1")
	var wrongPasswordError *storageErrors.WrongPasswordError
	require.ErrorAs(t, err, &wrongPasswordError)
	assert.Equal(t, 1, wrongPasswordError.Attempts)

	_, err = st.CheckUser(ctx, "alice@example.com", "wrong2")
	require.ErrorAs(t, err, &wrongPasswordError)
	assert.Equal(t, 2, wrongPasswordError.Attempts)

	entry, err := st.CheckUser(ctx, "ALICE@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, "u1", entry.UserID)

	// a successful login resets the failed-attempt counter
	attempts, err := st.GetLoginAttempts(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, attempts)

	_, err = st.CheckUser(ctx, "nobody@example.com", "password1")
	var notFoundError *storageErrors.NotFoundError
	assert.ErrorAs(t, err, &notFoundError)
}

func TestUpdateTransactionStatusDeposit(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()
	addTestUser(t, st, "u1", "alice@example.com", "password1", 0)
	require.NoError(t, st.AddNewTransaction(ctx, modelstorage.TransactionStorageEntry{
		TransactionID: "t1",
		UserID:        "u1",
		Type:          "deposit",
		Amount:        150,
		Status:        "pending",
		CreatedAt:     time.Now().Format(time.RFC3339),
	}))

	entry, err := st.UpdateTransactionStatus(ctx, "t1", "completed")
	require.NoError(t, err)
	assert.Equal(t, "completed", entry.Status)

	balance, err := st.GetCurrentAmount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(150), balance)

	// a second transition of the same transaction must not double-credit
	_, err = st.UpdateTransactionStatus(ctx, "t1", "completed")
	var notPendingError *storageErrors.NotPendingError
	require.ErrorAs(t, err, &notPendingError)
	balance, err = st.GetCurrentAmount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(150), balance)
}

func TestUpdateTransactionStatusFailedDeposit(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()
	addTestUser(t, st, "u1", "alice@example.com", "password1", 0)
	require.NoError(t, st.AddNewTransaction(ctx, modelstorage.TransactionStorageEntry{
		TransactionID: "t1",
		UserID:        "u1",
		Type:          "deposit",
		Amount:        150,
		Status:        "pending",
		CreatedAt:     time.Now().Format(time.RFC3339),
	}))

	entry, err := st.UpdateTransactionStatus(ctx, "t1", "failed")
	require.NoError(t, err)
	assert.Equal(t, "failed", entry.Status)

	balance, err := st.GetCurrentAmount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(0), balance)
}

func TestUpdateTransactionStatusWithdrawal(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()
	addTestUser(t, st, "u1", "alice@example.com", "password1", 200)
	require.NoError(t, st.AddNewTransaction(ctx, modelstorage.TransactionStorageEntry{
		TransactionID: "t1",
		UserID:        "u1",
		Type:          "withdrawal",
		Amount:        80,
		Status:        "pending",
		CreatedAt:     time.Now().Format(time.RFC3339),
	}))

	_, err := st.UpdateTransactionStatus(ctx, "t1", "completed")
	require.NoError(t, err)
	balance, err := st.GetCurrentAmount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(120), balance)
}

func TestUpdateTransactionStatusOverdraft(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()
	addTestUser(t, st, "u1", "alice@example.com", "password1", 50)
	require.NoError(t, st.AddNewTransaction(ctx, modelstorage.TransactionStorageEntry{
		TransactionID: "t1",
		UserID:        "u1",
		Type:          "withdrawal",
		Amount:        80,
		Status:        "pending",
		CreatedAt:     time.Now().Format(time.RFC3339),
	}))

	_, err := st.UpdateTransactionStatus(ctx, "t1", "completed")
	var notEnoughFundsError *storageErrors.NotEnoughFundsError
	require.ErrorAs(t, err, &notEnoughFundsError)

	// the transaction stays pending and the balance is untouched
	balance, err := st.GetCurrentAmount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(50), balance)
	transactions, err := st.GetUserTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "pending", transactions[0].Status)
}

func TestAccrueProfits(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()
	addTestUser(t, st, "u1", "alice@example.com", "password1", 0)
	require.NoError(t, st.AddNewTransaction(ctx, modelstorage.TransactionStorageEntry{
		TransactionID: "t1",
		UserID:        "u1",
		Type:          "deposit",
		Amount:        1000,
		Status:        "pending",
		Plan:          "Basic Plan",
		CreatedAt:     time.Now().Format(time.RFC3339),
	}))

	// pending deposits never accrue
	profitDate := time.Now().Format("2006-01-02")
	accrued, err := st.AccrueProfits(ctx, profitDate)
	require.NoError(t, err)
	assert.Empty(t, accrued)

	_, err = st.UpdateTransactionStatus(ctx, "t1", "completed")
	require.NoError(t, err)

	accrued, err = st.AccrueProfits(ctx, profitDate)
	require.NoError(t, err)
	require.Len(t, accrued, 1)
	assert.Equal(t, float64(15), accrued[0].Amount)
	balance, err := st.GetCurrentAmount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(1015), balance)

	// a repeated pass for the same calendar day is a no-op
	accrued, err = st.AccrueProfits(ctx, profitDate)
	require.NoError(t, err)
	assert.Empty(t, accrued)
	balance, err = st.GetCurrentAmount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(1015), balance)

	profits, err := st.GetUserProfits(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, profits, 1)
}

func TestGetPlans(t *testing.T) {
	st := newTestStorage(t)
	plans, err := st.GetPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, "Basic Plan", plans[0].Name)
	assert.Equal(t, "VIP Plan", plans[2].Name)

	_, err = st.GetPlan(context.Background(), "Nonexistent Plan")
	var notFoundError *storageErrors.NotFoundError
	assert.ErrorAs(t, err, &notFoundError)
}

func TestWipeAll(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()
	addTestUser(t, st, "u1", "alice@example.com", "password1", 100)
	require.NoError(t, st.AddNewTransaction(ctx, modelstorage.TransactionStorageEntry{
		TransactionID: "t1",
		UserID:        "u1",
		Type:          "deposit",
		Amount:        100,
		Status:        "pending",
		CreatedAt:     time.Now().Format(time.RFC3339),
	}))

	require.NoError(t, st.WipeAll(ctx))

	users, err := st.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	transactions, err := st.GetAllTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, transactions)

	// plans are catalog data and survive a wipe
	plans, err := st.GetPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 3)
}
