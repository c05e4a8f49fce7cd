package psql

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/capitalengine/capitalengine/internal/config"
	"github.com/capitalengine/capitalengine/internal/logger"
	"github.com/capitalengine/capitalengine/internal/models/modelstorage"
	storageErrors "github.com/capitalengine/capitalengine/internal/storage/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests in this file need a live database and are skipped unless DATABASE_URI
// is set.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		t.Skip("DATABASE_URI is not set")
	}
	st, err := InitStorage(context.Background(), &config.StorageConfig{DatabaseDSN: dsn}, logger.InitLog())
	require.NoError(t, err)
	require.NoError(t, st.WipeAll(context.Background()))
	t.Cleanup(func() {
		_ = st.WipeAll(context.Background())
		_ = st.Close()
	})
	return st
}

func addTestUser(t *testing.T, st *Storage, userID string, balance float64) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().Format(time.RFC3339)
	require.NoError(t, st.AddNewUser(ctx, modelstorage.UserStorageEntry{
		UserID:       userID,
		Email:        fmt.Sprintf("%s@example.com", userID),
		Name:         "Test User",
		PasswordHash: "irrelevant",
		RegisteredAt: now,
		LastLoginAt:  now,
	}))
	if balance != 0 {
		_, err := st.SetUserBalance(ctx, userID, balance)
		require.NoError(t, err)
	}
}

func TestOverdraftReportsAvailableBalance(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()
	addTestUser(t, st, "u1", 50)
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
	assert.Equal(t, float64(50), notEnoughFundsError.Available)
	assert.Equal(t, float64(80), notEnoughFundsError.Required)

	// the rollback keeps the transaction pending and the balance intact
	balance, err := st.GetCurrentAmount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(50), balance)
	transactions, err := st.GetUserTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "pending", transactions[0].Status)
}

func TestUpdateTransactionStatusIsOneShot(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()
	addTestUser(t, st, "u1", 0)
	require.NoError(t, st.AddNewTransaction(ctx, modelstorage.TransactionStorageEntry{
		TransactionID: "t1",
		UserID:        "u1",
		Type:          "deposit",
		Amount:        150,
		Status:        "pending",
		CreatedAt:     time.Now().Format(time.RFC3339),
	}))

	_, err := st.UpdateTransactionStatus(ctx, "t1", "completed")
	require.NoError(t, err)

	_, err = st.UpdateTransactionStatus(ctx, "t1", "failed")
	var notPendingError *storageErrors.NotPendingError
	require.ErrorAs(t, err, &notPendingError)

	balance, err := st.GetCurrentAmount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(150), balance)
}

func TestTimedOutCallsDoNotLeakGoroutines(t *testing.T) {
	st := newTestStorage(t)
	addTestUser(t, st, "u1", 0)
	baseline := runtime.NumGoroutine()

	for i := 0; i < 25; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		_, _ = st.GetAllUsers(ctx)
		_, _ = st.GetUser(ctx, "u1")
		_, _ = st.GetUserTransactions(ctx, "u1")
		cancel()
	}

	// buffered result channels let late workers finish and exit
	time.Sleep(500 * time.Millisecond)
	assert.LessOrEqual(t, runtime.NumGoroutine(), baseline+3)
}
