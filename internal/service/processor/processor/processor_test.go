package processor

import (
	"context"
	"fmt"
	"testing"

	"github.com/capitalengine/capitalengine/internal/config"
	"github.com/capitalengine/capitalengine/internal/logger"
	"github.com/capitalengine/capitalengine/internal/models/modeldto"
	"github.com/capitalengine/capitalengine/internal/models/modelevent"
	"github.com/capitalengine/capitalengine/internal/models/modelstorage"
	"github.com/capitalengine/capitalengine/internal/service/broadcast"
	"github.com/capitalengine/capitalengine/internal/service/processor/errors"
	"github.com/capitalengine/capitalengine/internal/service/secretary/secretary"
	storageErrors "github.com/capitalengine/capitalengine/internal/storage/errors"
	"github.com/capitalengine/capitalengine/internal/storage/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRate struct {
	rate float64
}

func (r *staticRate) GetRate(_ context.Context) (float64, error) {
	return r.rate, nil
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	log := logger.InitLog()
	sec, err := secretary.NewSecretaryService(&config.SecretConfig{SecretKey: "jds__63h3_7ds"})
	require.NoError(t, err)
	proc, err := InitService(
		inmem.InitStorage(log),
		sec,
		&staticRate{rate: 50000},
		broadcast.NewBroadcaster(log),
		&config.SecretConfig{SecretKey: "jds__63h3_7ds", AdminPassword: "hunter2hunter2"},
		log,
	)
	require.NoError(t, err)
	return proc
}

func registerTestUser(t *testing.T, proc *Processor) (string, *modeldto.User) {
	t.Helper()
	accessToken, user, err := proc.AddNewUser(context.Background(), modeldto.Credentials{
		Name:     "Alice",
		Email:    "Alice@Example.com",
		Password: "password1",
	})
	require.NoError(t, err)
	return accessToken, user
}

func TestInitService(t *testing.T) {
	log := logger.InitLog()
	sec, err := secretary.NewSecretaryService(&config.SecretConfig{SecretKey: "jds__63h3_7ds"})
	require.NoError(t, err)
	_, err = InitService(nil, sec, nil, broadcast.NewBroadcaster(log), &config.SecretConfig{}, log)
	var nilArgumentError *errors.ServiceFoundNilArgument
	assert.ErrorAs(t, err, &nilArgumentError)
}

func TestAddNewUser(t *testing.T) {
	proc := newTestProcessor(t)
	accessToken, user := registerTestUser(t, proc)

	assert.NotEmpty(t, accessToken)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, float64(0), user.Balance)

	userID, err := proc.GetUserID(accessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestAddNewUserValidation(t *testing.T) {
	proc := newTestProcessor(t)
	ctx := context.Background()

	type testCase struct {
		name        string
		credentials modeldto.Credentials
		check       func(t *testing.T, err error)
	}
	testCases := []testCase{
		{
			name:        "missing name",
			credentials: modeldto.Credentials{Email: "alice@example.com", Password: "password1"},
			check: func(t *testing.T, err error) {
				var missingFieldError *errors.ServiceMissingField
				assert.ErrorAs(t, err, &missingFieldError)
			},
		},
		{
			name:        "malformed email",
			credentials: modeldto.Credentials{Name: "Alice", Email: "not an email", Password: "password1"},
			check: func(t *testing.T, err error) {
				var invalidEmailError *errors.ServiceInvalidEmail
				assert.ErrorAs(t, err, &invalidEmailError)
			},
		},
		{
			name:        "email without domain dot",
			credentials: modeldto.Credentials{Name: "Alice", Email: "alice@example", Password: "password1"},
			check: func(t *testing.T, err error) {
				var invalidEmailError *errors.ServiceInvalidEmail
				assert.ErrorAs(t, err, &invalidEmailError)
			},
		},
		{
			name:        "short password",
			credentials: modeldto.Credentials{Name: "Alice", Email: "alice@example.com", Password: "12345"},
			check: func(t *testing.T, err error) {
				var weakPasswordError *errors.ServiceWeakPassword
				assert.ErrorAs(t, err, &weakPasswordError)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := proc.AddNewUser(ctx, tc.credentials)
			tc.check(t, err)
		})
	}
}

func TestLoginUser(t *testing.T) {
	proc := newTestProcessor(t)
	_, user := registerTestUser(t, proc)
	ctx := context.Background()

	_, _, err := proc.LoginUser(ctx, modeldto.Credentials{Email: "alice@example.com", Password: "wrong1"})
	var wrongPasswordError *storageErrors.WrongPasswordError
	require.ErrorAs(t, err, &wrongPasswordError)
	assert.Equal(t, 1, wrongPasswordError.Attempts)

	accessToken, loggedIn, err := proc.LoginUser(ctx, modeldto.Credentials{Email: "ALICE@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, accessToken)
	assert.Equal(t, user.ID, loggedIn.ID)
}

func TestAddNewDeposit(t *testing.T) {
	proc := newTestProcessor(t)
	_, user := registerTestUser(t, proc)
	ctx := context.Background()

	_, err := proc.AddNewDeposit(ctx, user.ID, modeldto.NewDeposit{Amount: -5})
	var invalidAmountError *errors.ServiceInvalidAmount
	assert.ErrorAs(t, err, &invalidAmountError)

	_, err = proc.AddNewDeposit(ctx, user.ID, modeldto.NewDeposit{Amount: 100, Plan: "Nonexistent Plan"})
	var unknownPlanError *errors.ServiceUnknownPlan
	assert.ErrorAs(t, err, &unknownPlanError)

	_, err = proc.AddNewDeposit(ctx, user.ID, modeldto.NewDeposit{Amount: 50, Plan: "Basic Plan"})
	var belowPlanMinimumError *errors.ServiceBelowPlanMinimum
	assert.ErrorAs(t, err, &belowPlanMinimumError)

	transaction, err := proc.AddNewDeposit(ctx, user.ID, modeldto.NewDeposit{Amount: 500, Plan: "Basic Plan"})
	require.NoError(t, err)
	assert.Equal(t, "pending", transaction.Status)
	assert.Equal(t, "deposit", transaction.Type)
	assert.Equal(t, user.Email, transaction.UserEmail)
	assert.InDelta(t, 0.01, transaction.BTCAmount, 1e-9)
}

func TestAddNewWithdrawal(t *testing.T) {
	proc := newTestProcessor(t)
	_, user := registerTestUser(t, proc)
	ctx := context.Background()

	_, err := proc.AddNewWithdrawal(ctx, user.ID, modeldto.NewWithdrawal{Amount: 50})
	var missingFieldError *errors.ServiceMissingField
	assert.ErrorAs(t, err, &missingFieldError)

	// a fresh account holds nothing to withdraw
	_, err = proc.AddNewWithdrawal(ctx, user.ID, modeldto.NewWithdrawal{Amount: 50, Address: "bc1qtest"})
	var notEnoughFundsError *errors.ServiceNotEnoughFunds
	assert.ErrorAs(t, err, &notEnoughFundsError)

	_, err = proc.SetUserBalance(ctx, user.ID, 200)
	require.NoError(t, err)

	transaction, err := proc.AddNewWithdrawal(ctx, user.ID, modeldto.NewWithdrawal{Amount: 50, Address: "bc1qtest"})
	require.NoError(t, err)
	assert.Equal(t, "pending", transaction.Status)
	assert.Equal(t, "bc1qtest", transaction.TxHash)
}

func TestGetBalance(t *testing.T) {
	proc := newTestProcessor(t)
	_, user := registerTestUser(t, proc)
	ctx := context.Background()

	_, err := proc.SetUserBalance(ctx, user.ID, 1000)
	require.NoError(t, err)
	deposit, err := proc.AddNewDeposit(ctx, user.ID, modeldto.NewDeposit{Amount: 300})
	require.NoError(t, err)
	_, err = proc.AddNewWithdrawal(ctx, user.ID, modeldto.NewWithdrawal{Amount: 100, Address: "bc1qtest"})
	require.NoError(t, err)

	balance, err := proc.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(1000), balance.CurrentAmount)
	assert.Equal(t, float64(300), balance.PendingDeposits)
	assert.Equal(t, float64(100), balance.PendingWithdrawal)

	// a completed deposit moves from pending into the balance
	_, err = proc.UpdateTransactionStatus(ctx, deposit.ID, "completed")
	require.NoError(t, err)
	balance, err = proc.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(1300), balance.CurrentAmount)
	assert.Equal(t, float64(0), balance.PendingDeposits)
}

func TestUpdateTransactionStatus(t *testing.T) {
	proc := newTestProcessor(t)
	_, user := registerTestUser(t, proc)
	ctx := context.Background()

	deposit, err := proc.AddNewDeposit(ctx, user.ID, modeldto.NewDeposit{Amount: 300})
	require.NoError(t, err)

	_, err = proc.UpdateTransactionStatus(ctx, deposit.ID, "reversed")
	var illegalStatusError *errors.ServiceIllegalStatus
	assert.ErrorAs(t, err, &illegalStatusError)

	updated, err := proc.UpdateTransactionStatus(ctx, deposit.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, "completed", updated.Status)

	_, err = proc.UpdateTransactionStatus(ctx, deposit.ID, "failed")
	var notPendingError *storageErrors.NotPendingError
	assert.ErrorAs(t, err, &notPendingError)
}

func TestLoginAdmin(t *testing.T) {
	proc := newTestProcessor(t)
	ctx := context.Background()

	_, err := proc.LoginAdmin(ctx, "wrong password")
	var accessDeniedError *errors.ServiceAccessDenied
	require.ErrorAs(t, err, &accessDeniedError)

	accessToken, err := proc.LoginAdmin(ctx, "hunter2hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, accessToken)
}

func TestLoginAdminDisabledWithoutPassword(t *testing.T) {
	log := logger.InitLog()
	sec, err := secretary.NewSecretaryService(&config.SecretConfig{SecretKey: "jds__63h3_7ds"})
	require.NoError(t, err)
	proc, err := InitService(inmem.InitStorage(log), sec, nil, broadcast.NewBroadcaster(log), &config.SecretConfig{SecretKey: "jds__63h3_7ds"}, log)
	require.NoError(t, err)

	_, err = proc.LoginAdmin(context.Background(), "")
	var accessDeniedError *errors.ServiceAccessDenied
	assert.ErrorAs(t, err, &accessDeniedError)
}

func TestWipeAllData(t *testing.T) {
	proc := newTestProcessor(t)
	_, user := registerTestUser(t, proc)
	ctx := context.Background()

	_, err := proc.AddNewDeposit(ctx, user.ID, modeldto.NewDeposit{Amount: 300})
	require.NoError(t, err)

	require.NoError(t, proc.WipeAllData(ctx))

	users, err := proc.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	transactions, err := proc.GetAllTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, transactions)
}

// corruptListStorage simulates a store whose list reads hit unscannable rows.
type corruptListStorage struct {
	*inmem.Storage
}

func (s *corruptListStorage) GetAllUsers(_ context.Context) ([]modelstorage.UserStorageEntry, error) {
	return nil, &storageErrors.ScanningPSQLError{Err: fmt.Errorf("malformed user row")}
}

func (s *corruptListStorage) GetAllTransactions(_ context.Context) ([]modelstorage.TransactionStorageEntry, error) {
	return nil, &storageErrors.ScanningPSQLError{Err: fmt.Errorf("malformed transaction row")}
}

func (s *corruptListStorage) GetUserTransactions(_ context.Context, _ string) ([]modelstorage.TransactionStorageEntry, error) {
	return nil, &storageErrors.ScanningPSQLError{Err: fmt.Errorf("malformed transaction row")}
}

func (s *corruptListStorage) GetUserProfits(_ context.Context, _ string) ([]modelstorage.ProfitStorageEntry, error) {
	return nil, &storageErrors.ScanningPSQLError{Err: fmt.Errorf("malformed profit row")}
}

func TestListReadsDegradeOnCorruptRecords(t *testing.T) {
	log := logger.InitLog()
	sec, err := secretary.NewSecretaryService(&config.SecretConfig{SecretKey: "jds__63h3_7ds"})
	require.NoError(t, err)
	st := &corruptListStorage{Storage: inmem.InitStorage(log)}
	proc, err := InitService(st, sec, nil, broadcast.NewBroadcaster(log), &config.SecretConfig{SecretKey: "jds__63h3_7ds"}, log)
	require.NoError(t, err)
	ctx := context.Background()

	users, err := proc.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	transactions, err := proc.GetAllTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, transactions)

	transactions, err = proc.GetUserTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, transactions)

	profits, err := proc.GetUserProfits(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, profits)
}

func TestTransactionEventsAreBroadcast(t *testing.T) {
	log := logger.InitLog()
	sec, err := secretary.NewSecretaryService(&config.SecretConfig{SecretKey: "jds__63h3_7ds"})
	require.NoError(t, err)
	broadcaster := broadcast.NewBroadcaster(log)
	proc, err := InitService(inmem.InitStorage(log), sec, nil, broadcaster, &config.SecretConfig{SecretKey: "jds__63h3_7ds"}, log)
	require.NoError(t, err)

	events, cancel := broadcaster.Subscribe(8)
	defer cancel()

	_, user := registerTestUser(t, proc)
	event := <-events
	require.Equal(t, modelevent.TypeUserRegistered, event.Type)
	require.NotNil(t, event.User)
	assert.Equal(t, user.ID, event.User.ID)
	assert.Len(t, event.Users, 1)

	deposit, err := proc.AddNewDeposit(context.Background(), user.ID, modeldto.NewDeposit{Amount: 300})
	require.NoError(t, err)
	event = <-events
	require.Equal(t, modelevent.TypeTransactionCreated, event.Type)
	require.NotNil(t, event.Transaction)
	assert.Equal(t, deposit.ID, event.Transaction.ID)
	assert.Len(t, event.Transactions, 1)
}
