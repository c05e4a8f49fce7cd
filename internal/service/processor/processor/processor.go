// Package processor provides intermediary layer functionality between the
// storage and API endpoint handlers.

package processor

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/capitalengine/capitalengine/internal/config"
	"github.com/capitalengine/capitalengine/internal/models/modelclaims"
	"github.com/capitalengine/capitalengine/internal/models/modeldto"
	"github.com/capitalengine/capitalengine/internal/models/modelevent"
	"github.com/capitalengine/capitalengine/internal/models/modelstorage"
	"github.com/capitalengine/capitalengine/internal/service/broadcast"
	serviceErrors "github.com/capitalengine/capitalengine/internal/service/processor/errors"
	"github.com/capitalengine/capitalengine/internal/service/secretary"
	"github.com/capitalengine/capitalengine/internal/storage"
	storageErrors "github.com/capitalengine/capitalengine/internal/storage/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// defaultBTCRate is the fallback USD/BTC rate used for the cosmetic btcAmount
// estimate when no rate service is reachable.
const defaultBTCRate = 45000.0

const minPasswordLength = 6

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RateSource yields the current USD/BTC exchange rate.
type RateSource interface {
	GetRate(ctx context.Context) (float64, error)
}

// Processor defines attributes of a struct available to its methods.
type Processor struct {
	storage     storage.Storage
	secretary   secretary.Secretary
	rate        RateSource
	broadcaster *broadcast.Broadcaster
	secretCfg   *config.SecretConfig
	log         *zerolog.Logger
}

// InitService initializes an intermediary service for data processing.
func InitService(st storage.Storage, sec secretary.Secretary, rate RateSource, br *broadcast.Broadcaster, secretCfg *config.SecretConfig, log *zerolog.Logger) (*Processor, error) {
	if st == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil storage was passed to service initializer"}
	}
	if sec == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil secretary was passed to service initializer"}
	}
	if br == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil broadcaster was passed to service initializer"}
	}
	processor := &Processor{
		storage:     st,
		secretary:   sec,
		rate:        rate,
		broadcaster: br,
		secretCfg:   secretCfg,
		log:         log,
	}
	return processor, nil
}

// GetUserID retrieves a deciphered user identifier from a token.
func (proc *Processor) GetUserID(accessToken string) (string, error) {
	claims, err := proc.secretary.ValidateToken(accessToken)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// AddNewUser processes user register requests.
func (proc *Processor) AddNewUser(ctx context.Context, credentials modeldto.Credentials) (string, *modeldto.User, error) {
	if len(credentials.Name) == 0 {
		return "", nil, &serviceErrors.ServiceMissingField{Msg: "name must not be empty"}
	}
	if !emailRegex.MatchString(credentials.Email) {
		return "", nil, &serviceErrors.ServiceInvalidEmail{Msg: fmt.Sprintf("illegal email address %s", credentials.Email)}
	}
	if len(credentials.Password) < minPasswordLength {
		return "", nil, &serviceErrors.ServiceWeakPassword{Msg: fmt.Sprintf("password must be at least %d characters long", minPasswordLength)}
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(credentials.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	accessToken, userID, err := proc.secretary.NewToken(modelclaims.RoleUser)
	if err != nil {
		return "", nil, err
	}
	now := time.Now().Format(time.RFC3339)
	entry := modelstorage.UserStorageEntry{
		UserID:       userID,
		Email:        strings.ToLower(credentials.Email),
		Name:         credentials.Name,
		PasswordHash: string(passwordHash),
		Balance:      0,
		RegisteredAt: now,
		LastLoginAt:  now,
	}
	err = proc.storage.AddNewUser(ctx, entry)
	if err != nil {
		return "", nil, err
	}
	user := toUserDTO(entry, 0)
	proc.publishUserEvent(ctx, modelevent.TypeUserRegistered, &user)
	return accessToken, &user, nil
}

// LoginUser processes user login requests.
func (proc *Processor) LoginUser(ctx context.Context, credentials modeldto.Credentials) (string, *modeldto.User, error) {
	entry, err := proc.storage.CheckUser(ctx, credentials.Email, credentials.Password)
	if err != nil {
		return "", nil, err
	}
	accessToken, err := proc.secretary.GetTokenForUser(entry.UserID, modelclaims.RoleUser)
	if err != nil {
		return "", nil, err
	}
	user := toUserDTO(entry, 0)
	return accessToken, &user, nil
}

// ResetPassword is intentionally a stub: it simulates request latency and
// always reports success without touching any credential.
func (proc *Processor) ResetPassword(ctx context.Context, email string) error {
	select {
	case <-time.After(300 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetUser re-reads the authoritative user record so a session never serves a
// stale cached balance.
func (proc *Processor) GetUser(ctx context.Context, userID string) (*modeldto.User, error) {
	entry, err := proc.storage.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	attempts, err := proc.storage.GetLoginAttempts(ctx, entry.Email)
	if err != nil {
		attempts = 0
	}
	user := toUserDTO(entry, attempts)
	return &user, nil
}

// AddNewDeposit processes new deposit requests.
func (proc *Processor) AddNewDeposit(ctx context.Context, userID string, deposit modeldto.NewDeposit) (*modeldto.Transaction, error) {
	if deposit.Amount <= 0 {
		return nil, &serviceErrors.ServiceInvalidAmount{Msg: fmt.Sprintf("illegal deposit amount %v", deposit.Amount)}
	}
	if deposit.Plan != "" {
		plan, err := proc.storage.GetPlan(ctx, deposit.Plan)
		if err != nil {
			var notFoundError *storageErrors.NotFoundError
			if errors.As(err, &notFoundError) {
				return nil, &serviceErrors.ServiceUnknownPlan{Msg: fmt.Sprintf("unknown investment plan %s", deposit.Plan)}
			}
			return nil, err
		}
		if deposit.Amount < plan.MinimumDeposit {
			return nil, &serviceErrors.ServiceBelowPlanMinimum{Msg: fmt.Sprintf("deposit %v is below the %s minimum of %v", deposit.Amount, plan.Name, plan.MinimumDeposit)}
		}
	}
	return proc.addTransaction(ctx, userID, "deposit", deposit.Amount, deposit.Plan, deposit.TxHash)
}

// AddNewWithdrawal processes new withdrawal requests. The balance pre-check
// here mirrors the UI-side check; the debit itself happens on completion.
func (proc *Processor) AddNewWithdrawal(ctx context.Context, userID string, withdrawal modeldto.NewWithdrawal) (*modeldto.Transaction, error) {
	if withdrawal.Amount <= 0 {
		return nil, &serviceErrors.ServiceInvalidAmount{Msg: fmt.Sprintf("illegal withdrawal amount %v", withdrawal.Amount)}
	}
	if len(withdrawal.Address) == 0 {
		return nil, &serviceErrors.ServiceMissingField{Msg: "withdrawal address must not be empty"}
	}
	currentAmount, err := proc.storage.GetCurrentAmount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if currentAmount < withdrawal.Amount {
		return nil, &serviceErrors.ServiceNotEnoughFunds{Msg: fmt.Sprintf("not enough funds are available, present - %v, required - %v", currentAmount, withdrawal.Amount)}
	}
	return proc.addTransaction(ctx, userID, "withdrawal", withdrawal.Amount, "", withdrawal.Address)
}

func (proc *Processor) addTransaction(ctx context.Context, userID, txnType string, amount float64, plan, txHash string) (*modeldto.Transaction, error) {
	owner, err := proc.storage.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rate := defaultBTCRate
	if proc.rate != nil {
		if fetched, err := proc.rate.GetRate(ctx); err == nil && fetched > 0 {
			rate = fetched
		}
	}
	entry := modelstorage.TransactionStorageEntry{
		TransactionID: uuid.New().String(),
		UserID:        owner.UserID,
		UserEmail:     owner.Email,
		UserName:      owner.Name,
		Type:          txnType,
		Amount:        amount,
		Status:        "pending",
		Plan:          plan,
		BTCAmount:     amount / rate,
		TxHash:        txHash,
		CreatedAt:     time.Now().Format(time.RFC3339),
	}
	err = proc.storage.AddNewTransaction(ctx, entry)
	if err != nil {
		return nil, err
	}
	transaction := toTransactionDTO(entry)
	proc.publishTransactionEvent(ctx, modelevent.TypeTransactionCreated, &transaction)
	return &transaction, nil
}

// GetBalance processes balance query requests.
func (proc *Processor) GetBalance(ctx context.Context, userID string) (*modeldto.Balance, error) {
	entry, err := proc.storage.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	transactions, err := proc.storage.GetUserTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	balance := modeldto.Balance{CurrentAmount: entry.Balance}
	for _, transaction := range transactions {
		if transaction.Status != "pending" {
			continue
		}
		switch transaction.Type {
		case "deposit":
			balance.PendingDeposits += transaction.Amount
		case "withdrawal":
			balance.PendingWithdrawal += transaction.Amount
		}
	}
	return &balance, nil
}

// GetUserTransactions processes transaction history query requests.
func (proc *Processor) GetUserTransactions(ctx context.Context, userID string) ([]modeldto.Transaction, error) {
	entries, err := proc.storage.GetUserTransactions(ctx, userID)
	if err != nil {
		return proc.degradeOnCorruptRead(err)
	}
	return sortedTransactionDTOs(entries), nil
}

// GetUserProfits processes profit history query requests.
func (proc *Processor) GetUserProfits(ctx context.Context, userID string) ([]modeldto.Profit, error) {
	entries, err := proc.storage.GetUserProfits(ctx, userID)
	if err != nil {
		var scanningError *storageErrors.ScanningPSQLError
		if errors.As(err, &scanningError) {
			proc.log.Warn().Err(err).Msg("malformed profit records, degrading to an empty collection")
			return []modeldto.Profit{}, nil
		}
		return nil, err
	}
	profits := make([]modeldto.Profit, 0, len(entries))
	for _, entry := range entries {
		profits = append(profits, modeldto.Profit{
			UserID:        entry.UserID,
			TransactionID: entry.TransactionID,
			Amount:        entry.Amount,
			ProfitDate:    entry.ProfitDate,
		})
	}
	sort.Slice(profits, func(i, j int) bool {
		return profits[i].ProfitDate > profits[j].ProfitDate
	})
	return profits, nil
}

// GetPlans processes investment plan query requests.
func (proc *Processor) GetPlans(ctx context.Context) ([]modeldto.Plan, error) {
	entries, err := proc.storage.GetPlans(ctx)
	if err != nil {
		return nil, err
	}
	plans := make([]modeldto.Plan, 0, len(entries))
	for _, entry := range entries {
		plans = append(plans, modeldto.Plan{
			Name:           entry.Name,
			DailyPercent:   entry.DailyPercent,
			MinimumDeposit: entry.MinimumDeposit,
			DurationDays:   entry.DurationDays,
		})
	}
	return plans, nil
}

// LoginAdmin processes admin panel login requests. The grant is a short-lived
// role-bearing token rather than persistent trust in the shared secret.
func (proc *Processor) LoginAdmin(ctx context.Context, password string) (string, error) {
	if len(proc.secretCfg.AdminPassword) == 0 {
		return "", &serviceErrors.ServiceAccessDenied{Msg: "admin panel is disabled, no admin password is configured"}
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(proc.secretCfg.AdminPassword)) != 1 {
		return "", &serviceErrors.ServiceAccessDenied{Msg: "admin access denied"}
	}
	accessToken, _, err := proc.secretary.NewToken(modelclaims.RoleAdmin)
	if err != nil {
		return "", err
	}
	return accessToken, nil
}

// GetAllUsers returns the full registered-users collection for the admin view.
func (proc *Processor) GetAllUsers(ctx context.Context) ([]modeldto.User, error) {
	entries, err := proc.storage.GetAllUsers(ctx)
	if err != nil {
		var scanningError *storageErrors.ScanningPSQLError
		if errors.As(err, &scanningError) {
			proc.log.Warn().Err(err).Msg("malformed user records, degrading to an empty collection")
			return []modeldto.User{}, nil
		}
		return nil, err
	}
	users := make([]modeldto.User, 0, len(entries))
	for _, entry := range entries {
		attempts, err := proc.storage.GetLoginAttempts(ctx, entry.Email)
		if err != nil {
			attempts = 0
		}
		users = append(users, toUserDTO(entry, attempts))
	}
	return users, nil
}

// GetAllTransactions returns the full transaction collection irrespective of
// owner, newest first.
func (proc *Processor) GetAllTransactions(ctx context.Context) ([]modeldto.Transaction, error) {
	entries, err := proc.storage.GetAllTransactions(ctx)
	if err != nil {
		return proc.degradeOnCorruptRead(err)
	}
	return sortedTransactionDTOs(entries), nil
}

// SetUserBalance processes administrative balance overrides.
func (proc *Processor) SetUserBalance(ctx context.Context, userID string, newBalance float64) (*modeldto.User, error) {
	if newBalance < 0 {
		return nil, &serviceErrors.ServiceInvalidAmount{Msg: fmt.Sprintf("illegal balance %v", newBalance)}
	}
	entry, err := proc.storage.SetUserBalance(ctx, userID, newBalance)
	if err != nil {
		return nil, err
	}
	user := toUserDTO(entry, 0)
	proc.publishUserEvent(ctx, modelevent.TypeBalanceUpdated, &user)
	return &user, nil
}

// UpdateTransactionStatus processes administrative approval/rejection of a
// pending transaction.
func (proc *Processor) UpdateTransactionStatus(ctx context.Context, transactionID, status string) (*modeldto.Transaction, error) {
	if status != "completed" && status != "failed" {
		return nil, &serviceErrors.ServiceIllegalStatus{Msg: fmt.Sprintf("illegal terminal status %s", status)}
	}
	entry, err := proc.storage.UpdateTransactionStatus(ctx, transactionID, status)
	if err != nil {
		return nil, err
	}
	transaction := toTransactionDTO(entry)
	proc.publishTransactionEvent(ctx, modelevent.TypeTransactionUpdated, &transaction)
	return &transaction, nil
}

// WipeAllData irreversibly clears every persisted collection.
func (proc *Processor) WipeAllData(ctx context.Context) error {
	err := proc.storage.WipeAll(ctx)
	if err != nil {
		return err
	}
	proc.broadcaster.Publish(modelevent.Event{
		Type:         modelevent.TypeDataWiped,
		Timestamp:    time.Now().Format(time.RFC3339),
		Users:        []modeldto.User{},
		Transactions: []modeldto.Transaction{},
	})
	return nil
}

func (proc *Processor) publishUserEvent(ctx context.Context, eventType string, user *modeldto.User) {
	event := modelevent.Event{
		Type:      eventType,
		Timestamp: time.Now().Format(time.RFC3339),
		User:      user,
	}
	if users, err := proc.GetAllUsers(ctx); err == nil {
		event.Users = users
	} else {
		proc.log.Warn().Err(err).Msg("skipping user snapshot in broadcast")
	}
	proc.broadcaster.Publish(event)
}

func (proc *Processor) publishTransactionEvent(ctx context.Context, eventType string, transaction *modeldto.Transaction) {
	event := modelevent.Event{
		Type:        eventType,
		Timestamp:   time.Now().Format(time.RFC3339),
		Transaction: transaction,
	}
	if transactions, err := proc.GetAllTransactions(ctx); err == nil {
		event.Transactions = transactions
	} else {
		proc.log.Warn().Err(err).Msg("skipping transaction snapshot in broadcast")
	}
	if eventType == modelevent.TypeTransactionUpdated {
		// a terminal transition may have moved a balance
		if users, err := proc.GetAllUsers(ctx); err == nil {
			event.Users = users
		}
	}
	proc.broadcaster.Publish(event)
}

func (proc *Processor) degradeOnCorruptRead(err error) ([]modeldto.Transaction, error) {
	var scanningError *storageErrors.ScanningPSQLError
	if errors.As(err, &scanningError) {
		proc.log.Warn().Err(err).Msg("malformed transaction records, degrading to an empty collection")
		return []modeldto.Transaction{}, nil
	}
	return nil, err
}

func toUserDTO(entry modelstorage.UserStorageEntry, attempts int) modeldto.User {
	return modeldto.User{
		ID:               entry.UserID,
		Email:            entry.Email,
		Name:             entry.Name,
		Balance:          entry.Balance,
		RegistrationDate: entry.RegisteredAt,
		LastLoginDate:    entry.LastLoginAt,
		LoginAttempts:    attempts,
	}
}

func toTransactionDTO(entry modelstorage.TransactionStorageEntry) modeldto.Transaction {
	return modeldto.Transaction{
		ID:        entry.TransactionID,
		Type:      entry.Type,
		Amount:    entry.Amount,
		Status:    entry.Status,
		Date:      entry.CreatedAt,
		Plan:      entry.Plan,
		BTCAmount: entry.BTCAmount,
		TxHash:    entry.TxHash,
		UserID:    entry.UserID,
		UserEmail: entry.UserEmail,
		UserName:  entry.UserName,
	}
}

func sortedTransactionDTOs(entries []modelstorage.TransactionStorageEntry) []modeldto.Transaction {
	transactions := make([]modeldto.Transaction, 0, len(entries))
	for _, entry := range entries {
		transactions = append(transactions, toTransactionDTO(entry))
	}
	sort.Slice(transactions, func(i, j int) bool {
		time1, _ := time.Parse(time.RFC3339, transactions[i].Date)
		time2, _ := time.Parse(time.RFC3339, transactions[j].Date)
		return time2.Before(time1)
	})
	return transactions
}
