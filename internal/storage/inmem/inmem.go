// Package inmem implements process-local storage with the same contract as
// the PSQL store. It backs demo mode (no DATABASE_URI) where state does not
// survive a restart.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/capitalengine/capitalengine/internal/models/modelstorage"
	storageErrors "github.com/capitalengine/capitalengine/internal/storage/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type Storage struct {
	mu            sync.Mutex
	users         []modelstorage.UserStorageEntry
	attempts      map[string]int
	transactions  []modelstorage.TransactionStorageEntry
	plans         []modelstorage.PlanStorageEntry
	profits       []modelstorage.ProfitStorageEntry
	accruedByDate map[string]bool
	log           *zerolog.Logger
	nextID        uint
}

func InitStorage(log *zerolog.Logger) *Storage {
	st := Storage{
		attempts:      make(map[string]int),
		accruedByDate: make(map[string]bool),
		log:           log,
		plans: []modelstorage.PlanStorageEntry{
			{ID: 1, Name: "Basic Plan", DailyPercent: 1.5, MinimumDeposit: 100, DurationDays: 30},
			{ID: 2, Name: "Premium Plan", DailyPercent: 2.5, MinimumDeposit: 1000, DurationDays: 60},
			{ID: 3, Name: "VIP Plan", DailyPercent: 4.0, MinimumDeposit: 10000, DurationDays: 90},
		},
	}
	log.Info().Msg("in-memory storage initialized, state will not survive a restart")
	return &st
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) AddNewUser(_ context.Context, user modelstorage.UserStorageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	for _, u := range s.users {
		if u.Email == email {
			return &storageErrors.AlreadyExistsError{ID: user.Email}
		}
	}
	s.nextID++
	user.ID = s.nextID
	user.Email = email
	user.Balance = 0
	s.users = append(s.users, user)
	s.log.Info().Msg("adding new user done for " + email)
	return nil
}

func (s *Storage) CheckUser(_ context.Context, email, password string) (modelstorage.UserStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	idx := -1
	for i, u := range s.users {
		if u.Email == email {
			idx = i
			break
		}
	}
	if idx < 0 {
		return modelstorage.UserStorageEntry{}, &storageErrors.NotFoundError{}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.users[idx].PasswordHash), []byte(password)); err != nil {
		s.attempts[email]++
		return modelstorage.UserStorageEntry{}, &storageErrors.WrongPasswordError{Email: email, Attempts: s.attempts[email]}
	}
	delete(s.attempts, email)
	s.users[idx].LastLoginAt = time.Now().Format(time.RFC3339)
	return s.users[idx], nil
}

func (s *Storage) GetUser(_ context.Context, userID string) (modelstorage.UserStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.UserID == userID {
			return u, nil
		}
	}
	return modelstorage.UserStorageEntry{}, &storageErrors.NotFoundError{}
}

func (s *Storage) GetAllUsers(_ context.Context) ([]modelstorage.UserStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]modelstorage.UserStorageEntry, len(s.users))
	copy(users, s.users)
	return users, nil
}

func (s *Storage) GetLoginAttempts(_ context.Context, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[strings.ToLower(email)], nil
}

func (s *Storage) AddNewTransaction(_ context.Context, entry modelstorage.TransactionStorageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.TransactionID == entry.TransactionID {
			return &storageErrors.AlreadyExistsError{ID: entry.TransactionID}
		}
	}
	s.nextID++
	entry.ID = s.nextID
	s.transactions = append(s.transactions, entry)
	s.log.Info().Msg("adding new transaction done for " + entry.TransactionID)
	return nil
}

func (s *Storage) GetUserTransactions(_ context.Context, userID string) ([]modelstorage.TransactionStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []modelstorage.TransactionStorageEntry
	for _, t := range s.transactions {
		if t.UserID == userID {
			entries = append(entries, t)
		}
	}
	return entries, nil
}

func (s *Storage) GetAllTransactions(_ context.Context) ([]modelstorage.TransactionStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]modelstorage.TransactionStorageEntry, len(s.transactions))
	copy(entries, s.transactions)
	return entries, nil
}

func (s *Storage) UpdateTransactionStatus(_ context.Context, transactionID, status string) (modelstorage.TransactionStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, t := range s.transactions {
		if t.TransactionID == transactionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return modelstorage.TransactionStorageEntry{}, &storageErrors.NotFoundError{}
	}
	if s.transactions[idx].Status != "pending" {
		return modelstorage.TransactionStorageEntry{}, &storageErrors.NotPendingError{ID: transactionID}
	}
	entry := s.transactions[idx]
	if status == "completed" {
		uIdx := s.userIndex(entry.UserID)
		if uIdx < 0 {
			return modelstorage.TransactionStorageEntry{}, &storageErrors.NotFoundError{}
		}
		switch entry.Type {
		case "deposit":
			s.users[uIdx].Balance += entry.Amount
		case "withdrawal":
			if s.users[uIdx].Balance < entry.Amount {
				// leave the transaction pending
				return modelstorage.TransactionStorageEntry{}, &storageErrors.NotEnoughFundsError{Available: s.users[uIdx].Balance, Required: entry.Amount}
			}
			s.users[uIdx].Balance -= entry.Amount
		}
	}
	s.transactions[idx].Status = status
	entry.Status = status
	s.log.Info().Msg("updating transaction status done for " + transactionID)
	return entry, nil
}

func (s *Storage) SetUserBalance(_ context.Context, userID string, amount float64) (modelstorage.UserStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.userIndex(userID)
	if idx < 0 {
		return modelstorage.UserStorageEntry{}, &storageErrors.NotFoundError{}
	}
	s.users[idx].Balance = amount
	s.log.Info().Msg("setting balance done for " + userID)
	return s.users[idx], nil
}

func (s *Storage) GetCurrentAmount(_ context.Context, userID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.userIndex(userID)
	if idx < 0 {
		return 0, &storageErrors.NotFoundError{}
	}
	return s.users[idx].Balance, nil
}

func (s *Storage) GetPlans(_ context.Context) ([]modelstorage.PlanStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plans := make([]modelstorage.PlanStorageEntry, len(s.plans))
	copy(plans, s.plans)
	sort.Slice(plans, func(i, j int) bool { return plans[i].MinimumDeposit < plans[j].MinimumDeposit })
	return plans, nil
}

func (s *Storage) GetPlan(_ context.Context, name string) (modelstorage.PlanStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.Name == name {
			return p, nil
		}
	}
	return modelstorage.PlanStorageEntry{}, &storageErrors.NotFoundError{}
}

func (s *Storage) AccrueProfits(_ context.Context, profitDate string) ([]modelstorage.ProfitStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var accrued []modelstorage.ProfitStorageEntry
	for _, t := range s.transactions {
		if t.Type != "deposit" || t.Status != "completed" {
			continue
		}
		var plan *modelstorage.PlanStorageEntry
		for i := range s.plans {
			if s.plans[i].Name == t.Plan {
				plan = &s.plans[i]
				break
			}
		}
		if plan == nil {
			continue
		}
		createdAt, err := time.Parse(time.RFC3339, t.CreatedAt)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping profit accrual for malformed transaction date")
			continue
		}
		if time.Now().After(createdAt.AddDate(0, 0, plan.DurationDays)) {
			continue
		}
		key := t.TransactionID + "/" + profitDate
		if s.accruedByDate[key] {
			continue
		}
		uIdx := s.userIndex(t.UserID)
		if uIdx < 0 {
			continue
		}
		s.nextID++
		entry := modelstorage.ProfitStorageEntry{
			ID:            s.nextID,
			UserID:        t.UserID,
			TransactionID: t.TransactionID,
			Amount:        t.Amount * plan.DailyPercent / 100,
			ProfitDate:    profitDate,
		}
		s.accruedByDate[key] = true
		s.profits = append(s.profits, entry)
		s.users[uIdx].Balance += entry.Amount
		accrued = append(accrued, entry)
	}
	return accrued, nil
}

func (s *Storage) GetUserProfits(_ context.Context, userID string) ([]modelstorage.ProfitStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var profits []modelstorage.ProfitStorageEntry
	for _, p := range s.profits {
		if p.UserID == userID {
			profits = append(profits, p)
		}
	}
	return profits, nil
}

func (s *Storage) WipeAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = nil
	s.transactions = nil
	s.profits = nil
	s.attempts = make(map[string]int)
	s.accruedByDate = make(map[string]bool)
	s.log.Warn().Msg("all user data wiped")
	return nil
}

// userIndex must be called with the mutex held.
func (s *Storage) userIndex(userID string) int {
	for i, u := range s.users {
		if u.UserID == userID {
			return i
		}
	}
	return -1
}
