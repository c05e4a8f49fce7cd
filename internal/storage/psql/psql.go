// Package psql implements PSQL-based storage for users, transactions, plans
// and accrued profits.
package psql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/capitalengine/capitalengine/internal/config"
	"github.com/capitalengine/capitalengine/internal/models/modelstorage"
	storageErrors "github.com/capitalengine/capitalengine/internal/storage/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type Storage struct {
	Cfg *config.StorageConfig
	DB  *sql.DB
	log *zerolog.Logger
}

func InitStorage(ctx context.Context, cfg *config.StorageConfig, log *zerolog.Logger) (*Storage, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	st := Storage{
		Cfg: cfg,
		DB:  db,
		log: log,
	}
	err = st.createTables(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	err = st.seedPlans(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	log.Info().Msg("PSQL DB connection was established")
	return &st, nil
}

func (s *Storage) Close() error {
	return s.DB.Close()
}

func (s *Storage) AddNewUser(ctx context.Context, user modelstorage.UserStorageEntry) error {
	newUserStmt, err := s.DB.PrepareContext(ctx, "INSERT INTO users (user_id, email, name, password_hash, balance, registered_at, last_login_at) VALUES ($1, $2, $3, $4, $5, $6, $7)")
	if err != nil {
		return &storageErrors.StatementPSQLError{Err: err}
	}
	defer newUserStmt.Close()
	chanOk := make(chan bool, 1)
	chanEr := make(chan error, 1)
	go func() {
		// balance is always 0 at registration, no exceptions
		_, err := newUserStmt.ExecContext(ctx, user.UserID, strings.ToLower(user.Email), user.Name, user.PasswordHash, 0, user.RegisteredAt, user.LastLoginAt)
		if err != nil {
			if err, ok := err.(*pgconn.PgError); ok && err.Code == pgerrcode.UniqueViolation {
				chanEr <- &storageErrors.AlreadyExistsError{Err: err, ID: user.Email}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()

	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("adding new user failed for %s", user.Email))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("adding new user failed for %s", user.Email))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("adding new user done for %s", user.Email))
		return nil
	}
}

func (s *Storage) CheckUser(ctx context.Context, email, password string) (modelstorage.UserStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT id, user_id, email, name, password_hash, balance, registered_at, last_login_at FROM users WHERE email = $1")
	if err != nil {
		return modelstorage.UserStorageEntry{}, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan modelstorage.UserStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		email := strings.ToLower(email)
		var queryOutput modelstorage.UserStorageEntry
		err := selectStmt.QueryRowContext(ctx, email).Scan(&queryOutput.ID, &queryOutput.UserID, &queryOutput.Email, &queryOutput.Name, &queryOutput.PasswordHash, &queryOutput.Balance, &queryOutput.RegisteredAt, &queryOutput.LastLoginAt)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				// no failed-attempt counter is created for unknown emails
				chanEr <- &storageErrors.NotFoundError{Err: err}
				return
			default:
				chanEr <- err
				return
			}
		}
		if err := bcrypt.CompareHashAndPassword([]byte(queryOutput.PasswordHash), []byte(password)); err != nil {
			var attempts int
			err := s.DB.QueryRowContext(ctx, "INSERT INTO login_attempts (email, count) VALUES ($1, 1) ON CONFLICT (email) DO UPDATE SET count = login_attempts.count + 1 RETURNING count", email).Scan(&attempts)
			if err != nil {
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
			chanEr <- &storageErrors.WrongPasswordError{Email: email, Attempts: attempts}
			return
		}
		_, err = s.DB.ExecContext(ctx, "DELETE FROM login_attempts WHERE email = $1", email)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		queryOutput.LastLoginAt = time.Now().Format(time.RFC3339)
		_, err = s.DB.ExecContext(ctx, "UPDATE users SET last_login_at = $1 WHERE email = $2", queryOutput.LastLoginAt, email)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- queryOutput
	}()

	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("user authentication failed")
		return modelstorage.UserStorageEntry{}, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("user authentication failed")
		return modelstorage.UserStorageEntry{}, methodErr
	case entry := <-chanOk:
		s.log.Info().Msg("user authentication done")
		return entry, nil
	}
}

func (s *Storage) GetUser(ctx context.Context, userID string) (modelstorage.UserStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT id, user_id, email, name, password_hash, balance, registered_at, last_login_at FROM users WHERE user_id = $1")
	if err != nil {
		return modelstorage.UserStorageEntry{}, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan modelstorage.UserStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		var queryOutput modelstorage.UserStorageEntry
		err := selectStmt.QueryRowContext(ctx, userID).Scan(&queryOutput.ID, &queryOutput.UserID, &queryOutput.Email, &queryOutput.Name, &queryOutput.PasswordHash, &queryOutput.Balance, &queryOutput.RegisteredAt, &queryOutput.LastLoginAt)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				chanEr <- &storageErrors.NotFoundError{Err: err}
				return
			default:
				chanEr <- err
				return
			}
		}
		chanOk <- queryOutput
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("getting user failed")
		return modelstorage.UserStorageEntry{}, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("getting user failed")
		return modelstorage.UserStorageEntry{}, methodErr
	case entry := <-chanOk:
		return entry, nil
	}
}

func (s *Storage) GetAllUsers(ctx context.Context) ([]modelstorage.UserStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT id, user_id, email, name, password_hash, balance, registered_at, last_login_at FROM users")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan []modelstorage.UserStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		rows, err := selectStmt.QueryContext(ctx)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer rows.Close()
		var queryOutput []modelstorage.UserStorageEntry
		for rows.Next() {
			var queryOutputRow modelstorage.UserStorageEntry
			err = rows.Scan(&queryOutputRow.ID, &queryOutputRow.UserID, &queryOutputRow.Email, &queryOutputRow.Name, &queryOutputRow.PasswordHash, &queryOutputRow.Balance, &queryOutputRow.RegisteredAt, &queryOutputRow.LastLoginAt)
			if err != nil {
				chanEr <- &storageErrors.ScanningPSQLError{Err: err}
				return
			}
			queryOutput = append(queryOutput, queryOutputRow)
		}
		if err := rows.Err(); err != nil {
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		chanOk <- queryOutput
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("getting all users failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("getting all users failed")
		return nil, methodErr
	case entries := <-chanOk:
		return entries, nil
	}
}

func (s *Storage) GetLoginAttempts(ctx context.Context, email string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, "SELECT count FROM login_attempts WHERE email = $1", strings.ToLower(email)).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, &storageErrors.ExecutionPSQLError{Err: err}
	}
	return count, nil
}

func (s *Storage) AddNewTransaction(ctx context.Context, entry modelstorage.TransactionStorageEntry) error {
	newTxnStmt, err := s.DB.PrepareContext(ctx, "INSERT INTO transactions (transaction_id, user_id, user_email, user_name, type, amount, status, plan, btc_amount, tx_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)")
	if err != nil {
		return &storageErrors.StatementPSQLError{Err: err}
	}
	defer newTxnStmt.Close()
	chanOk := make(chan bool, 1)
	chanEr := make(chan error, 1)
	go func() {
		_, err := newTxnStmt.ExecContext(ctx, entry.TransactionID, entry.UserID, entry.UserEmail, entry.UserName, entry.Type, entry.Amount, entry.Status, entry.Plan, entry.BTCAmount, entry.TxHash, entry.CreatedAt)
		if err != nil {
			if err, ok := err.(*pgconn.PgError); ok && err.Code == pgerrcode.UniqueViolation {
				chanEr <- &storageErrors.AlreadyExistsError{Err: err, ID: entry.TransactionID}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("adding new transaction failed for %s", entry.TransactionID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("adding new transaction failed for %s", entry.TransactionID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("adding new transaction done for %s", entry.TransactionID))
		return nil
	}
}

func (s *Storage) GetUserTransactions(ctx context.Context, userID string) ([]modelstorage.TransactionStorageEntry, error) {
	return s.getTransactions(ctx, "SELECT id, transaction_id, user_id, user_email, user_name, type, amount, status, plan, btc_amount, tx_hash, created_at FROM transactions WHERE user_id = $1", userID)
}

func (s *Storage) GetAllTransactions(ctx context.Context) ([]modelstorage.TransactionStorageEntry, error) {
	return s.getTransactions(ctx, "SELECT id, transaction_id, user_id, user_email, user_name, type, amount, status, plan, btc_amount, tx_hash, created_at FROM transactions")
}

func (s *Storage) getTransactions(ctx context.Context, query string, args ...interface{}) ([]modelstorage.TransactionStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, query)
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan []modelstorage.TransactionStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		rows, err := selectStmt.QueryContext(ctx, args...)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer rows.Close()
		var queryOutput []modelstorage.TransactionStorageEntry
		for rows.Next() {
			var queryOutputRow modelstorage.TransactionStorageEntry
			err = rows.Scan(&queryOutputRow.ID, &queryOutputRow.TransactionID, &queryOutputRow.UserID, &queryOutputRow.UserEmail, &queryOutputRow.UserName, &queryOutputRow.Type, &queryOutputRow.Amount, &queryOutputRow.Status, &queryOutputRow.Plan, &queryOutputRow.BTCAmount, &queryOutputRow.TxHash, &queryOutputRow.CreatedAt)
			if err != nil {
				chanEr <- &storageErrors.ScanningPSQLError{Err: err}
				return
			}
			queryOutput = append(queryOutput, queryOutputRow)
		}
		if err := rows.Err(); err != nil {
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		chanOk <- queryOutput
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("getting transactions failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("getting transactions failed")
		return nil, methodErr
	case entries := <-chanOk:
		return entries, nil
	}
}

// UpdateTransactionStatus moves a pending transaction to a terminal status and
// applies the balance effect inside one DB transaction. Non-pending
// transactions are left untouched.
func (s *Storage) UpdateTransactionStatus(ctx context.Context, transactionID, status string) (modelstorage.TransactionStorageEntry, error) {
	chanOk := make(chan modelstorage.TransactionStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		var entry modelstorage.TransactionStorageEntry
		// the status guard makes terminal transitions one-shot
		err = tx.QueryRowContext(ctx, "UPDATE transactions SET status = $2 WHERE transaction_id = $1 AND status = 'pending' RETURNING id, transaction_id, user_id, user_email, user_name, type, amount, status, plan, btc_amount, tx_hash, created_at", transactionID, status).Scan(&entry.ID, &entry.TransactionID, &entry.UserID, &entry.UserEmail, &entry.UserName, &entry.Type, &entry.Amount, &entry.Status, &entry.Plan, &entry.BTCAmount, &entry.TxHash, &entry.CreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				var exists bool
				err := s.DB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM transactions WHERE transaction_id = $1)", transactionID).Scan(&exists)
				if err != nil {
					chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
					return
				}
				if exists {
					chanEr <- &storageErrors.NotPendingError{ID: transactionID}
					return
				}
				chanEr <- &storageErrors.NotFoundError{Err: sql.ErrNoRows}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		if status == "completed" {
			switch entry.Type {
			case "deposit":
				_, err = tx.ExecContext(ctx, "UPDATE users SET balance = balance + $1 WHERE user_id = $2", entry.Amount, entry.UserID)
				if err != nil {
					chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
					return
				}
			case "withdrawal":
				res, err := tx.ExecContext(ctx, "UPDATE users SET balance = balance - $1 WHERE user_id = $2 AND balance >= $1", entry.Amount, entry.UserID)
				if err != nil {
					chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
					return
				}
				affected, err := res.RowsAffected()
				if err != nil {
					chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
					return
				}
				if affected == 0 {
					// rollback keeps the transaction pending
					var available float64
					if err := tx.QueryRowContext(ctx, "SELECT balance FROM users WHERE user_id = $1", entry.UserID).Scan(&available); err != nil {
						chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
						return
					}
					chanEr <- &storageErrors.NotEnoughFundsError{Available: available, Required: entry.Amount}
					return
				}
			}
		}
		if err := tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- entry
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("updating transaction status failed for %s", transactionID))
		return modelstorage.TransactionStorageEntry{}, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("updating transaction status failed for %s", transactionID))
		return modelstorage.TransactionStorageEntry{}, methodErr
	case entry := <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("updating transaction status done for %s", transactionID))
		return entry, nil
	}
}

func (s *Storage) SetUserBalance(ctx context.Context, userID string, amount float64) (modelstorage.UserStorageEntry, error) {
	chanOk := make(chan modelstorage.UserStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		var entry modelstorage.UserStorageEntry
		err := s.DB.QueryRowContext(ctx, "UPDATE users SET balance = $2 WHERE user_id = $1 RETURNING id, user_id, email, name, password_hash, balance, registered_at, last_login_at", userID, amount).Scan(&entry.ID, &entry.UserID, &entry.Email, &entry.Name, &entry.PasswordHash, &entry.Balance, &entry.RegisteredAt, &entry.LastLoginAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				chanEr <- &storageErrors.NotFoundError{Err: err}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- entry
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("setting balance failed for %s", userID))
		return modelstorage.UserStorageEntry{}, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("setting balance failed for %s", userID))
		return modelstorage.UserStorageEntry{}, methodErr
	case entry := <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("setting balance done for %s", userID))
		return entry, nil
	}
}

func (s *Storage) GetCurrentAmount(ctx context.Context, userID string) (float64, error) {
	var amount float64
	err := s.DB.QueryRowContext(ctx, "SELECT balance FROM users WHERE user_id = $1", userID).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &storageErrors.NotFoundError{Err: err}
		}
		return 0, &storageErrors.ExecutionPSQLError{Err: err}
	}
	return amount, nil
}

func (s *Storage) GetPlans(ctx context.Context) ([]modelstorage.PlanStorageEntry, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT id, name, daily_percent, minimum_deposit, duration_days FROM plans ORDER BY minimum_deposit")
	if err != nil {
		return nil, &storageErrors.ExecutionPSQLError{Err: err}
	}
	defer rows.Close()
	var plans []modelstorage.PlanStorageEntry
	for rows.Next() {
		var plan modelstorage.PlanStorageEntry
		err = rows.Scan(&plan.ID, &plan.Name, &plan.DailyPercent, &plan.MinimumDeposit, &plan.DurationDays)
		if err != nil {
			return nil, &storageErrors.ScanningPSQLError{Err: err}
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, &storageErrors.ScanningPSQLError{Err: err}
	}
	return plans, nil
}

func (s *Storage) GetPlan(ctx context.Context, name string) (modelstorage.PlanStorageEntry, error) {
	var plan modelstorage.PlanStorageEntry
	err := s.DB.QueryRowContext(ctx, "SELECT id, name, daily_percent, minimum_deposit, duration_days FROM plans WHERE name = $1", name).Scan(&plan.ID, &plan.Name, &plan.DailyPercent, &plan.MinimumDeposit, &plan.DurationDays)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return modelstorage.PlanStorageEntry{}, &storageErrors.NotFoundError{Err: err}
		}
		return modelstorage.PlanStorageEntry{}, &storageErrors.ExecutionPSQLError{Err: err}
	}
	return plan, nil
}

// AccrueProfits credits one daily profit per eligible deposit for the given
// date. The (transaction_id, profit_date) unique key makes repeated runs for
// the same date no-ops.
func (s *Storage) AccrueProfits(ctx context.Context, profitDate string) ([]modelstorage.ProfitStorageEntry, error) {
	chanOk := make(chan []modelstorage.ProfitStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		rows, err := s.DB.QueryContext(ctx, `SELECT t.transaction_id, t.user_id, t.amount * p.daily_percent / 100
			FROM transactions t JOIN plans p ON p.name = t.plan
			WHERE t.type = 'deposit' AND t.status = 'completed'
			AND t.created_at::timestamptz + (p.duration_days || ' days')::interval > now()`)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		var candidates []modelstorage.ProfitStorageEntry
		for rows.Next() {
			var c modelstorage.ProfitStorageEntry
			if err := rows.Scan(&c.TransactionID, &c.UserID, &c.Amount); err != nil {
				rows.Close()
				chanEr <- &storageErrors.ScanningPSQLError{Err: err}
				return
			}
			c.ProfitDate = profitDate
			candidates = append(candidates, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		rows.Close()
		var accrued []modelstorage.ProfitStorageEntry
		for _, c := range candidates {
			tx, err := s.DB.BeginTx(ctx, nil)
			if err != nil {
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
			res, err := tx.ExecContext(ctx, "INSERT INTO profits (user_id, transaction_id, amount, profit_date) VALUES ($1, $2, $3, $4) ON CONFLICT (transaction_id, profit_date) DO NOTHING", c.UserID, c.TransactionID, c.Amount, c.ProfitDate)
			if err != nil {
				tx.Rollback()
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
			inserted, err := res.RowsAffected()
			if err != nil {
				tx.Rollback()
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
			if inserted == 0 {
				tx.Rollback()
				continue
			}
			_, err = tx.ExecContext(ctx, "UPDATE users SET balance = balance + $1 WHERE user_id = $2", c.Amount, c.UserID)
			if err != nil {
				tx.Rollback()
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
			if err := tx.Commit(); err != nil {
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
			accrued = append(accrued, c)
		}
		chanOk <- accrued
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("profit accrual failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("profit accrual failed")
		return nil, methodErr
	case accrued := <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("profit accrual done, %d entries for %s", len(accrued), profitDate))
		return accrued, nil
	}
}

func (s *Storage) GetUserProfits(ctx context.Context, userID string) ([]modelstorage.ProfitStorageEntry, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT id, user_id, transaction_id, amount, profit_date FROM profits WHERE user_id = $1", userID)
	if err != nil {
		return nil, &storageErrors.ExecutionPSQLError{Err: err}
	}
	defer rows.Close()
	var profits []modelstorage.ProfitStorageEntry
	for rows.Next() {
		var profit modelstorage.ProfitStorageEntry
		err = rows.Scan(&profit.ID, &profit.UserID, &profit.TransactionID, &profit.Amount, &profit.ProfitDate)
		if err != nil {
			return nil, &storageErrors.ScanningPSQLError{Err: err}
		}
		profits = append(profits, profit)
	}
	if err := rows.Err(); err != nil {
		return nil, &storageErrors.ScanningPSQLError{Err: err}
	}
	return profits, nil
}

// WipeAll irreversibly clears every persisted collection except plan
// definitions, which are seed configuration rather than user data.
func (s *Storage) WipeAll(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, "TRUNCATE TABLE users, login_attempts, transactions, profits")
	if err != nil {
		return &storageErrors.ExecutionPSQLError{Err: err}
	}
	s.log.Warn().Msg("all user data wiped")
	return nil
}

func (s *Storage) createTables(ctx context.Context) error {
	var queries []string
	query := `CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL      NOT NULL,
		user_id       TEXT           NOT NULL UNIQUE,
		email         TEXT           NOT NULL UNIQUE,
		name          TEXT           NOT NULL,
		password_hash TEXT           NOT NULL,
		balance       NUMERIC(12, 2) NOT NULL CHECK (balance >= 0),
		registered_at TIMESTAMPTZ    NOT NULL,
		last_login_at TIMESTAMPTZ    NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS login_attempts (
		id    BIGSERIAL NOT NULL,
		email TEXT      NOT NULL UNIQUE,
		count INTEGER   NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS transactions (
		id             BIGSERIAL      NOT NULL,
		transaction_id TEXT           NOT NULL UNIQUE,
		user_id        TEXT           NOT NULL,
		user_email     TEXT           NOT NULL,
		user_name      TEXT           NOT NULL,
		type           TEXT           NOT NULL,
		amount         NUMERIC(12, 2) NOT NULL,
		status         TEXT           NOT NULL,
		plan           TEXT           NOT NULL,
		btc_amount     NUMERIC(16, 8) NOT NULL,
		tx_hash        TEXT           NOT NULL,
		created_at     TIMESTAMPTZ    NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS plans (
		id              BIGSERIAL      NOT NULL,
		name            TEXT           NOT NULL UNIQUE,
		daily_percent   NUMERIC(5, 2)  NOT NULL,
		minimum_deposit NUMERIC(12, 2) NOT NULL,
		duration_days   INTEGER        NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS profits (
		id             BIGSERIAL      NOT NULL,
		user_id        TEXT           NOT NULL,
		transaction_id TEXT           NOT NULL,
		amount         NUMERIC(12, 2) NOT NULL,
		profit_date    DATE           NOT NULL,
		UNIQUE (transaction_id, profit_date)
	);`
	queries = append(queries, query)
	for _, subquery := range queries {
		_, err := s.DB.ExecContext(ctx, subquery)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) seedPlans(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO plans (name, daily_percent, minimum_deposit, duration_days) VALUES
		('Basic Plan', 1.5, 100, 30),
		('Premium Plan', 2.5, 1000, 60),
		('VIP Plan', 4.0, 10000, 90)
		ON CONFLICT (name) DO NOTHING`)
	return err
}
