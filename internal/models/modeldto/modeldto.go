// Package modeldto provides types for API request and response bodies.

package modeldto

type (
	// Credentials is the register/login request body.
	Credentials struct {
		Name     string `json:"name,omitempty"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	// User is the externally visible user record. Password material never leaves storage.
	User struct {
		ID               string  `json:"id"`
		Email            string  `json:"email"`
		Name             string  `json:"name"`
		Balance          float64 `json:"balance"`
		RegistrationDate string  `json:"registrationDate"`
		LastLoginDate    string  `json:"lastLoginDate"`
		LoginAttempts    int     `json:"loginAttempts,omitempty"`
	}
	// Transaction carries a denormalized owner snapshot so the record is
	// self-describing outside the owner's session.
	Transaction struct {
		ID        string  `json:"id"`
		Type      string  `json:"type"`
		Amount    float64 `json:"amount"`
		Status    string  `json:"status"`
		Date      string  `json:"date"`
		Plan      string  `json:"plan,omitempty"`
		BTCAmount float64 `json:"btcAmount,omitempty"`
		TxHash    string  `json:"txHash,omitempty"`
		UserID    string  `json:"userId,omitempty"`
		UserEmail string  `json:"userEmail,omitempty"`
		UserName  string  `json:"userName,omitempty"`
	}
	NewDeposit struct {
		Amount float64 `json:"amount"`
		Plan   string  `json:"plan,omitempty"`
		TxHash string  `json:"txHash,omitempty"`
	}
	NewWithdrawal struct {
		Amount  float64 `json:"amount"`
		Address string  `json:"address"`
	}
	Balance struct {
		CurrentAmount     float64 `json:"current"`
		PendingDeposits   float64 `json:"pendingDeposits"`
		PendingWithdrawal float64 `json:"pendingWithdrawals"`
	}
	Plan struct {
		Name           string  `json:"name"`
		DailyPercent   float64 `json:"dailyProfitPercentage"`
		MinimumDeposit float64 `json:"minimumDeposit"`
		DurationDays   int     `json:"durationDays"`
	}
	Profit struct {
		UserID        string  `json:"userId"`
		TransactionID string  `json:"transactionId"`
		Amount        float64 `json:"amount"`
		ProfitDate    string  `json:"profitDate"`
	}
	AdminLogin struct {
		Password string `json:"password"`
	}
	BalanceOverride struct {
		UserID     string  `json:"userId"`
		NewBalance float64 `json:"newBalance"`
	}
	StatusUpdate struct {
		Status string `json:"status"`
	}
	PasswordReset struct {
		Email string `json:"email"`
	}
)
