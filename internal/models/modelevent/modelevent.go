// Package modelevent provides types for broadcast notifications.

package modelevent

import "github.com/capitalengine/capitalengine/internal/models/modeldto"

const (
	TypeUserRegistered     = "user_registered"
	TypeTransactionCreated = "transaction_created"
	TypeTransactionUpdated = "transaction_updated"
	TypeBalanceUpdated     = "balance_updated"
	TypeProfitsAccrued     = "profits_accrued"
	TypeDataWiped          = "data_wiped"
)

// Event is a full-snapshot broadcast entry: it carries the changed entity and,
// where applicable, the entire updated collection so that consumers replace
// rather than merge.
type Event struct {
	Type         string                 `json:"type"`
	Timestamp    string                 `json:"timestamp"`
	User         *modeldto.User         `json:"user,omitempty"`
	Transaction  *modeldto.Transaction  `json:"transaction,omitempty"`
	Users        []modeldto.User        `json:"allUsers,omitempty"`
	Transactions []modeldto.Transaction `json:"allTransactions,omitempty"`
	Profits      []modeldto.Profit      `json:"profits,omitempty"`
}
