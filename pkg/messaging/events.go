package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Vault event subjects.
const (
	SubjectDeposit       = "vault.deposit"
	SubjectWithdrawal    = "vault.withdrawal"
	SubjectOwnerChanged  = "vault.owner_changed"
	SubjectOracleUpdated = "vault.oracle_updated"

	// SubjectReceived carries inbound payments with no operation selector;
	// the vault service treats each as an implicit deposit from the sender.
	SubjectReceived = "vault.received"
)

// BalanceEvent describes a completed deposit or withdrawal.
type BalanceEvent struct {
	ID         uuid.UUID `json:"id"`
	Account    string    `json:"account"`
	Amount     string    `json:"amount"`
	NewBalance string    `json:"new_balance"`
	Timestamp  time.Time `json:"timestamp"`
}

// OwnerChangedEvent describes an ownership transfer.
type OwnerChangedEvent struct {
	ID        uuid.UUID `json:"id"`
	OldOwner  string    `json:"old_owner"`
	NewOwner  string    `json:"new_owner"`
	Timestamp time.Time `json:"timestamp"`
}

// OracleUpdatedEvent describes a repointed price oracle.
type OracleUpdatedEvent struct {
	ID        uuid.UUID `json:"id"`
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
}

// ReceivedPayment is an inbound payment published on SubjectReceived.
type ReceivedPayment struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}
