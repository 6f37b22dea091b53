package models

import "time"

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionSucceeded TransactionStatus = "SUCCEEDED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// OutgoingTransaction is a ledger row for a payment sent on behalf of a user.
// AmountMsats is what left the node; AmountSettlement is what is debited
// from the user's balance in CurrencyCode.
type OutgoingTransaction struct {
	PaymentID           string
	UserID              string
	CounterpartyAddress string
	AmountMsats         int64
	AmountSettlement    int64
	CurrencyCode        string
	BackendPaymentID    string
	Status              TransactionStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MonitoredPayment is a settled payment registered for ongoing compliance
// monitoring. Artifacts holds the JSON-encoded settlement outputs.
type MonitoredPayment struct {
	PaymentID string
	NodeID    string
	Direction string
	Artifacts []byte
	CreatedAt time.Time
}
