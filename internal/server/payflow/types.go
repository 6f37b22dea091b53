package payflow

import (
	"context"
	"time"

	"github.com/dmitrijs2005/umasend/internal/server/currency"
	"github.com/dmitrijs2005/umasend/internal/server/keys"
)

// Caller is the authenticated end user driving a flow.
type Caller struct {
	ID        string
	UserName  string
	Name      string
	Email     string
	KYCStatus string
}

type UserDirectory interface {
	ResolveCaller(ctx context.Context, credentials string) (*Caller, error)
	SettlementCurrencies(ctx context.Context, userID string) ([]currency.Descriptor, error)
}

// OutgoingRecord is written to the ledger when a payment begins and again
// when it settles. PaymentID is generated before dispatch; BackendPaymentID
// is known only afterwards.
type OutgoingRecord struct {
	UserID              string
	CounterpartyAddress string
	AmountBase          int64
	AmountSettlement    int64
	Currency            string
	PaymentID           string
	BackendPaymentID    string
}

type Ledger interface {
	CheckBalance(ctx context.Context, userID, currencyCode string, amount int64) (bool, error)
	RecordBegan(ctx context.Context, rec OutgoingRecord) error
	RecordSucceeded(ctx context.Context, rec OutgoingRecord) error
	RecordFailed(ctx context.Context, rec OutgoingRecord) error
}

type Direction string

const (
	DirectionSent     Direction = "SENT"
	DirectionReceived Direction = "RECEIVED"
)

// SettlementArtifact is an on-chain output produced by a payment.
type SettlementArtifact struct {
	UTXO       string `json:"utxo"`
	AmountBase int64  `json:"amountMsats"`
}

type ComplianceGate interface {
	ShouldAcceptCounterparty(ctx context.Context, domain, callerHandle, fullAddress string) (bool, error)
	TravelRuleInfo(ctx context.Context, userID, payerID, payeeAddress string, amountBase int64) (string, error)
	PreScreen(ctx context.Context, payerID, payeeAddress string, amountBase int64, counterpartyNode string, utxos []string) (bool, error)
	RegisterMonitoring(ctx context.Context, paymentID, nodeID string, dir Direction, artifacts []SettlementArtifact) error
}

type KeyDirectory interface {
	FetchKeys(ctx context.Context, domain string) (*keys.PubKeys, error)
	// Invalidate forgets cached keys after a signature check fails.
	Invalidate(domain string)
}

type NodeKind string

const (
	NodeKindOSK           NodeKind = "OSK"
	NodeKindRemoteSigning NodeKind = "REMOTE_SIGNING"
)

type Node struct {
	ID                string
	PublicKey         string
	Kind              NodeKind
	Network           string
	PrescreeningUTXOs []string
}

// SigningCredential unlocks a node. OSK nodes use Password; remote-signing
// nodes use MasterSeed bound to Network.
type SigningCredential struct {
	Password   string
	MasterSeed []byte
	Network    string
}

type Instrument struct {
	AmountBase  int64
	ExpiresAt   time.Time
	PaymentHash string
}

type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusSuccess PaymentStatus = "SUCCESS"
	StatusFailed  PaymentStatus = "FAILED"
)

type Payment struct {
	ID            string
	Status        PaymentStatus
	FailureReason string
	Artifacts     []SettlementArtifact
}

type PaymentBackend interface {
	NodeInfo(ctx context.Context, nodeID string) (*Node, error)
	DecodeInstrument(ctx context.Context, encoded string) (*Instrument, error)
	LoadSigningKey(ctx context.Context, nodeID string, cred SigningCredential) (bool, error)
	DispatchPayment(ctx context.Context, nodeID, encoded string, maxFeeBase int64) (*Payment, error)
	PollPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// EvidenceArchive keeps verified counterparty messages for audit.
type EvidenceArchive interface {
	Put(ctx context.Context, key string, body []byte) error
}
