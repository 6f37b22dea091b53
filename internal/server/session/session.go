// Package session threads state between the lookup, payreq and sendpayment
// phases. Records are phase-typed and share one keyspace; a lookup with the
// wrong phase is treated as a miss.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/umasend/internal/server/currency"
)

var ErrNotFound = errors.New("session not found")

type Phase int

const (
	PhaseLookup Phase = iota + 1
	PhasePayReq
)

func (p Phase) String() string {
	switch p {
	case PhaseLookup:
		return "lookup"
	case PhasePayReq:
		return "payreq"
	default:
		return "unknown"
	}
}

// Record is a cached phase result.
type Record interface {
	Phase() Phase
}

// LookupSession is written by the lookup phase and read once by payreq.
type LookupSession struct {
	ReceiverID      string
	ReceivingDomain string
	UMAVersion      string
	UMAMajorVersion int
	Callback        string
	Currencies      []currency.Descriptor
	MinSendable     int64
	MaxSendable     int64
	// PayerData maps a payer-data field name to whether it is mandatory.
	PayerData     map[string]bool
	PlainFallback bool
	CreatedAt     time.Time
}

func (*LookupSession) Phase() Phase { return PhaseLookup }

// ReceiverAddress returns receiver@domain.
func (s *LookupSession) ReceiverAddress() string {
	return s.ReceiverID + "@" + s.ReceivingDomain
}

// PayReqSession is written by the payreq phase and consumed by sendpayment.
type PayReqSession struct {
	PayerIdentifier   string
	ReceiverAddress   string
	EncodedInstrument string
	// UTXOCallback is empty when the counterparty spoke the minimal protocol.
	UTXOCallback     string
	AmountBase       int64
	ExpiresAt        time.Time
	SenderCurrencies []currency.Descriptor
	CreatedAt        time.Time
}

func (*PayReqSession) Phase() Phase { return PhasePayReq }

// Store maps correlation ids to records. Implementations must make Take
// atomic so a record is handed out at most once.
type Store interface {
	Save(ctx context.Context, rec Record) (string, error)
	Restore(ctx context.Context, id string, rec Record) error
	Get(ctx context.Context, id string, phase Phase) (Record, error)
	Take(ctx context.Context, id string, phase Phase) (Record, error)
	Delete(ctx context.Context, id string) error
}

func GetLookup(ctx context.Context, s Store, id string) (*LookupSession, error) {
	rec, err := s.Get(ctx, id, PhaseLookup)
	if err != nil {
		return nil, err
	}
	return rec.(*LookupSession), nil
}

func TakeLookup(ctx context.Context, s Store, id string) (*LookupSession, error) {
	rec, err := s.Take(ctx, id, PhaseLookup)
	if err != nil {
		return nil, err
	}
	return rec.(*LookupSession), nil
}

func TakePayReq(ctx context.Context, s Store, id string) (*PayReqSession, error) {
	rec, err := s.Take(ctx, id, PhasePayReq)
	if err != nil {
		return nil, err
	}
	return rec.(*PayReqSession), nil
}
