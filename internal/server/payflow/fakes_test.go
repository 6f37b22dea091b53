package payflow

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/umasend/internal/cryptox"
	"github.com/dmitrijs2005/umasend/internal/logging"
	"github.com/dmitrijs2005/umasend/internal/server/currency"
	"github.com/dmitrijs2005/umasend/internal/server/keys"
	"github.com/dmitrijs2005/umasend/internal/server/session"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto/umatest"
)

const testBaseURL = "http://payer.test"

var alice = &Caller{
	ID:        "u-alice",
	UserName:  "alice",
	Name:      "Alice Doe",
	Email:     "alice@payer.test",
	KYCStatus: umaproto.KYCVerified,
}

type fakeUsers struct {
	currencies []currency.Descriptor
	err        error
}

func (f *fakeUsers) ResolveCaller(_ context.Context, _ string) (*Caller, error) {
	return alice, nil
}

func (f *fakeUsers) SettlementCurrencies(_ context.Context, _ string) ([]currency.Descriptor, error) {
	return f.currencies, f.err
}

type balanceCheck struct {
	currency string
	amount   int64
}

type fakeLedger struct {
	mu         sync.Mutex
	sufficient bool
	checks     int
	checked    []balanceCheck
	began      []OutgoingRecord
	succeeded  []OutgoingRecord
	failed     []OutgoingRecord
}

func (f *fakeLedger) CheckBalance(_ context.Context, _, code string, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	f.checked = append(f.checked, balanceCheck{currency: code, amount: amount})
	return f.sufficient, nil
}

func (f *fakeLedger) setSufficient(v bool) {
	f.mu.Lock()
	f.sufficient = v
	f.mu.Unlock()
}

func (f *fakeLedger) RecordBegan(_ context.Context, rec OutgoingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.began = append(f.began, rec)
	return nil
}

func (f *fakeLedger) RecordSucceeded(_ context.Context, rec OutgoingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.succeeded = append(f.succeeded, rec)
	return nil
}

func (f *fakeLedger) RecordFailed(_ context.Context, rec OutgoingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, rec)
	return nil
}

type fakeCompliance struct {
	mu           sync.Mutex
	denyDomain   bool
	denyScreen   bool
	screened     []string
	registered   []string
	registerNode string
}

func (f *fakeCompliance) ShouldAcceptCounterparty(_ context.Context, _, _, _ string) (bool, error) {
	return !f.denyDomain, nil
}

func (f *fakeCompliance) TravelRuleInfo(_ context.Context, _, payerID, payeeAddress string, _ int64) (string, error) {
	return `{"originator":"` + payerID + `","beneficiary":"` + payeeAddress + `"}`, nil
}

func (f *fakeCompliance) PreScreen(_ context.Context, _, payeeAddress string, _ int64, _ string, _ []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screened = append(f.screened, payeeAddress)
	return !f.denyScreen, nil
}

func (f *fakeCompliance) RegisterMonitoring(_ context.Context, paymentID, nodeID string, _ Direction, _ []SettlementArtifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, paymentID)
	f.registerNode = nodeID
	return nil
}

type fakeBackend struct {
	mu sync.Mutex

	node       Node
	instrument Instrument
	decodeErr  error
	loadOK     bool
	dispatch   Payment
	// polls is the sequence of statuses returned by PollPayment; the last
	// one repeats.
	polls     []PaymentStatus
	artifacts []SettlementArtifact

	loadCalls     int
	lastCred      SigningCredential
	dispatchCalls int
	pollCalls     int
}

func (f *fakeBackend) NodeInfo(_ context.Context, nodeID string) (*Node, error) {
	n := f.node
	n.ID = nodeID
	return &n, nil
}

func (f *fakeBackend) DecodeInstrument(_ context.Context, _ string) (*Instrument, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	inst := f.instrument
	return &inst, nil
}

func (f *fakeBackend) LoadSigningKey(_ context.Context, _ string, cred SigningCredential) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	f.lastCred = cred
	return f.loadOK, nil
}

func (f *fakeBackend) DispatchPayment(_ context.Context, _, _ string, _ int64) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatchCalls++
	p := f.dispatch
	return &p, nil
}

func (f *fakeBackend) PollPayment(_ context.Context, id string) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if len(f.polls) == 0 {
		return nil, errors.New("no poll script")
	}
	i := min(f.pollCalls, len(f.polls)) - 1
	p := &Payment{ID: id, Status: f.polls[i]}
	if p.Status == StatusSuccess {
		p.Artifacts = f.artifacts
	}
	return p, nil
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeArchive) Put(_ context.Context, key string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

type harness struct {
	o          *Orchestrator
	recv       *umatest.Receiver
	store      *session.MemoryStore
	users      *fakeUsers
	ledger     *fakeLedger
	compliance *fakeCompliance
	backend    *fakeBackend
	archive    *fakeArchive
	sleeps     int
}

func newHarness(t *testing.T, ropts umatest.Options) *harness {
	t.Helper()

	key, err := cryptox.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ropts.SenderKey = &key.PublicKey
	recv := umatest.NewReceiver(t, ropts)

	h := &harness{
		recv:       recv,
		store:      session.NewMemoryStore(time.Minute),
		users:      &fakeUsers{},
		ledger:     &fakeLedger{sufficient: true},
		compliance: &fakeCompliance{},
		archive:    &fakeArchive{},
		backend: &fakeBackend{
			node: Node{
				PublicKey:         "02payernode",
				Kind:              NodeKindOSK,
				Network:           "REGTEST",
				PrescreeningUTXOs: []string{"txid:0"},
			},
			instrument: Instrument{
				AmountBase:  5_000_000,
				ExpiresAt:   time.Now().Add(time.Hour),
				PaymentHash: "hash",
			},
			loadOK:    true,
			dispatch:  Payment{ID: "backend-pay-1", Status: StatusPending},
			polls:     []PaymentStatus{StatusPending, StatusPending, StatusSuccess},
			artifacts: []SettlementArtifact{{UTXO: "out:1", AmountBase: 5_000_000}},
		},
	}

	h.o = New(Deps{
		Sessions:   h.store,
		Users:      h.users,
		Ledger:     h.ledger,
		Compliance: h.compliance,
		Keys:       keys.NewDirectory(&http.Client{Timeout: 5 * time.Second}, time.Minute, logging.NopLogger{}),
		Backend:    h.backend,
		Archive:    h.archive,
		Logger:     logging.NopLogger{},
	}, Options{
		SigningKey:      key,
		NodeID:          "node-1",
		OSKPassword:     "node-password",
		MaxPollAttempts: 5,
		CallbackTimeout: 5 * time.Second,
	})
	h.o.sleep = func(ctx context.Context, _ time.Duration) error {
		h.sleeps++
		return ctx.Err()
	}
	return h
}

// toPayReq runs lookup and payreq for bob at the receiver.
func (h *harness) toPayReq(t *testing.T, amount string) *PayReqResult {
	t.Helper()
	ctx := context.Background()

	lr, err := h.o.Lookup(ctx, alice, h.recv.Address("bob"), testBaseURL)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	pr, err := h.o.PayReq(ctx, alice, PayReqInput{
		CallbackUUID:      lr.CallbackUUID,
		Amount:            amount,
		ReceivingCurrency: currency.SATCode,
		BaseURL:           testBaseURL,
	})
	if err != nil {
		t.Fatalf("payreq: %v", err)
	}
	return pr
}

func requireKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *payflow.Error, got %T: %v", err, err)
	}
	if e.Kind != want {
		t.Fatalf("kind = %s, want %s (%v)", e.Kind, want, err)
	}
	return e
}
