// Package payflow drives the sending side of a UMA payment: lookup of the
// receiver, negotiation of a pay request and execution of the payment. Each
// phase is a separate client round-trip correlated through a session.Store.
package payflow

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/dmitrijs2005/umasend/internal/logging"
	"github.com/dmitrijs2005/umasend/internal/metrics"
	"github.com/dmitrijs2005/umasend/internal/server/currency"
	"github.com/dmitrijs2005/umasend/internal/server/session"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto"
)

const maxResponseSize = 1 << 20

type Options struct {
	SigningKey *ecdsa.PrivateKey
	// VaspDomain overrides the domain derived from the request's base URL.
	VaspDomain        string
	NodeID            string
	OSKPassword       string
	RemoteSigningSeed []byte
	MaxFeeBase        int64
	PollInterval      time.Duration
	MaxPollAttempts   int
	CallbackTimeout   time.Duration
	TravelRuleFormat  string
}

func (o *Options) applyDefaults() {
	if o.MaxFeeBase == 0 {
		o.MaxFeeBase = 1_000_000
	}
	if o.PollInterval == 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.MaxPollAttempts == 0 {
		o.MaxPollAttempts = 40
	}
	if o.CallbackTimeout == 0 {
		o.CallbackTimeout = 10 * time.Second
	}
}

// Deps are the collaborators of an Orchestrator. Archive, Metrics and Logger
// are optional.
type Deps struct {
	Sessions   session.Store
	Users      UserDirectory
	Ledger     Ledger
	Compliance ComplianceGate
	Keys       KeyDirectory
	Backend    PaymentBackend
	HTTPClient *http.Client
	Nonces     *umaproto.NonceCache
	Archive    EvidenceArchive
	Metrics    metrics.Recorder
	Logger     logging.Logger
}

type Orchestrator struct {
	opts Options

	sessions   session.Store
	users      UserDirectory
	ledger     Ledger
	compliance ComplianceGate
	keys       KeyDirectory
	backend    PaymentBackend
	client     *http.Client
	nonces     *umaproto.NonceCache
	archive    EvidenceArchive
	metrics    metrics.Recorder
	log        logging.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	wg sync.WaitGroup
}

func New(d Deps, opts Options) *Orchestrator {
	opts.applyDefaults()

	o := &Orchestrator{
		opts:       opts,
		sessions:   d.Sessions,
		users:      d.Users,
		ledger:     d.Ledger,
		compliance: d.Compliance,
		keys:       d.Keys,
		backend:    d.Backend,
		client:     d.HTTPClient,
		nonces:     d.Nonces,
		archive:    d.Archive,
		metrics:    d.Metrics,
		log:        d.Logger,
		now:        time.Now,
		sleep:      sleepCtx,
		newID:      newPaymentID,
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: 30 * time.Second}
	}
	if o.nonces == nil {
		o.nonces = umaproto.NewNonceCache(time.Hour)
	}
	if o.metrics == nil {
		o.metrics = metrics.NoopRecorder{}
	}
	if o.log == nil {
		o.log = logging.NopLogger{}
	}
	o.log = o.log.With("module", "payflow")
	return o
}

// Wait blocks until background post-transaction callbacks have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// SigningPublicKey is published at /.well-known/lnurlpubkey.
func (o *Orchestrator) SigningPublicKey() *ecdsa.PublicKey {
	return &o.opts.SigningKey.PublicKey
}

func (o *Orchestrator) observe(ctx context.Context, phase string, start time.Time, errp *error) {
	outcome := "ok"
	if *errp != nil {
		kind := KindOf(*errp)
		outcome = string(kind)
		if kind.HTTPStatus() >= http.StatusInternalServerError {
			o.log.Error(ctx, "phase failed", "phase", phase, "kind", kind, "error", *errp)
		} else {
			o.log.Warn(ctx, "phase rejected", "phase", phase, "kind", kind, "error", *errp)
		}
	}
	labels := map[string]string{"phase": phase, "outcome": outcome}
	o.metrics.IncCounter("phase", labels)
	o.metrics.ObserveLatency("phase", time.Since(start), labels)
}

// senderDomain is the configured VASP domain, or host[:port] of baseURL.
func (o *Orchestrator) senderDomain(baseURL string) string {
	if o.opts.VaspDomain != "" {
		return o.opts.VaspDomain
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	return u.Host
}

func (o *Orchestrator) utxoCallbackURL(baseURL, txID string) string {
	return baseURL + "/api/uma/utxoCallback?txId=" + url.QueryEscape(txID)
}

func (o *Orchestrator) senderCurrencies(ctx context.Context, caller *Caller) ([]currency.Descriptor, error) {
	list, err := o.users.SettlementCurrencies(ctx, caller.ID)
	if err != nil {
		return nil, newError(KindInternal, "Error loading currency preferences.", err)
	}
	return currency.OrDefault(list), nil
}

// sendingCurrency resolves the caller's settlement currency, SAT when code
// is empty.
func (o *Orchestrator) sendingCurrency(ctx context.Context, caller *Caller, code string) (currency.Descriptor, []currency.Descriptor, error) {
	if code == "" {
		code = currency.SATCode
	}
	list, err := o.senderCurrencies(ctx, caller)
	if err != nil {
		return currency.Descriptor{}, nil, err
	}
	d, ok := currency.Find(list, code)
	if !ok {
		return currency.Descriptor{}, nil, newError(KindUnsupportedCurrency, "Sending currency code not supported", nil)
	}
	return d, list, nil
}

// admit runs the bounds and balance checks shared by payreq and
// sendpayment. amount is in the sending currency's smallest unit.
func (o *Orchestrator) admit(ctx context.Context, caller *Caller, sending currency.Descriptor, amount int64) error {
	if err := currency.WithinBounds(amount, sending); err != nil {
		return newError(KindInvalidInput, "Invalid amount. "+err.Error(), err)
	}
	ok, err := o.ledger.CheckBalance(ctx, caller.ID, sending.Code, amount)
	if err != nil {
		return newError(KindInternal, "Error checking balance.", err)
	}
	if !ok {
		return newError(KindInsufficientBalance, "Insufficient balance.", nil)
	}
	return nil
}

func (o *Orchestrator) keepEvidence(ctx context.Context, kind, domain, id string, body []byte) {
	if o.archive == nil {
		return
	}
	key := path.Join(kind, domain, id+".json")
	if err := o.archive.Put(ctx, key, body); err != nil {
		o.log.Warn(ctx, "evidence archive failed", "key", key, "error", err)
	}
}

func (o *Orchestrator) do(ctx context.Context, method, target string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

type payerProfile struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

func (p payerProfile) empty() bool {
	return p.Name == "" && p.Email == "" && p.Identifier == ""
}

// newPayerProfile discloses name and email only when the receiver marked
// them mandatory. The identifier is sent for signed flows or when asked for.
func newPayerProfile(c *Caller, required map[string]bool, domain string, rich bool) payerProfile {
	var p payerProfile
	if required["name"] {
		p.Name = c.Name
	}
	if required["email"] {
		p.Email = c.Email
	}
	if _, asked := required["identifier"]; rich || asked {
		p.Identifier = "$" + c.UserName + "@" + domain
	}
	return p
}
