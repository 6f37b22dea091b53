package payflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/umasend/internal/server/currency"
	"github.com/dmitrijs2005/umasend/internal/server/session"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto"
	"github.com/google/uuid"
)

type SendInput struct {
	CallbackUUID string
	// SendingCurrency defaults to SAT.
	SendingCurrency string
	BaseURL         string
}

type SendResult struct {
	PaymentID  string `json:"paymentId"`
	DidSucceed bool   `json:"didSucceed"`
}

func newPaymentID() string { return uuid.NewString() }

// SendPayment executes the invoice cached by PayReq. The session is taken
// up front so two concurrent calls cannot both pay; it is put back only when
// the phase fails before anything irreversible happened.
func (o *Orchestrator) SendPayment(ctx context.Context, caller *Caller, in SendInput) (res *SendResult, err error) {
	defer o.observe(ctx, "sendpayment", time.Now(), &err)

	pr, err := session.TakePayReq(ctx, o.sessions, in.CallbackUUID)
	if err != nil {
		return nil, newError(KindSessionNotFound, "callbackUuid not found", err)
	}

	if !pr.ExpiresAt.IsZero() && pr.ExpiresAt.Before(o.now()) {
		return nil, newError(KindInstrumentExpired, "Invoice expired", nil)
	}
	if pr.AmountBase <= 0 {
		return nil, newError(KindInvalidInstrument, "Invalid invoice amount. Positive amount required.", nil)
	}

	restore := func() {
		if rerr := o.sessions.Restore(ctx, in.CallbackUUID, pr); rerr != nil {
			o.log.Warn(ctx, "restore payreq session failed", "callback_uuid", in.CallbackUUID, "error", rerr)
		}
	}

	sending, _, err := o.sendingCurrency(ctx, caller, in.SendingCurrency)
	if err != nil {
		restore()
		return nil, err
	}
	settlement := currency.FromBaseRounded(pr.AmountBase, sending.Multiplier)
	if err := o.admit(ctx, caller, sending, settlement); err != nil {
		restore()
		return nil, err
	}

	node, err := o.loadSigningKey(ctx)
	if err != nil {
		restore()
		return nil, err
	}

	rec := OutgoingRecord{
		UserID:              caller.ID,
		CounterpartyAddress: pr.ReceiverAddress,
		AmountBase:          pr.AmountBase,
		AmountSettlement:    settlement,
		Currency:            sending.Code,
		PaymentID:           o.newID(),
	}
	if err := o.ledger.RecordBegan(ctx, rec); err != nil {
		restore()
		return nil, newError(KindInternal, "Error recording payment.", err)
	}

	payment, err := o.execute(ctx, pr, &rec)
	if err != nil {
		return nil, err
	}

	if err := o.ledger.RecordSucceeded(ctx, rec); err != nil {
		o.log.Error(ctx, "ledger success record failed, needs reconciliation",
			"payment_id", rec.PaymentID, "backend_payment_id", rec.BackendPaymentID, "error", err)
	}

	o.sendPostTransactionCallback(ctx, pr, payment, in.BaseURL)

	if err := o.compliance.RegisterMonitoring(ctx, payment.ID, node.PublicKey, DirectionSent, payment.Artifacts); err != nil {
		o.log.Warn(ctx, "register monitoring failed", "payment_id", payment.ID, "error", err)
	}

	return &SendResult{PaymentID: rec.PaymentID, DidSucceed: payment.Status == StatusSuccess}, nil
}

// loadSigningKey unlocks the sending node: OSK nodes with the configured
// password, anything else with the remote-signing master seed.
func (o *Orchestrator) loadSigningKey(ctx context.Context) (*Node, error) {
	node, err := o.backend.NodeInfo(ctx, o.opts.NodeID)
	if err != nil {
		return nil, newError(KindSigningUnavailable, "Error loading signing key.", err)
	}

	var cred SigningCredential
	if node.Kind == NodeKindOSK {
		if o.opts.OSKPassword == "" {
			return nil, newError(KindSigningUnavailable, "Error loading signing key.",
				errors.New("node is an OSK but no signing key password is configured"))
		}
		cred.Password = o.opts.OSKPassword
	} else {
		if len(o.opts.RemoteSigningSeed) == 0 {
			return nil, newError(KindSigningUnavailable, "Error loading signing key.",
				errors.New("node uses remote signing but no master seed is configured"))
		}
		cred.MasterSeed = o.opts.RemoteSigningSeed
		cred.Network = node.Network
	}

	loaded, err := o.backend.LoadSigningKey(ctx, o.opts.NodeID, cred)
	if err != nil {
		return nil, newError(KindSigningUnavailable, "Error loading signing key.", err)
	}
	if !loaded {
		return nil, newError(KindSigningUnavailable, "Error loading signing key.", nil)
	}
	return node, nil
}

// execute dispatches the payment and waits for a terminal status. Every
// failure is recorded against rec before returning.
func (o *Orchestrator) execute(ctx context.Context, pr *session.PayReqSession, rec *OutgoingRecord) (*Payment, error) {
	fail := func(kind Kind, msg string, cause error) error {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CallbackTimeout)
		defer cancel()
		if err := o.ledger.RecordFailed(fctx, *rec); err != nil {
			o.log.Error(ctx, "ledger failure record failed", "payment_id", rec.PaymentID, "error", err)
		}
		return newError(kind, msg, cause)
	}

	payment, err := o.backend.DispatchPayment(ctx, o.opts.NodeID, pr.EncodedInstrument, o.opts.MaxFeeBase)
	if err != nil {
		return nil, fail(KindPaymentFailed, "Error paying invoice.", err)
	}
	rec.BackendPaymentID = payment.ID

	final, err := o.awaitCompletion(ctx, payment)
	switch {
	case errors.Is(err, errPollTimeout), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, fail(KindPaymentTimedOut, "Payment timed out.", err)
	case err != nil:
		return nil, fail(KindPaymentFailed, "Error paying invoice.", err)
	}
	return final, nil
}

// sendPostTransactionCallback discloses the payment's settlement outputs to
// the receiver in the background. Failures are only logged.
func (o *Orchestrator) sendPostTransactionCallback(ctx context.Context, pr *session.PayReqSession, payment *Payment, baseURL string) {
	if pr.UTXOCallback == "" {
		return
	}

	utxos := make([]umaproto.UTXOWithAmount, 0, len(payment.Artifacts))
	for _, a := range payment.Artifacts {
		utxos = append(utxos, umaproto.UTXOWithAmount{UTXO: a.UTXO, Amount: a.AmountBase})
	}
	cb, err := umaproto.NewPostTransactionCallback(utxos, o.senderDomain(baseURL), o.opts.SigningKey, o.now())
	if err != nil {
		o.log.Error(ctx, "build post transaction callback failed", "error", err)
		return
	}
	body, err := json.Marshal(cb)
	if err != nil {
		o.log.Error(ctx, "encode post transaction callback failed", "error", err)
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CallbackTimeout)
		defer cancel()

		status, _, err := o.do(cctx, http.MethodPost, pr.UTXOCallback, body)
		if err != nil {
			o.log.Warn(cctx, "post transaction callback failed", "url", pr.UTXOCallback, "error", err)
			return
		}
		if status < 200 || status > 299 {
			o.log.Warn(cctx, "post transaction callback rejected", "url", pr.UTXOCallback, "status", status)
		}
	}()
}
