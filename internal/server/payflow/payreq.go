package payflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrijs2005/umasend/internal/server/currency"
	"github.com/dmitrijs2005/umasend/internal/server/session"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto"
	"github.com/shopspring/decimal"
)

type PayReqInput struct {
	CallbackUUID string
	Amount       string
	// ReceivingCurrency is the receiver currency the amount is expressed in.
	ReceivingCurrency string
	// SendingCurrency defaults to SAT.
	SendingCurrency string
	// IsBaseUnit marks Amount as millisatoshis.
	IsBaseUnit bool
	BaseURL    string
}

type PayReqResult struct {
	SenderCurrencies        []currency.Descriptor `json:"senderCurrencies"`
	CallbackUUID            string                `json:"callbackUuid"`
	EncodedInvoice          string                `json:"encodedInvoice"`
	AmountMsats             int64                 `json:"amountMsats"`
	AmountReceivingCurrency int64                 `json:"amountReceivingCurrency"`
	ConversionRate          float64               `json:"conversionRate"`
	ExchangeFeesMsats       int64                 `json:"exchangeFeesMsats"`
	ReceivingCurrencyCode   string                `json:"receivingCurrencyCode"`
}

// PayReq turns a cached lookup into a concrete invoice. The lookup session
// is consumed only when the phase succeeds.
func (o *Orchestrator) PayReq(ctx context.Context, caller *Caller, in PayReqInput) (res *PayReqResult, err error) {
	defer o.observe(ctx, "payreq", time.Now(), &err)

	lookup, err := session.GetLookup(ctx, o.sessions, in.CallbackUUID)
	if err != nil {
		return nil, newError(KindSessionNotFound, "callbackUuid not found", err)
	}

	amount, err := currency.ParseAmount(in.Amount)
	if err != nil {
		return nil, newError(KindInvalidInput, "Invalid amount", err)
	}

	senderDomain := o.senderDomain(in.BaseURL)
	profile := newPayerProfile(caller, lookup.PayerData, senderDomain, !lookup.PlainFallback)

	if lookup.PlainFallback {
		return o.payReqMinimal(ctx, in, lookup, amount, profile)
	}
	return o.payReqUMA(ctx, caller, in, lookup, amount, profile)
}

func (o *Orchestrator) payReqUMA(ctx context.Context, caller *Caller, in PayReqInput, lookup *session.LookupSession, amount decimal.Decimal, profile payerProfile) (*PayReqResult, error) {
	if in.ReceivingCurrency == "" {
		return nil, newError(KindInvalidInput, "Missing currencyCode", nil)
	}
	receiving, ok := currency.Find(lookup.Currencies, in.ReceivingCurrency)
	if !ok {
		return nil, newError(KindUnsupportedCurrency, "Currency code not supported", nil)
	}

	var amountBase, wireAmount int64
	if in.IsBaseUnit {
		amountBase = amount.Round(0).IntPart()
		wireAmount = amountBase
		if err := checkSendable(amountBase, lookup); err != nil {
			return nil, err
		}
	} else {
		wireAmount = amount.Round(0).IntPart()
		amountBase = currency.ToBase(amount, receiving.Multiplier)
		if err := currency.WithinBounds(wireAmount, receiving); err != nil {
			return nil, newError(KindInvalidInput, "Invalid amount. "+err.Error(), err)
		}
	}
	if amountBase <= 0 {
		return nil, newError(KindInvalidInput, "Invalid amount", nil)
	}

	sending, senderCurrencies, err := o.sendingCurrency(ctx, caller, in.SendingCurrency)
	if err != nil {
		return nil, err
	}
	if err := o.admit(ctx, caller, sending, currency.FromBaseRounded(amountBase, sending.Multiplier)); err != nil {
		return nil, err
	}

	pubKeys, err := o.keys.FetchKeys(ctx, lookup.ReceivingDomain)
	if err != nil {
		return nil, newError(KindUpstreamUnavailable, "Error fetching receiving vasp public key.", err)
	}

	receiverAddress := lookup.ReceiverAddress()
	trInfo, err := o.compliance.TravelRuleInfo(ctx, caller.ID, profile.Identifier, receiverAddress, amountBase)
	if err != nil {
		return nil, newError(KindInternal, "Error building travel rule info.", err)
	}

	node, err := o.backend.NodeInfo(ctx, o.opts.NodeID)
	if err != nil {
		return nil, newError(KindInternal, "Error loading node.", err)
	}

	payReq, err := umaproto.NewPayRequest(umaproto.PayRequestParams{
		SigningKey:                o.opts.SigningKey,
		ReceiverEncryptionKey:     pubKeys.EncryptionKey,
		UMAMajorVersion:           lookup.UMAMajorVersion,
		ReceivingCurrencyCode:     receiving.Code,
		AmountInReceivingCurrency: !in.IsBaseUnit,
		Amount:                    wireAmount,
		AmountBase:                amountBase,
		PayerIdentifier:           profile.Identifier,
		PayerName:                 profile.Name,
		PayerEmail:                profile.Email,
		PayerKYCStatus:            caller.KYCStatus,
		PayerNodePubKey:           node.PublicKey,
		PayerUTXOs:                node.PrescreeningUTXOs,
		UTXOCallback:              o.utxoCallbackURL(in.BaseURL, o.newID()),
		TravelRuleInfo:            trInfo,
		TravelRuleFormat:          o.opts.TravelRuleFormat,
		RequestedPayeeData: umaproto.CounterpartyDataOptions{
			"name":  {Mandatory: false},
			"email": {Mandatory: false},
		},
		Now: o.now(),
	})
	if err != nil {
		return nil, newError(KindInternal, "Error generating payreq.", err)
	}
	body, err := json.Marshal(payReq)
	if err != nil {
		return nil, newError(KindInternal, "Error generating payreq.", err)
	}

	o.log.Info(ctx, "sending payreq", "receiver", receiverAddress, "amount_msats", amountBase, "uma_major", lookup.UMAMajorVersion)
	status, respBody, err := o.do(ctx, http.MethodPost, lookup.Callback, body)
	if err != nil {
		return nil, newError(KindUpstreamUnavailable, "Error sending payreq.", err)
	}
	if status != http.StatusOK {
		return nil, upstreamError(KindUpstreamRejected, "Payreq failed. "+strconv.Itoa(status), status, nil)
	}

	payResp, err := umaproto.ParsePayReqResponse(respBody)
	if err != nil {
		if errors.Is(err, umaproto.ErrRejected) {
			return nil, upstreamError(KindUpstreamRejected, "Payreq rejected by receiver.", status, err)
		}
		return nil, newError(KindProtocolMismatch, "Error parsing payreq response.", err)
	}
	if !payResp.IsUMA() {
		return nil, newError(KindProtocolMismatch, "Received non-uma response for uma payreq.", nil)
	}

	if payReq.UMAMajorVersion != 0 {
		if err := umaproto.VerifyPayReqResponse(payResp, profile.Identifier, receiverAddress, pubKeys.SigningKey, o.nonces); err != nil {
			o.keys.Invalidate(lookup.ReceivingDomain)
			return nil, newError(KindUpstreamUntrusted, "Invalid payreq response signature.", err)
		}
	}

	shouldTransact, err := o.compliance.PreScreen(ctx, profile.Identifier, receiverAddress, amountBase, payResp.NodePubKey(), payResp.UTXOs())
	if err != nil {
		return nil, newError(KindInternal, "Error screening transaction.", err)
	}
	if !shouldTransact {
		return nil, newError(KindComplianceScreenDenied, "Transaction not allowed due to risk rating.", nil)
	}

	inst, err := o.backend.DecodeInstrument(ctx, payResp.EncodedInvoice)
	if err != nil {
		return nil, newError(KindInvalidInstrument, "Error decoding invoice.", err)
	}

	id, err := o.replaceLookup(ctx, in.CallbackUUID, &session.PayReqSession{
		PayerIdentifier:   profile.Identifier,
		ReceiverAddress:   receiverAddress,
		EncodedInstrument: payResp.EncodedInvoice,
		UTXOCallback:      payResp.PayeeData.Compliance.UTXOCallback,
		AmountBase:        inst.AmountBase,
		ExpiresAt:         inst.ExpiresAt,
		SenderCurrencies:  senderCurrencies,
		CreatedAt:         o.now(),
	})
	if err != nil {
		return nil, err
	}
	o.keepEvidence(ctx, "payreq", lookup.ReceivingDomain, id, respBody)

	return &PayReqResult{
		SenderCurrencies:        senderCurrencies,
		CallbackUUID:            id,
		EncodedInvoice:          payResp.EncodedInvoice,
		AmountMsats:             inst.AmountBase,
		AmountReceivingCurrency: payResp.Converted.Amount,
		ConversionRate:          payResp.Converted.Multiplier,
		ExchangeFeesMsats:       payResp.Converted.Fee,
		ReceivingCurrencyCode:   payResp.Converted.CurrencyCode,
	}, nil
}

// payReqMinimal handles receivers that answered the lookup with a plain
// lnurl-pay document: the amount goes on the callback's query string and no
// settlement disclosure is possible.
func (o *Orchestrator) payReqMinimal(ctx context.Context, in PayReqInput, lookup *session.LookupSession, amount decimal.Decimal, profile payerProfile) (*PayReqResult, error) {
	callback, err := url.Parse(lookup.Callback)
	if err != nil {
		return nil, newError(KindProtocolMismatch, "Invalid lnurl callback.", err)
	}

	receiving := currency.SAT
	if in.ReceivingCurrency != "" {
		d, ok := currency.Find(lookup.Currencies, in.ReceivingCurrency)
		if !ok {
			return nil, newError(KindUnsupportedCurrency, "Currency code not supported", nil)
		}
		receiving = d
	}

	q := callback.Query()
	switch {
	case in.IsBaseUnit:
		if err := checkSendable(amount.Round(0).IntPart(), lookup); err != nil {
			return nil, err
		}
		q.Set("amount", strconv.FormatInt(amount.Round(0).IntPart(), 10))
	case receiving.Code == currency.SATCode:
		q.Set("amount", strconv.FormatInt(currency.ToBase(amount, receiving.Multiplier), 10))
	default:
		q.Set("amount", amount.String()+"."+receiving.Code)
	}
	if receiving.Code != currency.SATCode {
		q.Set("convert", receiving.Code)
	}
	if !profile.empty() {
		payerData, err := json.Marshal(profile)
		if err != nil {
			return nil, newError(KindInternal, "Error encoding payer data.", err)
		}
		q.Set("payerdata", string(payerData))
	}
	callback.RawQuery = q.Encode()

	status, respBody, err := o.do(ctx, http.MethodGet, callback.String(), nil)
	if err != nil {
		return nil, newError(KindUpstreamUnavailable, "Error sending payreq.", err)
	}
	if status < 200 || status > 299 {
		return nil, upstreamError(KindUpstreamRejected, "Payreq failed. "+strconv.Itoa(status), status, nil)
	}

	payResp, err := umaproto.ParsePayReqResponse(respBody)
	if err != nil {
		if errors.Is(err, umaproto.ErrRejected) {
			return nil, upstreamError(KindUpstreamRejected, "Error on pay request. "+err.Error(), status, err)
		}
		return nil, newError(KindProtocolMismatch, "Error parsing payreq response.", err)
	}

	inst, err := o.backend.DecodeInstrument(ctx, payResp.EncodedInvoice)
	if err != nil {
		return nil, newError(KindInvalidInstrument, "Error decoding invoice.", err)
	}

	id, err := o.replaceLookup(ctx, in.CallbackUUID, &session.PayReqSession{
		PayerIdentifier:   profile.Identifier,
		ReceiverAddress:   lookup.ReceiverAddress(),
		EncodedInstrument: payResp.EncodedInvoice,
		AmountBase:        inst.AmountBase,
		ExpiresAt:         inst.ExpiresAt,
		CreatedAt:         o.now(),
	})
	if err != nil {
		return nil, err
	}

	res := &PayReqResult{
		SenderCurrencies:        []currency.Descriptor{},
		CallbackUUID:            id,
		EncodedInvoice:          payResp.EncodedInvoice,
		AmountMsats:             inst.AmountBase,
		AmountReceivingCurrency: currency.FromBaseRounded(inst.AmountBase, currency.SAT.Multiplier),
		ConversionRate:          currency.SAT.Multiplier,
		ReceivingCurrencyCode:   receiving.Code,
	}
	if c := payResp.Converted; c != nil {
		res.AmountReceivingCurrency = c.Amount
		res.ConversionRate = c.Multiplier
		res.ExchangeFeesMsats = c.Fee
	}
	return res, nil
}

// replaceLookup consumes the lookup session and stores its successor. A
// concurrent PayReq that consumed it first wins.
func (o *Orchestrator) replaceLookup(ctx context.Context, lookupID string, next *session.PayReqSession) (string, error) {
	if _, err := session.TakeLookup(ctx, o.sessions, lookupID); err != nil {
		return "", newError(KindSessionNotFound, "callbackUuid not found", err)
	}
	id, err := o.sessions.Save(ctx, next)
	if err != nil {
		return "", newError(KindInternal, "Error saving payreq.", err)
	}
	return id, nil
}

// checkSendable bounds a millisatoshi amount by the receiver's advertised
// range. Zero limits are not enforced.
func checkSendable(amountBase int64, lookup *session.LookupSession) error {
	if lookup.MinSendable > 0 && amountBase < lookup.MinSendable {
		return newError(KindInvalidInput, fmt.Sprintf("Invalid amount. minimum amount is %d msats", lookup.MinSendable), nil)
	}
	if lookup.MaxSendable > 0 && amountBase > lookup.MaxSendable {
		return newError(KindInvalidInput, fmt.Sprintf("Invalid amount. maximum amount is %d msats", lookup.MaxSendable), nil)
	}
	return nil
}
