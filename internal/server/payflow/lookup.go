package payflow

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/umasend/internal/server/currency"
	"github.com/dmitrijs2005/umasend/internal/server/session"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto"
)

type LookupResult struct {
	SenderCurrencies   []currency.Descriptor `json:"senderCurrencies"`
	ReceiverCurrencies []currency.Descriptor `json:"receiverCurrencies"`
	MinSendableMsats   int64                 `json:"minSendableMsats"`
	MaxSendableMsats   int64                 `json:"maxSendableMsats"`
	CallbackUUID       string                `json:"callbackUuid"`
	ReceiverKYCStatus  string                `json:"receiverKycStatus"`
}

// Lookup resolves address ("user@domain") through the receiver's lnurlp
// endpoint and caches the result for PayReq.
func (o *Orchestrator) Lookup(ctx context.Context, caller *Caller, address, baseURL string) (res *LookupResult, err error) {
	defer o.observe(ctx, "lookup", time.Now(), &err)

	receiverID, domain, ok := umaproto.SplitAddress(address)
	if !ok {
		return nil, newError(KindInvalidInput, "Invalid receiver", nil)
	}

	accept, err := o.compliance.ShouldAcceptCounterparty(ctx, domain, caller.UserName, address)
	if err != nil {
		return nil, newError(KindInternal, "Error checking counterparty.", err)
	}
	if !accept {
		return nil, newError(KindComplianceDenied, "Transaction not allowed to "+address+".", nil)
	}

	receiverAddress := receiverID + "@" + domain
	body, err := o.discover(ctx, receiverAddress, o.senderDomain(baseURL))
	if err != nil {
		return nil, err
	}

	resp, err := umaproto.ParseLookupResponse(body)
	if err != nil {
		return nil, newError(KindUpstreamUnavailable, "Error parsing lnurlp response.", err)
	}

	if !resp.IsUMA() {
		o.log.Info(ctx, "lnurlp response is not uma, using plain lnurl", "receiver", receiverAddress)
		return o.storePlainLookup(ctx, resp, receiverID, domain)
	}

	pubKeys, err := o.keys.FetchKeys(ctx, domain)
	if err != nil {
		return nil, newError(KindUpstreamUntrusted, "Error fetching receiving vasp public key.", err)
	}
	if err := umaproto.VerifyLookupResponse(resp, pubKeys.SigningKey, o.nonces); err != nil {
		o.keys.Invalidate(domain)
		return nil, newError(KindUpstreamUntrusted, "Invalid UMA response signature.", err)
	}

	major, err := umaproto.MajorVersion(resp.UMAVersion)
	if err != nil {
		return nil, newError(KindProtocolMismatch, "Unsupported uma version in lnurlp response.", err)
	}

	id, err := o.sessions.Save(ctx, &session.LookupSession{
		ReceiverID:      receiverID,
		ReceivingDomain: domain,
		UMAVersion:      resp.UMAVersion,
		UMAMajorVersion: major,
		Callback:        resp.Callback,
		Currencies:      umaproto.Descriptors(resp.Currencies),
		MinSendable:     resp.MinSendable,
		MaxSendable:     resp.MaxSendable,
		PayerData:       requirements(resp.PayerData),
		CreatedAt:       o.now(),
	})
	if err != nil {
		return nil, newError(KindInternal, "Error saving lookup.", err)
	}
	o.keepEvidence(ctx, "lookup", domain, id, body)

	senderCurrencies, err := o.senderCurrencies(ctx, caller)
	if err != nil {
		o.log.Warn(ctx, "sender currencies unavailable", "user", caller.ID, "error", err)
		senderCurrencies = []currency.Descriptor{}
	}

	return &LookupResult{
		SenderCurrencies:   senderCurrencies,
		ReceiverCurrencies: umaproto.Descriptors(resp.Currencies),
		MinSendableMsats:   resp.MinSendable,
		MaxSendableMsats:   resp.MaxSendable,
		CallbackUUID:       id,
		ReceiverKYCStatus:  resp.Compliance.KYCStatus,
	}, nil
}

// discover sends the signed lnurlp request, renegotiating the protocol
// version once if the receiver answers 412.
func (o *Orchestrator) discover(ctx context.Context, receiverAddress, senderDomain string) ([]byte, error) {
	status, body, err := o.sendLookup(ctx, receiverAddress, senderDomain, umaproto.CurrentMajorVersion())
	if err != nil {
		return nil, err
	}

	if status == http.StatusPreconditionFailed {
		unsupported, perr := umaproto.ParseUnsupportedVersion(body)
		if perr != nil {
			return nil, upstreamError(KindUpstreamUnavailable, "Error fetching Lnurlp request.", status, perr)
		}
		major, serr := umaproto.SelectHighestSupportedVersion(unsupported.SupportedMajorVersions)
		if serr != nil {
			return nil, upstreamError(KindUpstreamUnavailable, "No mutually supported uma version.", status, serr)
		}
		o.log.Info(ctx, "retrying lnurlp with negotiated version", "receiver", receiverAddress, "major", major)

		status, body, err = o.sendLookup(ctx, receiverAddress, senderDomain, major)
		if err != nil {
			return nil, err
		}
	}

	if status != http.StatusOK {
		return nil, upstreamError(KindUpstreamUnavailable, "Error fetching Lnurlp request. "+strconv.Itoa(status), status, nil)
	}
	return body, nil
}

func (o *Orchestrator) sendLookup(ctx context.Context, receiverAddress, senderDomain string, major int) (int, []byte, error) {
	req, err := umaproto.NewLookupRequest(receiverAddress, senderDomain, o.opts.SigningKey, true, major, o.now())
	if err != nil {
		return 0, nil, newError(KindInternal, "Error signing lnurlp request.", err)
	}
	o.log.Debug(ctx, "sending lnurlp request", "url", req.URL())

	status, body, err := o.do(ctx, http.MethodGet, req.URL(), nil)
	if err != nil {
		return 0, nil, newError(KindUpstreamUnavailable, "Error fetching Lnurlp request.", err)
	}
	return status, body, nil
}

func (o *Orchestrator) storePlainLookup(ctx context.Context, resp *umaproto.LookupResponse, receiverID, domain string) (*LookupResult, error) {
	currencies := currency.OrDefault(umaproto.Descriptors(resp.Currencies))

	id, err := o.sessions.Save(ctx, &session.LookupSession{
		ReceiverID:      receiverID,
		ReceivingDomain: domain,
		Callback:        resp.Callback,
		Currencies:      currencies,
		MinSendable:     resp.MinSendable,
		MaxSendable:     resp.MaxSendable,
		PayerData:       requirements(resp.PayerData),
		PlainFallback:   true,
		CreatedAt:       o.now(),
	})
	if err != nil {
		return nil, newError(KindInternal, "Error saving lookup.", err)
	}

	return &LookupResult{
		SenderCurrencies:   []currency.Descriptor{},
		ReceiverCurrencies: currencies,
		MinSendableMsats:   resp.MinSendable,
		MaxSendableMsats:   resp.MaxSendable,
		CallbackUUID:       id,
		ReceiverKYCStatus:  umaproto.KYCNotVerified,
	}, nil
}

func requirements(opts umaproto.CounterpartyDataOptions) map[string]bool {
	out := make(map[string]bool, len(opts))
	for field, o := range opts {
		out[field] = o.Mandatory
	}
	return out
}
