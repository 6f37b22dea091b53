package umaproto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/umasend/internal/common"
	"github.com/dmitrijs2005/umasend/internal/cryptox"
)

var ErrMissingCompliance = errors.New("message has no compliance block")

func newNonce() (string, error) {
	return common.MakeRandHexString(common.NonceSize)
}

// VerifyLookupResponse checks the receiver's signature and then records the
// nonce, so a forged message cannot burn a legitimate nonce.
func VerifyLookupResponse(r *LookupResponse, pub *ecdsa.PublicKey, nonces *NonceCache) error {
	if r.Compliance == nil {
		return ErrMissingCompliance
	}
	if err := cryptox.VerifyPayload(pub, r.SignablePayload(), r.Compliance.Signature); err != nil {
		return err
	}
	return nonces.CheckAndSave(r.Compliance.SignatureNonce, time.Unix(r.Compliance.SignatureTimestamp, 0))
}

func VerifyPayReqResponse(r *PayReqResponse, payerIdentifier, payeeIdentifier string, pub *ecdsa.PublicKey, nonces *NonceCache) error {
	if r.PayeeData == nil || r.PayeeData.Compliance == nil {
		return ErrMissingCompliance
	}
	c := r.PayeeData.Compliance
	if err := cryptox.VerifyPayload(pub, r.SignablePayload(payerIdentifier, payeeIdentifier), c.Signature); err != nil {
		return err
	}
	return nonces.CheckAndSave(c.SignatureNonce, time.Unix(c.SignatureTimestamp, 0))
}

// PayRequestParams carries everything needed to build a signed pay request.
type PayRequestParams struct {
	SigningKey            *ecdsa.PrivateKey
	ReceiverEncryptionKey *ecdsa.PublicKey

	UMAMajorVersion           int
	ReceivingCurrencyCode     string
	AmountInReceivingCurrency bool
	Amount                    int64
	AmountBase                int64

	PayerIdentifier string
	PayerName       string
	PayerEmail      string
	PayerKYCStatus  string
	PayerNodePubKey string
	PayerUTXOs      []string
	UTXOCallback    string

	TravelRuleInfo     string
	TravelRuleFormat   string
	RequestedPayeeData CounterpartyDataOptions

	Now time.Time
}

func NewPayRequest(p PayRequestParams) (*PayRequest, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	var encrypted string
	if p.TravelRuleInfo != "" {
		if p.ReceiverEncryptionKey == nil {
			return nil, errors.New("travel rule info requires a receiver encryption key")
		}
		encrypted, err = cryptox.EncryptToPubKey(p.ReceiverEncryptionKey, []byte(p.TravelRuleInfo))
		if err != nil {
			return nil, fmt.Errorf("encrypt travel rule info: %w", err)
		}
	}

	utxos := p.PayerUTXOs
	if utxos == nil {
		utxos = []string{}
	}

	req := &PayRequest{
		UMAMajorVersion:           p.UMAMajorVersion,
		ReceivingCurrencyCode:     p.ReceivingCurrencyCode,
		AmountInReceivingCurrency: p.AmountInReceivingCurrency,
		Amount:                    p.Amount,
		AmountBase:                p.AmountBase,
		RequestedPayeeData:        p.RequestedPayeeData,
		PayerData: PayerData{
			Identifier: p.PayerIdentifier,
			Name:       p.PayerName,
			Email:      p.PayerEmail,
			Compliance: &PayerCompliance{
				UTXOs:                   utxos,
				NodePubKey:              p.PayerNodePubKey,
				KYCStatus:               p.PayerKYCStatus,
				EncryptedTravelRuleInfo: encrypted,
				TravelRuleFormat:        p.TravelRuleFormat,
				SignatureNonce:          nonce,
				SignatureTimestamp:      p.Now.Unix(),
				UTXOCallback:            p.UTXOCallback,
			},
		},
	}

	sig, err := cryptox.SignPayload(p.SigningKey, req.SignablePayload())
	if err != nil {
		return nil, err
	}
	req.PayerData.Compliance.Signature = sig
	return req, nil
}

func NewPostTransactionCallback(utxos []UTXOWithAmount, vaspDomain string, key *ecdsa.PrivateKey, now time.Time) (*PostTransactionCallback, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	if utxos == nil {
		utxos = []UTXOWithAmount{}
	}
	cb := &PostTransactionCallback{
		UTXOs:              utxos,
		VaspDomain:         vaspDomain,
		SignatureNonce:     nonce,
		SignatureTimestamp: now.Unix(),
	}
	cb.Signature, err = cryptox.SignPayload(key, cb.SignablePayload())
	if err != nil {
		return nil, err
	}
	return cb, nil
}
