// Package umaproto builds, signs, parses and verifies the messages the
// sending side exchanges with a receiving VASP: the lnurlp discovery
// request/response, the pay request/response, the post-transaction
// callback and the public key document.
package umaproto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/umasend/internal/server/currency"
)

// KYC statuses carried in compliance blocks.
const (
	KYCUnknown     = "UNKNOWN"
	KYCNotVerified = "NOT_VERIFIED"
	KYCPending     = "PENDING"
	KYCVerified    = "VERIFIED"
)

var (
	ErrMalformed = errors.New("malformed protocol message")
	ErrRejected  = errors.New("receiver rejected request")
)

type CounterpartyDataOption struct {
	Mandatory bool `json:"mandatory"`
}

// CounterpartyDataOptions maps a field name ("name", "email",
// "identifier", "compliance") to its requirement.
type CounterpartyDataOptions map[string]CounterpartyDataOption

// Mandatory reports whether field is present and mandatory.
func (o CounterpartyDataOptions) Mandatory(field string) bool {
	return o[field].Mandatory
}

// Has reports whether field was declared at all.
func (o CounterpartyDataOptions) Has(field string) bool {
	_, ok := o[field]
	return ok
}

type Convertible struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Currency is a settlement currency as advertised on the wire. Version 1
// carries bounds in Convertible; version 0 carries them inline.
type Currency struct {
	Code        string       `json:"code"`
	Name        string       `json:"name"`
	Symbol      string       `json:"symbol"`
	Multiplier  float64      `json:"multiplier"`
	Decimals    int          `json:"decimals"`
	Convertible *Convertible `json:"convertible,omitempty"`
	MinSendable int64        `json:"minSendable,omitempty"`
	MaxSendable int64        `json:"maxSendable,omitempty"`
}

func (c Currency) Descriptor() currency.Descriptor {
	d := currency.Descriptor{
		Code:        c.Code,
		Name:        c.Name,
		Symbol:      c.Symbol,
		Multiplier:  c.Multiplier,
		Decimals:    c.Decimals,
		MinSendable: c.MinSendable,
		MaxSendable: c.MaxSendable,
	}
	if c.Convertible != nil {
		d.MinSendable = c.Convertible.Min
		d.MaxSendable = c.Convertible.Max
	}
	return d
}

func Descriptors(list []Currency) []currency.Descriptor {
	out := make([]currency.Descriptor, 0, len(list))
	for _, c := range list {
		out = append(out, c.Descriptor())
	}
	return out
}

type LookupCompliance struct {
	KYCStatus             string `json:"kycStatus"`
	Signature             string `json:"signature"`
	SignatureNonce        string `json:"signatureNonce"`
	SignatureTimestamp    int64  `json:"signatureTimestamp"`
	IsSubjectToTravelRule bool   `json:"isSubjectToTravelRule"`
	ReceiverIdentifier    string `json:"receiverIdentifier"`
}

// LookupResponse is the receiver's answer to a discovery request. Plain
// lnurl responses leave the compliance fields empty.
type LookupResponse struct {
	Tag         string                  `json:"tag,omitempty"`
	Callback    string                  `json:"callback"`
	MinSendable int64                   `json:"minSendable"`
	MaxSendable int64                   `json:"maxSendable"`
	Metadata    string                  `json:"metadata,omitempty"`
	Currencies  []Currency              `json:"currencies,omitempty"`
	PayerData   CounterpartyDataOptions `json:"payerData,omitempty"`
	Compliance  *LookupCompliance       `json:"compliance,omitempty"`
	UMAVersion  string                  `json:"umaVersion,omitempty"`
}

func ParseLookupResponse(body []byte) (*LookupResponse, error) {
	var r LookupResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.Callback == "" {
		return nil, fmt.Errorf("%w: lookup response has no callback", ErrMalformed)
	}
	return &r, nil
}

// IsUMA reports whether the response carries everything the signed
// protocol requires.
func (r *LookupResponse) IsUMA() bool {
	return r.Currencies != nil && r.PayerData != nil && r.Compliance != nil && r.UMAVersion != ""
}

func (r *LookupResponse) SignablePayload() []byte {
	c := r.Compliance
	return []byte(c.ReceiverIdentifier + "|" + c.SignatureNonce + "|" + strconv.FormatInt(c.SignatureTimestamp, 10))
}

type PayerCompliance struct {
	UTXOs                   []string `json:"utxos"`
	NodePubKey              string   `json:"nodePubKey,omitempty"`
	KYCStatus               string   `json:"kycStatus"`
	EncryptedTravelRuleInfo string   `json:"encryptedTravelRuleInfo,omitempty"`
	TravelRuleFormat        string   `json:"travelRuleFormat,omitempty"`
	Signature               string   `json:"signature"`
	SignatureNonce          string   `json:"signatureNonce"`
	SignatureTimestamp      int64    `json:"signatureTimestamp"`
	UTXOCallback            string   `json:"utxoCallback,omitempty"`
}

type PayerData struct {
	Identifier string           `json:"identifier,omitempty"`
	Name       string           `json:"name,omitempty"`
	Email      string           `json:"email,omitempty"`
	Compliance *PayerCompliance `json:"compliance,omitempty"`
}

// PayRequest is sent to the receiver's callback. Amount is expressed in the
// receiving currency's smallest unit when AmountInReceivingCurrency is set,
// in millisatoshis otherwise.
type PayRequest struct {
	UMAMajorVersion           int
	ReceivingCurrencyCode     string
	AmountInReceivingCurrency bool
	Amount                    int64
	AmountBase                int64
	PayerData                 PayerData
	RequestedPayeeData        CounterpartyDataOptions
}

type payRequestV1 struct {
	Amount    string                  `json:"amount"`
	Convert   string                  `json:"convert,omitempty"`
	PayerData PayerData               `json:"payerData"`
	PayeeData CounterpartyDataOptions `json:"payeeData,omitempty"`
}

type payRequestV0 struct {
	Currency  string    `json:"currency"`
	Amount    int64     `json:"amount"`
	PayerData PayerData `json:"payerData"`
}

func (p *PayRequest) MarshalJSON() ([]byte, error) {
	if p.UMAMajorVersion == 0 {
		return json.Marshal(payRequestV0{
			Currency:  p.ReceivingCurrencyCode,
			Amount:    p.AmountBase,
			PayerData: p.PayerData,
		})
	}
	amount := strconv.FormatInt(p.Amount, 10)
	if p.AmountInReceivingCurrency {
		amount += "." + p.ReceivingCurrencyCode
	}
	return json.Marshal(payRequestV1{
		Amount:    amount,
		Convert:   p.ReceivingCurrencyCode,
		PayerData: p.PayerData,
		PayeeData: p.RequestedPayeeData,
	})
}

func (p *PayRequest) SignablePayload() []byte {
	c := p.PayerData.Compliance
	return []byte(p.PayerData.Identifier + "|" + c.SignatureNonce + "|" + strconv.FormatInt(c.SignatureTimestamp, 10))
}

type Converted struct {
	Amount       int64   `json:"amount"`
	CurrencyCode string  `json:"currencyCode"`
	Decimals     int     `json:"decimals"`
	Multiplier   float64 `json:"multiplier"`
	Fee          int64   `json:"fee"`
}

type PayeeCompliance struct {
	NodePubKey         string   `json:"nodePubKey,omitempty"`
	UTXOs              []string `json:"utxos"`
	UTXOCallback       string   `json:"utxoCallback,omitempty"`
	Signature          string   `json:"signature,omitempty"`
	SignatureNonce     string   `json:"signatureNonce,omitempty"`
	SignatureTimestamp int64    `json:"signatureTimestamp,omitempty"`
}

type PayeeData struct {
	Identifier string           `json:"identifier,omitempty"`
	Name       string           `json:"name,omitempty"`
	Email      string           `json:"email,omitempty"`
	Compliance *PayeeCompliance `json:"compliance,omitempty"`
}

// PayReqResponse is the receiver's answer to a pay request. Version 0 used
// "paymentInfo" and a top-level "compliance"; ParsePayReqResponse folds them
// into Converted and PayeeData.
type PayReqResponse struct {
	EncodedInvoice string           `json:"pr"`
	Routes         []any            `json:"routes"`
	Converted      *Converted       `json:"converted,omitempty"`
	PaymentInfo    *Converted       `json:"paymentInfo,omitempty"`
	PayeeData      *PayeeData       `json:"payeeData,omitempty"`
	Compliance     *PayeeCompliance `json:"compliance,omitempty"`
	UMAVersion     string           `json:"umaVersion,omitempty"`
	Status         string           `json:"status,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}

func ParsePayReqResponse(body []byte) (*PayReqResponse, error) {
	var r PayReqResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.Status == "ERROR" {
		return nil, fmt.Errorf("%w: %s", ErrRejected, r.Reason)
	}
	if r.EncodedInvoice == "" {
		return nil, fmt.Errorf("%w: pay response has no invoice", ErrMalformed)
	}
	if r.Converted == nil {
		r.Converted = r.PaymentInfo
	}
	if r.Compliance != nil {
		if r.PayeeData == nil {
			r.PayeeData = &PayeeData{}
		}
		if r.PayeeData.Compliance == nil {
			r.PayeeData.Compliance = r.Compliance
		}
	}
	return &r, nil
}

func (r *PayReqResponse) IsUMA() bool {
	return r.Converted != nil && r.PayeeData != nil && r.PayeeData.Compliance != nil
}

// NodePubKey and UTXOs return the payee's disclosed settlement data.
func (r *PayReqResponse) NodePubKey() string {
	if r.PayeeData == nil || r.PayeeData.Compliance == nil {
		return ""
	}
	return r.PayeeData.Compliance.NodePubKey
}

func (r *PayReqResponse) UTXOs() []string {
	if r.PayeeData == nil || r.PayeeData.Compliance == nil {
		return nil
	}
	return r.PayeeData.Compliance.UTXOs
}

func (r *PayReqResponse) SignablePayload(payerIdentifier, payeeIdentifier string) []byte {
	c := r.PayeeData.Compliance
	return []byte(payerIdentifier + "|" + payeeIdentifier + "|" + c.SignatureNonce + "|" + strconv.FormatInt(c.SignatureTimestamp, 10))
}

type UTXOWithAmount struct {
	UTXO   string `json:"utxo"`
	Amount int64  `json:"amount"`
}

// PostTransactionCallback discloses the settlement outputs of a completed
// payment to the receiver.
type PostTransactionCallback struct {
	UTXOs              []UTXOWithAmount `json:"utxos"`
	VaspDomain         string           `json:"vaspDomain"`
	Signature          string           `json:"signature"`
	SignatureNonce     string           `json:"signatureNonce"`
	SignatureTimestamp int64            `json:"signatureTimestamp"`
}

func (c *PostTransactionCallback) SignablePayload() []byte {
	return []byte(c.SignatureNonce + "|" + strconv.FormatInt(c.SignatureTimestamp, 10))
}

// PubKeyResponse is served at /.well-known/lnurlpubkey.
type PubKeyResponse struct {
	SigningPubKey       string `json:"signingPubKey"`
	EncryptionPubKey    string `json:"encryptionPubKey"`
	ExpirationTimestamp *int64 `json:"expirationTimestamp,omitempty"`
}
