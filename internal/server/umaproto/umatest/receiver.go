// Package umatest provides a fake receiving VASP for tests.
package umatest

import (
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/umasend/internal/common"
	"github.com/dmitrijs2005/umasend/internal/cryptox"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto"
)

// Options shape the receiver's behaviour. The zero value is a well-behaved
// version 1 receiver offering SAT.
type Options struct {
	// SupportedMajors defaults to {1, 0}.
	SupportedMajors []int
	// AlwaysUnsupported answers every lookup with 412.
	AlwaysUnsupported bool
	Plain             bool
	LookupStatus      int
	PayReqStatus      int
	BadLookupSig      bool
	BadPayReqSig      bool
	NonUMAPayResponse bool
	NoPubKeys         bool

	// SenderKey, when set, is used to verify inbound request signatures.
	SenderKey *ecdsa.PublicKey

	Currencies      []umaproto.Currency
	PayerData       umaproto.CounterpartyDataOptions
	Invoice         string
	PayeeNodePubKey string
	PayeeUTXOs      []string
	Fee             int64
	KYCStatus       string
}

type Receiver struct {
	Server        *httptest.Server
	Domain        string
	SigningKey    *ecdsa.PrivateKey
	EncryptionKey *ecdsa.PrivateKey

	opts Options

	mu             sync.Mutex
	lookupVersions []string
	payRequests    []map[string]any
	plainQueries   []url.Values
	postTx         []umaproto.PostTransactionCallback
	keyFetches     int
}

func NewReceiver(t testing.TB, opts Options) *Receiver {
	t.Helper()

	signing, err := cryptox.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	encryption, err := cryptox.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate encryption key: %v", err)
	}

	if opts.SupportedMajors == nil {
		opts.SupportedMajors = []int{1, 0}
	}
	if opts.Currencies == nil {
		opts.Currencies = []umaproto.Currency{{
			Code: "SAT", Name: "Satoshis", Multiplier: 1000,
			Convertible: &umaproto.Convertible{Min: 1, Max: 10_000_000_000},
		}}
	}
	if opts.PayerData == nil {
		opts.PayerData = umaproto.CounterpartyDataOptions{
			"identifier": {Mandatory: true},
			"compliance": {Mandatory: true},
			"name":       {Mandatory: false},
			"email":      {Mandatory: false},
		}
	}
	if opts.Invoice == "" {
		opts.Invoice = "lnbc-test-invoice"
	}
	if opts.KYCStatus == "" {
		opts.KYCStatus = umaproto.KYCVerified
	}

	r := &Receiver{SigningKey: signing, EncryptionKey: encryption, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/lnurlpubkey", r.handlePubKey)
	mux.HandleFunc("/.well-known/lnurlp/", r.handleLookup)
	mux.HandleFunc("/api/uma/payreq/", r.handlePayReq)
	mux.HandleFunc("/api/uma/utxoCallback", r.handlePostTx)

	r.Server = httptest.NewServer(mux)
	r.Domain = strings.TrimPrefix(r.Server.URL, "http://")
	t.Cleanup(r.Server.Close)
	return r
}

// Address returns user@domain for this receiver.
func (r *Receiver) Address(user string) string { return user + "@" + r.Domain }

func (r *Receiver) LookupVersions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.lookupVersions)
}

func (r *Receiver) PayRequests() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.payRequests)
}

func (r *Receiver) PlainQueries() []url.Values {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.plainQueries)
}

func (r *Receiver) PostTransactionCallbacks() []umaproto.PostTransactionCallback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.postTx)
}

func (r *Receiver) KeyFetches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keyFetches
}

func (r *Receiver) handlePubKey(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	r.keyFetches++
	r.mu.Unlock()

	if r.opts.NoPubKeys {
		http.NotFound(w, nil)
		return
	}
	writeJSON(w, http.StatusOK, umaproto.PubKeyResponse{
		SigningPubKey:    cryptox.PublicKeyHex(&r.SigningKey.PublicKey),
		EncryptionPubKey: cryptox.PublicKeyHex(&r.EncryptionKey.PublicKey),
	})
}

func (r *Receiver) handleLookup(w http.ResponseWriter, req *http.Request) {
	u := *req.URL
	u.Host = req.Host
	lr, err := umaproto.ParseLookupRequest(&u)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "ERROR", "reason": err.Error()})
		return
	}

	r.mu.Lock()
	r.lookupVersions = append(r.lookupVersions, lr.UMAVersion)
	r.mu.Unlock()

	if r.opts.LookupStatus != 0 {
		w.WriteHeader(r.opts.LookupStatus)
		return
	}

	if r.opts.SenderKey != nil {
		if err := cryptox.VerifyPayload(r.opts.SenderKey, lr.SignablePayload(), lr.Signature); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "ERROR", "reason": "bad signature"})
			return
		}
	}

	major, err := umaproto.MajorVersion(lr.UMAVersion)
	if r.opts.AlwaysUnsupported || err != nil || !slices.Contains(r.opts.SupportedMajors, major) {
		writeJSON(w, http.StatusPreconditionFailed, umaproto.UnsupportedVersion{
			SupportedMajorVersions: r.opts.SupportedMajors,
			UnsupportedVersion:     lr.UMAVersion,
		})
		return
	}

	user, _, _ := umaproto.SplitAddress(lr.ReceiverAddress)
	resp := umaproto.LookupResponse{
		Tag:         "payRequest",
		Callback:    r.Server.URL + "/api/uma/payreq/" + user,
		MinSendable: 1_000,
		MaxSendable: 10_000_000_000_000,
		Metadata:    `[["text/plain","Pay to ` + user + `"]]`,
	}
	if !r.opts.Plain {
		resp.Currencies = r.opts.Currencies
		resp.PayerData = r.opts.PayerData
		resp.UMAVersion = umaproto.VersionString(major)
		resp.Compliance = &umaproto.LookupCompliance{
			KYCStatus:             r.opts.KYCStatus,
			SignatureNonce:        mustNonce(),
			SignatureTimestamp:    time.Now().Unix(),
			IsSubjectToTravelRule: true,
			ReceiverIdentifier:    "$" + lr.ReceiverAddress,
		}
		key := r.SigningKey
		if r.opts.BadLookupSig {
			key = mustKey()
		}
		resp.Compliance.Signature = mustSign(key, resp.SignablePayload())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Receiver) handlePayReq(w http.ResponseWriter, req *http.Request) {
	user := strings.TrimPrefix(req.URL.Path, "/api/uma/payreq/")

	if req.Method == http.MethodGet {
		r.mu.Lock()
		r.plainQueries = append(r.plainQueries, req.URL.Query())
		r.mu.Unlock()
		if r.opts.PayReqStatus != 0 {
			w.WriteHeader(r.opts.PayReqStatus)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pr": r.opts.Invoice, "routes": []any{}})
		return
	}

	body, _ := io.ReadAll(req.Body)
	var wire map[string]any
	if err := json.Unmarshal(body, &wire); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "ERROR", "reason": "bad json"})
		return
	}
	r.mu.Lock()
	r.payRequests = append(r.payRequests, wire)
	r.mu.Unlock()

	if r.opts.PayReqStatus != 0 {
		w.WriteHeader(r.opts.PayReqStatus)
		return
	}

	var parsed struct {
		PayerData umaproto.PayerData `json:"payerData"`
	}
	_ = json.Unmarshal(body, &parsed)
	payerID := parsed.PayerData.Identifier

	if r.opts.SenderKey != nil && parsed.PayerData.Compliance != nil {
		pr := umaproto.PayRequest{PayerData: parsed.PayerData}
		if err := cryptox.VerifyPayload(r.opts.SenderKey, pr.SignablePayload(), parsed.PayerData.Compliance.Signature); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "ERROR", "reason": "bad signature"})
			return
		}
	}

	if r.opts.NonUMAPayResponse {
		writeJSON(w, http.StatusOK, map[string]any{"pr": r.opts.Invoice, "routes": []any{}})
		return
	}

	code := "SAT"
	if c, ok := wire["convert"].(string); ok && c != "" {
		code = c
	} else if c, ok := wire["currency"].(string); ok && c != "" {
		code = c
	}
	cur := r.opts.Currencies[0]
	for _, c := range r.opts.Currencies {
		if c.Code == code {
			cur = c
		}
	}

	utxos := r.opts.PayeeUTXOs
	if utxos == nil {
		utxos = []string{}
	}
	resp := umaproto.PayReqResponse{
		EncodedInvoice: r.opts.Invoice,
		Routes:         []any{},
		Converted: &umaproto.Converted{
			Amount:       amountFromWire(wire),
			CurrencyCode: cur.Code,
			Decimals:     cur.Decimals,
			Multiplier:   cur.Multiplier,
			Fee:          r.opts.Fee,
		},
		PayeeData: &umaproto.PayeeData{
			Identifier: "$" + user + "@" + r.Domain,
			Compliance: &umaproto.PayeeCompliance{
				NodePubKey:         r.opts.PayeeNodePubKey,
				UTXOs:              utxos,
				UTXOCallback:       r.Server.URL + "/api/uma/utxoCallback",
				SignatureNonce:     mustNonce(),
				SignatureTimestamp: time.Now().Unix(),
			},
		},
		UMAVersion: "1.0",
	}
	key := r.SigningKey
	if r.opts.BadPayReqSig {
		key = mustKey()
	}
	resp.PayeeData.Compliance.Signature = mustSign(key, resp.SignablePayload(payerID, user+"@"+r.Domain))
	writeJSON(w, http.StatusOK, resp)
}

func (r *Receiver) handlePostTx(w http.ResponseWriter, req *http.Request) {
	var cb umaproto.PostTransactionCallback
	if err := json.NewDecoder(req.Body).Decode(&cb); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.postTx = append(r.postTx, cb)
	r.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func amountFromWire(wire map[string]any) int64 {
	switch v := wire["amount"].(type) {
	case float64:
		return int64(v)
	case string:
		n, _, _ := strings.Cut(v, ".")
		out, _ := strconv.ParseInt(n, 10, 64)
		return out
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func mustNonce() string {
	n, err := common.MakeRandHexString(common.NonceSize)
	if err != nil {
		panic(err)
	}
	return n
}

func mustKey() *ecdsa.PrivateKey {
	k, err := cryptox.GenerateKeyPair()
	if err != nil {
		panic(err)
	}
	return k
}

func mustSign(key *ecdsa.PrivateKey, payload []byte) string {
	s, err := cryptox.SignPayload(key, payload)
	if err != nil {
		panic(err)
	}
	return s
}
