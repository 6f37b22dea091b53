package umaproto

import (
	"crypto/ecdsa"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/dmitrijs2005/umasend/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	return k
}

func signedLookupResponse(t *testing.T, key *ecdsa.PrivateKey, nonce string, ts time.Time) *LookupResponse {
	t.Helper()
	r := &LookupResponse{
		Tag:         "payRequest",
		Callback:    "https://vasp2.test/api/uma/payreq/bob",
		MinSendable: 1000,
		MaxSendable: 10_000_000_000,
		Currencies: []Currency{{
			Code: "SAT", Name: "Satoshis", Multiplier: 1000,
			Convertible: &Convertible{Min: 1, Max: 10_000_000_000},
		}},
		PayerData: CounterpartyDataOptions{
			"identifier": {Mandatory: true},
			"compliance": {Mandatory: true},
			"name":       {Mandatory: false},
		},
		Compliance: &LookupCompliance{
			KYCStatus:             KYCVerified,
			SignatureNonce:        nonce,
			SignatureTimestamp:    ts.Unix(),
			IsSubjectToTravelRule: true,
			ReceiverIdentifier:    "$bob@vasp2.test",
		},
		UMAVersion: "1.0",
	}
	sig, err := cryptox.SignPayload(key, r.SignablePayload())
	require.NoError(t, err)
	r.Compliance.Signature = sig
	return r
}

func TestLookupRequest_RoundTrip(t *testing.T) {
	key := mustKey(t)
	now := time.Unix(1_700_000_000, 0)

	req, err := NewLookupRequest("bob@vasp2.test", "vasp1.test", key, true, 1, now)
	require.NoError(t, err)

	u, err := url.Parse(req.URL())
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "/.well-known/lnurlp/bob", u.Path)
	assert.Equal(t, "1.0", u.Query().Get("umaVersion"))
	assert.Equal(t, "vasp1.test", u.Query().Get("vaspDomain"))

	parsed, err := ParseLookupRequest(u)
	require.NoError(t, err)
	assert.Equal(t, req, parsed)
	assert.NoError(t, cryptox.VerifyPayload(&key.PublicKey, parsed.SignablePayload(), parsed.Signature))
}

func TestNewLookupRequest_VersionOverrideAndBadAddress(t *testing.T) {
	key := mustKey(t)

	req, err := NewLookupRequest("bob@vasp2.test", "vasp1.test", key, true, 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "0.3", req.UMAVersion)

	_, err = NewLookupRequest("bob", "vasp1.test", key, true, 1, time.Now())
	assert.Error(t, err)
}

func TestParseLookupResponse(t *testing.T) {
	key := mustKey(t)
	r := signedLookupResponse(t, key, "n1", time.Now())
	body, err := json.Marshal(r)
	require.NoError(t, err)

	got, err := ParseLookupResponse(body)
	require.NoError(t, err)
	assert.True(t, got.IsUMA())
	assert.True(t, got.PayerData.Mandatory("identifier"))
	assert.False(t, got.PayerData.Mandatory("name"))
	assert.True(t, got.PayerData.Has("name"))
	assert.False(t, got.PayerData.Has("email"))

	d := Descriptors(got.Currencies)
	require.Len(t, d, 1)
	assert.Equal(t, int64(1), d[0].MinSendable)
	assert.Equal(t, int64(10_000_000_000), d[0].MaxSendable)

	plain, err := ParseLookupResponse([]byte(`{"tag":"payRequest","callback":"https://x/cb","minSendable":1000,"maxSendable":5000,"metadata":"[]"}`))
	require.NoError(t, err)
	assert.False(t, plain.IsUMA())

	_, err = ParseLookupResponse([]byte(`{"tag":"payRequest"}`))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = ParseLookupResponse([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyLookupResponse(t *testing.T) {
	key := mustKey(t)
	other := mustKey(t)
	nonces := NewNonceCache(time.Hour)

	t.Run("valid", func(t *testing.T) {
		r := signedLookupResponse(t, key, "valid-nonce", time.Now())
		assert.NoError(t, VerifyLookupResponse(r, &key.PublicKey, nonces))
	})

	t.Run("replayed nonce", func(t *testing.T) {
		r := signedLookupResponse(t, key, "valid-nonce", time.Now())
		assert.ErrorIs(t, VerifyLookupResponse(r, &key.PublicKey, nonces), ErrNonceReused)
	})

	t.Run("wrong key does not burn the nonce", func(t *testing.T) {
		r := signedLookupResponse(t, key, "fresh-nonce", time.Now())
		assert.ErrorIs(t, VerifyLookupResponse(r, &other.PublicKey, nonces), cryptox.ErrInvalidSignature)
		assert.NoError(t, VerifyLookupResponse(r, &key.PublicKey, nonces))
	})

	t.Run("tampered", func(t *testing.T) {
		r := signedLookupResponse(t, key, "tampered-nonce", time.Now())
		r.Compliance.ReceiverIdentifier = "$mallory@vasp2.test"
		assert.Error(t, VerifyLookupResponse(r, &key.PublicKey, nonces))
	})

	t.Run("no compliance", func(t *testing.T) {
		assert.ErrorIs(t, VerifyLookupResponse(&LookupResponse{}, &key.PublicKey, nonces), ErrMissingCompliance)
	})
}

func TestNewPayRequest_V1(t *testing.T) {
	signer := mustKey(t)
	receiverEnc := mustKey(t)
	now := time.Unix(1_700_000_000, 0)

	req, err := NewPayRequest(PayRequestParams{
		SigningKey:                signer,
		ReceiverEncryptionKey:     &receiverEnc.PublicKey,
		UMAMajorVersion:           1,
		ReceivingCurrencyCode:     "SAT",
		AmountInReceivingCurrency: true,
		Amount:                    5000,
		AmountBase:                5_000_000,
		PayerIdentifier:           "$alice@vasp1.test",
		PayerKYCStatus:            KYCVerified,
		PayerNodePubKey:           "02abc",
		UTXOCallback:              "https://vasp1.test/api/uma/utxoCallback?txId=1",
		TravelRuleInfo:            `{"originator":"alice"}`,
		RequestedPayeeData:        CounterpartyDataOptions{"name": {Mandatory: false}},
		Now:                       now,
	})
	require.NoError(t, err)

	body, err := json.Marshal(req)
	require.NoError(t, err)

	var wire struct {
		Amount    string                  `json:"amount"`
		Convert   string                  `json:"convert"`
		PayerData PayerData               `json:"payerData"`
		PayeeData CounterpartyDataOptions `json:"payeeData"`
	}
	require.NoError(t, json.Unmarshal(body, &wire))
	assert.Equal(t, "5000.SAT", wire.Amount)
	assert.Equal(t, "SAT", wire.Convert)
	assert.Equal(t, "$alice@vasp1.test", wire.PayerData.Identifier)
	assert.Equal(t, []string{}, wire.PayerData.Compliance.UTXOs)
	assert.Equal(t, now.Unix(), wire.PayerData.Compliance.SignatureTimestamp)
	assert.True(t, wire.PayeeData.Has("name"))

	pt, err := cryptox.DecryptWithPrivKey(receiverEnc, wire.PayerData.Compliance.EncryptedTravelRuleInfo)
	require.NoError(t, err)
	assert.Equal(t, `{"originator":"alice"}`, string(pt))

	assert.NoError(t, cryptox.VerifyPayload(&signer.PublicKey, req.SignablePayload(), wire.PayerData.Compliance.Signature))
}

func TestNewPayRequest_V0UsesMsats(t *testing.T) {
	req, err := NewPayRequest(PayRequestParams{
		SigningKey:                mustKey(t),
		UMAMajorVersion:           0,
		ReceivingCurrencyCode:     "USD",
		AmountInReceivingCurrency: true,
		Amount:                    100,
		AmountBase:                3_415_000,
		PayerIdentifier:           "$alice@vasp1.test",
		Now:                       time.Now(),
	})
	require.NoError(t, err)

	body, err := json.Marshal(req)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(body, &wire))
	assert.Equal(t, "USD", wire["currency"])
	assert.Equal(t, float64(3_415_000), wire["amount"])
	assert.NotContains(t, wire, "convert")
}

func TestNewPayRequest_TravelRuleNeedsKey(t *testing.T) {
	_, err := NewPayRequest(PayRequestParams{
		SigningKey:     mustKey(t),
		TravelRuleInfo: "x",
		Now:            time.Now(),
	})
	assert.Error(t, err)
}

func TestParsePayReqResponse(t *testing.T) {
	t.Run("v1", func(t *testing.T) {
		r, err := ParsePayReqResponse([]byte(`{
			"pr":"lnbc50u1",
			"converted":{"amount":5000,"currencyCode":"SAT","decimals":0,"multiplier":1000,"fee":0},
			"payeeData":{"identifier":"$bob@vasp2.test","compliance":{"nodePubKey":"03def","utxos":["txid:0"]}},
			"umaVersion":"1.0"
		}`))
		require.NoError(t, err)
		assert.True(t, r.IsUMA())
		assert.Equal(t, "03def", r.NodePubKey())
		assert.Equal(t, []string{"txid:0"}, r.UTXOs())
	})

	t.Run("v0 folds paymentInfo and compliance", func(t *testing.T) {
		r, err := ParsePayReqResponse([]byte(`{
			"pr":"lnbc50u1",
			"paymentInfo":{"amount":100,"currencyCode":"USD","decimals":2,"multiplier":34150,"fee":10},
			"compliance":{"nodePubKey":"03def","utxos":[]}
		}`))
		require.NoError(t, err)
		assert.True(t, r.IsUMA())
		assert.Equal(t, int64(10), r.Converted.Fee)
		assert.Equal(t, "03def", r.NodePubKey())
	})

	t.Run("plain", func(t *testing.T) {
		r, err := ParsePayReqResponse([]byte(`{"pr":"lnbc1","routes":[]}`))
		require.NoError(t, err)
		assert.False(t, r.IsUMA())
		assert.Empty(t, r.NodePubKey())
		assert.Nil(t, r.UTXOs())
	})

	t.Run("receiver error", func(t *testing.T) {
		_, err := ParsePayReqResponse([]byte(`{"status":"ERROR","reason":"amount too small"}`))
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("no invoice", func(t *testing.T) {
		_, err := ParsePayReqResponse([]byte(`{"routes":[]}`))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestVerifyPayReqResponse(t *testing.T) {
	key := mustKey(t)
	nonces := NewNonceCache(time.Hour)

	r := &PayReqResponse{
		EncodedInvoice: "lnbc1",
		Converted:      &Converted{Amount: 1, CurrencyCode: "SAT", Multiplier: 1000},
		PayeeData: &PayeeData{Compliance: &PayeeCompliance{
			SignatureNonce:     "pr-nonce",
			SignatureTimestamp: time.Now().Unix(),
		}},
	}
	sig, err := cryptox.SignPayload(key, r.SignablePayload("$alice@vasp1.test", "bob@vasp2.test"))
	require.NoError(t, err)
	r.PayeeData.Compliance.Signature = sig

	assert.Error(t, VerifyPayReqResponse(r, "$alice@vasp1.test", "carol@vasp2.test", &key.PublicKey, nonces))
	assert.NoError(t, VerifyPayReqResponse(r, "$alice@vasp1.test", "bob@vasp2.test", &key.PublicKey, nonces))
	assert.ErrorIs(t, VerifyPayReqResponse(&PayReqResponse{}, "", "", &key.PublicKey, nonces), ErrMissingCompliance)
}

func TestNewPostTransactionCallback(t *testing.T) {
	key := mustKey(t)
	cb, err := NewPostTransactionCallback([]UTXOWithAmount{{UTXO: "txid:1", Amount: 5_000_000}}, "vasp1.test", key, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "vasp1.test", cb.VaspDomain)
	assert.NoError(t, cryptox.VerifyPayload(&key.PublicKey, cb.SignablePayload(), cb.Signature))

	empty, err := NewPostTransactionCallback(nil, "vasp1.test", key, time.Now())
	require.NoError(t, err)
	body, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"utxos":[]`)
}
