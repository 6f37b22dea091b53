package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/login", r.URL.Path)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "alice", in["username"])
		assert.Equal(t, "pw", in["password"])
		_, _ = io.WriteString(w, `{"accessToken":"jwt"}`)
	}))
	defer srv.Close()

	tok, err := New(srv.URL, "", nil).Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt", tok)
}

func TestLookup_SendsTokenAndEscapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/lookup/$bob@receiver.test", r.URL.Path)
		_, _ = io.WriteString(w, `{"callbackUuid":"cb-1","minSendableMsats":1000,"receiverCurrencies":[{"code":"USD","decimals":2}]}`)
	}))
	defer srv.Close()

	res, err := New(srv.URL+"/", "tok", nil).Lookup(context.Background(), "$bob@receiver.test")
	require.NoError(t, err)
	assert.Equal(t, "cb-1", res.CallbackUUID)
	assert.Equal(t, int64(1000), res.MinSendableMsats)
	require.Len(t, res.ReceiverCurrencies, 1)
	assert.Equal(t, "USD", res.ReceiverCurrencies[0].Code)
}

func TestPayReq_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payreq/cb-1", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "500", q.Get("amount"))
		assert.Equal(t, "USD", q.Get("receivingCurrencyCode"))
		assert.Equal(t, "SAT", q.Get("sendingCurrency"))
		assert.Equal(t, "true", q.Get("isBaseUnit"))
		_, _ = io.WriteString(w, `{"callbackUuid":"cb-2","amountMsats":5000000,"encodedInvoice":"lnbc"}`)
	}))
	defer srv.Close()

	res, err := New(srv.URL, "tok", nil).PayReq(context.Background(), "cb-1",
		PayReqParams{Amount: "500", ReceivingCurrency: "USD", SendingCurrency: "SAT", IsBaseUnit: true})
	require.NoError(t, err)
	assert.Equal(t, "cb-2", res.CallbackUUID)
	assert.Equal(t, int64(5_000_000), res.AmountMsats)
}

func TestSendPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sendpayment/cb-2", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("sendingCurrency"))
		_, _ = io.WriteString(w, `{"paymentId":"p-1","didSucceed":true}`)
	}))
	defer srv.Close()

	res, err := New(srv.URL, "tok", nil).SendPayment(context.Background(), "cb-2", "USD")
	require.NoError(t, err)
	assert.Equal(t, &SendResult{PaymentID: "p-1", DidSucceed: true}, res)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name: "unauthorized", status: http.StatusUnauthorized, body: `{"data":"Unauthorized. Check your credentials."}`,
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnauthorized) },
		},
		{
			name: "phase error", status: http.StatusForbidden, body: `{"data":"Transaction not allowed","reason":"ComplianceDenied"}`,
			check: func(t *testing.T, err error) {
				var e *Error
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 403, e.Status)
				assert.Equal(t, "ComplianceDenied", e.Reason)
				assert.Equal(t, "Transaction not allowed", e.Message)
			},
		},
		{
			name: "plain text", status: http.StatusBadGateway, body: "bad gateway",
			check: func(t *testing.T, err error) {
				var e *Error
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "bad gateway", e.Message)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, "tok", nil).Lookup(context.Background(), "$bob@receiver.test")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, "", nil).PubKeys(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
