// Package api is a small HTTP client for the umasend server API used by
// umactl.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type Client struct {
	Base  string
	Token string
	HTTP  *http.Client
}

func New(base, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{Base: strings.TrimRight(base, "/"), Token: token, HTTP: hc}
}

type Currency struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Multiplier  float64 `json:"multiplier"`
	Decimals    int     `json:"decimals"`
	MinSendable int64   `json:"minSendable"`
	MaxSendable int64   `json:"maxSendable"`
}

type LookupResult struct {
	SenderCurrencies   []Currency `json:"senderCurrencies"`
	ReceiverCurrencies []Currency `json:"receiverCurrencies"`
	MinSendableMsats   int64      `json:"minSendableMsats"`
	MaxSendableMsats   int64      `json:"maxSendableMsats"`
	CallbackUUID       string     `json:"callbackUuid"`
	ReceiverKYCStatus  string     `json:"receiverKycStatus"`
}

type PayReqParams struct {
	Amount            string
	ReceivingCurrency string
	SendingCurrency   string
	IsBaseUnit        bool
}

type PayReqResult struct {
	SenderCurrencies        []Currency `json:"senderCurrencies"`
	CallbackUUID            string     `json:"callbackUuid"`
	EncodedInvoice          string     `json:"encodedInvoice"`
	AmountMsats             int64      `json:"amountMsats"`
	AmountReceivingCurrency int64      `json:"amountReceivingCurrency"`
	ConversionRate          float64    `json:"conversionRate"`
	ExchangeFeesMsats       int64      `json:"exchangeFeesMsats"`
	ReceivingCurrencyCode   string     `json:"receivingCurrencyCode"`
}

type SendResult struct {
	PaymentID  string `json:"paymentId"`
	DidSucceed bool   `json:"didSucceed"`
}

type PubKeys struct {
	SigningPubKey    string `json:"signingPubKey"`
	EncryptionPubKey string `json:"encryptionPubKey"`
}

func (c *Client) Login(ctx context.Context, userName, password string) (string, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	in := map[string]string{"username": userName, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/login", in, &out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (c *Client) Lookup(ctx context.Context, address string) (*LookupResult, error) {
	var out LookupResult
	if err := c.do(ctx, http.MethodGet, "/api/lookup/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PayReq(ctx context.Context, callbackUUID string, p PayReqParams) (*PayReqResult, error) {
	q := url.Values{}
	q.Set("amount", p.Amount)
	if p.ReceivingCurrency != "" {
		q.Set("receivingCurrencyCode", p.ReceivingCurrency)
	}
	if p.SendingCurrency != "" {
		q.Set("sendingCurrency", p.SendingCurrency)
	}
	if p.IsBaseUnit {
		q.Set("isBaseUnit", strconv.FormatBool(true))
	}

	var out PayReqResult
	path := "/api/payreq/" + url.PathEscape(callbackUUID) + "?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendPayment(ctx context.Context, callbackUUID, sendingCurrency string) (*SendResult, error) {
	path := "/api/sendpayment/" + url.PathEscape(callbackUUID)
	if sendingCurrency != "" {
		path += "?sendingCurrency=" + url.QueryEscape(sendingCurrency)
	}
	var out SendResult
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PubKeys(ctx context.Context) (*PubKeys, error) {
	var out PubKeys
	if err := c.do(ctx, http.MethodGet, "/.well-known/lnurlpubkey", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb struct {
			Data   string `json:"data"`
			Reason string `json:"reason"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &eb) != nil || eb.Data == "" {
			eb.Data = strings.TrimSpace(string(raw))
		}
		return &Error{Status: resp.StatusCode, Reason: eb.Reason, Message: eb.Data}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
