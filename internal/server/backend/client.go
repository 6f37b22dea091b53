// Package backend talks to the payment node API that holds the VASP's
// lightning node: node info, invoice decoding, signing-key loading and
// payment dispatch.
package backend

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/umasend/internal/server/payflow"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

type HTTPClient struct {
	base  string
	token string
	http  *http.Client
}

var _ payflow.PaymentBackend = (*HTTPClient)(nil)

func NewHTTPClient(base, token string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{base: strings.TrimRight(base, "/"), token: token, http: hc}
}

type nodeDTO struct {
	ID                string   `json:"id"`
	PublicKey         string   `json:"publicKey"`
	Kind              string   `json:"kind"`
	Network           string   `json:"network"`
	PrescreeningUTXOs []string `json:"prescreeningUtxos"`
}

type decodeRequest struct {
	EncodedInvoice string `json:"encodedInvoice"`
}

type invoiceDTO struct {
	AmountMsats int64     `json:"amountMsats"`
	ExpiresAt   time.Time `json:"expiresAt"`
	PaymentHash string    `json:"paymentHash"`
}

type signingKeyRequest struct {
	Password      string `json:"password,omitempty"`
	MasterSeedHex string `json:"masterSeedHex,omitempty"`
	Network       string `json:"network,omitempty"`
}

type signingKeyResponse struct {
	Loaded bool `json:"loaded"`
}

type dispatchRequest struct {
	NodeID         string `json:"nodeId"`
	EncodedInvoice string `json:"encodedInvoice"`
	MaxFeesMsats   int64  `json:"maxFeesMsats"`
}

type artifactDTO struct {
	UTXO        string `json:"utxo"`
	AmountMsats int64  `json:"amountMsats"`
}

type paymentDTO struct {
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	FailureReason string        `json:"failureReason,omitempty"`
	Artifacts     []artifactDTO `json:"artifacts"`
}

func (c *HTTPClient) NodeInfo(ctx context.Context, nodeID string) (*payflow.Node, error) {
	var out nodeDTO
	if err := c.do(ctx, http.MethodGet, "/nodes/"+url.PathEscape(nodeID), nil, &out); err != nil {
		return nil, fmt.Errorf("node info: %w", err)
	}
	return &payflow.Node{
		ID:                out.ID,
		PublicKey:         out.PublicKey,
		Kind:              payflow.NodeKind(out.Kind),
		Network:           out.Network,
		PrescreeningUTXOs: out.PrescreeningUTXOs,
	}, nil
}

func (c *HTTPClient) DecodeInstrument(ctx context.Context, encoded string) (*payflow.Instrument, error) {
	var out invoiceDTO
	if err := c.do(ctx, http.MethodPost, "/invoices/decode", decodeRequest{EncodedInvoice: encoded}, &out); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	return &payflow.Instrument{
		AmountBase:  out.AmountMsats,
		ExpiresAt:   out.ExpiresAt,
		PaymentHash: out.PaymentHash,
	}, nil
}

func (c *HTTPClient) LoadSigningKey(ctx context.Context, nodeID string, cred payflow.SigningCredential) (bool, error) {
	req := signingKeyRequest{Password: cred.Password, Network: cred.Network}
	if len(cred.MasterSeed) > 0 {
		req.MasterSeedHex = hex.EncodeToString(cred.MasterSeed)
	}

	var out signingKeyResponse
	if err := c.do(ctx, http.MethodPost, "/nodes/"+url.PathEscape(nodeID)+"/signing-key", req, &out); err != nil {
		return false, fmt.Errorf("load signing key: %w", err)
	}
	return out.Loaded, nil
}

func (c *HTTPClient) DispatchPayment(ctx context.Context, nodeID, encoded string, maxFeeBase int64) (*payflow.Payment, error) {
	var out paymentDTO
	req := dispatchRequest{NodeID: nodeID, EncodedInvoice: encoded, MaxFeesMsats: maxFeeBase}
	if err := c.do(ctx, http.MethodPost, "/payments", req, &out); err != nil {
		return nil, fmt.Errorf("dispatch payment: %w", err)
	}
	return out.toPayment(), nil
}

func (c *HTTPClient) PollPayment(ctx context.Context, paymentID string) (*payflow.Payment, error) {
	var out paymentDTO
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return nil, fmt.Errorf("poll payment: %w", err)
	}
	return out.toPayment(), nil
}

func (p paymentDTO) toPayment() *payflow.Payment {
	artifacts := make([]payflow.SettlementArtifact, 0, len(p.Artifacts))
	for _, a := range p.Artifacts {
		artifacts = append(artifacts, payflow.SettlementArtifact{UTXO: a.UTXO, AmountBase: a.AmountMsats})
	}
	return &payflow.Payment{
		ID:            p.ID,
		Status:        payflow.PaymentStatus(p.Status),
		FailureReason: p.FailureReason,
		Artifacts:     artifacts,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w %s: %s", ErrUnexpectedStatus, resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
