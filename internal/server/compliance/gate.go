// Package compliance decides which counterparties and transactions the VASP
// accepts, builds travel-rule payloads and registers settled payments for
// monitoring.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/umasend/internal/logging"
	"github.com/dmitrijs2005/umasend/internal/server/config"
	"github.com/dmitrijs2005/umasend/internal/server/models"
	"github.com/dmitrijs2005/umasend/internal/server/payflow"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/repomanager"
)

type Policy struct {
	VaspDomain     string
	BlockedDomains []string
	DeniedNodes    []string
	DeniedUTXOs    []string
	// MaxAmountMsats rejects larger payments at pre-screen; 0 disables it.
	MaxAmountMsats int64
}

func PolicyFromConfig(c *config.Config) Policy {
	return Policy{
		VaspDomain:     c.VaspDomain,
		BlockedDomains: c.BlockedDomains,
		DeniedNodes:    c.DeniedNodes,
		DeniedUTXOs:    c.DeniedUTXOs,
		MaxAmountMsats: c.ScreenMaxAmountMsats,
	}
}

type Gate struct {
	policy      Policy
	blocked     map[string]struct{}
	deniedNodes map[string]struct{}
	deniedUTXOs map[string]struct{}
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

var _ payflow.ComplianceGate = (*Gate)(nil)

func NewGate(p Policy, db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *Gate {
	return &Gate{
		policy:      p,
		blocked:     toSet(p.BlockedDomains),
		deniedNodes: toSet(p.DeniedNodes),
		deniedUTXOs: toSet(p.DeniedUTXOs),
		db:          db,
		repomanager: m,
		logger:      l.With("module", "compliance"),
	}
}

// ShouldAcceptCounterparty rejects blocked domains and their subdomains.
func (g *Gate) ShouldAcceptCounterparty(ctx context.Context, domain, callerHandle, fullAddress string) (bool, error) {
	d := normalize(domain)
	for d != "" {
		if _, ok := g.blocked[d]; ok {
			g.logger.Info(ctx, "counterparty blocked", "domain", domain, "caller", callerHandle, "address", fullAddress)
			return false, nil
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}
	return true, nil
}

type travelRuleInfo struct {
	OriginatorVasp string `json:"originatorVasp,omitempty"`
	UserID         string `json:"userId"`
	Payer          string `json:"payer"`
	Payee          string `json:"payee"`
	AmountMsats    int64  `json:"amountMsats"`
}

func (g *Gate) TravelRuleInfo(ctx context.Context, userID, payerID, payeeAddress string, amountBase int64) (string, error) {
	b, err := json.Marshal(travelRuleInfo{
		OriginatorVasp: g.policy.VaspDomain,
		UserID:         userID,
		Payer:          payerID,
		Payee:          payeeAddress,
		AmountMsats:    amountBase,
	})
	if err != nil {
		return "", fmt.Errorf("marshal travel rule info: %w", err)
	}
	return string(b), nil
}

func (g *Gate) PreScreen(ctx context.Context, payerID, payeeAddress string, amountBase int64, counterpartyNode string, utxos []string) (bool, error) {
	if g.policy.MaxAmountMsats > 0 && amountBase > g.policy.MaxAmountMsats {
		g.logger.Info(ctx, "screen: amount over ceiling", "payer", payerID, "payee", payeeAddress, "amount_msats", amountBase)
		return false, nil
	}
	if _, ok := g.deniedNodes[normalize(counterpartyNode)]; ok && counterpartyNode != "" {
		g.logger.Info(ctx, "screen: denied node", "payee", payeeAddress, "node", counterpartyNode)
		return false, nil
	}
	for _, u := range utxos {
		if _, ok := g.deniedUTXOs[normalize(u)]; ok {
			g.logger.Info(ctx, "screen: denied utxo", "payee", payeeAddress, "utxo", u)
			return false, nil
		}
	}
	return true, nil
}

func (g *Gate) RegisterMonitoring(ctx context.Context, paymentID, nodeID string, dir payflow.Direction, artifacts []payflow.SettlementArtifact) error {
	if artifacts == nil {
		artifacts = []payflow.SettlementArtifact{}
	}
	body, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}

	err = g.repomanager.Monitoring(g.db).Create(ctx, &models.MonitoredPayment{
		PaymentID: paymentID,
		NodeID:    nodeID,
		Direction: string(dir),
		Artifacts: body,
	})
	if err != nil {
		return fmt.Errorf("error registering payment %s: %w", paymentID, err)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		if n := normalize(it); n != "" {
			m[n] = struct{}{}
		}
	}
	return m
}
