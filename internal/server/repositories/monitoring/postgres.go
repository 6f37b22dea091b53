// Package monitoring stores payments registered for compliance monitoring.
package monitoring

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/umasend/internal/dbx"
	"github.com/dmitrijs2005/umasend/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create is idempotent per (payment, direction).
func (r *PostgresRepository) Create(ctx context.Context, p *models.MonitoredPayment) error {
	query :=
		`INSERT INTO monitored_payments (payment_id, node_id, direction, artifacts)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (payment_id, direction) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, p.PaymentID, p.NodeID, p.Direction, p.Artifacts); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
