// Package transactions persists outgoing payments. A row is created PENDING
// before dispatch and moved exactly once to SUCCEEDED or FAILED.
package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/umasend/internal/common"
	"github.com/dmitrijs2005/umasend/internal/dbx"
	"github.com/dmitrijs2005/umasend/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.OutgoingTransaction) error {
	query :=
		`INSERT INTO outgoing_transactions
		   (payment_id, user_id, counterparty_address, amount_msats, amount_settlement, currency_code, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (payment_id) DO NOTHING
		 `

	res, err := r.db.ExecContext(ctx, query,
		t.PaymentID, t.UserID, t.CounterpartyAddress, t.AmountMsats, t.AmountSettlement, t.CurrencyCode, t.Status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.RequireOneRow(res); err != nil {
		if dbx.IsNoRows(err) {
			return common.ErrorAlreadyRecorded
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, paymentID string) (*models.OutgoingTransaction, error) {
	query :=
		`SELECT payment_id, user_id, counterparty_address, amount_msats, amount_settlement, currency_code,
		        COALESCE(backend_payment_id, ''), status, created_at, updated_at
		 FROM outgoing_transactions
		 WHERE payment_id = $1
		 `

	t := &models.OutgoingTransaction{}
	err := r.db.QueryRowContext(ctx, query, paymentID).Scan(
		&t.PaymentID, &t.UserID, &t.CounterpartyAddress, &t.AmountMsats, &t.AmountSettlement, &t.CurrencyCode,
		&t.BackendPaymentID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// Transition moves a transaction from one status to another. It fails with
// common.ErrorAlreadyRecorded when the row is not in the from status.
func (r *PostgresRepository) Transition(ctx context.Context, paymentID string, from, to models.TransactionStatus, backendPaymentID string) error {
	query :=
		`UPDATE outgoing_transactions
		 SET status = $3, backend_payment_id = NULLIF($4, ''), updated_at = now()
		 WHERE payment_id = $1 AND status = $2
		 `

	res, err := r.db.ExecContext(ctx, query, paymentID, from, to, backendPaymentID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.RequireOneRow(res); err != nil {
		if dbx.IsNoRows(err) {
			return common.ErrorAlreadyRecorded
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
