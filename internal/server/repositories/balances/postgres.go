// Package balances stores per-user, per-currency balances expressed in the
// currency's smallest unit.
package balances

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/umasend/internal/common"
	"github.com/dmitrijs2005/umasend/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID, currencyCode string) (int64, error) {
	query :=
		`SELECT amount FROM balances
		 WHERE user_id = $1 AND currency_code = $2
		 `

	var amount int64
	err := r.db.QueryRowContext(ctx, query, userID, currencyCode).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return amount, nil
}

func (r *PostgresRepository) Credit(ctx context.Context, userID, currencyCode string, amount int64) error {
	query :=
		`INSERT INTO balances (user_id, currency_code, amount)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, currency_code) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
		 `

	if _, err := r.db.ExecContext(ctx, query, userID, currencyCode, amount); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Debit subtracts amount, refusing to take the balance below zero.
func (r *PostgresRepository) Debit(ctx context.Context, userID, currencyCode string, amount int64) error {
	query :=
		`UPDATE balances SET amount = amount - $3
		 WHERE user_id = $1 AND currency_code = $2 AND amount >= $3
		 `

	res, err := r.db.ExecContext(ctx, query, userID, currencyCode, amount)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := dbx.RequireOneRow(res); err != nil {
		if dbx.IsNoRows(err) {
			return common.ErrorInsufficientBalance
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
