package users

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

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (username, full_name, email, kyc_status, salt, master_key_verifier)
         VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.FullName, user.Email, user.KYCStatus, user.Salt, user.Verifier).Scan(&user.ID)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	query :=
		`SELECT id, username, full_name, email, kyc_status, master_key_verifier, salt FROM users
		 WHERE username = $1
		 `
	return r.getOne(ctx, query, userName)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, username, full_name, email, kyc_status, master_key_verifier, salt FROM users
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.UserName, &user.FullName, &user.Email, &user.KYCStatus, &user.Verifier, &user.Salt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// CurrencyPreferences returns the user's settlement currencies in the order
// they were added.
func (r *PostgresRepository) CurrencyPreferences(ctx context.Context, userID string) ([]models.CurrencyPreference, error) {
	query :=
		`SELECT code, name, symbol, multiplier, decimals, min_sendable, max_sendable
		 FROM currency_preferences
		 WHERE user_id = $1
		 ORDER BY position
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var prefs []models.CurrencyPreference
	for rows.Next() {
		p := models.CurrencyPreference{UserID: userID}
		if err := rows.Scan(&p.Code, &p.Name, &p.Symbol, &p.Multiplier, &p.Decimals, &p.MinSendable, &p.MaxSendable); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return prefs, nil
}

func (r *PostgresRepository) AddCurrencyPreference(ctx context.Context, p *models.CurrencyPreference) error {
	query :=
		`INSERT INTO currency_preferences (user_id, code, name, symbol, multiplier, decimals, min_sendable, max_sendable, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
		         (SELECT COALESCE(MAX(position), 0) + 1 FROM currency_preferences WHERE user_id = $1))
		 `

	_, err := r.db.ExecContext(ctx, query,
		p.UserID, p.Code, p.Name, p.Symbol, p.Multiplier, p.Decimals, p.MinSendable, p.MaxSendable)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
