package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/umasend/internal/common"
	"github.com/dmitrijs2005/umasend/internal/dbx"
	"github.com/dmitrijs2005/umasend/internal/server/models"
	"github.com/dmitrijs2005/umasend/internal/server/payflow"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/repomanager"
)

// LedgerService records outgoing payments. The user's balance is debited
// only when a payment succeeds, in the same transaction that closes the
// ledger row.
type LedgerService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewLedgerService(db *sql.DB, m repomanager.RepositoryManager) *LedgerService {
	return &LedgerService{db: db, repomanager: m}
}

func (s *LedgerService) CheckBalance(ctx context.Context, userID, currencyCode string, amount int64) (bool, error) {
	balance, err := s.repomanager.Balances(s.db).Get(ctx, userID, currencyCode)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error reading balance: %w", err)
	}
	return balance >= amount, nil
}

func (s *LedgerService) RecordBegan(ctx context.Context, rec payflow.OutgoingRecord) error {
	err := s.repomanager.Transactions(s.db).Create(ctx, &models.OutgoingTransaction{
		PaymentID:           rec.PaymentID,
		UserID:              rec.UserID,
		CounterpartyAddress: rec.CounterpartyAddress,
		AmountMsats:         rec.AmountBase,
		AmountSettlement:    rec.AmountSettlement,
		CurrencyCode:        rec.Currency,
		Status:              models.TransactionPending,
	})
	if err != nil {
		return fmt.Errorf("error recording payment %s: %w", rec.PaymentID, err)
	}
	return nil
}

func (s *LedgerService) RecordSucceeded(ctx context.Context, rec payflow.OutgoingRecord) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := s.repomanager.Transactions(tx).Transition(ctx, rec.PaymentID,
			models.TransactionPending, models.TransactionSucceeded, rec.BackendPaymentID)
		if err != nil {
			return fmt.Errorf("error closing payment %s: %w", rec.PaymentID, err)
		}
		if err := s.repomanager.Balances(tx).Debit(ctx, rec.UserID, rec.Currency, rec.AmountSettlement); err != nil {
			return fmt.Errorf("error debiting payment %s: %w", rec.PaymentID, err)
		}
		return nil
	})
}

func (s *LedgerService) RecordFailed(ctx context.Context, rec payflow.OutgoingRecord) error {
	err := s.repomanager.Transactions(s.db).Transition(ctx, rec.PaymentID,
		models.TransactionPending, models.TransactionFailed, rec.BackendPaymentID)
	if err != nil {
		return fmt.Errorf("error failing payment %s: %w", rec.PaymentID, err)
	}
	return nil
}
