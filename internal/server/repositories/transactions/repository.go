package transactions

import (
	"context"

	"github.com/dmitrijs2005/umasend/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, tx *models.OutgoingTransaction) error
	Get(ctx context.Context, paymentID string) (*models.OutgoingTransaction, error)
	Transition(ctx context.Context, paymentID string, from, to models.TransactionStatus, backendPaymentID string) error
}
