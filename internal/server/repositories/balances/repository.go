package balances

import "context"

type Repository interface {
	Get(ctx context.Context, userID, currencyCode string) (int64, error)
	Credit(ctx context.Context, userID, currencyCode string, amount int64) error
	Debit(ctx context.Context, userID, currencyCode string, amount int64) error
}
