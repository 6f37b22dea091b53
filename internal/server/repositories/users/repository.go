package users

import (
	"context"

	"github.com/dmitrijs2005/umasend/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	CurrencyPreferences(ctx context.Context, userID string) ([]models.CurrencyPreference, error)
	AddCurrencyPreference(ctx context.Context, pref *models.CurrencyPreference) error
}
