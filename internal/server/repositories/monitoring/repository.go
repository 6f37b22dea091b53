package monitoring

import (
	"context"

	"github.com/dmitrijs2005/umasend/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.MonitoredPayment) error
}
