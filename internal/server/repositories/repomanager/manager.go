package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/umasend/internal/dbx"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/balances"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/monitoring"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Balances(db dbx.DBTX) balances.Repository
	Transactions(db dbx.DBTX) transactions.Repository
	Monitoring(db dbx.DBTX) monitoring.Repository
}
