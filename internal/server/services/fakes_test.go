package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/umasend/internal/dbx"
	"github.com/dmitrijs2005/umasend/internal/server/models"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/balances"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/monitoring"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/transactions"
	usersrepo "github.com/dmitrijs2005/umasend/internal/server/repositories/users"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

type fakeUsersRepo struct {
	createOut *models.User
	createErr error
	created   *models.User

	getOut *models.User
	getErr error

	prefs    []models.CurrencyPreference
	prefsErr error
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.created = u
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createOut, nil
}

func (f *fakeUsersRepo) GetUserByLogin(context.Context, string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) GetByID(context.Context, string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) CurrencyPreferences(context.Context, string) ([]models.CurrencyPreference, error) {
	return f.prefs, f.prefsErr
}

func (f *fakeUsersRepo) AddCurrencyPreference(context.Context, *models.CurrencyPreference) error {
	return nil
}

type fakeBalancesRepo struct {
	getOut   int64
	getErr   error
	debitErr error
	debited  []int64
}

func (f *fakeBalancesRepo) Get(context.Context, string, string) (int64, error) {
	return f.getOut, f.getErr
}

func (f *fakeBalancesRepo) Credit(context.Context, string, string, int64) error { return nil }

func (f *fakeBalancesRepo) Debit(_ context.Context, _, _ string, amount int64) error {
	if f.debitErr != nil {
		return f.debitErr
	}
	f.debited = append(f.debited, amount)
	return nil
}

type transition struct {
	from, to  models.TransactionStatus
	backendID string
}

type fakeTransactionsRepo struct {
	created       []*models.OutgoingTransaction
	createErr     error
	transitions   []transition
	transitionErr error
}

func (f *fakeTransactionsRepo) Create(_ context.Context, t *models.OutgoingTransaction) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, t)
	return nil
}

func (f *fakeTransactionsRepo) Get(context.Context, string) (*models.OutgoingTransaction, error) {
	return nil, nil
}

func (f *fakeTransactionsRepo) Transition(_ context.Context, _ string, from, to models.TransactionStatus, backendID string) error {
	if f.transitionErr != nil {
		return f.transitionErr
	}
	f.transitions = append(f.transitions, transition{from, to, backendID})
	return nil
}

type fakeMonitoringRepo struct {
	mu      sync.Mutex
	created []*models.MonitoredPayment
}

func (f *fakeMonitoringRepo) Create(_ context.Context, p *models.MonitoredPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	return nil
}

type fakeRepoManager struct {
	u  *fakeUsersRepo
	b  *fakeBalancesRepo
	tx *fakeTransactionsRepo
	m  *fakeMonitoringRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository { return m.u }
func (m *fakeRepoManager) Balances(dbx.DBTX) balances.Repository { return m.b }
func (m *fakeRepoManager) Transactions(dbx.DBTX) transactions.Repository { return m.tx }
func (m *fakeRepoManager) Monitoring(dbx.DBTX) monitoring.Repository { return m.m }
