// Package server wires configuration, storage, the payment orchestrator and
// the HTTP and gRPC endpoints into a runnable application with graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/umasend/internal/cryptox"
	"github.com/dmitrijs2005/umasend/internal/logging"
	"github.com/dmitrijs2005/umasend/internal/metrics"
	"github.com/dmitrijs2005/umasend/internal/server/archive"
	"github.com/dmitrijs2005/umasend/internal/server/backend"
	"github.com/dmitrijs2005/umasend/internal/server/compliance"
	"github.com/dmitrijs2005/umasend/internal/server/config"
	"github.com/dmitrijs2005/umasend/internal/server/httpapi"
	"github.com/dmitrijs2005/umasend/internal/server/keys"
	"github.com/dmitrijs2005/umasend/internal/server/payflow"
	"github.com/dmitrijs2005/umasend/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/umasend/internal/server/services"
	"github.com/dmitrijs2005/umasend/internal/server/session"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	gs "github.com/dmitrijs2005/umasend/internal/server/grpc"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	orchestrator *payflow.Orchestrator
	httpServer   *httpapi.Server
	grpcServer   *gs.HealthServer
}

// openDB is replaced in tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, err
	}

	signingKey, err := cryptox.ParsePrivateKeyHex(c.SigningPrivKeyHex)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	encryptionKey, err := cryptox.ParsePrivateKeyHex(c.EncryptionPrivKeyHex)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	var seed []byte
	if c.RemoteSigningSeedHex != "" {
		if seed, err = hex.DecodeString(c.RemoteSigningSeedHex); err != nil {
			return nil, fmt.Errorf("remote signing seed: %w", err)
		}
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	evidence, err := archive.New(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("archive init error: %w", err)
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var metricsHandler http.Handler
	if c.MetricsEnabled {
		reg := prometheus.NewRegistry()
		pr, err := metrics.NewPrometheusRecorder(reg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("metrics init error: %w", err)
		}
		recorder = pr
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	userService := services.NewUserService(db, rm, c)
	ledgerService := services.NewLedgerService(db, rm)
	outbound := &http.Client{Timeout: 30 * time.Second}

	orchestrator := payflow.New(payflow.Deps{
		Sessions:   session.NewMemoryStore(c.SessionTTL),
		Users:      userService,
		Ledger:     ledgerService,
		Compliance: compliance.NewGate(compliance.PolicyFromConfig(c), db, rm, logger),
		Keys:       keys.NewDirectory(outbound, c.KeyCacheTTL, logger),
		Backend:    backend.NewHTTPClient(c.BackendURL, c.BackendToken, nil),
		HTTPClient: outbound,
		Nonces:     umaproto.NewNonceCache(c.NonceMaxAge),
		Archive:    evidence,
		Metrics:    recorder,
		Logger:     logger,
	}, payflow.Options{
		SigningKey:        signingKey,
		VaspDomain:        c.VaspDomain,
		NodeID:            c.NodeID,
		OSKPassword:       c.OSKPassword,
		RemoteSigningSeed: seed,
		MaxFeeBase:        c.MaxFeeMsats,
		PollInterval:      c.PollInterval,
		MaxPollAttempts:   c.MaxPollAttempts,
		CallbackTimeout:   c.CallbackTimeout,
		TravelRuleFormat:  c.TravelRuleFormat,
	})

	httpServer := httpapi.NewServer(httpapi.Options{
		Address: c.EndpointAddrHTTP,
		PubKeys: umaproto.PubKeyResponse{
			SigningPubKey:    cryptox.PublicKeyHex(&signingKey.PublicKey),
			EncryptionPubKey: cryptox.PublicKeyHex(&encryptionKey.PublicKey),
		},
		LookupRate:  rate.Limit(c.LookupRateLimit),
		LookupBurst: c.LookupBurst,
		Metrics:     metricsHandler,
	}, orchestrator, userService, logger)

	return &App{
		config:       c,
		logger:       logger,
		db:           db,
		orchestrator: orchestrator,
		httpServer:   httpServer,
		grpcServer:   gs.NewHealthServer(c.EndpointAddrGRPC, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

type runner interface {
	Run(ctx context.Context) error
}

func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, name string, r runner) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, name+" server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "grpc", app.grpcServer)
	}()
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "http", app.httpServer)
	}()

	wg.Wait()

	// post-transaction callbacks still in flight
	app.orchestrator.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	if z, ok := app.logger.(*logging.ZapLogger); ok {
		_ = z.Sync()
	}
	app.logger.Info(ctx, "App stopped")
}
