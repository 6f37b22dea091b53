// Package httpapi is the client-facing HTTP surface: the three payment
// phases, login, this VASP's public keys and the UTXO callback endpoint.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/umasend/internal/logging"
	"github.com/dmitrijs2005/umasend/internal/server/payflow"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Flow is the payment orchestrator as seen by the handlers.
type Flow interface {
	Lookup(ctx context.Context, caller *payflow.Caller, address, baseURL string) (*payflow.LookupResult, error)
	PayReq(ctx context.Context, caller *payflow.Caller, in payflow.PayReqInput) (*payflow.PayReqResult, error)
	SendPayment(ctx context.Context, caller *payflow.Caller, in payflow.SendInput) (*payflow.SendResult, error)
}

type Users interface {
	Login(ctx context.Context, userName, password string) (string, error)
	ResolveCaller(ctx context.Context, token string) (*payflow.Caller, error)
}

type Options struct {
	Address string
	PubKeys umaproto.PubKeyResponse
	// LookupRate and LookupBurst bound lookups per caller; zero disables it.
	LookupRate  rate.Limit
	LookupBurst int
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type Server struct {
	opts    Options
	flow    Flow
	users   Users
	limiter *callerLimiter
	logger  logging.Logger
	router  *gin.Engine
}

func NewServer(opts Options, flow Flow, users Users, l logging.Logger) *Server {
	s := &Server{
		opts:   opts,
		flow:   flow,
		users:  users,
		logger: l.With("module", "http_server"),
	}
	if opts.LookupRate > 0 {
		s.limiter = newCallerLimiter(opts.LookupRate, opts.LookupBurst)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(s.requestLogger(), s.recovery())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, message("Not found."))
	})

	r.GET("/.well-known/lnurlpubkey", s.handlePubKeys)
	r.POST("/api/login", s.handleLogin)
	r.POST("/api/uma/utxoCallback", s.handleUTXOCallback)
	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}

	api := r.Group("/api", s.authenticate())
	{
		api.GET("/lookup/:address", s.rateLimit(), s.handleLookup)
		api.GET("/payreq/:callbackUuid", s.handlePayReq)
		api.POST("/sendpayment/:callbackUuid", s.handleSendPayment)
	}

	return r
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.opts.Address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
