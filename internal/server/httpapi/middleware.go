package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/umasend/internal/common"
	"github.com/dmitrijs2005/umasend/internal/server/payflow"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const callerKey = "caller"

const unauthorizedMessage = "Unauthorized. Check your credentials."

func message(msg string) gin.H { return gin.H{"data": msg} }

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, message(unauthorizedMessage))
			return
		}

		caller, err := s.users.ResolveCaller(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, common.ErrorUnauthorized) {
				s.logger.Error(c.Request.Context(), "resolve caller", "error", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, message(unauthorizedMessage))
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

func bearerToken(h string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func callerFrom(c *gin.Context) *payflow.Caller {
	v, _ := c.Get(callerKey)
	caller, _ := v.(*payflow.Caller)
	return caller
}

// callerLimiter keeps one token bucket per caller. Idle buckets expire.
type callerLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets *cache.Cache
}

func newCallerLimiter(limit rate.Limit, burst int) *callerLimiter {
	if burst < 1 {
		burst = 1
	}
	return &callerLimiter{
		limit:   limit,
		burst:   burst,
		buckets: cache.New(10*time.Minute, time.Minute),
	}
}

func (l *callerLimiter) allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.buckets.Get(id); ok {
		lim := v.(*rate.Limiter)
		l.buckets.SetDefault(id, lim)
		return lim.Allow()
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.buckets.SetDefault(id, lim)
	return lim.Allow()
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		id := c.ClientIP()
		if caller := callerFrom(c); caller != nil {
			id = caller.ID
		}
		if !s.limiter.allow(id) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, message("Too many requests."))
			return
		}
		c.Next()
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		s.logger.Error(c.Request.Context(), "panic in handler", "path", c.Request.URL.Path, "panic", rec)
		c.AbortWithStatusJSON(http.StatusInternalServerError, message("Something broke!"))
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
