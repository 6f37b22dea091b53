package umaproto

import (
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
)

var (
	ErrNonceReused      = errors.New("nonce already used")
	ErrTimestampTooOld  = errors.New("signature timestamp too old")
	ErrMissingNonceData = errors.New("missing nonce")
)

// NonceCache rejects replayed signed messages. A nonce is remembered for
// maxAge; anything signed earlier than maxAge ago is refused outright.
type NonceCache struct {
	seen   *cache.Cache
	maxAge time.Duration
	now    func() time.Time
}

func NewNonceCache(maxAge time.Duration) *NonceCache {
	return &NonceCache{
		seen:   cache.New(maxAge, maxAge),
		maxAge: maxAge,
		now:    time.Now,
	}
}

func (c *NonceCache) CheckAndSave(nonce string, signedAt time.Time) error {
	if nonce == "" {
		return ErrMissingNonceData
	}
	if c.now().Sub(signedAt) > c.maxAge {
		return ErrTimestampTooOld
	}
	if err := c.seen.Add(nonce, signedAt, cache.DefaultExpiration); err != nil {
		return ErrNonceReused
	}
	return nil
}
