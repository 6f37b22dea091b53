// Package keys fetches and caches counterparty VASP public keys.
package keys

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/umasend/internal/cryptox"
	"github.com/dmitrijs2005/umasend/internal/logging"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto"
	"github.com/patrickmn/go-cache"
)

var ErrKeysNotFound = errors.New("counterparty keys not found")

const maxKeyDocumentSize = 64 << 10

type PubKeys struct {
	SigningKey    *ecdsa.PublicKey
	EncryptionKey *ecdsa.PublicKey
	ExpiresAt     time.Time
}

// Directory resolves a domain to its published keys. Entries are cached
// until the document's expirationTimestamp, or for defaultTTL when the
// document carries none.
type Directory struct {
	client     *http.Client
	cache      *cache.Cache
	defaultTTL time.Duration
	log        logging.Logger
	now        func() time.Time
}

func NewDirectory(client *http.Client, defaultTTL time.Duration, log logging.Logger) *Directory {
	return &Directory{
		client:     client,
		cache:      cache.New(defaultTTL, 2*defaultTTL),
		defaultTTL: defaultTTL,
		log:        log.With("module", "keys"),
		now:        time.Now,
	}
}

func (d *Directory) FetchKeys(ctx context.Context, domain string) (*PubKeys, error) {
	if v, ok := d.cache.Get(domain); ok {
		return v.(*PubKeys), nil
	}

	keys, err := d.fetch(ctx, domain)
	if err != nil {
		d.log.Warn(ctx, "key fetch failed", "domain", domain, "error", err)
		return nil, err
	}

	ttl := d.defaultTTL
	if !keys.ExpiresAt.IsZero() {
		ttl = keys.ExpiresAt.Sub(d.now())
	}
	if ttl > 0 {
		d.cache.Set(domain, keys, ttl)
	}
	return keys, nil
}

// Invalidate drops a cached entry, e.g. after a signature failure that may
// stem from key rotation.
func (d *Directory) Invalidate(domain string) {
	d.cache.Delete(domain)
}

func (d *Directory) fetch(ctx context.Context, domain string) (*PubKeys, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, umaproto.PubKeyURL(domain), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeysNotFound, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeysNotFound, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrKeysNotFound, resp.StatusCode)
	}

	var doc umaproto.PubKeyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeyDocumentSize)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeysNotFound, err)
	}

	signing, err := cryptox.ParsePublicKeyHex(doc.SigningPubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: signing key: %v", ErrKeysNotFound, err)
	}
	encryption, err := cryptox.ParsePublicKeyHex(doc.EncryptionPubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption key: %v", ErrKeysNotFound, err)
	}

	keys := &PubKeys{SigningKey: signing, EncryptionKey: encryption}
	if doc.ExpirationTimestamp != nil {
		keys.ExpiresAt = time.Unix(*doc.ExpirationTimestamp, 0)
	}
	return keys, nil
}
