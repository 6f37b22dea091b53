package keys

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/umasend/internal/cryptox"
	"github.com/dmitrijs2005/umasend/internal/logging"
	"github.com/dmitrijs2005/umasend/internal/server/umaproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyServer struct {
	srv    *httptest.Server
	domain string
	hits   atomic.Int32
	doc    umaproto.PubKeyResponse
	status int
}

func newKeyServer(t *testing.T, expires *int64, tweak ...func(*keyServer)) *keyServer {
	t.Helper()
	signing, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	enc, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)

	ks := &keyServer{doc: umaproto.PubKeyResponse{
		SigningPubKey:       cryptox.PublicKeyHex(&signing.PublicKey),
		EncryptionPubKey:    cryptox.PublicKeyHex(&enc.PublicKey),
		ExpirationTimestamp: expires,
	}}
	for _, f := range tweak {
		f(ks)
	}
	ks.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ks.hits.Add(1)
		if r.URL.Path != "/.well-known/lnurlpubkey" {
			http.NotFound(w, r)
			return
		}
		if ks.status != 0 {
			w.WriteHeader(ks.status)
			return
		}
		_ = json.NewEncoder(w).Encode(ks.doc)
	}))
	ks.domain = strings.TrimPrefix(ks.srv.URL, "http://")
	t.Cleanup(ks.srv.Close)
	return ks
}

func TestFetchKeys_CachesWithDefaultTTL(t *testing.T) {
	ks := newKeyServer(t, nil)
	d := NewDirectory(ks.srv.Client(), time.Minute, logging.NopLogger{})

	k1, err := d.FetchKeys(context.Background(), ks.domain)
	require.NoError(t, err)
	assert.Equal(t, ks.doc.SigningPubKey, cryptox.PublicKeyHex(k1.SigningKey))
	assert.True(t, k1.ExpiresAt.IsZero())

	k2, err := d.FetchKeys(context.Background(), ks.domain)
	require.NoError(t, err)
	assert.Same(t, k1, k2)
	assert.Equal(t, int32(1), ks.hits.Load())

	d.Invalidate(ks.domain)
	_, err = d.FetchKeys(context.Background(), ks.domain)
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.hits.Load())
}

func TestFetchKeys_ExpiredDocumentIsNotCached(t *testing.T) {
	past := time.Now().Add(-time.Minute).Unix()
	ks := newKeyServer(t, &past)
	d := NewDirectory(ks.srv.Client(), time.Hour, logging.NopLogger{})

	_, err := d.FetchKeys(context.Background(), ks.domain)
	require.NoError(t, err)
	_, err = d.FetchKeys(context.Background(), ks.domain)
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.hits.Load())
}

func TestFetchKeys_HonoursExpirationTimestamp(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	ks := newKeyServer(t, &future)
	d := NewDirectory(ks.srv.Client(), time.Second, logging.NopLogger{})

	k, err := d.FetchKeys(context.Background(), ks.domain)
	require.NoError(t, err)
	assert.Equal(t, future, k.ExpiresAt.Unix())
}

func TestFetchKeys_Failures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		ks := newKeyServer(t, nil, func(ks *keyServer) { ks.status = http.StatusNotFound })
		d := NewDirectory(ks.srv.Client(), time.Minute, logging.NopLogger{})
		_, err := d.FetchKeys(context.Background(), ks.domain)
		assert.ErrorIs(t, err, ErrKeysNotFound)
	})

	t.Run("bad key", func(t *testing.T) {
		ks := newKeyServer(t, nil, func(ks *keyServer) { ks.doc.SigningPubKey = "zz" })
		d := NewDirectory(ks.srv.Client(), time.Minute, logging.NopLogger{})
		_, err := d.FetchKeys(context.Background(), ks.domain)
		assert.ErrorIs(t, err, ErrKeysNotFound)
	})

	t.Run("unreachable", func(t *testing.T) {
		ks := newKeyServer(t, nil)
		ks.srv.Close()
		d := NewDirectory(http.DefaultClient, time.Minute, logging.NopLogger{})
		_, err := d.FetchKeys(context.Background(), ks.domain)
		assert.ErrorIs(t, err, ErrKeysNotFound)
	})
}
