package umaproto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNonceCache(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewNonceCache(time.Minute)
	c.now = func() time.Time { return now }

	assert.NoError(t, c.CheckAndSave("a", now))
	assert.ErrorIs(t, c.CheckAndSave("a", now), ErrNonceReused)
	assert.NoError(t, c.CheckAndSave("b", now.Add(-59*time.Second)))
	assert.ErrorIs(t, c.CheckAndSave("c", now.Add(-2*time.Minute)), ErrTimestampTooOld)
	assert.ErrorIs(t, c.CheckAndSave("", now), ErrMissingNonceData)
}
