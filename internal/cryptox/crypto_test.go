package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePasswordKey_Deterministic(t *testing.T) {
	key1 := DerivePasswordKey([]byte("secret-password"), []byte("fixed-salt"))
	key2 := DerivePasswordKey([]byte("secret-password"), []byte("fixed-salt"))

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 32)

	other := DerivePasswordKey([]byte("other-password"), []byte("fixed-salt"))
	assert.NotEqual(t, key1, other)
}

func TestMakeVerifier_DifferentSalts(t *testing.T) {
	a := MakeVerifier([]byte("pw"), []byte("salt-1"))
	b := MakeVerifier([]byte("pw"), []byte("salt-2"))

	assert.Len(t, a, 32)
	assert.False(t, CheckVerifier(a, b))
	assert.True(t, CheckVerifier(a, MakeVerifier([]byte("pw"), []byte("salt-1"))))
}

func TestSignVerify_RoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	payload := []byte("$alice@payer.test|nonce|1700000000")
	sig, err := SignPayload(priv, payload)
	require.NoError(t, err)
	assert.Len(t, sig, 128)

	require.NoError(t, VerifyPayload(&priv.PublicKey, payload, sig))
	assert.ErrorIs(t, VerifyPayload(&priv.PublicKey, []byte("tampered"), sig), ErrInvalidSignature)

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyPayload(&other.PublicKey, payload, sig), ErrInvalidSignature)
}

func TestVerifyPayload_Malformed(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.ErrorIs(t, VerifyPayload(&priv.PublicKey, []byte("x"), "zz"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyPayload(&priv.PublicKey, []byte("x"), "abcd"), ErrInvalidSignature)
}

func TestKeyHexRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	parsedPriv, err := ParsePrivateKeyHex(PrivateKeyHex(priv))
	require.NoError(t, err)
	assert.True(t, parsedPriv.Equal(priv))

	pub, err := ParsePublicKeyHex(PublicKeyHex(&priv.PublicKey))
	require.NoError(t, err)
	assert.True(t, pub.Equal(&priv.PublicKey))

	_, err = ParsePublicKeyHex("0x1234")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParsePrivateKeyHex("nothex")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptDecrypt(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	ct, err := EncryptToPubKey(&priv.PublicKey, []byte(`{"originator":"alice"}`))
	require.NoError(t, err)

	pt, err := DecryptWithPrivKey(priv, ct)
	require.NoError(t, err)
	assert.Equal(t, `{"originator":"alice"}`, string(pt))
}
