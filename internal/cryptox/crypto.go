// Package cryptox holds the key handling used by the sending VASP:
// secp256k1 message signatures, ECIES encryption to a counterparty's
// encryption key, and argon2id password verifiers for local users.
package cryptox

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidKey       = errors.New("invalid key")
)

// signatureLength is R||S without the recovery byte.
const signatureLength = 64

// ParsePrivateKeyHex decodes a 32-byte secp256k1 private key.
func ParsePrivateKeyHex(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// ParsePublicKeyHex accepts both compressed (33 bytes) and uncompressed
// (65 bytes) secp256k1 public keys.
func ParsePublicKeyHex(s string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	var pub *ecdsa.PublicKey
	switch len(raw) {
	case 33:
		pub, err = crypto.DecompressPubkey(raw)
	case 65:
		pub, err = crypto.UnmarshalPubkey(raw)
	default:
		return nil, fmt.Errorf("%w: unexpected public key length %d", ErrInvalidKey, len(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

// PublicKeyHex returns the uncompressed hex encoding of pub.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return hex.EncodeToString(crypto.FromECDSAPub(pub))
}

// PrivateKeyHex returns the hex encoding of the 32-byte scalar.
func PrivateKeyHex(priv *ecdsa.PrivateKey) string {
	return hex.EncodeToString(crypto.FromECDSA(priv))
}

// GenerateKeyPair creates a fresh secp256k1 key pair.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// SignPayload signs sha256(payload) and returns the 64-byte R||S signature as hex.
func SignPayload(priv *ecdsa.PrivateKey, payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig[:signatureLength]), nil
}

// VerifyPayload checks a signature produced by SignPayload.
func VerifyPayload(pub *ecdsa.PublicKey, payload []byte, signatureHex string) error {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	// tolerate a trailing recovery id
	if len(sig) == signatureLength+1 {
		sig = sig[:signatureLength]
	}
	if len(sig) != signatureLength {
		return fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	digest := sha256.Sum256(payload)
	if !crypto.VerifySignature(crypto.FromECDSAPub(pub), digest[:], sig) {
		return ErrInvalidSignature
	}
	return nil
}

// EncryptToPubKey encrypts plaintext for the holder of pub (ECIES over
// secp256k1) and returns the ciphertext as hex.
func EncryptToPubKey(pub *ecdsa.PublicKey, plaintext []byte) (string, error) {
	ct, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pub), plaintext, nil, nil)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ct), nil
}

// DecryptWithPrivKey reverses EncryptToPubKey.
func DecryptWithPrivKey(priv *ecdsa.PrivateKey, ciphertextHex string) ([]byte, error) {
	ct, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return nil, err
	}
	return ecies.ImportECDSA(priv).Decrypt(ct, nil, nil)
}

// DerivePasswordKey stretches a password with argon2id.
func DerivePasswordKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// MakeVerifier is what gets stored for a user: sha256 of the derived key.
func MakeVerifier(password []byte, salt []byte) []byte {
	hash := sha256.Sum256(DerivePasswordKey(password, salt))
	return hash[:]
}

// CheckVerifier compares verifiers in constant time.
func CheckVerifier(stored, candidate []byte) bool {
	return subtle.ConstantTimeCompare(stored, candidate) == 1
}
