// Package common contains shared constants, sentinel errors and small helpers
// used across the sending VASP components.
package common

// AuthorizationHeaderName is the HTTP header carrying the caller's bearer token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// NonceSize is the number of random bytes behind every protocol nonce.
const NonceSize = 16
