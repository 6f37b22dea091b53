// Package cli implements umactl, the operator command-line client for a
// umasend server.
//
// Commands:
//   - keygen: generate secp256k1 signing and encryption key pairs for the
//     server configuration.
//   - login: exchange username and password for an access token.
//   - pubkeys: show the keys the server publishes to counterparties.
//   - lookup, payreq, send: run one payment phase each.
//   - pay: run all three phases for a receiver address.
//
// Execute builds the command tree with NewRootCmd and runs it.
package cli
