package umaproto

import (
	"net"
	"net/url"
	"strings"
)

// Scheme returns "http" for loopback development domains and "https"
// otherwise.
func Scheme(domain string) string {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return "http"
	}
	return "https"
}

// LnurlpURL is the discovery endpoint for user at domain.
func LnurlpURL(user, domain string) string {
	u := url.URL{Scheme: Scheme(domain), Host: domain, Path: "/.well-known/lnurlp/" + user}
	return u.String()
}

// PubKeyURL is the key directory endpoint for domain.
func PubKeyURL(domain string) string {
	u := url.URL{Scheme: Scheme(domain), Host: domain, Path: "/.well-known/lnurlpubkey"}
	return u.String()
}

// SplitAddress splits "user@domain" (an optional leading "$" is dropped).
func SplitAddress(address string) (user, domain string, ok bool) {
	parts := strings.Split(strings.TrimPrefix(address, "$"), "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
