package umaproto

import (
	"crypto/ecdsa"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/umasend/internal/cryptox"
)

// LookupRequest is the signed discovery query sent to
// /.well-known/lnurlp/{user}.
type LookupRequest struct {
	ReceiverAddress       string
	Nonce                 string
	Signature             string
	IsSubjectToTravelRule bool
	VaspDomain            string
	Timestamp             int64
	UMAVersion            string
}

func NewLookupRequest(receiverAddress, senderDomain string, key *ecdsa.PrivateKey, travelRule bool, major int, now time.Time) (*LookupRequest, error) {
	if _, _, ok := SplitAddress(receiverAddress); !ok {
		return nil, fmt.Errorf("invalid receiver address %q", receiverAddress)
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	r := &LookupRequest{
		ReceiverAddress:       receiverAddress,
		Nonce:                 nonce,
		IsSubjectToTravelRule: travelRule,
		VaspDomain:            senderDomain,
		Timestamp:             now.Unix(),
		UMAVersion:            VersionString(major),
	}
	r.Signature, err = cryptox.SignPayload(key, r.SignablePayload())
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *LookupRequest) SignablePayload() []byte {
	return []byte(strings.ToLower(r.ReceiverAddress) + "|" + r.Nonce + "|" + strconv.FormatInt(r.Timestamp, 10))
}

func (r *LookupRequest) URL() string {
	user, domain, _ := SplitAddress(r.ReceiverAddress)
	q := url.Values{}
	q.Set("signature", r.Signature)
	q.Set("vaspDomain", r.VaspDomain)
	q.Set("nonce", r.Nonce)
	q.Set("isSubjectToTravelRule", strconv.FormatBool(r.IsSubjectToTravelRule))
	q.Set("timestamp", strconv.FormatInt(r.Timestamp, 10))
	q.Set("umaVersion", r.UMAVersion)
	return LnurlpURL(user, domain) + "?" + q.Encode()
}

// ParseLookupRequest reverses URL. The receiver address is rebuilt from the
// path and host.
func ParseLookupRequest(u *url.URL) (*LookupRequest, error) {
	user, ok := strings.CutPrefix(u.Path, "/.well-known/lnurlp/")
	if !ok || user == "" {
		return nil, fmt.Errorf("%w: not a lnurlp path: %s", ErrMalformed, u.Path)
	}
	q := u.Query()
	ts, err := strconv.ParseInt(q.Get("timestamp"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp", ErrMalformed)
	}
	travelRule, _ := strconv.ParseBool(q.Get("isSubjectToTravelRule"))
	return &LookupRequest{
		ReceiverAddress:       user + "@" + u.Host,
		Nonce:                 q.Get("nonce"),
		Signature:             q.Get("signature"),
		IsSubjectToTravelRule: travelRule,
		VaspDomain:            q.Get("vaspDomain"),
		Timestamp:             ts,
		UMAVersion:            q.Get("umaVersion"),
	}, nil
}
