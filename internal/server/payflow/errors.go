package payflow

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags every failure a phase can return.
type Kind string

const (
	KindInvalidInput           Kind = "InvalidInput"
	KindUnauthorized           Kind = "Unauthorized"
	KindSessionNotFound        Kind = "SessionNotFound"
	KindProtocolMismatch       Kind = "ProtocolMismatch"
	KindUnsupportedCurrency    Kind = "UnsupportedCurrency"
	KindInsufficientBalance    Kind = "InsufficientBalance"
	KindInstrumentExpired      Kind = "InstrumentExpired"
	KindInvalidInstrument      Kind = "InvalidInstrument"
	KindComplianceDenied       Kind = "ComplianceDenied"
	KindComplianceScreenDenied Kind = "ComplianceScreenDenied"
	KindUpstreamUnavailable    Kind = "UpstreamUnavailable"
	KindUpstreamRejected       Kind = "UpstreamRejected"
	KindUpstreamUntrusted      Kind = "UpstreamUntrusted"
	KindSigningUnavailable     Kind = "SigningUnavailable"
	KindPaymentFailed          Kind = "PaymentFailed"
	KindPaymentTimedOut        Kind = "PaymentTimedOut"
	KindInternal               Kind = "Internal"
)

// HTTPStatus maps a kind to the status returned to clients.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput, KindUnsupportedCurrency, KindInsufficientBalance,
		KindInstrumentExpired, KindInvalidInstrument:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindComplianceDenied, KindComplianceScreenDenied:
		return http.StatusForbidden
	case KindSessionNotFound:
		return http.StatusNotFound
	case KindProtocolMismatch, KindUpstreamUnavailable, KindUpstreamRejected, KindUpstreamUntrusted:
		return http.StatusFailedDependency
	case KindPaymentTimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is the only error type that leaves a phase. Msg is safe to show to
// clients; Err keeps the cause for server-side logs. Status carries the
// upstream HTTP status when one was received.
type Error struct {
	Kind   Kind
	Msg    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func upstreamError(kind Kind, msg string, status int, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Status: status, Err: cause}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
