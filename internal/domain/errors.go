package domain

import "fmt"

// AuthError covers credential and session failures. These surface to the
// caller as 4xx outcomes and are never retried server-side.
type AuthError struct {
	Code   string
	Reason string
}

func (e AuthError) Error() string {
	if e.Reason == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is matches on the error code so wrapped instances compare against the
// sentinels below.
func (e AuthError) Is(target error) bool {
	if t, ok := target.(AuthError); ok {
		return e.Code == t.Code
	}
	if t, ok := target.(*AuthError); ok {
		return e.Code == t.Code
	}
	return false
}

func (e AuthError) WithReason(reason string) AuthError {
	e.Reason = reason
	return e
}

var (
	ErrInvalidSignature = AuthError{Code: "invalid_signature"}
	ErrExpiredChallenge = AuthError{Code: "expired_challenge"}
	ErrMalformedMessage = AuthError{Code: "malformed_message"}
	ErrUnauthenticated  = AuthError{Code: "unauthenticated"}
	ErrSessionRevoked   = AuthError{Code: "session_revoked"}
)

// LedgerError covers invalid contribution submissions. A duplicate
// fingerprint is not an error; it resolves to the existing entry.
type LedgerError struct {
	Code   string
	Reason string
}

func (e LedgerError) Error() string {
	if e.Reason == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e LedgerError) Is(target error) bool {
	if t, ok := target.(LedgerError); ok {
		return e.Code == t.Code
	}
	if t, ok := target.(*LedgerError); ok {
		return e.Code == t.Code
	}
	return false
}

func (e LedgerError) WithReason(reason string) LedgerError {
	e.Reason = reason
	return e
}

var (
	ErrInvalidSessionForEntry = LedgerError{Code: "invalid_session_for_entry"}
	ErrScoreOutOfRange        = LedgerError{Code: "score_out_of_range"}
)

// SettlementError classifies settlement-client failures. Transient errors
// are retried with backoff and stay invisible to callers; permanent errors
// fail the batch immediately and raise an operator alert.
type SettlementError struct {
	Transient bool
	Reason    string
	Err       error
}

func (e SettlementError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("settlement %s error: %s: %v", kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("settlement %s error: %s", kind, e.Reason)
}

func (e SettlementError) Unwrap() error { return e.Err }

func TransientSettlementError(reason string, err error) SettlementError {
	return SettlementError{Transient: true, Reason: reason, Err: err}
}

func PermanentSettlementError(reason string, err error) SettlementError {
	return SettlementError{Transient: false, Reason: reason, Err: err}
}

// IsTransientSettlement reports whether err is a retryable settlement
// failure. Unknown errors (plain network failures) count as transient.
func IsTransientSettlement(err error) bool {
	if se, ok := err.(SettlementError); ok {
		return se.Transient
	}
	if se, ok := err.(*SettlementError); ok {
		return se.Transient
	}
	return true
}

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}
