package integration

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// Platform errors
	ErrPlatformNotConfigured   = errors.New("integration: platform not configured")
	ErrPlatformUnavailable     = errors.New("integration: platform temporarily unavailable")
	ErrPlatformRequestFailed   = errors.New("integration: platform request failed")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	ErrPlatformAuthFailed      = errors.New("integration: platform authentication failed")

	// Ingestion errors
	ErrConfiguration      = errors.New("integration: invalid configuration")
	ErrAuthExpired        = errors.New("integration: authorization expired")
	ErrUnknownField       = errors.New("integration: unknown field requested")
	ErrDecode             = errors.New("integration: cannot decode field")
	ErrFatalConsistency   = errors.New("integration: pagination total mismatch")
	ErrRowMapping         = errors.New("integration: cannot map row")
	ErrCredentialMissing  = errors.New("integration: credential not found")
	ErrUnknownMarketplace = errors.New("integration: unknown marketplace")
	ErrRunNotFound        = errors.New("integration: ingestion run not found")
)

// ErrorKind classifies errors for reporting
type ErrorKind string

const (
	ErrorKindConfiguration    ErrorKind = "configuration"
	ErrorKindAuthExpired      ErrorKind = "auth_expired"
	ErrorKindTransientHTTP    ErrorKind = "transient_http"
	ErrorKindUnknownField     ErrorKind = "unknown_field"
	ErrorKindDecode           ErrorKind = "decode"
	ErrorKindFatalConsistency ErrorKind = "fatal_consistency"
	ErrorKindRowMapping       ErrorKind = "row_mapping"
	ErrorKindInternal         ErrorKind = "internal"
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	return string(k)
}

// IsFatal reports whether errors of this kind abort the current run
func (k ErrorKind) IsFatal() bool {
	switch k {
	case ErrorKindDecode, ErrorKindRowMapping:
		return false
	default:
		return true
	}
}

// ---------------------------------------------------------------------------
// Typed errors
// ---------------------------------------------------------------------------

// ConfigurationError is returned when a required endpoint or credential setting is missing
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("integration: configuration %q: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// AuthExpiredError means the refresh token has expired and no authorization code is stored.
// The shop needs manual re-authorization.
type AuthExpiredError struct {
	ShopCode string
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("integration: authorization expired for shop %s, manual re-authorization required", e.ShopCode)
}

func (e *AuthExpiredError) Is(target error) bool { return target == ErrAuthExpired }

// TransientHTTPError is a network fault or 5xx response.
// Unavailable is set on the synthetic result returned once retries are exhausted.
type TransientHTTPError struct {
	Endpoint    string
	Method      string
	StatusCode  int
	Attempts    int
	Unavailable bool
	Err         error
}

func (e *TransientHTTPError) Error() string {
	var b strings.Builder
	b.WriteString("integration: transient failure calling ")
	b.WriteString(e.Method)
	b.WriteString(" ")
	b.WriteString(e.Endpoint)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " (after %d attempts)", e.Attempts)
	}
	return b.String()
}

func (e *TransientHTTPError) Unwrap() error { return e.Err }

func (e *TransientHTTPError) Is(target error) bool { return target == ErrPlatformUnavailable }

// UnknownFieldError lists requested fields that the marketplace schema does not declare
type UnknownFieldError struct {
	Marketplace Marketplace
	Fields      []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("integration: unknown %s fields: %s", e.Marketplace, strings.Join(e.Fields, ", "))
}

func (e *UnknownFieldError) Is(target error) bool { return target == ErrUnknownField }

// DecodeError is a declared field whose raw value cannot be coerced to its type
type DecodeError struct {
	Group string
	Field string
	Type  FieldType
	Raw   string
	Err   error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("integration: field %s.%s: cannot decode %q as %s", e.Group, e.Field, e.Raw, e.Type)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// FatalConsistencyError means the accumulated record count disagrees with the
// reported total after the last computed page
type FatalConsistencyError struct {
	Total       int
	Expected    int
	Accumulated int
	Pages       int
}

func (e *FatalConsistencyError) Error() string {
	return fmt.Sprintf("integration: fetched %d records over %d pages, expected %d (reported total %d)",
		e.Accumulated, e.Pages, e.Expected, e.Total)
}

func (e *FatalConsistencyError) Is(target error) bool { return target == ErrFatalConsistency }

// RowMappingError fails a single row during canonical mapping
type RowMappingError struct {
	OrderID string
	LineID  string
	Field   CanonicalField
	Reason  string
}

func (e *RowMappingError) Error() string {
	return fmt.Sprintf("integration: order %s line %s: %s: %s", e.OrderID, e.LineID, e.Field, e.Reason)
}

func (e *RowMappingError) Is(target error) bool { return target == ErrRowMapping }

// KindOf classifies err into an ErrorKind
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return ErrorKindConfiguration
	case errors.Is(err, ErrAuthExpired):
		return ErrorKindAuthExpired
	case errors.Is(err, ErrPlatformUnavailable):
		return ErrorKindTransientHTTP
	case errors.Is(err, ErrUnknownField):
		return ErrorKindUnknownField
	case errors.Is(err, ErrDecode):
		return ErrorKindDecode
	case errors.Is(err, ErrFatalConsistency):
		return ErrorKindFatalConsistency
	case errors.Is(err, ErrRowMapping):
		return ErrorKindRowMapping
	default:
		return ErrorKindInternal
	}
}
