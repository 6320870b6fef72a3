package domain

import "github.com/pkg/errors"

// Error taxonomy. Callers wrap these with context and classify with errors.Is.
var (
	// ErrInvalidAmount non-positive amount, too many fractional digits, or below a minimum.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientFunds the source balance cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDuplicateReference the idempotency reference was already committed.
	ErrDuplicateReference = errors.New("duplicate reference")
	// ErrExternalService an exchange, payment gateway or data store call failed or timed out.
	ErrExternalService = errors.New("external service error")
	// ErrConfiguration required configuration (credentials) is missing.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidRequest a required field such as the account id or reference is missing.
	ErrInvalidRequest = errors.New("invalid request")
)

// ErrorKind returns the taxonomy name for err, or "internal" when it matches none.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrDuplicateReference):
		return "DuplicateReference"
	case errors.Is(err, ErrExternalService):
		return "ExternalServiceError"
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrInvalidRequest):
		return "InvalidRequest"
	default:
		return "internal"
	}
}

// ErrorKindOrOK is ErrorKind with "ok" for a nil error, used as a metric label.
func ErrorKindOrOK(err error) string {
	if err == nil {
		return "ok"
	}
	return ErrorKind(err)
}
