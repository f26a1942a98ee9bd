package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transient transport failure (timeout, refused
// connection). The next scheduled cycle retries naturally, so these are
// always retriable unless marked fatal.
type NetworkError struct {
	Op        string // Operation that failed (e.g., "PlaceOrder", "TradeBook")
	Err       error  // Underlying error
	Retriable bool
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// BrokerRejection is an explicit business rejection from the broker gateway
// (stat = Not_Ok with a reason message). The responsible cycle is abandoned
// and no order state is assumed changed; retrying the same request would be
// rejected again.
type BrokerRejection struct {
	Op     string
	Reason string
}

func (e *BrokerRejection) Error() string {
	return e.Op + " rejected by broker: " + e.Reason
}

func (e *BrokerRejection) IsRetriable() bool {
	return false
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrStaleCache is returned when a risk decision is requested while any
	// trading-data snapshot is older than the TTL.
	ErrStaleCache = errors.New("trading data cache is stale")

	// ErrMissingTickSize is returned when an instrument carries no usable
	// tick size; price normalization for that instrument degrades to
	// 2-decimal rounding.
	ErrMissingTickSize = errors.New("tick size missing or invalid")

	// ErrNoInstrument is returned when the instrument master has no entry
	// for a token the feed delivered.
	ErrNoInstrument = errors.New("instrument not found")

	// ErrSessionExpired is returned when the broker session token is marked
	// expired. Not retriable until a fresh login replaces the token file.
	ErrSessionExpired = errors.New("broker session expired")

	// ErrNoOrderID is returned when an order placement response carries no
	// order number.
	ErrNoOrderID = errors.New("broker response missing order id")
)
