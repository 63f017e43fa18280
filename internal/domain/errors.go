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

// NetworkError represents a transport-level error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "place", "cancel")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
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

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// VenueRejectionError is an explicit order-level rejection from the venue.
// Never retriable: the venue saw the request and said no.
type VenueRejectionError struct {
	Code string
	Msg  string
}

func (e *VenueRejectionError) Error() string {
	return "venue rejection [" + e.Code + "]: " + e.Msg
}

func (e *VenueRejectionError) IsRetriable() bool {
	return false
}

// IsVenueRejection checks if an error is an explicit venue rejection.
func IsVenueRejection(err error) bool {
	var vr *VenueRejectionError
	return errors.As(err, &vr)
}

// AuthError is an authentication failure. Always fatal for the engine.
type AuthError struct {
	Op  string
	Msg string
}

func (e *AuthError) Error() string {
	return "auth failure [" + e.Op + "]: " + e.Msg
}

func (e *AuthError) IsRetriable() bool {
	return false
}

// IsAuthError checks if an error is an authentication failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

var (
	// ErrFeedLost is returned when the price feed exhausts its reconnect budget.
	ErrFeedLost = errors.New("price feed lost")

	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
