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

// UpstreamError represents a failure talking to an external estimator or
// price provider. Upstream failures degrade to "no estimate" and are
// usually retriable after the negative-cache TTL.
type UpstreamError struct {
	Op        string // Operation that failed (e.g., "fetch", "parse", "decode")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *UpstreamError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) IsRetriable() bool {
	return e.Retriable
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates a new retriable upstream error
func NewUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err, Retriable: true}
}

// NewFatalUpstreamError creates a non-retriable upstream error
func NewFatalUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err, Retriable: false}
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
	// ErrUnknownUnit is returned when a hashrate unit label cannot be
	// parsed. The affected machine is skipped, never the batch.
	ErrUnknownUnit = errors.New("unknown hashrate unit")

	// ErrPriceUnavailable is returned when every reference-price provider
	// failed and no previously stored price exists. Fatal to a run.
	ErrPriceUnavailable = errors.New("reference price unavailable")

	// ErrNoEstimate is returned when no estimator tier produced a usable
	// revenue value for a machine. The machine is skipped and counted.
	ErrNoEstimate = errors.New("no revenue estimate")

	// ErrRunInProgress is returned when a computation run is triggered
	// while another one holds the single-flight guard.
	ErrRunInProgress = errors.New("computation run already in progress")

	// ErrNotEnoughSnapshots is returned by the differ when fewer than two
	// snapshots exist for a machine.
	ErrNotEnoughSnapshots = errors.New("not enough snapshots to diff")
)
