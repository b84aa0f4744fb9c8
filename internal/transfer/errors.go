package transfer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrJobNotFound is returned by a Daemon when the job handle is unknown to it,
// typically because it was already removed or purged from the result list.
var ErrJobNotFound = errors.New("download job not found")

// DaemonError represents an error object returned by the download daemon's RPC layer.
type DaemonError struct {
	Method  string // RPC method that failed (e.g. "aria2.addUri")
	Code    int    // daemon error code
	Message string // daemon error message
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("daemon error during %s (code %d): %s", e.Method, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrJobNotFound) match the daemon's "not found" replies.
func (e *DaemonError) Is(target error) bool {
	return target == ErrJobNotFound && strings.Contains(strings.ToLower(e.Message), "not found")
}

// NetworkError represents transport failures and non-2xx responses while talking to
// the daemon or to a remote host.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "aria2.tellStatus", "probe")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Message    string // Error message from the remote or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.Message)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DaemonUnreachableError is fatal: no candidate port answered the health probe, so
// nothing downstream can proceed.
type DaemonUnreachableError struct {
	Host  string
	Ports []int
	Err   error // last error observed while probing
}

func (e *DaemonUnreachableError) Error() string {
	return fmt.Sprintf("download daemon unreachable on %s ports %v", e.Host, e.Ports)
}

func (e *DaemonUnreachableError) Unwrap() error {
	return e.Err
}

// AuthenticationError represents 401/403 responses from a source host, including a
// rejected daemon RPC secret.
type AuthenticationError struct {
	Operation string // The operation that required authentication
	Err       error  // Underlying error, if any
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
