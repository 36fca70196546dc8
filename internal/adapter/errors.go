package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error wraps a failed adapter operation with its backend kind and the
// operation name. Classification goes through the sentinel errors below so
// the server and range proxy never inspect backend-native error shapes.
type Error struct {
	Op   string // operation that failed: "connect", "list", "resolve"
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + " " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel classifications for adapter failures.
var (
	// ErrAuth: bad or expired credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrUnreachable: network or DNS failure reaching the backend.
	ErrUnreachable = errors.New("backend unreachable")

	// ErrUnsupported: the remote responded with an unexpected shape.
	ErrUnsupported = errors.New("unexpected backend response")

	// ErrNotFound: the referenced file or folder no longer exists.
	ErrNotFound = errors.New("not found")

	// ErrNotConnected: unknown or stale session id.
	ErrNotConnected = errors.New("not connected")

	// ErrStream: mid-transfer I/O failure. Never retried.
	ErrStream = errors.New("stream failed")
)

// RemoteError carries a backend domain error (quota exceeded, rate limit)
// whose message is passed through to the user.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return "remote error " + e.Code + ": " + e.Message
	}
	return "remote error: " + e.Message
}

// IsAuth reports whether err classifies as an authentication failure.
func IsAuth(err error) bool { return errors.Is(err, ErrAuth) }

// IsUnreachable reports whether err classifies as a network failure.
func IsUnreachable(err error) bool { return errors.Is(err, ErrUnreachable) }

// IsNotFound reports whether err classifies as a missing file or folder.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsNotConnected reports whether err classifies as an unknown session.
func IsNotConnected(err error) bool { return errors.Is(err, ErrNotConnected) }

// IsRemote extracts a RemoteError if err carries one.
func IsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// classifyStatus folds a non-2xx HTTP response into the taxonomy. body is
// a short prefix of the response payload for the RemoteError message.
func classifyStatus(status int, body string) error {
	switch status {
	case 401, 403:
		return ErrAuth
	case 404, 410:
		return ErrNotFound
	default:
		return &RemoteError{Code: fmt.Sprintf("%d", status), Message: body}
	}
}

// classifyNetErr folds transport-level failures into the taxonomy.
// Context cancellation is passed through untouched so callers can tell a
// client disconnect from a backend outage.
func classifyNetErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	// url.Error from http.Client wraps the transport failure; anything that
	// never produced a response counts as unreachable.
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
