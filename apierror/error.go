// Package apierror defines the error kinds that travel between cache peers
// and their mapping onto HTTP status codes.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for the failure kinds a peer fetch can produce. They
// survive the wire round trip: a server encodes its failure as a status code
// and text body, and FromResponse rebuilds an error for which errors.Is
// matches the same sentinel on the client side.
var (
	// ErrGroupNotFound means the owner peer has no group by that name.
	ErrGroupNotFound = errors.New("group not found")
	// ErrServerBusy means the owner peer's admission limit was hit.
	ErrServerBusy = errors.New("server busy")
	// ErrInternalServer means the owner peer failed while loading.
	ErrInternalServer = errors.New("internal server error")
	// ErrConnectFailure means the peer could not be reached at all.
	ErrConnectFailure = errors.New("cannot connect to peer")
)

// Error is the type of error returned by a peer client. It carries the HTTP
// status code of the response it was built from, and unwraps to the sentinel
// kind for that status.
type Error struct {
	err    error
	status int
}

func New(err error, status int) *Error {
	return &Error{
		err:    err,
		status: status,
	}
}

// FromResponse builds an error from a peer response status and body. The
// body is the plain-text failure reason written by the server. The returned
// error unwraps to the sentinel kind matching the status.
func FromResponse(status int, body []byte) error {
	kind := kindForStatus(status)
	text := strings.TrimSpace(string(body))
	text = strings.TrimPrefix(text, kind.Error()+": ")
	var err error
	if text != "" && text != kind.Error() {
		err = fmt.Errorf("%w: %s", kind, text)
	} else {
		err = kind
	}
	if status == 0 {
		return err
	}
	return New(err, status)
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrGroupNotFound
	case http.StatusServiceUnavailable:
		return ErrServerBusy
	default:
		return ErrInternalServer
	}
}

// StatusFor returns the HTTP status code a server should answer with for
// err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrServerBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether err is one of the kinds worth trying against
// another replica of the same key.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInternalServer) ||
		errors.Is(err, ErrServerBusy) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrConnectFailure)
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	if e.status == 0 {
		return ""
	}
	// If there is only status, then return status text
	if text := http.StatusText(e.status); text != "" {
		return fmt.Sprintf("%d %s", e.status, text)
	}
	return fmt.Sprintf("%d", e.status)
}

func (e *Error) Status() int {
	return e.status
}

func (e *Error) Unwrap() error {
	return e.err
}
