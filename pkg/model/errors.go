package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired is matched by errors returned when a token refresh fails.
	ErrSessionExpired = errors.New("session expired")

	// ErrPollingTimeout is matched when an inference job never reached a
	// terminal state within the client's attempt budget.
	ErrPollingTimeout = errors.New("polling timeout: inference job did not complete")
)

// TransportError means no HTTP response was received: connection refused,
// DNS failure, or a timeout before any response arrived.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: server unreachable: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx response. Detail holds the server's message
// (the "detail" field of the body) and is shown to the user verbatim.
type ServerError struct {
	StatusCode int
	Status     string
	Detail     string
	Body       string
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	status := e.Status
	if status == "" {
		status = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, status)
}

// SessionExpiredError is returned by a failed token refresh. The local
// session has always been cleared by the time it is returned.
type SessionExpiredError struct {
	Err error
}

func (e *SessionExpiredError) Error() string {
	return ErrSessionExpired.Error()
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Err
}

func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired
}

// PollingTimeoutError reports a client-side give-up. The job may still
// complete on the server.
type PollingTimeoutError struct {
	JobID    string
	Attempts int
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("polling timeout: inference job %s did not complete after %d attempts", e.JobID, e.Attempts)
}

func (e *PollingTimeoutError) Is(target error) bool {
	return target == ErrPollingTimeout
}

// UnknownStatusError is returned when the poller is configured to fail
// fast on a status it does not recognize.
type UnknownStatusError struct {
	JobID  string
	Status JobStatus
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("inference job %s reported unknown status %q", e.JobID, e.Status)
}

// IsTransportError reports whether err means the server was never reached.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsServerError reports whether err is a server-issued error response.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// ServerDetail returns the server-provided detail message of err, or
// fallback when err carries none.
func ServerDetail(err error, fallback string) string {
	var se *ServerError
	if errors.As(err, &se) && se.Detail != "" {
		return se.Detail
	}
	return fallback
}
