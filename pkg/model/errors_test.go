package model

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestServerError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServerError
		want string
	}{
		{"detail wins", &ServerError{StatusCode: 401, Status: "Unauthorized", Detail: "Invalid credentials"}, "Invalid credentials"},
		{"status text", &ServerError{StatusCode: 404, Status: "Not Found"}, "HTTP 404 Not Found"},
		{"derived status text", &ServerError{StatusCode: 500}, "HTTP 500 Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	err := fmt.Errorf("login: %w", &TransportError{Op: "POST /auth/login", Err: syscall.ECONNREFUSED})
	if !IsTransportError(err) {
		t.Fatal("IsTransportError() = false, want true")
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Error("expected ECONNREFUSED in chain")
	}
	if IsServerError(err) {
		t.Error("IsServerError() = true for transport error")
	}
}

func TestSessionExpiredError_Is(t *testing.T) {
	cause := &ServerError{StatusCode: 401}
	err := &SessionExpiredError{Err: cause}
	if !errors.Is(err, ErrSessionExpired) {
		t.Error("expected errors.Is(err, ErrSessionExpired)")
	}
	if !IsServerError(err) {
		t.Error("cause should stay reachable through Unwrap")
	}
	if err.Error() != "session expired" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestPollingTimeoutError_Is(t *testing.T) {
	err := fmt.Errorf("infer: %w", &PollingTimeoutError{JobID: "job-1", Attempts: 3})
	if !errors.Is(err, ErrPollingTimeout) {
		t.Error("expected errors.Is(err, ErrPollingTimeout)")
	}
	want := "infer: polling timeout: inference job job-1 did not complete after 3 attempts"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestServerDetail(t *testing.T) {
	if got := ServerDetail(&ServerError{StatusCode: 400, Detail: "bad ticker"}, "fallback"); got != "bad ticker" {
		t.Errorf("ServerDetail() = %q", got)
	}
	if got := ServerDetail(&ServerError{StatusCode: 400}, "fallback"); got != "fallback" {
		t.Errorf("ServerDetail() = %q", got)
	}
	if got := ServerDetail(errors.New("boom"), "fallback"); got != "fallback" {
		t.Errorf("ServerDetail() = %q", got)
	}
}
