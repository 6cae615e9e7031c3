package authclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired is returned by AuthFetch when the server rejected the
	// request and a forced status check could not re-establish the session.
	ErrSessionExpired = errors.New("authclient: session expired")

	// ErrBodyNotReplayable is returned by AuthFetch when a rejected request
	// carries a body that cannot be sent a second time.
	ErrBodyNotReplayable = errors.New("authclient: request body cannot be replayed")
)

// APIError is a non-success response from the auth server.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("authclient: %d %s (%s)", e.Status, msg, e.Code)
	}
	return fmt.Sprintf("authclient: %d %s", e.Status, msg)
}

// Unauthorized reports whether the server refused the credentials or session.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}
