package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateUser      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrBackendUnreachable = errors.New("inference backend unreachable")
	ErrBackendTimeout     = errors.New("inference backend timed out")
	ErrSessionClosed      = errors.New("session closed")
)

// BackendError means the inference backend was reachable but answered with an
// error payload. The backend's own message is preserved for the client.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inference backend error (status %d)", e.Status)
	}
	return fmt.Sprintf("inference backend error (status %d): %s", e.Status, e.Message)
}

// PartialTurnError reports a turn where the user's input and the assistant's
// reply were both produced, but persisting the reply failed. The reply is
// carried so it can still be delivered alongside the warning.
type PartialTurnError struct {
	Reply Message
	Err   error
}

func (e *PartialTurnError) Error() string {
	return fmt.Sprintf("reply not persisted: %v", e.Err)
}

func (e *PartialTurnError) Unwrap() error { return e.Err }
