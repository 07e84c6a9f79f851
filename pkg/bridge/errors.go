package bridge

import (
	"errors"
	"fmt"
	"time"
)

// ErrBridgeClosed is returned by operations on a bridge that already reached
// the terminal state.
var ErrBridgeClosed = errors.New("bridge is closed")

// DuplicateSessionError indicates a session is already registered for a call.
type DuplicateSessionError struct {
	CallID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("session already registered for call %s", e.CallID)
}

// AlreadyAttachedError indicates the telephony peer was attached twice.
type AlreadyAttachedError struct {
	CallID string
}

func (e *AlreadyAttachedError) Error() string {
	return fmt.Sprintf("telephony peer already attached for call %s", e.CallID)
}

// AuthenticationError indicates the engine rejected our credentials.
type AuthenticationError struct {
	Status int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("engine authentication failed with status %d", e.Status)
}

// HandshakeTimeoutError indicates the engine did not acknowledge the session
// within the connect timeout.
type HandshakeTimeoutError struct {
	Timeout time.Duration
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("engine session handshake timed out after %s", e.Timeout)
}
