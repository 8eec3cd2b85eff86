package bus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Cyvadra/marketminds/internal/models"
)

// Bus errors
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrUnhandledAction = errors.New("unhandled action")
	ErrInvalidFrame    = errors.New("invalid frame")
)

// RemoteError is an application failure reported by the background side
type RemoteError struct {
	Action  models.Action `json:"action"`
	Message string        `json:"message"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap lets callers test for ErrUnhandledAction replies with errors.Is
func (e *RemoteError) Unwrap() error {
	if strings.HasPrefix(e.Message, ErrUnhandledAction.Error()) {
		return ErrUnhandledAction
	}
	return nil
}

// transportError wraps cause so it matches ErrTransportClosed
func transportError(cause error) error {
	switch {
	case cause == nil:
		return ErrTransportClosed
	case errors.Is(cause, ErrTransportClosed):
		return cause
	default:
		return fmt.Errorf("%w: %v", ErrTransportClosed, cause)
	}
}
