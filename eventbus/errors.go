package eventbus

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCodecAlreadyRegistered = errors.New("eventbus: codec already registered")
	ErrCodecNotFound          = errors.New("eventbus: codec not found")
	ErrBusClosed              = errors.New("eventbus: bus is closed")
)

// FailureType tells where a request failed.
type FailureType int

const (
	// FailureTimeout means no reply arrived within the send timeout.
	FailureTimeout FailureType = iota
	// FailureNoHandlers means nothing consumes the address.
	FailureNoHandlers
	// FailureRecipient means the consumer failed the message.
	FailureRecipient
)

func (t FailureType) String() string {
	switch t {
	case FailureTimeout:
		return "TIMEOUT"
	case FailureNoHandlers:
		return "NO_HANDLERS"
	case FailureRecipient:
		return "RECIPIENT_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// ReplyError is the failure reported for a request.
type ReplyError struct {
	Type    FailureType `json:"type"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
}

func (e *ReplyError) Error() string {
	return e.Message
}

func NewReplyError(typ FailureType, code int, message string) *ReplyError {
	return &ReplyError{Type: typ, Code: code, Message: message}
}

func NewNoHandlersError(address string) *ReplyError {
	return NewReplyError(FailureNoHandlers, -1, fmt.Sprintf("No handlers for address %s", address))
}

func NewTimeoutError(address string, waited time.Duration) *ReplyError {
	return NewReplyError(FailureTimeout, -1,
		fmt.Sprintf("Timed out after waiting %d(ms) for a reply. address: %s", waited.Milliseconds(), address))
}
