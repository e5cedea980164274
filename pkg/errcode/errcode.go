package errcode

import (
	"errors"
	"fmt"
)

// Error represents a business error
type Error struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context, keeping the code
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code:  e.Code,
		Msg:   fmt.Sprintf("%s: %v", e.Msg, err),
		cause: err,
	}
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// From extracts the business error from err.
// Errors that carry no business code are reported as ErrInternalServer.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternalServer.Wrap(err)
}

// IsTransient reports whether err may succeed when retried
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam   = New(1001, "invalid parameter")
	ErrInternalServer = New(1002, "internal server error")
	ErrNotFound       = New(1005, "not found")
	ErrTransientStore = New(1008, "store temporarily unavailable")

	// Auth errors (2xxx)
	ErrTokenInvalid  = New(2001, "token invalid")
	ErrTokenExpired  = New(2002, "token expired")
	ErrTokenMissing  = New(2003, "token missing")
	ErrTokenMismatch = New(2004, "token user mismatch")

	// Conversation errors (3xxx)
	ErrNotAuthorized       = New(3001, "not authorized for this conversation")
	ErrNotAParticipant     = New(3002, "not a participant")
	ErrNotAGroup           = New(3003, "conversation is not a group")
	ErrAlreadyMember       = New(3004, "already a member")
	ErrSelfConversation    = New(3005, "cannot start a conversation with yourself")
	ErrInvalidTarget       = New(3006, "target user cannot be resolved")
	ErrEmptyGroup          = New(3007, "group needs at least one other member")
	ErrDuplicateMember     = New(3008, "duplicate member")
	ErrInvalidName         = New(3009, "invalid conversation name")
	ErrConversationDeleted = New(3010, "conversation has been deleted")

	// Message errors (4xxx)
	ErrEmptyContent      = New(4001, "message content is empty")
	ErrSeqConflict       = New(4002, "sequence already taken")
	ErrContentTooLong    = New(4003, "message content too long")
	ErrClientMsgIdReused = New(4004, "client message id already used in another conversation")

	// WebSocket errors (5xxx)
	ErrConnOverLimit   = New(5001, "connection over max limit")
	ErrConnClosed      = New(5002, "connection closed")
	ErrInvalidProtocol = New(5003, "invalid protocol")
	ErrSessionNotFound = New(5004, "session not found")
	ErrSlowConsumer    = New(5005, "session evicted: event buffer full")
)
