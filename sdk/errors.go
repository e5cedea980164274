package sdk

import (
	"errors"
	"fmt"
)

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, msg: %s", e.Code, e.Msg)
}

// Is matches errors by code, so errors.Is(err, sdk.ErrNotAuthorized) works on API responses
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new error
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// CodeOf returns the API code carried by err, or -1 when err is not an API error
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}

// Error codes returned by the server
const (
	CodeSuccess = 0

	// Common errors (1xxx)
	CodeInvalidParam   = 1001
	CodeInternalServer = 1002
	CodeNotFound       = 1005
	CodeTransientStore = 1008

	// Auth errors (2xxx)
	CodeTokenInvalid  = 2001
	CodeTokenExpired  = 2002
	CodeTokenMissing  = 2003
	CodeTokenMismatch = 2004

	// Conversation errors (3xxx)
	CodeNotAuthorized       = 3001
	CodeNotAParticipant     = 3002
	CodeNotAGroup           = 3003
	CodeAlreadyMember       = 3004
	CodeSelfConversation    = 3005
	CodeInvalidTarget       = 3006
	CodeEmptyGroup          = 3007
	CodeDuplicateMember     = 3008
	CodeInvalidName         = 3009
	CodeConversationDeleted = 3010

	// Message errors (4xxx)
	CodeEmptyContent      = 4001
	CodeSeqConflict       = 4002
	CodeContentTooLong    = 4003
	CodeClientMsgIdReused = 4004

	// WebSocket errors (5xxx)
	CodeConnOverLimit   = 5001
	CodeConnClosed      = 5002
	CodeInvalidProtocol = 5003
	CodeSessionNotFound = 5004
	CodeSlowConsumer    = 5005
)

// Predefined errors for use with errors.Is
var (
	ErrInvalidParam   = NewError(CodeInvalidParam, "invalid parameter")
	ErrInternalServer = NewError(CodeInternalServer, "internal server error")
	ErrNotFound       = NewError(CodeNotFound, "not found")
	ErrTransientStore = NewError(CodeTransientStore, "store temporarily unavailable")

	ErrTokenInvalid = NewError(CodeTokenInvalid, "token invalid")
	ErrTokenExpired = NewError(CodeTokenExpired, "token expired")
	ErrTokenMissing = NewError(CodeTokenMissing, "token missing")

	ErrNotAuthorized       = NewError(CodeNotAuthorized, "not authorized for this conversation")
	ErrNotAParticipant     = NewError(CodeNotAParticipant, "not a participant")
	ErrNotAGroup           = NewError(CodeNotAGroup, "conversation is not a group")
	ErrAlreadyMember       = NewError(CodeAlreadyMember, "already a member")
	ErrSelfConversation    = NewError(CodeSelfConversation, "cannot start a conversation with yourself")
	ErrInvalidTarget       = NewError(CodeInvalidTarget, "target user cannot be resolved")
	ErrEmptyGroup          = NewError(CodeEmptyGroup, "group needs at least one other member")
	ErrDuplicateMember     = NewError(CodeDuplicateMember, "duplicate member")
	ErrInvalidName         = NewError(CodeInvalidName, "invalid conversation name")
	ErrConversationDeleted = NewError(CodeConversationDeleted, "conversation has been deleted")

	ErrEmptyContent      = NewError(CodeEmptyContent, "message content is empty")
	ErrContentTooLong    = NewError(CodeContentTooLong, "message content too long")
	ErrClientMsgIdReused = NewError(CodeClientMsgIdReused, "client message id already used in another conversation")
)
