package session

import "fmt"

type ErrorCode string

const (
	ErrorUserInput    ErrorCode = "USER_INPUT"
	ErrorState        ErrorCode = "STATE"
	ErrorExternalCall ErrorCode = "EXTERNAL_CALL"
	ErrorInternal     ErrorCode = "INTERNAL"
)

// Error is a failed turn. Reason is the text shown to the user.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("session: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("session: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
