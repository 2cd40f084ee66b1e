package ledger

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure mode of the engine.
type ErrorCode string

const (
	CodeUserNotFound               ErrorCode = "USER_NOT_FOUND"
	CodeAccountNotFound            ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeUserAccountMismatch        ErrorCode = "USER_ACCOUNT_UN_MATCH"
	CodeAccountAlreadyUnregistered ErrorCode = "ACCOUNT_ALREADY_UNREGISTERED"
	CodeAmountExceedsBalance       ErrorCode = "AMOUNT_EXCEED_BALANCE"
	CodeTransactionNotFound        ErrorCode = "TRANSACTION_NOT_FOUND"
	CodeTransactionAccountMismatch ErrorCode = "TRANSACTION_ACCOUNT_UN_MATCH"
	CodeCancelMustBeFull           ErrorCode = "CANCEL_MUST_FULLY"
	CodeTooOldToCancel             ErrorCode = "TOO_OLD_ORDER_TO_CANCEL"
	CodeInternal                   ErrorCode = "INTERNAL_SERVER_ERROR"

	// CodeInvalidRequest marks malformed input rejected before any store access.
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"
)

var messages = map[ErrorCode]string{
	CodeUserNotFound:               "user not found",
	CodeAccountNotFound:            "account not found",
	CodeUserAccountMismatch:        "user and account owner do not match",
	CodeAccountAlreadyUnregistered: "account is already unregistered",
	CodeAmountExceedsBalance:       "amount exceeds account balance",
	CodeTransactionNotFound:        "transaction not found",
	CodeTransactionAccountMismatch: "transaction does not belong to this account",
	CodeCancelMustBeFull:           "partial cancellation is not allowed",
	CodeTooOldToCancel:             "transactions older than one year cannot be cancelled",
	CodeInternal:                   "internal server error",
	CodeInvalidRequest:             "invalid request",
}

// Message returns the human-readable description of a code.
func (c ErrorCode) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return string(c)
}

// Error is the single tagged error type surfaced by the engine.
type Error struct {
	Code    ErrorCode
	Message string
	// Err is the underlying cause for internal errors.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("ledger: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates an error for the given code with its default message.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code, Message: code.Message()}
}

// Internal wraps an unanticipated failure (store, driver, id generation).
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: CodeInternal.Message(), Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrUserNotFound               = NewError(CodeUserNotFound)
	ErrAccountNotFound            = NewError(CodeAccountNotFound)
	ErrUserAccountMismatch        = NewError(CodeUserAccountMismatch)
	ErrAccountAlreadyUnregistered = NewError(CodeAccountAlreadyUnregistered)
	ErrAmountExceedsBalance       = NewError(CodeAmountExceedsBalance)
	ErrTransactionNotFound        = NewError(CodeTransactionNotFound)
	ErrTransactionAccountMismatch = NewError(CodeTransactionAccountMismatch)
	ErrCancelMustBeFull           = NewError(CodeCancelMustBeFull)
	ErrTooOldToCancel             = NewError(CodeTooOldToCancel)
	ErrInternal                   = NewError(CodeInternal)
	ErrInvalidRequest             = NewError(CodeInvalidRequest)
)

// CodeOf returns the code carried by err.
// Anything that is not an *Error maps to CodeInternal; nil maps to "".
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return CodeInternal
}

// IsValidationError reports whether err is a business-rule rejection,
// i.e. a failure for which a FAIL transaction should be recorded.
func IsValidationError(err error) bool {
	switch CodeOf(err) {
	case "", CodeInternal, CodeInvalidRequest:
		return false
	default:
		return true
	}
}

// IsNotFound reports whether err signals a missing user, account or transaction.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case CodeUserNotFound, CodeAccountNotFound, CodeTransactionNotFound:
		return true
	default:
		return false
	}
}
