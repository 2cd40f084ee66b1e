package ledger_test

import (
	"errors"
	"fmt"
	"testing"

	"balance-ledger/pkg/ledger"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := ledger.NewError(ledger.CodeAmountExceedsBalance)

	assert.ErrorIs(t, err, ledger.ErrAmountExceedsBalance)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ledger.ErrAmountExceedsBalance)
	assert.NotErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestInternalWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := ledger.Internal(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ledger.ErrInternal)
	assert.Equal(t, "ledger: INTERNAL_SERVER_ERROR: internal server error: connection reset", err.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ledger.ErrorCode(""), ledger.CodeOf(nil))
	assert.Equal(t, ledger.CodeInternal, ledger.CodeOf(errors.New("boom")))
	assert.Equal(t, ledger.CodeTooOldToCancel, ledger.CodeOf(fmt.Errorf("x: %w", ledger.ErrTooOldToCancel)))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err        error
		validation bool
		notFound   bool
	}{
		{err: nil},
		{err: errors.New("boom")},
		{err: ledger.ErrInternal},
		{err: ledger.ErrInvalidRequest},
		{err: ledger.ErrUserNotFound, validation: true, notFound: true},
		{err: ledger.ErrAccountNotFound, validation: true, notFound: true},
		{err: ledger.ErrTransactionNotFound, validation: true, notFound: true},
		{err: ledger.ErrUserAccountMismatch, validation: true},
		{err: ledger.ErrAccountAlreadyUnregistered, validation: true},
		{err: ledger.ErrAmountExceedsBalance, validation: true},
		{err: ledger.ErrTransactionAccountMismatch, validation: true},
		{err: ledger.ErrCancelMustBeFull, validation: true},
		{err: ledger.ErrTooOldToCancel, validation: true},
	}

	for _, tt := range tests {
		t.Run(string(ledger.CodeOf(tt.err)), func(t *testing.T) {
			assert.Equal(t, tt.validation, ledger.IsValidationError(tt.err))
			assert.Equal(t, tt.notFound, ledger.IsNotFound(tt.err))
		})
	}
}

func TestErrorCodeMessage(t *testing.T) {
	assert.Equal(t, "partial cancellation is not allowed", ledger.CodeCancelMustBeFull.Message())
	assert.Equal(t, "SOMETHING_ELSE", ledger.ErrorCode("SOMETHING_ELSE").Message())
}
