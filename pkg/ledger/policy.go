package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CancelWindow is how far back a USE transaction may be cancelled.
const CancelWindow = 1

// ValidateUse applies the use-balance policy to an already resolved user and account.
func ValidateUse(user User, account Account, amount int64) error {
	if user.ID != account.UserID {
		return NewError(CodeUserAccountMismatch)
	}
	if account.Status != AccountInUse {
		return NewError(CodeAccountAlreadyUnregistered)
	}
	if account.Balance < amount {
		return NewError(CodeAmountExceedsBalance)
	}
	return nil
}

// ValidateCancel applies the cancel policy to a prior transaction and the resolved account.
// Priors transacted before now minus CancelWindow years are rejected.
func ValidateCancel(prior Transaction, account Account, amount int64, now time.Time) error {
	if prior.AccountID != account.ID {
		return NewError(CodeTransactionAccountMismatch)
	}
	if prior.Amount != amount {
		return NewError(CodeCancelMustBeFull)
	}
	if prior.TransactedAt.Before(now.AddDate(-CancelWindow, 0, 0)) {
		return NewError(CodeTooOldToCancel)
	}
	return nil
}

// DebitAccount returns the account state after using amount.
// Callers must have validated the account with ValidateUse first.
func DebitAccount(account Account, amount int64) Account {
	account.Balance -= amount
	return account
}

// CreditAccount returns the account state after cancelling amount.
func CreditAccount(account Account, amount int64) Account {
	account.Balance += amount
	return account
}

// NewTransactionID returns a 32 character lowercase hex token.
func NewTransactionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// buildTransaction snapshots account's current balance onto a new record.
func buildTransaction(id string, typ TransactionType, result ResultType, account Account, amount int64, at time.Time) Transaction {
	return Transaction{
		TransactionID:   id,
		Type:            typ,
		Result:          result,
		AccountID:       account.ID,
		AccountNumber:   account.AccountNumber,
		Amount:          amount,
		BalanceSnapshot: account.Balance,
		TransactedAt:    at,
	}
}
