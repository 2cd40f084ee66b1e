package api

import (
	"fmt"
	"strings"
	"time"

	"balance-ledger/pkg/ledger"
)

// Bounds on a single transaction amount.
const (
	MinAmount int64 = 10
	MaxAmount int64 = 1_000_000_000

	// MaxBodyBytes bounds a request body; ledger requests are a few dozen bytes.
	MaxBodyBytes int64 = 64 << 10
)

// UseBalanceRequest is the body of POST /transaction/use.
type UseBalanceRequest struct {
	UserID        *int64 `json:"userId"`
	AccountNumber string `json:"accountNumber"`
	Amount        *int64 `json:"amount"`
}

func (r UseBalanceRequest) validate() error {
	if r.UserID == nil || *r.UserID < 1 {
		return fmt.Errorf("userId must be at least 1")
	}
	if err := validateAccountNumber(r.AccountNumber); err != nil {
		return err
	}
	return validateAmount(r.Amount)
}

// CancelBalanceRequest is the body of POST /transaction/cancel.
type CancelBalanceRequest struct {
	TransactionID string `json:"transactionId"`
	AccountNumber string `json:"accountNumber"`
	Amount        *int64 `json:"amount"`
}

func (r CancelBalanceRequest) validate() error {
	if strings.TrimSpace(r.TransactionID) == "" {
		return fmt.Errorf("transactionId must not be blank")
	}
	if err := validateAccountNumber(r.AccountNumber); err != nil {
		return err
	}
	return validateAmount(r.Amount)
}

func validateAccountNumber(n string) error {
	if strings.TrimSpace(n) == "" || len(n) != ledger.AccountNumberLength {
		return fmt.Errorf("accountNumber must be exactly %d characters", ledger.AccountNumberLength)
	}
	return nil
}

func validateAmount(amount *int64) error {
	if amount == nil || *amount < MinAmount || *amount > MaxAmount {
		return fmt.Errorf("amount must be between %d and %d", MinAmount, MaxAmount)
	}
	return nil
}

// BalanceResponse answers use and cancel requests.
type BalanceResponse struct {
	AccountNumber     string            `json:"accountNumber"`
	TransactionResult ledger.ResultType `json:"transactionResult"`
	TransactionID     string            `json:"transactionId"`
	Amount            int64             `json:"amount"`
	TransactedAt      time.Time         `json:"transactedAt"`
}

func balanceResponse(r ledger.TransactionResult) BalanceResponse {
	return BalanceResponse{
		AccountNumber:     r.AccountNumber,
		TransactionResult: r.TransactionResult,
		TransactionID:     r.TransactionID,
		Amount:            r.Amount,
		TransactedAt:      r.TransactedAt,
	}
}

// QueryTransactionResponse answers GET /transaction/{transactionId}.
type QueryTransactionResponse struct {
	AccountNumber     string                 `json:"accountNumber"`
	TransactionType   ledger.TransactionType `json:"transactionType"`
	TransactionResult ledger.ResultType      `json:"transactionResult"`
	TransactionID     string                 `json:"transactionId"`
	Amount            int64                  `json:"amount"`
	TransactedAt      time.Time              `json:"transactedAt"`
}

func queryResponse(r ledger.TransactionResult) QueryTransactionResponse {
	return QueryTransactionResponse{
		AccountNumber:     r.AccountNumber,
		TransactionType:   r.TransactionType,
		TransactionResult: r.TransactionResult,
		TransactionID:     r.TransactionID,
		Amount:            r.Amount,
		TransactedAt:      r.TransactedAt,
	}
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	ErrorCode    ledger.ErrorCode `json:"errorCode"`
	ErrorMessage string           `json:"errorMessage"`
}
