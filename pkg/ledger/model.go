package ledger

import "time"

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	// AccountInUse accounts accept use and cancel operations.
	AccountInUse AccountStatus = "IN_USE"
	// AccountUnregistered accounts have been closed by their owner.
	AccountUnregistered AccountStatus = "UNREGISTERED"
)

// TransactionType distinguishes debits from reversals.
type TransactionType string

const (
	TransactionUse    TransactionType = "USE"
	TransactionCancel TransactionType = "CANCEL"
)

// ResultType is the outcome recorded on a transaction.
type ResultType string

const (
	ResultSuccess ResultType = "SUCCESS"
	ResultFail    ResultType = "FAIL"
)

// AccountNumberLength is the fixed length of every account number.
const AccountNumberLength = 10

// User owns accounts. The engine only reads users to check ownership.
type User struct {
	ID   int64
	Name string
}

// Account is a balance-holding account owned by a single user.
// Balance is kept in the smallest currency unit and is never negative.
type Account struct {
	ID             int64
	UserID         int64
	AccountNumber  string
	Balance        int64
	Status         AccountStatus
	RegisteredAt   time.Time
	UnregisteredAt time.Time
}

// Transaction is an append-only record of one engine operation.
// BalanceSnapshot is the account balance after the effect was applied;
// for FAIL records it is the untouched balance at write time.
type Transaction struct {
	TransactionID   string
	Type            TransactionType
	Result          ResultType
	AccountID       int64
	AccountNumber   string
	Amount          int64
	BalanceSnapshot int64
	TransactedAt    time.Time
}

// TransactionResult is the data view of a persisted transaction returned to callers.
type TransactionResult struct {
	AccountNumber     string          `json:"accountNumber"`
	TransactionType   TransactionType `json:"transactionType"`
	TransactionResult ResultType      `json:"transactionResult"`
	TransactionID     string          `json:"transactionId"`
	Amount            int64           `json:"amount"`
	TransactedAt      time.Time       `json:"transactedAt"`
	BalanceSnapshot   int64           `json:"balanceSnapshot"`
}

// ResultFrom builds the caller-facing view of a transaction.
func ResultFrom(tx Transaction) TransactionResult {
	return TransactionResult{
		AccountNumber:     tx.AccountNumber,
		TransactionType:   tx.Type,
		TransactionResult: tx.Result,
		TransactionID:     tx.TransactionID,
		Amount:            tx.Amount,
		TransactedAt:      tx.TransactedAt,
		BalanceSnapshot:   tx.BalanceSnapshot,
	}
}
