package ledger

import "context"

// Store opens units of work. Every engine operation runs inside exactly one.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork groups the reads, the balance mutation and the transaction-record write
// so that they all persist or none do. Implementations must make Rollback a no-op
// after a successful Commit so it can always be deferred.
//
// Account lookups performed through a unit of work must prevent concurrent units of
// work from mutating the same account until Commit or Rollback.
type UnitOfWork interface {
	Accounts() AccountStore
	Users() UserStore
	Transactions() TransactionStore
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// AccountStore reads and updates accounts.
type AccountStore interface {
	FindByAccountNumber(ctx context.Context, accountNumber string) (Account, bool, error)
	Save(ctx context.Context, account Account) error
}

// UserStore reads users.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (User, bool, error)
}

// TransactionStore appends and reads transaction records.
// The transaction ID is generated by the engine, never by the store.
type TransactionStore interface {
	FindByTransactionID(ctx context.Context, transactionID string) (Transaction, bool, error)
	Save(ctx context.Context, tx Transaction) (Transaction, error)
}
