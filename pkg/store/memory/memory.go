// Package memory is an in-process ledger.Store. A unit of work holds the store
// lock from Begin until Commit or Rollback, so units of work are serialized and
// a read-modify-write of an account cannot interleave with another.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"balance-ledger/pkg/ledger"
)

var (
	// ErrUnitOfWorkClosed is returned by calls on a committed or rolled back unit of work.
	ErrUnitOfWorkClosed = errors.New("memory store: unit of work is closed")
	// ErrDuplicateTransaction is returned when a transaction ID is saved twice.
	ErrDuplicateTransaction = errors.New("memory store: duplicate transaction id")
	// ErrUnknownAccount is returned when saving an account that was never seeded.
	ErrUnknownAccount = errors.New("memory store: unknown account")
)

// Store holds users, accounts and the transaction log in maps.
type Store struct {
	// lock is a one-slot semaphore so Begin can honor context cancellation.
	lock chan struct{}

	// mu guards the maps for seeding and inspection helpers, which may run
	// while no unit of work is open.
	mu           sync.RWMutex
	users        map[int64]ledger.User
	accounts     map[string]ledger.Account
	transactions map[string]ledger.Transaction
	nextID       int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		lock:         make(chan struct{}, 1),
		users:        make(map[int64]ledger.User),
		accounts:     make(map[string]ledger.Account),
		transactions: make(map[string]ledger.Transaction),
	}
}

// PutUser seeds a user.
func (s *Store) PutUser(u ledger.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutAccount seeds an account, assigning an ID when the account has none.
func (s *Store) PutAccount(a ledger.Account) ledger.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.nextID++
		a.ID = s.nextID
	} else if a.ID > s.nextID {
		s.nextID = a.ID
	}
	s.accounts[a.AccountNumber] = a
	return a
}

// PutTransaction seeds a transaction record, e.g. one dated in the past.
func (s *Store) PutTransaction(tx ledger.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.TransactionID] = tx
}

// Account returns the committed state of an account.
func (s *Store) Account(accountNumber string) (ledger.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountNumber]
	return a, ok
}

// Transaction returns a committed transaction record.
func (s *Store) Transaction(id string) (ledger.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	return tx, ok
}

// Transactions returns all committed records ordered by time.
func (s *Store) Transactions() []ledger.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TransactedAt.Before(out[j].TransactedAt)
	})
	return out
}

// Begin waits for the store lock and opens a unit of work.
func (s *Store) Begin(ctx context.Context) (ledger.UnitOfWork, error) {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("memory store: begin: %w", ctx.Err())
	}
	return &unitOfWork{
		store:        s,
		accounts:     make(map[string]ledger.Account),
		transactions: make(map[string]ledger.Transaction),
	}, nil
}

// unitOfWork stages writes until Commit.
type unitOfWork struct {
	store        *Store
	closed       bool
	accounts     map[string]ledger.Account
	transactions map[string]ledger.Transaction
}

func (u *unitOfWork) Accounts() ledger.AccountStore         { return accountStore{u} }
func (u *unitOfWork) Users() ledger.UserStore               { return userStore{u} }
func (u *unitOfWork) Transactions() ledger.TransactionStore { return transactionStore{u} }

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s := u.store
	s.mu.Lock()
	for n, a := range u.accounts {
		s.accounts[n] = a
	}
	for id, tx := range u.transactions {
		s.transactions[id] = tx
	}
	s.mu.Unlock()

	u.release()
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.closed {
		return nil
	}
	u.release()
	return nil
}

func (u *unitOfWork) release() {
	u.closed = true
	u.accounts = nil
	u.transactions = nil
	<-u.store.lock
}

func (u *unitOfWork) check(ctx context.Context) error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}
	return ctx.Err()
}

type accountStore struct{ u *unitOfWork }

func (s accountStore) FindByAccountNumber(ctx context.Context, accountNumber string) (ledger.Account, bool, error) {
	if err := s.u.check(ctx); err != nil {
		return ledger.Account{}, false, err
	}
	if a, ok := s.u.accounts[accountNumber]; ok {
		return a, true, nil
	}
	a, ok := s.u.store.Account(accountNumber)
	return a, ok, nil
}

func (s accountStore) Save(ctx context.Context, account ledger.Account) error {
	if err := s.u.check(ctx); err != nil {
		return err
	}
	if _, ok := s.u.store.Account(account.AccountNumber); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, account.AccountNumber)
	}
	s.u.accounts[account.AccountNumber] = account
	return nil
}

type userStore struct{ u *unitOfWork }

func (s userStore) FindByID(ctx context.Context, id int64) (ledger.User, bool, error) {
	if err := s.u.check(ctx); err != nil {
		return ledger.User{}, false, err
	}
	s.u.store.mu.RLock()
	defer s.u.store.mu.RUnlock()
	user, ok := s.u.store.users[id]
	return user, ok, nil
}

type transactionStore struct{ u *unitOfWork }

func (s transactionStore) FindByTransactionID(ctx context.Context, id string) (ledger.Transaction, bool, error) {
	if err := s.u.check(ctx); err != nil {
		return ledger.Transaction{}, false, err
	}
	if tx, ok := s.u.transactions[id]; ok {
		return tx, true, nil
	}
	tx, ok := s.u.store.Transaction(id)
	return tx, ok, nil
}

func (s transactionStore) Save(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if err := s.u.check(ctx); err != nil {
		return ledger.Transaction{}, err
	}
	if _, ok := s.u.transactions[tx.TransactionID]; ok {
		return ledger.Transaction{}, fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.TransactionID)
	}
	if _, ok := s.u.store.Transaction(tx.TransactionID); ok {
		return ledger.Transaction{}, fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.TransactionID)
	}
	s.u.transactions[tx.TransactionID] = tx
	return tx, nil
}
