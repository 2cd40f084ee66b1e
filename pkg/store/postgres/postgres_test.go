package postgres

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"balance-ledger/pkg/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := DefaultConfig()
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Host = v
	}
	if v, err := strconv.Atoi(os.Getenv("POSTGRES_PORT")); err == nil {
		cfg.Port = v
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Database = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := Open(ctx, cfg)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAccount(t *testing.T, s *Store, balance int64) (ledger.User, ledger.Account) {
	t.Helper()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, t.Name())
	require.NoError(t, err)
	a, err := s.CreateAccount(ctx, ledger.Account{
		UserID:        u.ID,
		AccountNumber: fmt.Sprintf("%010d", rand.Int63n(1e10)),
		Balance:       balance,
		Status:        ledger.AccountInUse,
	})
	require.NoError(t, err)
	return u, a
}

func TestConfig_DSN(t *testing.T) {
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=postgres dbname=ledger sslmode=disable",
		DefaultConfig().DSN(),
	)
}

func TestStore_CommitAndRead(t *testing.T) {
	s := setupTestStore(t)
	u, a := seedAccount(t, s, 10000)
	ctx := context.Background()

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	found, ok, err := uow.Accounts().FindByAccountNumber(ctx, a.AccountNumber)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u.ID, found.UserID)
	assert.True(t, found.UnregisteredAt.IsZero())

	found.Balance = 9800
	require.NoError(t, uow.Accounts().Save(ctx, found))

	tx := ledger.Transaction{
		TransactionID:   ledger.NewTransactionID(),
		Type:            ledger.TransactionUse,
		Result:          ledger.ResultSuccess,
		AccountID:       found.ID,
		AccountNumber:   found.AccountNumber,
		Amount:          200,
		BalanceSnapshot: 9800,
		TransactedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	_, err = uow.Transactions().Save(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, uow.Commit(ctx))
	require.NoError(t, uow.Rollback(ctx), "rollback after commit is a no-op")

	read, err := s.Begin(ctx)
	require.NoError(t, err)
	defer read.Rollback(ctx)

	got, ok, err := read.Transactions().FindByTransactionID(ctx, tx.TransactionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tx.AccountNumber, got.AccountNumber)
	assert.Equal(t, tx.BalanceSnapshot, got.BalanceSnapshot)
	assert.True(t, tx.TransactedAt.Equal(got.TransactedAt))

	acct, _, err := read.Accounts().FindByAccountNumber(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(9800), acct.Balance)
}

func TestStore_RollbackDiscards(t *testing.T) {
	s := setupTestStore(t)
	_, a := seedAccount(t, s, 10000)
	ctx := context.Background()

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	a.Balance = 0
	require.NoError(t, uow.Accounts().Save(ctx, a))
	require.NoError(t, uow.Rollback(ctx))

	check, err := s.Begin(ctx)
	require.NoError(t, err)
	defer check.Rollback(ctx)
	got, _, err := check.Accounts().FindByAccountNumber(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), got.Balance)
}

func TestStore_DuplicateTransactionID(t *testing.T) {
	s := setupTestStore(t)
	_, a := seedAccount(t, s, 10000)
	ctx := context.Background()

	tx := ledger.Transaction{
		TransactionID: ledger.NewTransactionID(),
		Type:          ledger.TransactionUse,
		Result:        ledger.ResultFail,
		AccountID:     a.ID,
		Amount:        10,
		TransactedAt:  time.Now(),
	}
	for i, want := range []error{nil, ErrDuplicateTransaction} {
		uow, err := s.Begin(ctx)
		require.NoError(t, err)
		_, err = uow.Transactions().Save(ctx, tx)
		if want == nil {
			require.NoError(t, err, "attempt %d", i)
			require.NoError(t, uow.Commit(ctx))
		} else {
			assert.ErrorIs(t, err, want)
		}
		require.NoError(t, uow.Rollback(ctx))
	}
}

func TestStore_ConcurrentUseDoesNotOverdraw(t *testing.T) {
	s := setupTestStore(t)
	u, a := seedAccount(t, s, 1000)
	engine := ledger.NewEngine(s)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.UseBalance(ctx, u.ID, a.AccountNumber, 100); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)
	got, _, err := uow.Accounts().FindByAccountNumber(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
}

func TestStore_EngineResultMatchesStoredRecord(t *testing.T) {
	s := setupTestStore(t)
	u, a := seedAccount(t, s, 1000)
	ctx := context.Background()

	zone := time.FixedZone("KST", 9*60*60)
	clock := func() time.Time { return time.Date(2026, 3, 1, 21, 0, 0, 123456789, zone) }
	engine := ledger.NewEngine(s, ledger.WithClock(clock))

	used, err := engine.UseBalance(ctx, u.ID, a.AccountNumber, 100)
	require.NoError(t, err)

	queried, err := engine.QueryTransaction(ctx, used.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, used, queried)
	assert.Equal(t, time.UTC, queried.TransactedAt.Location())
}
