// Package postgres implements ledger.Store on PostgreSQL through database/sql
// and lib/pq. A unit of work is a database transaction; account reads take a
// row lock (SELECT ... FOR UPDATE) held until commit or rollback.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"balance-ledger/pkg/ledger"

	"github.com/lib/pq"
)

// ErrDuplicateTransaction is returned when a transaction ID is saved twice.
var ErrDuplicateTransaction = errors.New("postgres store: duplicate transaction id")

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "ledger",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DSN returns the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Store is a ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects, pings and creates the schema if it does not exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.initTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}

	return s, nil
}

func (s *Store) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id),
			account_number CHAR(10) NOT NULL UNIQUE,
			balance BIGINT NOT NULL CHECK (balance >= 0),
			status TEXT NOT NULL,
			registered_at TIMESTAMP WITH TIME ZONE NOT NULL,
			unregistered_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id CHAR(32) PRIMARY KEY,
			type TEXT NOT NULL,
			result TEXT NOT NULL,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			amount BIGINT NOT NULL,
			balance_snapshot BIGINT NOT NULL,
			transacted_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions(account_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks connectivity for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser inserts a user and returns it with its generated ID.
func (s *Store) CreateUser(ctx context.Context, name string) (ledger.User, error) {
	u := ledger.User{Name: name}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (name) VALUES ($1) RETURNING id`, name,
	).Scan(&u.ID)
	if err != nil {
		return ledger.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// CreateAccount inserts an account and returns it with its generated ID.
func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if a.RegisteredAt.IsZero() {
		a.RegisteredAt = time.Now()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (user_id, account_number, balance, status, registered_at, unregistered_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.UserID, a.AccountNumber, a.Balance, string(a.Status), a.RegisteredAt, nullTime(a.UnregisteredAt),
	).Scan(&a.ID)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("insert account %s: %w", a.AccountNumber, err)
	}
	return a, nil
}

// Begin starts a database transaction.
func (s *Store) Begin(ctx context.Context) (ledger.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &unitOfWork{tx: tx}, nil
}

type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) Accounts() ledger.AccountStore         { return accountStore{u.tx} }
func (u *unitOfWork) Users() ledger.UserStore               { return userStore{u.tx} }
func (u *unitOfWork) Transactions() ledger.TransactionStore { return transactionStore{u.tx} }

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

type accountStore struct{ tx *sql.Tx }

func (s accountStore) FindByAccountNumber(ctx context.Context, accountNumber string) (ledger.Account, bool, error) {
	var (
		a            ledger.Account
		status       string
		unregistered sql.NullTime
	)
	err := s.tx.QueryRowContext(ctx,
		`SELECT id, user_id, account_number, balance, status, registered_at, unregistered_at
		 FROM accounts WHERE account_number = $1 FOR UPDATE`,
		accountNumber,
	).Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.Balance, &status, &a.RegisteredAt, &unregistered)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, false, nil
	}
	if err != nil {
		return ledger.Account{}, false, fmt.Errorf("select account: %w", err)
	}
	a.Status = ledger.AccountStatus(status)
	a.RegisteredAt = a.RegisteredAt.UTC()
	if unregistered.Valid {
		a.UnregisteredAt = unregistered.Time.UTC()
	}
	return a, true, nil
}

func (s accountStore) Save(ctx context.Context, a ledger.Account) error {
	res, err := s.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, status = $2, unregistered_at = $3 WHERE id = $4`,
		a.Balance, string(a.Status), nullTime(a.UnregisteredAt), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("update account %s: %d rows affected", a.AccountNumber, n)
	}
	return nil
}

type userStore struct{ tx *sql.Tx }

func (s userStore) FindByID(ctx context.Context, id int64) (ledger.User, bool, error) {
	var u ledger.User
	err := s.tx.QueryRowContext(ctx,
		`SELECT id, name FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, false, nil
	}
	if err != nil {
		return ledger.User{}, false, fmt.Errorf("select user: %w", err)
	}
	return u, true, nil
}

type transactionStore struct{ tx *sql.Tx }

func (s transactionStore) FindByTransactionID(ctx context.Context, id string) (ledger.Transaction, bool, error) {
	var (
		t        ledger.Transaction
		typ, res string
	)
	err := s.tx.QueryRowContext(ctx,
		`SELECT t.transaction_id, t.type, t.result, t.account_id, a.account_number,
		        t.amount, t.balance_snapshot, t.transacted_at
		 FROM transactions t JOIN accounts a ON a.id = t.account_id
		 WHERE t.transaction_id = $1`, id,
	).Scan(&t.TransactionID, &typ, &res, &t.AccountID, &t.AccountNumber, &t.Amount, &t.BalanceSnapshot, &t.TransactedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, false, nil
	}
	if err != nil {
		return ledger.Transaction{}, false, fmt.Errorf("select transaction: %w", err)
	}
	t.Type = ledger.TransactionType(typ)
	t.Result = ledger.ResultType(res)
	// lib/pq returns timestamps in the session zone.
	t.TransactedAt = t.TransactedAt.UTC()
	return t, true, nil
}

func (s transactionStore) Save(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO transactions (transaction_id, type, result, account_id, amount, balance_snapshot, transacted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.TransactionID, string(t.Type), string(t.Result), t.AccountID, t.Amount, t.BalanceSnapshot, t.TransactedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ledger.Transaction{}, fmt.Errorf("%w: %s", ErrDuplicateTransaction, t.TransactionID)
		}
		return ledger.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
