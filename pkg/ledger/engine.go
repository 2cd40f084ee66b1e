package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/logging"
	"balance-ledger/pkg/metrics"

	"go.uber.org/zap"
)

// Operation names used for metrics and logs.
const (
	OpUseBalance         = "use_balance"
	OpCancelBalance      = "cancel_balance"
	OpRecordFailedUse    = "record_failed_use"
	OpRecordFailedCancel = "record_failed_cancel"
	OpQueryTransaction   = "query_transaction"
)

// TransactionCache is the read cache consulted by QueryTransaction.
// *chain.Chain satisfies it.
type TransactionCache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

var transactionKeys = cache.NewKeyPattern("transaction", ":")

// TransactionCacheKey returns the cache key under which a transaction result is stored.
func TransactionCacheKey(transactionID string) string {
	return transactionKeys.Build(transactionID)
}

// Engine validates and applies balance movements. Each public method runs
// in its own unit of work obtained from the Store.
type Engine struct {
	store    Store
	cache    TransactionCache
	cacheTTL time.Duration
	now      func() time.Time
	newID    func() string
	metrics  metrics.MetricsCollector
	logger   *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables the transaction read cache. Records are immutable, so ttl only bounds memory use.
func WithCache(c TransactionCache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithClock overrides the time source used for timestamps and the cancel window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides transaction ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine backed by store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		cacheTTL: 5 * time.Minute,
		now:      time.Now,
		newID:    NewTransactionID,
		metrics:  metrics.NoOpCollector{},
		logger:   logging.Global().Named("ledger"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UseBalance debits amount from the account on behalf of userID and records a USE/SUCCESS transaction.
func (e *Engine) UseBalance(ctx context.Context, userID int64, accountNumber string, amount int64) (result TransactionResult, err error) {
	start := time.Now()
	defer func() {
		e.observe(OpUseBalance, start, err, logging.UserID(userID), logging.AccountNumber(accountNumber), logging.Amount(amount))
	}()

	if err := checkAmount(amount); err != nil {
		return TransactionResult{}, err
	}

	var saved Transaction
	err = e.inUnitOfWork(ctx, func(uow UnitOfWork) error {
		user, err := findUser(ctx, uow, userID)
		if err != nil {
			return err
		}
		account, err := findAccount(ctx, uow, accountNumber)
		if err != nil {
			return err
		}
		if err := ValidateUse(user, account, amount); err != nil {
			return err
		}

		account = DebitAccount(account, amount)
		if err := uow.Accounts().Save(ctx, account); err != nil {
			return Internal(fmt.Errorf("save account %s: %w", account.AccountNumber, err))
		}
		saved, err = e.saveTransaction(ctx, uow, TransactionUse, ResultSuccess, account, amount)
		return err
	})
	if err != nil {
		return TransactionResult{}, err
	}

	result = ResultFrom(saved)
	e.cacheResult(ctx, result)
	return result, nil
}

// RecordFailedUse records a USE/FAIL transaction carrying the account's current balance.
// It runs in its own unit of work and never changes the balance.
func (e *Engine) RecordFailedUse(ctx context.Context, accountNumber string, amount int64) (err error) {
	start := time.Now()
	defer func() {
		e.observe(OpRecordFailedUse, start, err, logging.AccountNumber(accountNumber), logging.Amount(amount))
	}()

	return e.recordFailed(ctx, TransactionUse, accountNumber, amount)
}

// CancelBalance reverses a prior USE transaction in full and records a CANCEL/SUCCESS transaction.
func (e *Engine) CancelBalance(ctx context.Context, transactionID string, accountNumber string, amount int64) (result TransactionResult, err error) {
	start := time.Now()
	defer func() {
		e.observe(OpCancelBalance, start, err, logging.TransactionID(transactionID), logging.AccountNumber(accountNumber), logging.Amount(amount))
	}()

	if err := checkAmount(amount); err != nil {
		return TransactionResult{}, err
	}

	var saved Transaction
	err = e.inUnitOfWork(ctx, func(uow UnitOfWork) error {
		prior, err := findTransaction(ctx, uow, transactionID)
		if err != nil {
			return err
		}
		account, err := findAccount(ctx, uow, accountNumber)
		if err != nil {
			return err
		}
		if err := ValidateCancel(prior, account, amount, e.now()); err != nil {
			return err
		}

		account = CreditAccount(account, amount)
		if err := uow.Accounts().Save(ctx, account); err != nil {
			return Internal(fmt.Errorf("save account %s: %w", account.AccountNumber, err))
		}
		saved, err = e.saveTransaction(ctx, uow, TransactionCancel, ResultSuccess, account, amount)
		return err
	})
	if err != nil {
		return TransactionResult{}, err
	}

	result = ResultFrom(saved)
	e.cacheResult(ctx, result)
	return result, nil
}

// RecordFailedCancel records a CANCEL/FAIL transaction carrying the account's current balance.
func (e *Engine) RecordFailedCancel(ctx context.Context, accountNumber string, amount int64) (err error) {
	start := time.Now()
	defer func() {
		e.observe(OpRecordFailedCancel, start, err, logging.AccountNumber(accountNumber), logging.Amount(amount))
	}()

	return e.recordFailed(ctx, TransactionCancel, accountNumber, amount)
}

// QueryTransaction returns the transaction recorded under transactionID.
func (e *Engine) QueryTransaction(ctx context.Context, transactionID string) (result TransactionResult, err error) {
	start := time.Now()
	defer func() {
		e.observe(OpQueryTransaction, start, err, logging.TransactionID(transactionID))
	}()

	if cached, ok := e.cachedResult(ctx, transactionID); ok {
		return cached, nil
	}

	var found Transaction
	err = e.inUnitOfWork(ctx, func(uow UnitOfWork) error {
		var err error
		found, err = findTransaction(ctx, uow, transactionID)
		return err
	})
	if err != nil {
		return TransactionResult{}, err
	}

	result = ResultFrom(found)
	e.cacheResult(ctx, result)
	return result, nil
}

func (e *Engine) recordFailed(ctx context.Context, typ TransactionType, accountNumber string, amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	var saved Transaction
	err := e.inUnitOfWork(ctx, func(uow UnitOfWork) error {
		account, err := findAccount(ctx, uow, accountNumber)
		if err != nil {
			return err
		}
		saved, err = e.saveTransaction(ctx, uow, typ, ResultFail, account, amount)
		return err
	})
	if err != nil {
		return err
	}

	e.cacheResult(ctx, ResultFrom(saved))
	return nil
}

// inUnitOfWork runs fn inside a fresh unit of work, committing when fn succeeds.
// The deferred Rollback covers every other exit path, panics included.
func (e *Engine) inUnitOfWork(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return Internal(fmt.Errorf("begin unit of work: %w", err))
	}
	defer func() {
		// Roll back even when the caller's context is already done.
		if err := uow.Rollback(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("rollback failed", zap.Error(err))
		}
	}()

	if err := fn(uow); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return Internal(fmt.Errorf("commit unit of work: %w", err))
	}
	return nil
}

func (e *Engine) saveTransaction(ctx context.Context, uow UnitOfWork, typ TransactionType, result ResultType, account Account, amount int64) (Transaction, error) {
	tx := buildTransaction(e.newID(), typ, result, account, amount, recordTime(e.now()))
	saved, err := uow.Transactions().Save(ctx, tx)
	if err != nil {
		return Transaction{}, Internal(fmt.Errorf("save transaction %s: %w", tx.TransactionID, err))
	}
	return saved, nil
}

// recordTime normalises a timestamp to what every store can hold exactly:
// UTC at microsecond precision, the resolution of Postgres timestamptz.
func recordTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (e *Engine) cacheResult(ctx context.Context, result TransactionResult) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, TransactionCacheKey(result.TransactionID), result, e.cacheTTL); err != nil {
		e.logger.Warn("failed to cache transaction",
			logging.TransactionID(result.TransactionID),
			zap.Error(err),
		)
	}
}

func (e *Engine) cachedResult(ctx context.Context, transactionID string) (TransactionResult, bool) {
	if e.cache == nil {
		return TransactionResult{}, false
	}
	value, err := e.cache.Get(ctx, TransactionCacheKey(transactionID))
	if err != nil {
		if !cache.IsNotFound(err) {
			e.logger.Debug("transaction cache unavailable",
				logging.TransactionID(transactionID),
				zap.String("error_type", cache.ClassifyError(err)),
			)
		}
		return TransactionResult{}, false
	}
	return decodeCached(value)
}

func (e *Engine) observe(op string, start time.Time, err error, fields ...zap.Field) {
	duration := time.Since(start)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = string(CodeOf(err))
	}
	e.metrics.RecordOperation(op, outcome, duration)

	fields = append(fields, logging.Operation(op), zap.Duration("duration", duration))
	switch {
	case err == nil:
		e.logger.Debug("operation completed", fields...)
	case CodeOf(err) == CodeInternal:
		e.logger.Error("operation failed", append(fields, zap.Error(err))...)
	default:
		e.logger.Info("operation rejected", append(fields, zap.String("code", outcome))...)
	}
}

// decodeCached accepts both in-process values and the raw JSON returned by remote layers.
func decodeCached(value interface{}) (TransactionResult, bool) {
	var raw []byte
	switch v := value.(type) {
	case TransactionResult:
		return v, true
	case *TransactionResult:
		if v == nil {
			return TransactionResult{}, false
		}
		return *v, true
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return TransactionResult{}, false
	}

	var result TransactionResult
	if err := json.Unmarshal(raw, &result); err != nil || result.TransactionID == "" {
		return TransactionResult{}, false
	}
	return result, true
}

func checkAmount(amount int64) error {
	if amount <= 0 {
		return &Error{Code: CodeInvalidRequest, Message: "amount must be positive"}
	}
	return nil
}

func findUser(ctx context.Context, uow UnitOfWork, id int64) (User, error) {
	user, ok, err := uow.Users().FindByID(ctx, id)
	if err != nil {
		return User{}, Internal(fmt.Errorf("find user %d: %w", id, err))
	}
	if !ok {
		return User{}, NewError(CodeUserNotFound)
	}
	return user, nil
}

func findAccount(ctx context.Context, uow UnitOfWork, accountNumber string) (Account, error) {
	account, ok, err := uow.Accounts().FindByAccountNumber(ctx, accountNumber)
	if err != nil {
		return Account{}, Internal(fmt.Errorf("find account %s: %w", accountNumber, err))
	}
	if !ok {
		return Account{}, NewError(CodeAccountNotFound)
	}
	return account, nil
}

func findTransaction(ctx context.Context, uow UnitOfWork, transactionID string) (Transaction, error) {
	tx, ok, err := uow.Transactions().FindByTransactionID(ctx, transactionID)
	if err != nil {
		return Transaction{}, Internal(fmt.Errorf("find transaction %s: %w", transactionID, err))
	}
	if !ok {
		return Transaction{}, NewError(CodeTransactionNotFound)
	}
	return tx, nil
}
