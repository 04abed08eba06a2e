// Package pgstore implements contact.Store on PostgreSQL using pgx.
//
// Every unit of work runs in a SERIALIZABLE transaction. Serialization
// failures (SQLSTATE 40001) and deadlocks (40P01) are retried with
// exponential backoff, re-running the whole callback each time.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/roach88/idrecon/internal/contact"
)

//go:embed schema.sql
var schemaSQL string

const (
	// DefaultMaxRetries is the number of attempts made for one unit of work.
	DefaultMaxRetries = 5

	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 500 * time.Millisecond
)

var _ contact.Store = (*Store)(nil)

// Store is a Postgres-backed contact store.
type Store struct {
	pool       *pgxpool.Pool
	now        func() time.Time
	maxRetries int
	logger     zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries sets the number of attempts for one InTx call. Values below
// one are treated as one.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n < 1 {
			n = 1
		}
		s.maxRetries = n
	}
}

// WithClock overrides the wall clock used for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used to report retried transactions.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open connects to the database at dsn and applies the schema.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := New(pool, opts...)
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

// New wraps an existing pool. The schema is not applied.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:       pool,
		now:        time.Now,
		maxRetries: DefaultMaxRetries,
		logger:     zerolog.Nop(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("store closed")
	}
	return s.pool.Ping(ctx)
}

// InTx runs fn in a SERIALIZABLE transaction, retrying on serialization
// failures and deadlocks up to the configured number of attempts.
func (s *Store) InTx(ctx context.Context, fn func(tx contact.Tx) error) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = s.inTxOnce(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == s.maxRetries {
			break
		}

		s.logger.Debug().
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Err(err).
			Msg("retrying serializable transaction")

		if serr := s.sleep(ctx, backoff); serr != nil {
			return serr
		}
		backoff = nextBackoff(backoff)
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", s.maxRetries, err)
}

func (s *Store) inTxOnce(ctx context.Context, fn func(tx contact.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if committed

	if err := fn(&pgTx{tx: tx, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isRetryable reports whether err is a serialization failure or deadlock.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	default:
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
