package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idrecon/internal/contact"
	"github.com/roach88/idrecon/internal/testutil"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped serialization failure", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
		{"coded domain error", contact.NewNotFoundError(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestNextBackoff_DoublesUpToCap(t *testing.T) {
	d := initialBackoff
	var seen []time.Duration
	for i := 0; i < 8; i++ {
		seen = append(seen, d)
		d = nextBackoff(d)
	}

	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
		160 * time.Millisecond,
		320 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, seen)
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleepContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptions(t *testing.T) {
	clock := testutil.NewDeterministicClock()
	s := New(nil, WithMaxRetries(0), WithClock(clock.Now))

	assert.Equal(t, 1, s.maxRetries)
	assert.Equal(t, testutil.Epoch, s.now())

	s = New(nil)
	assert.Equal(t, DefaultMaxRetries, s.maxRetries)
	assert.Error(t, s.Ping(context.Background()))
}

// openTestStore connects to IDRECON_TEST_PG_DSN, skipping when unset.
// The contacts table is truncated so every test starts empty.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("IDRECON_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("IDRECON_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, dsn, WithClock(testutil.NewDeterministicClock().Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.pool.Exec(ctx, `TRUNCATE contacts RESTART IDENTITY`)
	require.NoError(t, err)
	return s
}

func TestPostgres_InsertAndFind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var p, sec int64
	require.NoError(t, s.InTx(ctx, func(tx contact.Tx) error {
		var err error
		p, err = tx.Insert(ctx, contact.NewContact{Email: contact.String("a@x.com"), Phone: contact.String("111"), Precedence: contact.Primary})
		if err != nil {
			return err
		}
		sec, err = tx.Insert(ctx, contact.NewContact{Email: contact.String("b@x.com"), Phone: contact.String("111"), LinkedID: contact.ID(p), Precedence: contact.Secondary})
		return err
	}))

	require.NoError(t, s.InTx(ctx, func(tx contact.Tx) error {
		got, err := tx.FindByEmailOrPhone(ctx, nil, contact.String("111"))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, p, got[0].ID)
		assert.Equal(t, sec, got[1].ID)
		assert.Nil(t, got[0].LinkedID)
		assert.Equal(t, p, *got[1].LinkedID)

		secs, err := tx.FindSecondariesOf(ctx, p)
		require.NoError(t, err)
		require.Len(t, secs, 1)
		return nil
	}))
}

func TestPostgres_ExplicitIDAdvancesSequence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var explicit, next int64
	require.NoError(t, s.InTx(ctx, func(tx contact.Tx) error {
		var err error
		explicit, err = tx.Insert(ctx, contact.NewContact{ID: contact.ID(50), Email: contact.String("a@x.com"), Precedence: contact.Primary})
		if err != nil {
			return err
		}
		next, err = tx.Insert(ctx, contact.NewContact{Email: contact.String("b@x.com"), Precedence: contact.Primary})
		return err
	}))

	assert.Equal(t, int64(50), explicit)
	assert.Equal(t, int64(51), next)

	err := s.InTx(ctx, func(tx contact.Tx) error {
		_, err := tx.Insert(ctx, contact.NewContact{ID: contact.ID(50), Precedence: contact.Primary})
		return err
	})
	assert.True(t, contact.IsInvalidRequest(err))
}

func TestPostgres_SoftDeleteAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var id int64
	require.NoError(t, s.InTx(ctx, func(tx contact.Tx) error {
		var err error
		id, err = tx.Insert(ctx, contact.NewContact{Email: contact.String("a@x.com"), Precedence: contact.Primary})
		return err
	}))
	require.NoError(t, s.InTx(ctx, func(tx contact.Tx) error {
		return tx.SoftDelete(ctx, id)
	}))

	live, err := s.ListContacts(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, live)

	all, err := s.ListContacts(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].DeletedAt)

	err = s.InTx(ctx, func(tx contact.Tx) error { return tx.SoftDelete(ctx, id) })
	assert.True(t, contact.IsNotFound(err))
}
