package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/idrecon/internal/contact"
	"github.com/roach88/idrecon/internal/store"
	"github.com/roach88/idrecon/internal/testutil"
)

// newTestStore opens a temp SQLite store with a deterministic clock, so ids
// and creation order always agree.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.db")
	s, err := store.Open(path, store.WithClock(testutil.NewDeterministicClock().Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestReconciler(t *testing.T, opts ...Option) (*Reconciler, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	return New(s, opts...), s
}

func frag(email, phone string) contact.Fragment {
	var f contact.Fragment
	if email != "" {
		f.Email = contact.String(email)
	}
	if phone != "" {
		f.Phone = contact.String(phone)
	}
	return f
}

func identify(t *testing.T, r *Reconciler, email, phone string) contact.Consolidated {
	t.Helper()
	view, err := r.Identify(context.Background(), frag(email, phone))
	require.NoError(t, err)
	return view
}

func add(t *testing.T, r *Reconciler, nc contact.NewContact) int64 {
	t.Helper()
	id, err := r.AddContact(context.Background(), nc)
	require.NoError(t, err)
	return id
}

func listAll(t *testing.T, s contact.Store) []contact.Contact {
	t.Helper()
	all, err := s.ListContacts(context.Background(), true)
	require.NoError(t, err)
	return all
}

// requireFlat asserts every live secondary points directly at a live primary.
func requireFlat(t *testing.T, s contact.Store) {
	t.Helper()
	live, err := s.ListContacts(context.Background(), false)
	require.NoError(t, err)

	byID := make(map[int64]contact.Contact, len(live))
	for _, c := range live {
		byID[c.ID] = c
	}
	for _, c := range live {
		if c.IsPrimary() {
			require.Nil(t, c.LinkedID, "primary %d must not be linked", c.ID)
			continue
		}
		require.NotNil(t, c.LinkedID, "secondary %d has no linkedId", c.ID)
		parent, ok := byID[*c.LinkedID]
		require.True(t, ok, "secondary %d points at missing %d", c.ID, *c.LinkedID)
		require.True(t, parent.IsPrimary(), "secondary %d points at secondary %d", c.ID, parent.ID)
	}
}

func countPrimaries(t *testing.T, s contact.Store) int {
	t.Helper()
	live, err := s.ListContacts(context.Background(), false)
	require.NoError(t, err)
	n := 0
	for _, c := range live {
		if c.IsPrimary() {
			n++
		}
	}
	return n
}

// recordingRecorder captures Recorder calls.
type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
	merges   [][2]int
	errors   []string
}

func (r *recordingRecorder) ObserveIdentify(o Outcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingRecorder) ObserveMerge(demoted, relinked int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merges = append(r.merges, [2]int{demoted, relinked})
}

func (r *recordingRecorder) ObserveError(op string, code contact.ErrorCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, op+":"+string(code))
}

// failingStore wraps a store so that RelinkSecondariesFrom fails inside
// every transaction.
type failingStore struct {
	contact.Store
}

func (f failingStore) InTx(ctx context.Context, fn func(tx contact.Tx) error) error {
	return f.Store.InTx(ctx, func(tx contact.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

type failingTx struct {
	contact.Tx
}

var errRelink = errors.New("disk I/O error")

func (failingTx) RelinkSecondariesFrom(context.Context, int64, int64) (int64, error) {
	return 0, errRelink
}

// untouchableStore fails the test if any store method is used.
type untouchableStore struct {
	t *testing.T
}

func (u untouchableStore) InTx(context.Context, func(tx contact.Tx) error) error {
	u.t.Fatal("store must not be accessed")
	return nil
}

func (u untouchableStore) ListContacts(context.Context, bool) ([]contact.Contact, error) {
	u.t.Fatal("store must not be accessed")
	return nil, nil
}

func (u untouchableStore) Ping(context.Context) error { return nil }
func (u untouchableStore) Close() error               { return nil }
