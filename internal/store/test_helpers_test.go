package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/idrecon/internal/contact"
	"github.com/roach88/idrecon/internal/testutil"
)

// createTestStore creates a new file-backed store in a temp dir with a
// deterministic clock.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithClock(testutil.NewDeterministicClock().Now)}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertContact inserts one contact in its own transaction and returns its id.
func insertContact(t *testing.T, s *Store, c contact.NewContact) int64 {
	t.Helper()
	var id int64
	err := s.InTx(context.Background(), func(tx contact.Tx) error {
		var err error
		id, err = tx.Insert(context.Background(), c)
		return err
	})
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	return id
}

func primary(email, phone string) contact.NewContact {
	return contact.NewContact{Email: optional(email), Phone: optional(phone), Precedence: contact.Primary}
}

func secondary(email, phone string, linkedID int64) contact.NewContact {
	return contact.NewContact{
		Email:      optional(email),
		Phone:      optional(phone),
		LinkedID:   contact.ID(linkedID),
		Precedence: contact.Secondary,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return contact.String(s)
}

func ids(contacts []contact.Contact) []int64 {
	out := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.ID)
	}
	return out
}
