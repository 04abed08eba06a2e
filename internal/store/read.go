package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/idrecon/internal/contact"
)

const contactColumns = `id, phone_number, email, linked_id, link_precedence, created_at, updated_at, deleted_at`

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ListContacts returns every contact ordered by (created_at, id).
// Soft-deleted rows are included only when includeDeleted is true.
//
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListContacts(ctx context.Context, includeDeleted bool) ([]contact.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	return queryContacts(ctx, s.db, "list contacts", query)
}

// FindByEmailOrPhone returns live contacts matching either identifier.
// A nil argument binds SQL NULL, which never compares equal.
func (t *sqlTx) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]contact.Contact, error) {
	return queryContacts(ctx, t.tx, "find by email or phone", `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE deleted_at IS NULL
		  AND (email = ? OR phone_number = ?)
		ORDER BY created_at ASC, id ASC
	`, nullString(email), nullString(phone))
}

// FindByID returns the live contact with the given id.
func (t *sqlTx) FindByID(ctx context.Context, id int64) (contact.Contact, bool, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE id = ? AND deleted_at IS NULL
	`, id)

	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contact.Contact{}, false, nil
	}
	if err != nil {
		return contact.Contact{}, false, fmt.Errorf("find contact %d: %w", id, err)
	}
	return c, true, nil
}

// FindSecondariesOf returns live contacts linked to primaryID.
func (t *sqlTx) FindSecondariesOf(ctx context.Context, primaryID int64) ([]contact.Contact, error) {
	return queryContacts(ctx, t.tx, "find secondaries", `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE linked_id = ? AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, primaryID)
}

func queryContacts(ctx context.Context, q queryer, op, query string, args ...any) ([]contact.Contact, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	contacts := []contact.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}

	return contacts, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (contact.Contact, error) {
	var (
		c          contact.Contact
		phone      sql.NullString
		email      sql.NullString
		linkedID   sql.NullInt64
		precedence string
		createdAt  int64
		updatedAt  int64
		deletedAt  sql.NullInt64
	)

	err := row.Scan(&c.ID, &phone, &email, &linkedID, &precedence, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return contact.Contact{}, err
	}

	if phone.Valid {
		c.Phone = &phone.String
	}
	if email.Valid {
		c.Email = &email.String
	}
	if linkedID.Valid {
		c.LinkedID = &linkedID.Int64
	}
	c.LinkPrecedence = contact.Precedence(precedence)
	c.CreatedAt = fromUnixNano(createdAt)
	c.UpdatedAt = fromUnixNano(updatedAt)
	if deletedAt.Valid {
		t := fromUnixNano(deletedAt.Int64)
		c.DeletedAt = &t
	}

	return c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func toUnixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
