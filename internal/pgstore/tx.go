package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/roach88/idrecon/internal/contact"
)

const contactColumns = `id, phone_number, email, linked_id, link_precedence, created_at, updated_at, deleted_at`

var _ contact.Tx = (*pgTx)(nil)

type pgTx struct {
	tx  pgx.Tx
	now func() time.Time
}

// ListContacts returns every contact ordered by (created_at, id).
func (s *Store) ListContacts(ctx context.Context, includeDeleted bool) ([]contact.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return collectContacts(rows, "list contacts")
}

func (t *pgTx) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]contact.Contact, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE deleted_at IS NULL
		  AND (email = $1 OR phone_number = $2)
		ORDER BY created_at ASC, id ASC
	`, email, phone)
	if err != nil {
		return nil, fmt.Errorf("find by email or phone: %w", err)
	}
	return collectContacts(rows, "find by email or phone")
}

func (t *pgTx) FindByID(ctx context.Context, id int64) (contact.Contact, bool, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE id = $1 AND deleted_at IS NULL
	`, id)

	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return contact.Contact{}, false, nil
	}
	if err != nil {
		return contact.Contact{}, false, fmt.Errorf("find contact %d: %w", id, err)
	}
	return c, true, nil
}

func (t *pgTx) FindSecondariesOf(ctx context.Context, primaryID int64) ([]contact.Contact, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE linked_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, primaryID)
	if err != nil {
		return nil, fmt.Errorf("find secondaries: %w", err)
	}
	return collectContacts(rows, "find secondaries")
}

func (t *pgTx) Insert(ctx context.Context, c contact.NewContact) (int64, error) {
	if !c.Precedence.Valid() {
		return 0, contact.NewInvalidRequestError(fmt.Sprintf("invalid linkPrecedence %q", c.Precedence))
	}
	now := t.now().UTC()

	if c.ID == nil {
		var id int64
		err := t.tx.QueryRow(ctx, `
			INSERT INTO contacts (phone_number, email, linked_id, link_precedence, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			RETURNING id
		`, c.Phone, c.Email, c.LinkedID, string(c.Precedence), now).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert contact: %w", err)
		}
		return id, nil
	}

	tag, err := t.tx.Exec(ctx, `
		INSERT INTO contacts (id, phone_number, email, linked_id, link_precedence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO NOTHING
	`, *c.ID, c.Phone, c.Email, c.LinkedID, string(c.Precedence), now)
	if err != nil {
		return 0, fmt.Errorf("insert contact %d: %w", *c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, contact.NewInvalidRequestError(fmt.Sprintf("contact %d already exists", *c.ID))
	}

	// Keep the sequence ahead of explicitly chosen ids.
	if _, err := t.tx.Exec(ctx, `
		SELECT setval(pg_get_serial_sequence('contacts', 'id'), GREATEST((SELECT MAX(id) FROM contacts), 1))
	`); err != nil {
		return 0, fmt.Errorf("advance id sequence: %w", err)
	}
	return *c.ID, nil
}

func (t *pgTx) UpdateLinkage(ctx context.Context, id int64, linkedID *int64, precedence contact.Precedence) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE contacts
		SET linked_id = $1, link_precedence = $2, updated_at = $3
		WHERE id = $4 AND deleted_at IS NULL
	`, linkedID, string(precedence), t.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update linkage of %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return contact.NewNotFoundError(id)
	}
	return nil
}

func (t *pgTx) RelinkSecondariesFrom(ctx context.Context, oldPrimaryID, newPrimaryID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE contacts
		SET linked_id = $1, link_precedence = 'secondary', updated_at = $2
		WHERE linked_id = $3 AND deleted_at IS NULL
	`, newPrimaryID, t.now().UTC(), oldPrimaryID)
	if err != nil {
		return 0, fmt.Errorf("relink secondaries %d -> %d: %w", oldPrimaryID, newPrimaryID, err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) SoftDelete(ctx context.Context, id int64) error {
	now := t.now().UTC()
	tag, err := t.tx.Exec(ctx, `
		UPDATE contacts
		SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`, now, id)
	if err != nil {
		return fmt.Errorf("soft delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return contact.NewNotFoundError(id)
	}
	return nil
}

func collectContacts(rows pgx.Rows, op string) ([]contact.Contact, error) {
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

func scanContact(row pgx.Row) (contact.Contact, error) {
	var c contact.Contact
	var precedence string
	err := row.Scan(&c.ID, &c.Phone, &c.Email, &c.LinkedID, &precedence, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return contact.Contact{}, err
	}
	c.LinkPrecedence = contact.Precedence(precedence)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if c.DeletedAt != nil {
		d := c.DeletedAt.UTC()
		c.DeletedAt = &d
	}
	return c, nil
}
