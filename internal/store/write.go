package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/idrecon/internal/contact"
)

var _ contact.Tx = (*sqlTx)(nil)

// sqlTx implements contact.Tx over one database/sql transaction.
type sqlTx struct {
	tx  *sql.Tx
	now func() time.Time
}

// Insert creates a contact row stamped with the store clock.
//
// When c.ID is set the row is written with that id. An id that is already
// taken yields an INVALID_REQUEST error and leaves the table untouched.
func (t *sqlTx) Insert(ctx context.Context, c contact.NewContact) (int64, error) {
	if !c.Precedence.Valid() {
		return 0, contact.NewInvalidRequestError(fmt.Sprintf("invalid linkPrecedence %q", c.Precedence))
	}

	now := toUnixNano(t.now())

	if c.ID == nil {
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO contacts (phone_number, email, linked_id, link_precedence, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, nullString(c.Phone), nullString(c.Email), nullInt64(c.LinkedID), string(c.Precedence), now, now)
		if err != nil {
			return 0, fmt.Errorf("insert contact: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("insert contact: last insert id: %w", err)
		}
		return id, nil
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO contacts (id, phone_number, email, linked_id, link_precedence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, *c.ID, nullString(c.Phone), nullString(c.Email), nullInt64(c.LinkedID), string(c.Precedence), now, now)
	if err != nil {
		return 0, fmt.Errorf("insert contact %d: %w", *c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert contact %d: rows affected: %w", *c.ID, err)
	}
	if n == 0 {
		return 0, contact.NewInvalidRequestError(fmt.Sprintf("contact %d already exists", *c.ID))
	}
	return *c.ID, nil
}

// UpdateLinkage rewrites linked_id and link_precedence of a live contact.
func (t *sqlTx) UpdateLinkage(ctx context.Context, id int64, linkedID *int64, precedence contact.Precedence) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE contacts
		SET linked_id = ?, link_precedence = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, nullInt64(linkedID), string(precedence), toUnixNano(t.now()), id)
	if err != nil {
		return fmt.Errorf("update linkage of %d: %w", id, err)
	}
	return requireRow(res, id)
}

// RelinkSecondariesFrom moves every live secondary of oldPrimaryID under
// newPrimaryID in a single statement.
func (t *sqlTx) RelinkSecondariesFrom(ctx context.Context, oldPrimaryID, newPrimaryID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE contacts
		SET linked_id = ?, link_precedence = 'secondary', updated_at = ?
		WHERE linked_id = ? AND deleted_at IS NULL
	`, newPrimaryID, toUnixNano(t.now()), oldPrimaryID)
	if err != nil {
		return 0, fmt.Errorf("relink secondaries %d -> %d: %w", oldPrimaryID, newPrimaryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("relink secondaries: rows affected: %w", err)
	}
	return n, nil
}

// SoftDelete stamps deleted_at on a live contact.
func (t *sqlTx) SoftDelete(ctx context.Context, id int64) error {
	now := toUnixNano(t.now())
	res, err := t.tx.ExecContext(ctx, `
		UPDATE contacts
		SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("soft delete %d: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return contact.NewNotFoundError(id)
	}
	return nil
}
