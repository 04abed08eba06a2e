package contact

import "context"

// Tx is the set of store operations available inside one unit of work.
//
// Every list returned is ordered by (CreatedAt ASC, ID ASC) and only
// contains live (non-deleted) contacts. Lists are empty, never nil.
type Tx interface {
	// FindByEmailOrPhone returns live contacts whose email equals email or
	// whose phone equals phone. A nil field matches nothing.
	FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]Contact, error)

	// FindByID returns the live contact with the given id.
	// The boolean is false when no such contact exists.
	FindByID(ctx context.Context, id int64) (Contact, bool, error)

	// FindSecondariesOf returns live contacts linked to primaryID.
	FindSecondariesOf(ctx context.Context, primaryID int64) ([]Contact, error)

	// Insert creates a contact and returns its id.
	Insert(ctx context.Context, c NewContact) (int64, error)

	// UpdateLinkage rewrites the linkage of a contact.
	UpdateLinkage(ctx context.Context, id int64, linkedID *int64, precedence Precedence) error

	// RelinkSecondariesFrom re-points every live secondary of oldPrimaryID to
	// newPrimaryID and returns how many rows changed.
	RelinkSecondariesFrom(ctx context.Context, oldPrimaryID, newPrimaryID int64) (int64, error)

	// SoftDelete marks a live contact deleted. Returns a NOT_FOUND *Error when
	// no live contact has that id.
	SoftDelete(ctx context.Context, id int64) error
}

// Store is a durable contact store.
type Store interface {
	// InTx runs fn as one atomic unit of work. If fn returns an error every
	// write made through tx is rolled back. Implementations may call fn more
	// than once when the backend reports a serialization conflict.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// ListContacts returns every contact, optionally including soft-deleted rows.
	ListContacts(ctx context.Context, includeDeleted bool) ([]Contact, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
