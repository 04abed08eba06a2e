package contact

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Precedence is the role a contact plays within its cluster.
type Precedence string

const (
	// Primary marks the root of a cluster. Its ID is the cluster's identifier.
	Primary Precedence = "primary"

	// Secondary marks a member linked directly to a primary.
	Secondary Precedence = "secondary"
)

// Valid reports whether p is one of the known precedences.
func (p Precedence) Valid() bool {
	return p == Primary || p == Secondary
}

// Contact is a single stored identity record.
type Contact struct {
	ID             int64      `json:"id"`
	Email          *string    `json:"email"`
	Phone          *string    `json:"phoneNumber"`
	LinkedID       *int64     `json:"linkedId"`
	LinkPrecedence Precedence `json:"linkPrecedence"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// IsPrimary reports whether the contact is a cluster root.
func (c Contact) IsPrimary() bool {
	return c.LinkPrecedence == Primary
}

// RootID returns the id of the primary this contact belongs to.
// For a primary that is its own id.
func (c Contact) RootID() int64 {
	if c.IsPrimary() || c.LinkedID == nil {
		return c.ID
	}
	return *c.LinkedID
}

// HasEmail reports whether the contact carries exactly this email.
func (c Contact) HasEmail(email string) bool {
	return c.Email != nil && *c.Email == email
}

// HasPhone reports whether the contact carries exactly this phone number.
func (c Contact) HasPhone(phone string) bool {
	return c.Phone != nil && *c.Phone == phone
}

// Before reports whether c sorts before o in creation order.
func (c Contact) Before(o Contact) bool {
	if !c.CreatedAt.Equal(o.CreatedAt) {
		return c.CreatedAt.Before(o.CreatedAt)
	}
	return c.ID < o.ID
}

// SortByCreation orders contacts by (CreatedAt, ID) ascending, in place.
func SortByCreation(contacts []Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].Before(contacts[j])
	})
}

// Fragment is a partial identity observation: an email, a phone number, or both.
type Fragment struct {
	Email *string `json:"email"`
	Phone *string `json:"phoneNumber"`
}

// Normalize returns a copy of the fragment with both fields trimmed and NFC
// normalized. Empty values become absent.
func (f Fragment) Normalize() Fragment {
	return Fragment{
		Email: normalizeField(f.Email),
		Phone: normalizeField(f.Phone),
	}
}

// Empty reports whether neither field is present.
func (f Fragment) Empty() bool {
	return f.Email == nil && f.Phone == nil
}

func normalizeField(v *string) *string {
	if v == nil {
		return nil
	}
	s := norm.NFC.String(strings.TrimSpace(*v))
	if s == "" {
		return nil
	}
	return &s
}

// NewContact describes a row to insert.
// ID is optional; when nil the store assigns the next id.
type NewContact struct {
	ID         *int64
	Email      *string
	Phone      *string
	LinkedID   *int64
	Precedence Precedence
}

// Consolidated is the merged view of a cluster.
type Consolidated struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// String returns a pointer to s. Convenience for building fragments.
func String(s string) *string {
	return &s
}

// ID returns a pointer to id.
func ID(id int64) *int64 {
	return &id
}
