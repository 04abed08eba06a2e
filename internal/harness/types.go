package harness

import (
	"github.com/roach88/idrecon/internal/contact"
)

// Step operation names.
const (
	OpIdentify = "identify"
	OpAdd      = "add"
	OpDelete   = "delete"
	OpShow     = "show"
)

// StepResult records what one step did.
type StepResult struct {
	Step      int                   `json:"step"` // 1-based
	Op        string                `json:"op"`
	Contact   *contact.Consolidated `json:"contact,omitempty"`
	ContactID *int64                `json:"contact_id,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// ContactRow is the time-free projection of a stored contact used in results
// and golden files.
type ContactRow struct {
	ID             int64   `json:"id"`
	Email          *string `json:"email"`
	PhoneNumber    *string `json:"phoneNumber"`
	LinkedID       *int64  `json:"linkedId"`
	LinkPrecedence string  `json:"linkPrecedence"`
	Deleted        bool    `json:"deleted,omitempty"`
}

func toRow(c contact.Contact) ContactRow {
	return ContactRow{
		ID:             c.ID,
		Email:          c.Email,
		PhoneNumber:    c.Phone,
		LinkedID:       c.LinkedID,
		LinkPrecedence: string(c.LinkPrecedence),
		Deleted:        c.DeletedAt != nil,
	}
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation and assertion matched.
	Pass bool `json:"pass"`

	// Steps holds one entry per executed step, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Contacts is the final contact table, soft-deleted rows included,
	// ordered by (created_at, id).
	Contacts []ContactRow `json:"contacts"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Steps:    []StepResult{},
		Errors:   []string{},
		Contacts: []ContactRow{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
