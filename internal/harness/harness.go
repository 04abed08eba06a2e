package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/roach88/idrecon/internal/contact"
	"github.com/roach88/idrecon/internal/reconcile"
	"github.com/roach88/idrecon/internal/store"
	"github.com/roach88/idrecon/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenario steps through a Reconciler on a private store.
type Harness struct {
	store      *store.Store
	reconciler *reconcile.Reconciler
	logger     zerolog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh SQLite file that is removed afterwards.
// Step failures and assertion mismatches are reported in the Result; the
// returned error is reserved for infrastructure failures.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithLogger(ctx, scenario, zerolog.Nop())
}

// RunWithLogger is Run with step logging sent to logger.
func RunWithLogger(ctx context.Context, scenario *Scenario, logger zerolog.Logger) (*Result, error) {
	dir, err := os.MkdirTemp("", "idrecon-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "contacts.db"),
		store.WithClock(testutil.NewDeterministicClock().Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario store: %w", err)
	}
	defer st.Close()

	logger = logger.With().Str("scenario", scenario.Name).Logger()
	h := &Harness{
		store:      st,
		reconciler: reconcile.New(st, reconcile.WithLogger(logger)),
		logger:     logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	contacts, err := st.ListContacts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read final contacts: %w", err)
	}
	for _, c := range contacts {
		result.Contacts = append(result.Contacts, toRow(c))
	}

	for _, msg := range EvaluateAssertions(result.Contacts, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// executeStep runs one step and checks its expectations.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	sr := StepResult{Step: i + 1, Op: step.Op()}

	var err error
	switch sr.Op {
	case OpIdentify:
		var view contact.Consolidated
		view, err = h.reconciler.Identify(ctx, contact.Fragment{
			Email: step.Identify.Email,
			Phone: step.Identify.PhoneNumber,
		})
		if err == nil {
			sr.Contact = &view
		}
	case OpShow:
		var view contact.Consolidated
		view, err = h.reconciler.Cluster(ctx, *step.Show)
		if err == nil {
			sr.Contact = &view
		}
	case OpAdd:
		var id int64
		id, err = h.reconciler.AddContact(ctx, contact.NewContact{
			ID:         step.Add.ID,
			Email:      step.Add.Email,
			Phone:      step.Add.PhoneNumber,
			LinkedID:   step.Add.LinkedID,
			Precedence: contact.Precedence(step.Add.LinkPrecedence),
		})
		if err == nil {
			sr.ContactID = contact.ID(id)
		}
	case OpDelete:
		sr.ContactID = contact.ID(*step.Delete)
		err = h.reconciler.DeleteContact(ctx, *step.Delete)
	}

	if err != nil {
		sr.Error = string(contact.CodeOf(err))
		if sr.Error == "" {
			sr.Error = err.Error()
		}
	}
	result.Steps = append(result.Steps, sr)

	h.logger.Debug().
		Int("step", sr.Step).
		Str("op", sr.Op).
		Str("error", sr.Error).
		Msg("step completed")

	for _, msg := range checkStep(step, sr) {
		result.AddError(fmt.Sprintf("step %d (%s): %s", sr.Step, sr.Op, msg))
	}
}

// checkStep compares a step result with the step's expectations.
func checkStep(step Step, sr StepResult) []string {
	var errs []string

	if step.ExpectError != "" {
		if sr.Error != step.ExpectError {
			errs = append(errs, fmt.Sprintf("expected error %s, got %q", step.ExpectError, sr.Error))
		}
		return errs
	}
	if sr.Error != "" {
		return append(errs, fmt.Sprintf("unexpected error %s", sr.Error))
	}

	if step.Expect != nil {
		want := step.Expect.Consolidated()
		got := normalizeView(*sr.Contact)
		if !reflect.DeepEqual(want, got) {
			errs = append(errs, fmt.Sprintf("expected contact %+v, got %+v", want, got))
		}
	}
	if step.ExpectID != nil && *step.ExpectID != *sr.ContactID {
		errs = append(errs, fmt.Sprintf("expected id %d, got %d", *step.ExpectID, *sr.ContactID))
	}
	return errs
}
