package reconcile

import (
	"time"

	"github.com/roach88/idrecon/internal/contact"
)

// Outcome classifies what an Identify call did to the store.
type Outcome string

const (
	// OutcomeCreated means a new primary was inserted.
	OutcomeCreated Outcome = "created"

	// OutcomeLinked means a new secondary was inserted into an existing cluster.
	OutcomeLinked Outcome = "linked"

	// OutcomeMerged means at least one primary was demoted.
	OutcomeMerged Outcome = "merged"

	// OutcomeUnchanged means nothing new was learned.
	OutcomeUnchanged Outcome = "unchanged"
)

// Recorder receives reconciliation events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveIdentify(outcome Outcome, d time.Duration)
	ObserveMerge(demoted, relinked int)
	ObserveError(op string, code contact.ErrorCode)
}

type nopRecorder struct{}

func (nopRecorder) ObserveIdentify(Outcome, time.Duration) {}
func (nopRecorder) ObserveMerge(int, int)                  {}
func (nopRecorder) ObserveError(string, contact.ErrorCode) {}
