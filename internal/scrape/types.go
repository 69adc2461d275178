// Package scrape sequences fetch, parse and persist for each target, contains
// failures to the target that caused them, and computes the targets a batch
// still has to visit.
package scrape

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/menu-scraper/internal/record"
)

var (
	// ErrFetch marks a target whose page could not be retrieved. Nothing is
	// preserved for such a target.
	ErrFetch = errors.New("fetch failed")
	// ErrTableAbsent is returned by stores when the queried table does not exist yet.
	ErrTableAbsent = errors.New("table does not exist")
)

// OutcomeKind tags a recoverable target failure.
type OutcomeKind string

// Outcome kinds.
const (
	ParseFailure   OutcomeKind = "parse_failure"
	PersistFailure OutcomeKind = "persist_failure"
)

// Outcome carries whatever a failed target had already produced so a retry
// need not redo it. A nil *Outcome means the target succeeded.
type Outcome struct {
	Kind     OutcomeKind
	Target   string
	Resource Page
	// Records is nil for ParseFailure.
	Records *record.Table
	Err     error
}

func (o *Outcome) Error() string {
	return fmt.Sprintf("%s for %s: %v", o.Kind, o.Target, o.Err)
}

func (o *Outcome) Unwrap() error {
	return o.Err
}

// Release frees the preserved page. It is safe on a nil Outcome.
func (o *Outcome) Release() {
	if o == nil || o.Resource == nil {
		return
	}
	o.Resource.Close()
}

// Policy decides what the Runner does with a failed target.
type Policy string

// Failure policies.
const (
	PolicyAbort    Policy = "abort"
	PolicyContinue Policy = "continue"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAbort, PolicyContinue:
		return p, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Summary counts what a batch run did.
type Summary struct {
	RunID     string
	Attempted int
	Succeeded int
	Failed    int
	Spooled   []string
}
