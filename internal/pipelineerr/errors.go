// Package pipelineerr defines the error taxonomy used across every pipeline
// stage (spec §7): transient upstream, permanent upstream, schema-violation,
// internal invariant, and data-absence (which is not an error at all and is
// represented by state, not by this package).
package pipelineerr

import "errors"

// Sentinel errors identifying the taxonomy. Call sites wrap one of these
// with fmt.Errorf("...: %w", err) so errors.Is still matches.
var (
	// ErrTransient covers feed 5xx, publisher timeout, LLM rate-limit.
	// Retry with exponential backoff up to the wrapper's retry budget; on
	// exhaustion, leave the record in its pre-claim state (or transition to
	// the failed-in-* terminal if the stage's contract says so).
	ErrTransient = errors.New("transient upstream error")

	// ErrPermanent covers publisher 404, parse-unable body. Transitions the
	// record directly to its stage's failed-in-* terminal.
	ErrPermanent = errors.New("permanent upstream error")

	// ErrSchemaViolation covers an LLM response that is unparsable or
	// violates the response schema's invariants. Retries within budget; on
	// exhaustion, transitions to failed-in-extraction with the error string
	// stored on the Source.
	ErrSchemaViolation = errors.New("llm schema violation")

	// ErrInvariant covers an internal invariant violation (e.g. a RawEvent
	// with no Source). Fatal: the pipeline stops the current stage and
	// reports; data is never silently corrected.
	ErrInvariant = errors.New("internal invariant violation")
)

// IsRetryable reports whether err's taxonomy calls for a retry within the
// wrapper's budget rather than an immediate terminal transition.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrSchemaViolation)
}

// IsFatal reports whether err must abort the current stage rather than be
// recovered locally within a record.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariant)
}
