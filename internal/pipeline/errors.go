// -----------------------------------------------------------------------
// Pipeline error taxonomy - classification drives escalation and retry
// -----------------------------------------------------------------------

package pipeline

import (
	"errors"
	"fmt"

	"github.com/ternarybob/attesto/internal/models"
)

// ErrorKind classifies an extraction failure. The cascade reacts per kind:
// transient errors retry in place, permanent errors escalate to the next
// tier, terminal errors fail the job.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
	KindTerminal  ErrorKind = "terminal"
	KindInvariant ErrorKind = "invariant"
)

// ExtractorError wraps a tier failure with its classification.
type ExtractorError struct {
	Kind ErrorKind
	Tier models.PipelineTier
	Err  error
}

func (e *ExtractorError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Tier, e.Err)
}

func (e *ExtractorError) Unwrap() error {
	return e.Err
}

// Transient marks a failure worth retrying on the same tier (network hiccup,
// provider 5xx).
func Transient(tier models.PipelineTier, err error) error {
	return &ExtractorError{Kind: KindTransient, Tier: tier, Err: err}
}

// Permanent marks a failure this tier cannot recover from (provider 4xx,
// unreadable document). The cascade escalates immediately.
func Permanent(tier models.PipelineTier, err error) error {
	return &ExtractorError{Kind: KindPermanent, Tier: tier, Err: err}
}

// Terminal marks a failure of the last tier. The job fails.
func Terminal(tier models.PipelineTier, err error) error {
	return &ExtractorError{Kind: KindTerminal, Tier: tier, Err: err}
}

// Invariant marks a broken internal contract (e.g. empty unit after
// normalization). Not retried automatically.
func Invariant(format string, args ...any) error {
	return &ExtractorError{Kind: KindInvariant, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the classification of err, defaulting to permanent for
// unclassified errors so the cascade keeps moving.
func KindOf(err error) ErrorKind {
	var ee *ExtractorError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindPermanent
}

// IsTransient reports whether err should be retried on the same tier.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// UserMessage renders a short stable code plus a bounded provider message
// for the job's error field.
func UserMessage(err error) string {
	const maxLen = 240

	code := "extract_failed"
	var ee *ExtractorError
	if errors.As(err, &ee) {
		switch ee.Kind {
		case KindTransient:
			code = "extract_transient"
		case KindPermanent:
			code = "extract_permanent"
		case KindTerminal:
			code = "extract_terminal"
		case KindInvariant:
			code = "invariant_violation"
		}
	}
	if errors.Is(err, models.ErrCancelled) {
		code = "cancelled"
	}

	msg := err.Error()
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return code + ": " + msg
}
