// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

// Decision is the outcome of an [ErrorHandler] for a failed entry.
type Decision int

const (
	// Abort stops the run and returns the failure to the caller.
	Abort Decision = iota

	// Skip discards the entry and continues with the next one.
	Skip

	// Retry attempts to process the entry again. The number of attempts is
	// bounded by [WithMaxRetries]; exhausted retries are treated as Skip.
	Retry
)

// String returns the name of the decision.
func (d Decision) String() string {
	switch d {
	case Abort:
		return "abort"
	case Skip:
		return "skip"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// ErrorHandler decides how a run continues after processing of an entry failed.
// It is called with the entry and the cause of the failure.
type ErrorHandler func(e Entry, err error) Decision

// AbortOnError is an [ErrorHandler] that stops the run on every failure.
func AbortOnError(Entry, error) Decision {
	return Abort
}

// SkipOnError is an [ErrorHandler] that skips every failed entry, including
// entries rejected for path traversal or symlink escapes.
func SkipOnError(Entry, error) Decision {
	return Skip
}

// SkipOnFilesystemError is an [ErrorHandler] that aborts on security violations
// (see [IsSecurityViolation]) and skips all other failures.
func SkipOnFilesystemError(_ Entry, err error) Decision {
	if IsSecurityViolation(err) {
		return Abort
	}
	return Skip
}

// RetryOnError is an [ErrorHandler] that aborts on security violations and
// retries all other failures.
func RetryOnError(_ Entry, err error) Decision {
	if IsSecurityViolation(err) {
		return Abort
	}
	return Retry
}
