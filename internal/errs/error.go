package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a circulation failure for callers that branch on outcome
// rather than on message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidState
	KindPolicyViolation
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindPolicyViolation:
		return "policy_violation"
	case KindPersistence:
		return "persistence_failure"
	default:
		return "unknown"
	}
}

var (
	// ErrNotFound is the sentinel repositories return for missing rows.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a transient persistence conflict (deadlock,
	// serialization failure) that the caller may retry.
	ErrConflict = errors.New("concurrent update conflict")
)

// Error is a classified failure with a human-readable reason. Expected
// rejections (missing entity, bad state, policy) are values of this type;
// they are not logged as errors by the services.
type Error struct {
	Kind   Kind
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

func NotFound(reason string) error {
	return &Error{Kind: KindNotFound, Reason: reason, cause: ErrNotFound}
}

func InvalidState(reason string) error {
	return &Error{Kind: KindInvalidState, Reason: reason}
}

func PolicyViolation(reason string) error {
	return &Error{Kind: KindPolicyViolation, Reason: reason}
}

func Persistence(reason string, cause error) error {
	return &Error{Kind: KindPersistence, Reason: reason, cause: cause}
}

// KindOf extracts the classification of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindUnknown
}

// Retryable reports whether err is a transient conflict worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
