package domain

import "errors"

// Kind categorizes failures so the boundary layer can map them to transport codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidState
	KindValidationFailed
	KindNotEligible
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	case KindValidationFailed:
		return "validation_failed"
	case KindNotEligible:
		return "not_eligible"
	default:
		return "unknown"
	}
}

// Error is a categorized domain failure. A non-nil parent makes
// errors.Is(err, parent) hold as well.
type Error struct {
	Kind   Kind
	msg    string
	parent *Error
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Is matches the error itself or its parent sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	for cur := e; cur != nil; cur = cur.parent {
		if cur == t {
			return true
		}
	}
	return false
}

// KindOf returns the kind of the first domain error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

var (
	// ErrQuizNotFound is returned when the catalog has no such quiz.
	ErrQuizNotFound = newError(KindNotFound, "quiz not found")
	// ErrAttemptNotFound is returned for unknown attempt IDs.
	ErrAttemptNotFound = newError(KindNotFound, "attempt not found")
	// ErrCertificateNotFound is returned when no certificate matches a code.
	ErrCertificateNotFound = newError(KindNotFound, "certificate not found")

	// ErrNotAvailable hides unpublished quizzes behind a not-found.
	ErrNotAvailable = newError(KindNotFound, "quiz not available")
	ErrNotYetOpen   = newError(KindNotEligible, "quiz has not started yet")
	ErrClosed       = newError(KindNotEligible, "quiz has ended")
	// ErrInvalidAccessCode is returned when a password-gated quiz gets the wrong code.
	ErrInvalidAccessCode = newError(KindNotEligible, "invalid access code")
	// ErrPrivateAccess is returned when the caller is not a member of the quiz's groups.
	ErrPrivateAccess = newError(KindForbidden, "quiz is restricted to its groups")

	// ErrInvalidAttempt is the parent of every ownership or status failure on an attempt.
	ErrInvalidAttempt       = newError(KindInvalidState, "invalid attempt")
	ErrAttemptNotOwned      = &Error{Kind: KindForbidden, msg: "invalid attempt: not owned by caller", parent: ErrInvalidAttempt}
	ErrAttemptNotInProgress = &Error{Kind: KindInvalidState, msg: "invalid attempt: not in progress", parent: ErrInvalidAttempt}
	ErrAttemptNotCompleted  = newError(KindInvalidState, "attempt not completed")

	// ErrQuestionNotInQuiz is returned when an answer references a foreign question.
	ErrQuestionNotInQuiz = newError(KindValidationFailed, "invalid question for this quiz")
	// ErrValidation wraps malformed input.
	ErrValidation = newError(KindValidationFailed, "validation failed")
	// ErrForbidden is returned when the actor lacks a capability.
	ErrForbidden = newError(KindForbidden, "forbidden")

	// ErrCertificateCodeTaken signals a code collision; issuance retries with a new code.
	ErrCertificateCodeTaken = newError(KindInvalidState, "certificate code already taken")
)
