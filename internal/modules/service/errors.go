package service

import "errors"

// Business error kinds. Every error the services return for a rule
// violation wraps exactly one of these, so callers can branch with errors.Is.
var (
	ErrAuth              = errors.New("authentication failed")
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPermission        = errors.New("permission denied")
	ErrPrecondition      = errors.New("precondition failed")
)

// DomainError carries a user-facing message on top of a sentinel kind.
type DomainError struct {
	Kind error
	Msg  string
}

func (e *DomainError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *DomainError) Unwrap() error { return e.Kind }

func newErr(kind error, msg string) error {
	return &DomainError{Kind: kind, Msg: msg}
}

// Kind returns the sentinel wrapped by err, or nil for infrastructure errors.
func Kind(err error) error {
	for _, k := range []error{ErrAuth, ErrValidation, ErrNotFound, ErrInvalidTransition, ErrPermission, ErrPrecondition} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
