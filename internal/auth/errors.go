package auth

import "errors"

const userIsNull = "User is null"

var (
	ErrRequestResolved    = errors.New("auth request already resolved")
	ErrRequestNotLaunched = errors.New("auth request was not launched")
	ErrNilRequest         = errors.New("auth request is nil")
)

// InvariantViolation signals that the provider broke its contract by
// reporting success without an authenticated identity. It is raised with
// panic and must never be reported as an ordinary failure.
type InvariantViolation struct {
	Message string
}

func (e *InvariantViolation) Error() string {
	return e.Message
}
