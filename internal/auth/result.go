package auth

import "fmt"

// Status is the result code a provider reports for one sign-in flow.
// The zero value is not a success.
type Status int

const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusCancelled
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusCancelled:
		return "CANCELLED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ProviderResult is the raw payload delivered by the provider when the
// interactive flow finishes.
type ProviderResult struct {
	Status   Status
	Identity *Identity // optional authenticated-user handle
	Err      error     // provider-reported detail for non-success results
}

// SignInOutcome is either Success or Failure.
type SignInOutcome interface {
	isOutcome()
}

// Success carries the non-empty email of the signed-in user.
type Success struct {
	Email string
}

// Failure means the flow did not produce a signed-in identity.
type Failure struct {
	Err *SignInError
}

func (Success) isOutcome() {}
func (Failure) isOutcome() {}

// FailureReason distinguishes why a sign-in failed. Callers only need the
// success/failure bit; the reason is informational.
type FailureReason int

const (
	ReasonUnknown FailureReason = iota
	ReasonCancelled
	ReasonProvider
)

func (r FailureReason) String() string {
	switch r {
	case ReasonCancelled:
		return "cancelled"
	case ReasonProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// SignInError is handed to onFailure.
type SignInError struct {
	Reason FailureReason
	Status Status
	Err    error
}

func (e *SignInError) Error() string {
	switch {
	case e.Reason == ReasonCancelled:
		return "User cancelled sign in"
	case e.Err != nil:
		return fmt.Sprintf("login error: %v", e.Err)
	default:
		return "login error"
	}
}

func (e *SignInError) Unwrap() error {
	return e.Err
}

// Classify maps a raw provider result to an outcome. A success status
// without a usable identity returns an *InvariantViolation and no outcome.
func Classify(result ProviderResult) (SignInOutcome, error) {
	switch result.Status {
	case StatusSuccess:
		if result.Identity == nil || result.Identity.Email == "" {
			return nil, &InvariantViolation{Message: userIsNull}
		}
		return Success{Email: result.Identity.Email}, nil

	case StatusCancelled:
		return Failure{Err: &SignInError{Reason: ReasonCancelled, Status: result.Status, Err: result.Err}}, nil

	case StatusError:
		return Failure{Err: &SignInError{Reason: ReasonProvider, Status: result.Status, Err: result.Err}}, nil

	default:
		return Failure{Err: &SignInError{Reason: ReasonUnknown, Status: result.Status, Err: result.Err}}, nil
	}
}
