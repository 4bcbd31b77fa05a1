package auth

import (
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"
)

// RequestState tracks one sign-in attempt.
// Idle -> Launched -> {SucceededWithEmail | FailedOrCancelled | InvariantViolated}
type RequestState int32

const (
	StateIdle RequestState = iota
	StateLaunched
	StateSucceededWithEmail
	StateFailedOrCancelled
	StateInvariantViolated
)

func (s RequestState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLaunched:
		return "Launched"
	case StateSucceededWithEmail:
		return "SucceededWithEmail"
	case StateFailedOrCancelled:
		return "FailedOrCancelled"
	case StateInvariantViolated:
		return "InvariantViolated"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s RequestState) Terminal() bool {
	return s >= StateSucceededWithEmail
}

// AuthRequest is one in-flight launch of the external sign-in flow. It is
// resolved by at most one outcome and never reused.
type AuthRequest struct {
	ID        string
	Options   SignInOptions
	CreatedAt time.Time

	state atomic.Int32
}

func newAuthRequest(options SignInOptions) *AuthRequest {
	return &AuthRequest{
		ID:        ksuid.New().String(),
		Options:   options,
		CreatedAt: time.Now(),
	}
}

// State returns the current state of the request.
func (r *AuthRequest) State() RequestState {
	return RequestState(r.state.Load())
}

func (r *AuthRequest) launch() bool {
	return r.state.CompareAndSwap(int32(StateIdle), int32(StateLaunched))
}

// claim moves a launched request to its terminal state. Only the first
// caller wins.
func (r *AuthRequest) claim(to RequestState) bool {
	return r.state.CompareAndSwap(int32(StateLaunched), int32(to))
}
