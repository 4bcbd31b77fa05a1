package authtest

import (
	"sync"
	"time"
)

// Recorder observes coordinator callbacks.
type Recorder struct {
	mu        sync.Mutex
	emails    []string
	failures  []error
	completes int
	signal    chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{signal: make(chan struct{}, 64)}
}

func (r *Recorder) OnSuccess(email string) {
	r.mu.Lock()
	r.emails = append(r.emails, email)
	r.mu.Unlock()
	r.notify()
}

func (r *Recorder) OnFailure(err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
	r.notify()
}

func (r *Recorder) OnComplete() {
	r.mu.Lock()
	r.completes++
	r.mu.Unlock()
	r.notify()
}

func (r *Recorder) notify() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Wait blocks until n callbacks have fired since the last Wait or timeout
// elapses. It reports whether all n arrived.
func (r *Recorder) Wait(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-r.signal:
		case <-deadline:
			return false
		}
	}
	return true
}

func (r *Recorder) Emails() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.emails...)
}

func (r *Recorder) Failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failures...)
}

func (r *Recorder) Completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes
}

// Calls returns the total number of success and failure callbacks.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.emails) + len(r.failures)
}
