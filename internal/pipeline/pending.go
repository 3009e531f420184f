package pipeline

import (
	"errors"
	"sync"
	"time"
)

// ErrAwaitTimeout is returned by Pending.Await when the wait budget elapses
// before the write settles.
var ErrAwaitTimeout = errors.New("pipeline: timed out awaiting pending write")

// Pending represents one in-flight write submitted to the pipeline.
//
// A Pending is completed exactly once, by whichever component accepted the
// write (the loop for synchronous handlers, a handler-owned goroutine for
// deferred ones). Completing with a non-nil error marks the write as a
// pipeline fault; the error is retained and visible through Err after Done
// is closed.
type Pending struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewPending creates an unresolved Pending.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Completed returns a Pending that is already resolved with err.
// Used for writes that settle synchronously at the submission site.
func Completed(err error) *Pending {
	p := NewPending()
	p.Complete(err)
	return p
}

// Complete resolves the Pending with err (nil for success).
// Subsequent calls are no-ops; the first result wins.
func (p *Pending) Complete(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done returns a channel closed when the write has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the completion error. Only valid after Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Await blocks until the write settles or timeout elapses.
// Returns the completion error, or ErrAwaitTimeout on expiry.
func (p *Pending) Await(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.err
	case <-timer.C:
		return ErrAwaitTimeout
	}
}
