// Package poller provides a bounded-retry asynchronous predicate
// evaluator.
//
// The pipeline under test delivers output asynchronously and at
// unpredictable granularity — the handler may coalesce or split output
// relative to input — so a fixed-count read is unreliable. Await is the
// harness's only polling device: a probe is invoked at a fixed interval
// until it reports done or the overall budget elapses.
package poller

import (
	"errors"
	"time"
)

// ErrTimeout is returned when the overall budget elapses before the probe
// reports done.
var ErrTimeout = errors.New("poller: timed out waiting for condition")

// Default polling parameters used by the harness.
const (
	DefaultInterval = 2 * time.Millisecond
	DefaultTimeout  = 5 * time.Second
)

// Probe is a non-blocking check. It accumulates any newly available bytes
// internally and reports whether the desired condition holds. A non-nil
// error aborts polling immediately.
type Probe func() (done bool, err error)

// Await invokes probe immediately and then at every interval until it
// reports done, returns an error, or timeout elapses.
func Await(probe Probe, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		done, err := probe()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-tick.C:
		case <-deadline.C:
			return ErrTimeout
		}
	}
}
