package pipeline

import "sync/atomic"

// clock is a monotonic logical clock used to stamp events for log
// ordering. Wall time is useless for ordering here: events are enqueued
// from several goroutines (the driver, strategy timers, handler pumps) and
// only the seq number reflects dispatch order.
//
// Thread-safety: atomic; any goroutine may call next.
type clock struct {
	seq atomic.Int64
}

// next returns the next sequence number and increments the clock.
func (c *clock) next() int64 {
	return c.seq.Add(1)
}

// current returns the current sequence number without incrementing.
func (c *clock) current() int64 {
	return c.seq.Load()
}
