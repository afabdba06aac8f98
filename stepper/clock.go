// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"sync"
	"time"
)

// Micros is a timestamp in microseconds that wraps around every 2^32µs, about
// 71.6 minutes.
//
// Two timestamps must never be compared with < or >. Use Reached.
type Micros uint32

// Add returns m shifted by d microseconds, wrapping around.
func (m Micros) Add(d uint32) Micros {
	return m + Micros(d)
}

// Sub returns the number of microseconds elapsed from o to m, accounting for
// a single wrap around.
func (m Micros) Sub(o Micros) uint32 {
	return uint32(m - o)
}

// Reached returns true if now is at or after deadline.
//
// The comparison is done on the signed difference so it stays correct when
// the clock wraps between the two values, as long as they are less than
// 2^31µs apart.
func Reached(now, deadline Micros) bool {
	return int32(now-deadline) >= 0
}

// Clock is a monotonic microsecond clock.
type Clock interface {
	Now() Micros
}

// MonotonicClock reads the monotonic clock of the host.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a clock that reads 0 now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Now implements Clock.
func (c *MonotonicClock) Now() Micros {
	return Micros(uint64(time.Since(c.start) / time.Microsecond))
}

// ManualClock is a Clock that only moves when told to. It is meant for
// simulations and tests.
type ManualClock struct {
	mu  sync.Mutex
	now Micros
}

// Now implements Clock.
func (c *ManualClock) Now() Micros {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t Micros) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d microseconds and returns the new time.
func (c *ManualClock) Advance(d uint32) Micros {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
