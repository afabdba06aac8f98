// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"fmt"
	"math"
	"time"
)

// Supported speed range, in steps per second.
const (
	MinSpeed = 1
	MaxSpeed = 40000
)

// Mode is what the axis has been asked to do.
type Mode uint8

const (
	// Stopped produces no step.
	Stopped Mode = iota
	// Continuous steps until Stop is called.
	Continuous
	// FiniteMove steps until the remaining count reaches zero.
	FiniteMove
)

func (m Mode) String() string {
	switch m {
	case Stopped:
		return "stopped"
	case Continuous:
		return "continuous"
	case FiniteMove:
		return "move"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Edge is a transition on the step line.
type Edge uint8

const (
	NoEdge Edge = iota
	Rising
	Falling
)

func (e Edge) String() string {
	switch e {
	case NoEdge:
		return "none"
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return fmt.Sprintf("Edge(%d)", uint8(e))
	}
}

// Edges lists the output writes produced by a Motion call.
type Edges struct {
	Step Edge

	// DirWrite is set when the direction line must be driven to Dir.
	DirWrite bool
	Dir      bool

	// EnableWrite is set when the driver must be enabled (Enable true) or
	// disabled. The electrical polarity is handled by Dev.
	EnableWrite bool
	Enable      bool

	// Done is set exactly once per finite move, on the tick where its
	// remaining count drops to zero.
	Done bool
}

func (e *Edges) merge(o Edges) {
	if o.Step != NoEdge {
		e.Step = o.Step
	}
	if o.DirWrite {
		e.DirWrite, e.Dir = true, o.Dir
	}
	if o.EnableWrite {
		e.EnableWrite, e.Enable = true, o.Enable
	}
	e.Done = e.Done || o.Done
}

// Opts holds the timing configuration.
type Opts struct {
	// PulseWidth is the high time of a step pulse. It is rounded up to the
	// microsecond.
	PulseWidth time.Duration
	// Guard is the minimum low time between two pulses. It is rounded up to
	// the microsecond.
	Guard time.Duration
	// Speed is the initial speed in steps per second.
	Speed int
	// EnableActiveLow is true when the driver is enabled by pulling its enable
	// line low. Only used by Dev.
	EnableActiveLow bool
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	PulseWidth:      3 * time.Microsecond,
	Guard:           4 * time.Microsecond,
	Speed:           500,
	EnableActiveLow: true,
}

// Status is a snapshot of a Motion.
type Status struct {
	Enabled      bool
	Mode         Mode
	Direction    bool
	Remaining    int64
	Speed        int
	StepInterval time.Duration
	PulseActive  bool
}

func (s Status) String() string {
	return fmt.Sprintf("enabled=%t mode=%s dir=%t remaining=%d sps=%d interval=%s pulse=%t",
		s.Enabled, s.Mode, s.Direction, s.Remaining, s.Speed, s.StepInterval, s.PulseActive)
}

// Motion is the motion state of one axis and the step scheduler operating on
// it.
//
// It has no knowledge of the hardware: every method returns the Edges the
// caller has to apply. Motion is not safe for concurrent use; one goroutine
// must own it and serialize commands and ticks.
type Motion struct {
	enabled   bool
	mode      Mode
	dir       bool
	remaining int64
	speed     int

	// All durations are in µs.
	interval   uint32
	pulseWidth uint32
	guard      uint32

	nextStep     Micros
	pulseActive  bool
	pulseRelease Micros

	// Level currently driven on the direction line and whether dir still
	// has to be written once the pulse in flight is released.
	dirOut     bool
	dirPending bool

	// restart is set when stepping resumes from idle, so that the next step
	// is timed from the next tick instead of from a stale deadline.
	restart   bool
	doneArmed bool
}

// NewMotion returns a stopped and disabled Motion.
//
// Zero fields in opts take their value from DefaultOpts.
func NewMotion(opts *Opts) *Motion {
	if opts == nil {
		opts = &DefaultOpts
	}
	m := &Motion{
		pulseWidth: usec(opts.PulseWidth, DefaultOpts.PulseWidth),
		guard:      usec(opts.Guard, DefaultOpts.Guard),
	}
	speed := opts.Speed
	if speed == 0 {
		speed = DefaultOpts.Speed
	}
	m.SetSpeed(speed)
	return m
}

func usec(d, def time.Duration) uint32 {
	if d <= 0 {
		d = def
	}
	return uint32((d + time.Microsecond - 1) / time.Microsecond)
}

// Enabled returns true when the driver is allowed to step.
func (m *Motion) Enabled() bool {
	return m.enabled
}

// Mode returns the current motion mode.
func (m *Motion) Mode() Mode {
	return m.mode
}

// Direction returns the logical direction. Run and Move select true for
// negative arguments.
func (m *Motion) Direction() bool {
	return m.dir
}

// Remaining returns the number of steps left in a finite move.
func (m *Motion) Remaining() int64 {
	return m.remaining
}

// Speed returns the last speed set, in steps per second.
func (m *Motion) Speed() int {
	return m.speed
}

// StepInterval returns the time between two rising edges.
func (m *Motion) StepInterval() time.Duration {
	return time.Duration(m.interval) * time.Microsecond
}

// PulseWidth returns the high time of a step pulse.
func (m *Motion) PulseWidth() time.Duration {
	return time.Duration(m.pulseWidth) * time.Microsecond
}

// PulseActive returns true while the step line is high.
func (m *Motion) PulseActive() bool {
	return m.pulseActive
}

// Snapshot returns the current state.
func (m *Motion) Snapshot() Status {
	return Status{
		Enabled:      m.enabled,
		Mode:         m.mode,
		Direction:    m.dir,
		Remaining:    m.remaining,
		Speed:        m.speed,
		StepInterval: m.StepInterval(),
		PulseActive:  m.pulseActive,
	}
}

// SetEnabled allows or forbids stepping.
//
// A pulse in flight is still released on schedule after the driver is
// disabled.
func (m *Motion) SetEnabled(on bool) Edges {
	idle := !m.shouldStep()
	m.enabled = on
	if idle && m.shouldStep() {
		m.restart = true
	}
	return Edges{EnableWrite: true, Enable: on}
}

// SetDirection sets the logical direction.
//
// The direction line is written right away when the step line is low.
// Otherwise the write is deferred until the pulse in flight is released, so
// the direction never changes while a pulse is high.
func (m *Motion) SetDirection(dir bool) Edges {
	m.dir = dir
	if m.pulseActive {
		m.dirPending = dir != m.dirOut
		return Edges{}
	}
	m.dirOut = dir
	m.dirPending = false
	return Edges{DirWrite: true, Dir: dir}
}

// SetSpeed sets the stepping rate and returns the effective speed, clamped to
// [MinSpeed, MaxSpeed].
//
// The step interval never gets shorter than the pulse width plus the guard
// time. The new interval applies from the next rising edge on.
func (m *Motion) SetSpeed(sps int) int {
	if sps < MinSpeed {
		sps = MinSpeed
	}
	if sps > MaxSpeed {
		sps = MaxSpeed
	}
	m.speed = sps
	m.interval = uint32(1000000 / sps)
	if floor := m.pulseWidth + m.guard; m.interval < floor {
		m.interval = floor
	}
	return sps
}

// Run steps continuously at |sps| until Stop. A negative sps reverses the
// direction. The driver is enabled.
//
// Callers without an explicit speed pass Speed().
func (m *Motion) Run(sps int) Edges {
	idle := !m.shouldStep()
	reverse := sps < 0
	if reverse {
		sps = -sps
	}
	e := m.SetDirection(reverse)
	m.SetSpeed(sps)
	m.mode = Continuous
	m.remaining = 0
	m.doneArmed = false
	e.merge(m.enable(idle))
	return e
}

// Move does |steps| steps at |sps| then stops stepping. A negative steps
// reverses the direction. The driver is enabled.
//
// A move of zero steps is legal; it produces no pulse and completes on the
// next tick.
func (m *Motion) Move(steps int64, sps int) Edges {
	idle := !m.shouldStep()
	reverse := steps < 0
	if reverse {
		// -math.MinInt64 overflows.
		if steps == math.MinInt64 {
			steps = math.MaxInt64
		} else {
			steps = -steps
		}
	}
	if sps < 0 {
		sps = -sps
	}
	e := m.SetDirection(reverse)
	m.SetSpeed(sps)
	m.mode = FiniteMove
	m.remaining = steps
	m.doneArmed = true
	e.merge(m.enable(idle))
	return e
}

// Stop stops stepping. A pulse in flight is still released on schedule.
func (m *Motion) Stop() {
	m.mode = Stopped
	m.remaining = 0
	m.doneArmed = false
}

func (m *Motion) enable(wasIdle bool) Edges {
	m.enabled = true
	if wasIdle {
		m.restart = true
	}
	return Edges{EnableWrite: true, Enable: true}
}

func (m *Motion) shouldStep() bool {
	if !m.enabled {
		return false
	}
	return m.mode == Continuous || (m.mode == FiniteMove && m.remaining > 0)
}

// Tick advances the scheduler to now and returns the edges to apply.
//
// It does a bounded amount of work and never blocks. At most one pulse is in
// flight: while the step line is high the only thing Tick does is release it
// once its deadline is reached.
func (m *Motion) Tick(now Micros) Edges {
	var e Edges
	if m.pulseActive {
		if Reached(now, m.pulseRelease) {
			e = m.release()
		}
	} else if m.shouldStep() {
		if m.restart {
			m.restart = false
			m.nextStep = now
		}
		if Reached(now, m.nextStep) {
			m.pulseActive = true
			m.pulseRelease = now.Add(m.pulseWidth)
			m.nextStep = now.Add(m.interval)
			if m.mode == FiniteMove {
				m.remaining--
			}
			e.Step = Rising
		}
	}
	if m.doneArmed && m.mode == FiniteMove && m.remaining == 0 {
		m.doneArmed = false
		e.Done = true
	}
	return e
}

// release ends the pulse in flight and flushes a deferred direction change.
func (m *Motion) release() Edges {
	e := Edges{Step: Falling}
	m.pulseActive = false
	if m.dirPending {
		m.dirPending = false
		m.dirOut = m.dir
		e.DirWrite, e.Dir = true, m.dir
	}
	return e
}
