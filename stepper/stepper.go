// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
)

// Dev drives a step/direction motor driver through GPIO lines.
//
// Like Motion, Dev is not safe for concurrent use.
type Dev struct {
	m *Motion

	step gpio.PinOut
	dir  gpio.PinOut
	en   gpio.PinOut

	enableActiveLow bool
}

// New returns a Dev driving the step, dir and en lines.
//
// en may be nil when the enable input of the driver is hardwired. The lines
// are initialized with step low, direction false and the driver disabled.
func New(step, dir, en gpio.PinOut, opts *Opts) (*Dev, error) {
	if step == nil || dir == nil {
		return nil, errors.New("stepper: step and dir pins are required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{
		m:               NewMotion(opts),
		step:            step,
		dir:             dir,
		en:              en,
		enableActiveLow: opts.EnableActiveLow,
	}
	err := multierr.Combine(
		d.step.Out(gpio.Low),
		d.apply(d.m.SetDirection(false)),
		d.apply(d.m.SetEnabled(false)),
	)
	if err != nil {
		return nil, fmt.Errorf("stepper: failed to initialize pins: %w", err)
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("Stepper{step=%s, dir=%s}", d.step, d.dir)
}

// Halt stops stepping, drives the step line low and disables the driver.
//
// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	d.m.Stop()
	e := d.m.release()
	e.merge(d.m.SetEnabled(false))
	return d.apply(e)
}

// Motion returns the underlying state machine.
func (d *Dev) Motion() *Motion {
	return d.m
}

// Status returns a snapshot of the motion state.
func (d *Dev) Status() Status {
	return d.m.Snapshot()
}

// Speed returns the last speed set, in steps per second.
func (d *Dev) Speed() int {
	return d.m.Speed()
}

// SetEnabled enables or disables the driver.
func (d *Dev) SetEnabled(on bool) error {
	return d.apply(d.m.SetEnabled(on))
}

// SetDirection sets the direction. If a pulse is high, the line is written
// when it is released.
func (d *Dev) SetDirection(dir bool) error {
	return d.apply(d.m.SetDirection(dir))
}

// SetSpeed sets the speed in steps per second and returns the clamped value.
func (d *Dev) SetSpeed(sps int) int {
	return d.m.SetSpeed(sps)
}

// Run starts continuous stepping. See Motion.Run.
func (d *Dev) Run(sps int) error {
	return d.apply(d.m.Run(sps))
}

// Move starts a finite move. See Motion.Move.
func (d *Dev) Move(steps int64, sps int) error {
	return d.apply(d.m.Move(steps, sps))
}

// Stop stops stepping once the pulse in flight is released.
func (d *Dev) Stop() {
	d.m.Stop()
}

// Tick runs the scheduler at now and drives the lines accordingly.
//
// done is true on the tick a finite move completes. A pin error is returned
// but does not alter the motion state.
func (d *Dev) Tick(now Micros) (done bool, err error) {
	e := d.m.Tick(now)
	return e.Done, d.apply(e)
}

func (d *Dev) apply(e Edges) error {
	var err error
	if e.Step == Falling {
		err = multierr.Append(err, d.step.Out(gpio.Low))
	}
	if e.DirWrite {
		err = multierr.Append(err, d.dir.Out(gpio.Level(e.Dir)))
	}
	if e.EnableWrite && d.en != nil {
		err = multierr.Append(err, d.en.Out(gpio.Level(e.Enable != d.enableActiveLow)))
	}
	if e.Step == Rising {
		err = multierr.Append(err, d.step.Out(gpio.High))
	}
	return err
}
