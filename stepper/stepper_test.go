// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"errors"
	"strings"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

var errWrite = errors.New("write failed")

// flakyPin is a gpiotest.Pin whose writes can be made to fail.
type flakyPin struct {
	gpiotest.Pin
	fail bool
}

func (p *flakyPin) Out(l gpio.Level) error {
	if p.fail {
		return errWrite
	}
	return p.Pin.Out(l)
}

func newPins() (step, dir, en *flakyPin) {
	return &flakyPin{Pin: gpiotest.Pin{N: "STEP", L: gpio.High}},
		&flakyPin{Pin: gpiotest.Pin{N: "DIR", L: gpio.High}},
		&flakyPin{Pin: gpiotest.Pin{N: "EN"}}
}

func TestNew(t *testing.T) {
	for _, test := range []struct {
		name      string
		activeLow bool
		wantEn    gpio.Level
	}{
		{"active low", true, gpio.High},
		{"active high", false, gpio.Low},
	} {
		t.Run(test.name, func(t *testing.T) {
			step, dir, en := newPins()
			opts := DefaultOpts
			opts.EnableActiveLow = test.activeLow
			d, err := New(step, dir, en, &opts)
			if err != nil {
				t.Fatal(err)
			}
			if step.L != gpio.Low || dir.L != gpio.Low || en.L != test.wantEn {
				t.Fatalf("step=%s dir=%s en=%s", step.L, dir.L, en.L)
			}
			if got := d.String(); !strings.HasPrefix(got, "Stepper{step=STEP") {
				t.Fatalf("String() = %q", got)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	step, dir, _ := newPins()
	if _, err := New(nil, dir, nil, nil); err == nil {
		t.Fatal("expected error without a step pin")
	}
	dir.fail = true
	if _, err := New(step, dir, nil, nil); !errors.Is(err, errWrite) {
		t.Fatalf("expected %v, got %v", errWrite, err)
	}
}

func TestDevMove(t *testing.T) {
	step, dir, en := newPins()
	d, err := New(step, dir, en, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Move(-2, 1000); err != nil {
		t.Fatal(err)
	}
	if dir.L != gpio.High || en.L != gpio.Low {
		t.Fatalf("dir=%s en=%s", dir.L, en.L)
	}
	for _, test := range []struct {
		now      Micros
		wantStep gpio.Level
		wantDone bool
	}{
		{100, gpio.High, false},
		{102, gpio.High, false},
		{103, gpio.Low, false},
		{1099, gpio.Low, false},
		{1100, gpio.High, true},
		{1103, gpio.Low, false},
		{2100, gpio.Low, false},
	} {
		done, err := d.Tick(test.now)
		if err != nil {
			t.Fatal(err)
		}
		if step.L != test.wantStep || done != test.wantDone {
			t.Fatalf("at %d: step=%s done=%t", test.now, step.L, done)
		}
	}
	if s := d.Status(); s.Remaining != 0 || s.Mode != FiniteMove {
		t.Fatalf("unexpected status %s", s)
	}
}

func TestDevCommands(t *testing.T) {
	step, dir, en := newPins()
	d, err := New(step, dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetEnabled(true); err != nil {
		t.Fatal(err)
	}
	if err := d.SetDirection(true); err != nil {
		t.Fatal(err)
	}
	if dir.L != gpio.High {
		t.Fatal("direction not written")
	}
	if got := d.SetSpeed(100000); got != MaxSpeed {
		t.Fatalf("SetSpeed() = %d", got)
	}
	if err := d.Run(d.Speed()); err != nil {
		t.Fatal(err)
	}
	if dir.L != gpio.Low {
		t.Fatal("positive run should go forward")
	}
	if _, err := d.Tick(0); err != nil || step.L != gpio.High {
		t.Fatalf("no step: %v", err)
	}
	d.Stop()
	if d.Motion().Mode() != Stopped {
		t.Fatal("not stopped")
	}
	if _, err := d.Tick(3); err != nil || step.L != gpio.Low {
		t.Fatalf("pulse not released: %v", err)
	}
	if en.L != gpio.Low {
		t.Fatal("enable line touched while not wired")
	}
}

func TestDevTickError(t *testing.T) {
	step, dir, en := newPins()
	d, err := New(step, dir, en, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(500); err != nil {
		t.Fatal(err)
	}
	step.fail = true
	if _, err := d.Tick(0); !errors.Is(err, errWrite) {
		t.Fatalf("expected %v, got %v", errWrite, err)
	}
	if !d.Motion().PulseActive() {
		t.Fatal("a pin error must not alter the motion state")
	}
}

func TestDevHalt(t *testing.T) {
	step, dir, en := newPins()
	d, err := New(step, dir, en, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(500); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Tick(0); err != nil {
		t.Fatal(err)
	}
	if err := d.SetDirection(true); err != nil {
		t.Fatal(err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if step.L != gpio.Low || dir.L != gpio.High || en.L != gpio.High {
		t.Fatalf("step=%s dir=%s en=%s", step.L, dir.L, en.L)
	}
	s := d.Status()
	if s.Enabled || s.Mode != Stopped || s.PulseActive {
		t.Fatalf("unexpected status %s", s)
	}
}
