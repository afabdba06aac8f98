// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stepper generates step/direction/enable signals for a single
// stepper motor driver such as the TMC2209, A4988 or DRV8825.
//
// Pulses are produced without blocking: Motion is a polled state machine that
// the host loop ticks against a wrapping 32 bit microsecond clock, and Dev
// applies the resulting edges to periph gpio.PinOut lines. There is no
// acceleration ramp and no absolute position; a finite move only counts down
// the steps it still has to do.
//
// The host loop must tick more often than the configured pulse width and more
// often than the low time of a step period, or pulses get stretched.
package stepper
