// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stepdrive drives a single stepper axis from a Linux host.
//
// The stepper package generates STEP/DIR/EN edges on GPIO lines, tmc2209
// configures a Trinamic TMC2209 over its single wire UART, and console maps
// operator commands onto both. cmd/stepctl puts them together.
package stepdrive
