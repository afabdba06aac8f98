// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tmc2209 configures Trinamic TMC2209 stepper motor drivers through
// their single wire UART interface.
//
// Only configuration and diagnostics go through the UART. Steps are generated
// on the STEP/DIR pins, see package stepper.
//
// Several registers are write only. The driver keeps a copy of what it last
// wrote to them and reports that copy in Status.
//
// # Wiring
//
// The PDN_UART pin is connected to both TX and RX of a 3.3V UART, with a 1kΩ
// resistor in series on TX. Everything sent is echoed back on RX; the
// connection must discard the echo, see package serialconn.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/TMC2209_datasheet_rev1.09.pdf
package tmc2209
