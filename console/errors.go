// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package console

import "errors"

var (
	// ErrInvalidArgument is returned when an argument is missing or is not
	// a number. The command had no effect.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownCommand is returned for a command that does not exist.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNoDriver is returned by driver commands when no driver is
	// connected.
	ErrNoDriver = errors.New("driver not connected")
)
