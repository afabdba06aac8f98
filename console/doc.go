// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package console is the operator interface of a stepper axis: a line based
// command interpreter and the host loop that interleaves commands with the
// step scheduler.
//
// # Commands
//
//	help                      list commands
//	info | dump               driver register dump
//	status                    motion state
//	enable 0|1                enable or disable the driver
//	dir 0|1                   set the direction
//	run [sps]                 run continuously, negative is reverse
//	move <steps> [sps]        relative move, negative is reverse
//	stop                      stop stepping
//	current <mA>              RMS current, 50 to 2000
//	microsteps <n>            1, 2, 4 ... 256
//	stealth 0|1               StealthChop (1) or SpreadCycle (0)
//	sgthrs <0..255>           StallGuard threshold
//	shaft 0|1                 invert the motor direction in the driver
//	tcoolthrs <tstep>         CoolStep/StallGuard velocity threshold
//	tpwmthrs <tstep>          StealthChop to SpreadCycle switch-over
//	tpowerdown <0..255>       delay before standstill current reduction
//	vactual <v>               internal step generator, 0 uses STEP/DIR
//
// Out of range values are clamped. A missing or malformed argument is
// reported and the command is ignored.
package console
