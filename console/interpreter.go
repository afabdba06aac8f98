// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package console

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/GermanBionicSystems/stepdrive/stepper"
	"github.com/GermanBionicSystems/stepdrive/tmc2209"
	"github.com/google/shlex"
	"github.com/maruel/ansi256"
	"periph.io/x/conn/v3/physic"
)

// Limits applied to driver commands.
const (
	MinCurrent = 50
	MaxCurrent = 2000
)

// Axis is the motion side of the interpreter. It is implemented by
// *stepper.Dev.
type Axis interface {
	SetEnabled(on bool) error
	SetDirection(dir bool) error
	Run(sps int) error
	Move(steps int64, sps int) error
	Stop()
	Speed() int
	Status() stepper.Status
	Tick(now stepper.Micros) (bool, error)
}

// Driver is the configuration side of the interpreter. It is implemented by
// *tmc2209.Dev.
type Driver interface {
	SetRMSCurrent(i physic.ElectricCurrent) error
	SetMicrosteps(n int) (int, error)
	SetChopperMode(stealth bool) error
	SetStallThreshold(v int) (uint8, error)
	SetShaft(inverse bool) error
	SetCoolStepThreshold(tstep uint32) error
	SetStealthThreshold(tstep uint32) error
	SetPowerDownDelay(v uint8) error
	SetVelocity(v int32) error
	ReadStatus() (tmc2209.Status, error)
}

// Limits of the raw driver registers exposed as commands.
const (
	maxTStep    = 0xFFFFF
	maxVelocity = 1<<23 - 1
)

// Opts holds the interpreter configuration.
type Opts struct {
	// Color enables ANSI colors in reports.
	Color bool
	// Palette is used when Color is set. Defaults to ansi256.Default.
	Palette *ansi256.Palette
}

// Interpreter executes operator commands.
type Interpreter struct {
	axis    Axis
	drv     Driver
	w       io.Writer
	palette *ansi256.Palette
}

// New returns an Interpreter writing its replies to w.
//
// drv may be nil, in which case driver commands reply with an error.
func New(axis Axis, drv Driver, w io.Writer, opts *Opts) *Interpreter {
	in := &Interpreter{axis: axis, drv: drv, w: w}
	if opts != nil && opts.Color {
		in.palette = opts.Palette
		if in.palette == nil {
			in.palette = ansi256.Default
		}
	}
	return in
}

// command is an entry of the command table.
type command struct {
	usage       string
	description string
	run         func(in *Interpreter, args []string) error
}

var commands map[string]*command

func init() {
	dump := &command{
		usage:       "info | dump",
		description: "dump driver registers",
		run:         (*Interpreter).dump,
	}
	commands = map[string]*command{
		"help": {
			usage:       "help",
			description: "list commands",
			run:         (*Interpreter).help,
		},
		"info": dump,
		"dump": dump,
		"status": {
			usage:       "status",
			description: "show the motion state",
			run:         (*Interpreter).status,
		},
		"enable": {
			usage:       "enable 0|1",
			description: "enable or disable the driver",
			run:         (*Interpreter).enable,
		},
		"dir": {
			usage:       "dir 0|1",
			description: "set the direction",
			run:         (*Interpreter).dir,
		},
		"run": {
			usage:       "run [sps]",
			description: "run continuously; negative is reverse, default last speed",
			run:         (*Interpreter).run,
		},
		"move": {
			usage:       "move <steps> [sps]",
			description: "relative move; negative is reverse, default last speed",
			run:         (*Interpreter).move,
		},
		"stop": {
			usage:       "stop",
			description: "stop stepping",
			run:         (*Interpreter).stop,
		},
		"current": {
			usage:       "current <mA>",
			description: "RMS current, 50 to 2000",
			run:         (*Interpreter).current,
		},
		"microsteps": {
			usage:       "microsteps <n>",
			description: "1/2/4/8/16/32/64/128/256",
			run:         (*Interpreter).microsteps,
		},
		"stealth": {
			usage:       "stealth 0|1",
			description: "1 = StealthChop, 0 = SpreadCycle",
			run:         (*Interpreter).stealth,
		},
		"sgthrs": {
			usage:       "sgthrs <0..255>",
			description: "StallGuard threshold",
			run:         (*Interpreter).sgthrs,
		},
		"shaft": {
			usage:       "shaft 0|1",
			description: "1 inverts the motor direction in the driver",
			run:         (*Interpreter).shaft,
		},
		"tcoolthrs": {
			usage:       "tcoolthrs <tstep>",
			description: "CoolStep and StallGuard lower velocity threshold",
			run:         (*Interpreter).tcoolthrs,
		},
		"tpwmthrs": {
			usage:       "tpwmthrs <tstep>",
			description: "StealthChop to SpreadCycle switch-over, 0 disables",
			run:         (*Interpreter).tpwmthrs,
		},
		"tpowerdown": {
			usage:       "tpowerdown <0..255>",
			description: "standstill delay before current reduction",
			run:         (*Interpreter).tpowerdown,
		},
		"vactual": {
			usage:       "vactual <v>",
			description: "internal step generator velocity, 0 uses STEP/DIR",
			run:         (*Interpreter).vactual,
		},
	}
}

// Execute parses and runs one command line. Blank lines and comments are
// ignored.
//
// The reply is written to the writer given to New. The returned error is
// informative only; a failed command leaves the state unchanged or clamped.
func (in *Interpreter) Execute(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		in.printf("parse error: %v\n", err)
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if len(args) == 0 {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		in.printf("unknown: %s\n", args[0])
		return fmt.Errorf("%w: %q", ErrUnknownCommand, args[0])
	}
	err = cmd.run(in, args[1:])
	if err != nil && !errors.Is(err, ErrInvalidArgument) {
		in.printf("error: %v\n", err)
	}
	return err
}

// Help writes the command list.
func (in *Interpreter) Help() {
	in.help(nil)
}

func (in *Interpreter) help(_ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		if name != "dump" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		in.printf("  %-20s %s\n", c.usage, c.description)
	}
	return nil
}

func (in *Interpreter) status(_ []string) error {
	in.printf("%s\n", in.axis.Status())
	return nil
}

func (in *Interpreter) enable(args []string) error {
	on, err := flagArg(args, 0, "enable needs 0|1")
	if err != nil {
		return in.invalid(err)
	}
	if err := in.axis.SetEnabled(on); err != nil {
		return err
	}
	in.printf("enable=%d\n", b2i(in.axis.Status().Enabled))
	return nil
}

func (in *Interpreter) dir(args []string) error {
	dir, err := flagArg(args, 0, "dir needs 0|1")
	if err != nil {
		return in.invalid(err)
	}
	if err := in.axis.SetDirection(dir); err != nil {
		return err
	}
	in.printf("dir=%d\n", b2i(in.axis.Status().Direction))
	return nil
}

func (in *Interpreter) run(args []string) error {
	sps := in.axis.Speed()
	if len(args) > 0 {
		v, err := intArg(args, 0, "run needs <sps>")
		if err != nil {
			return in.invalid(err)
		}
		sps = v
	}
	if err := in.axis.Run(sps); err != nil {
		return err
	}
	s := in.axis.Status()
	in.printf("run sps=%d dir=%d\n", s.Speed, b2i(s.Direction))
	return nil
}

func (in *Interpreter) move(args []string) error {
	steps, err := int64Arg(args, 0, "move needs <steps>")
	if err != nil {
		return in.invalid(err)
	}
	sps := in.axis.Speed()
	if len(args) > 1 {
		if sps, err = intArg(args, 1, "move needs <steps> [sps]"); err != nil {
			return in.invalid(err)
		}
	}
	if err := in.axis.Move(steps, sps); err != nil {
		return err
	}
	s := in.axis.Status()
	in.printf("move steps=%d sps=%d dir=%d\n", s.Remaining, s.Speed, b2i(s.Direction))
	return nil
}

func (in *Interpreter) stop(_ []string) error {
	in.axis.Stop()
	in.printf("stopped\n")
	return nil
}

func (in *Interpreter) current(args []string) error {
	mA, err := intArg(args, 0, "current needs <mA>")
	if err != nil {
		return in.invalid(err)
	}
	if in.drv == nil {
		return ErrNoDriver
	}
	mA = clamp(mA, MinCurrent, MaxCurrent)
	if err := in.drv.SetRMSCurrent(physic.ElectricCurrent(mA) * physic.MilliAmpere); err != nil {
		return err
	}
	in.printf("rms_current(mA)=%d\n", mA)
	return nil
}

func (in *Interpreter) microsteps(args []string) error {
	n, err := intArg(args, 0, "microsteps needs <n>")
	if err != nil {
		return in.invalid(err)
	}
	if in.drv == nil {
		return ErrNoDriver
	}
	n, err = in.drv.SetMicrosteps(n)
	if err != nil {
		return err
	}
	in.printf("microsteps=%d\n", n)
	return nil
}

func (in *Interpreter) stealth(args []string) error {
	on, err := flagArg(args, 0, "stealth needs 0|1")
	if err != nil {
		return in.invalid(err)
	}
	if in.drv == nil {
		return ErrNoDriver
	}
	if err := in.drv.SetChopperMode(on); err != nil {
		return err
	}
	in.printf("stealth=%d\n", b2i(on))
	return nil
}

func (in *Interpreter) sgthrs(args []string) error {
	v, err := intArg(args, 0, "sgthrs needs 0..255")
	if err != nil {
		return in.invalid(err)
	}
	if in.drv == nil {
		return ErrNoDriver
	}
	got, err := in.drv.SetStallThreshold(clamp(v, 0, 255))
	if err != nil {
		return err
	}
	in.printf("SGTHRS=%d\n", got)
	return nil
}

func (in *Interpreter) shaft(args []string) error {
	on, err := flagArg(args, 0, "shaft needs 0|1")
	if err != nil {
		return in.invalid(err)
	}
	if in.drv == nil {
		return ErrNoDriver
	}
	if err := in.drv.SetShaft(on); err != nil {
		return err
	}
	in.printf("shaft=%d\n", b2i(on))
	return nil
}

func (in *Interpreter) tcoolthrs(args []string) error {
	return in.register(args, "tcoolthrs needs <tstep>", 0, maxTStep, tmc2209.TCOOLTHRS, func(v int) error {
		return in.drv.SetCoolStepThreshold(uint32(v))
	})
}

func (in *Interpreter) tpwmthrs(args []string) error {
	return in.register(args, "tpwmthrs needs <tstep>", 0, maxTStep, tmc2209.TPWMTHRS, func(v int) error {
		return in.drv.SetStealthThreshold(uint32(v))
	})
}

func (in *Interpreter) tpowerdown(args []string) error {
	return in.register(args, "tpowerdown needs 0..255", 0, 255, tmc2209.TPOWERDOWN, func(v int) error {
		return in.drv.SetPowerDownDelay(uint8(v))
	})
}

func (in *Interpreter) vactual(args []string) error {
	return in.register(args, "vactual needs <v>", -maxVelocity, maxVelocity, tmc2209.VACTUAL, func(v int) error {
		return in.drv.SetVelocity(int32(v))
	})
}

// register runs a command setting one numeric driver register. The value is
// clamped to [lo, hi] and echoed as "NAME=v".
func (in *Interpreter) register(args []string, usage string, lo, hi int, r tmc2209.Register, set func(v int) error) error {
	v, err := intArg(args, 0, usage)
	if err != nil {
		return in.invalid(err)
	}
	if in.drv == nil {
		return ErrNoDriver
	}
	v = clamp(v, lo, hi)
	if err := set(v); err != nil {
		return err
	}
	in.printf("%s=%d\n", r, v)
	return nil
}

func (in *Interpreter) dump(_ []string) error {
	if in.drv == nil {
		return ErrNoDriver
	}
	s, err := in.drv.ReadStatus()
	if err != nil {
		return err
	}
	return WriteReport(in.w, &s, in.palette)
}

// invalid reports an argument error to the operator.
func (in *Interpreter) invalid(err error) error {
	var u *usageError
	if errors.As(err, &u) {
		in.printf("%s\n", u.usage)
	}
	return err
}

func (in *Interpreter) printf(format string, a ...any) {
	fmt.Fprintf(in.w, format, a...)
}

// usageError is an ErrInvalidArgument with the message shown to the
// operator.
type usageError struct {
	usage string
	arg   string
}

func (u *usageError) Error() string {
	if u.arg == "" {
		return u.usage
	}
	return fmt.Sprintf("%s, got %q", u.usage, u.arg)
}

func (u *usageError) Unwrap() error {
	return ErrInvalidArgument
}

func int64Arg(args []string, i int, usage string) (int64, error) {
	if i >= len(args) {
		return 0, &usageError{usage: usage}
	}
	// Out of range numbers come back saturated with ErrRange; they get
	// clamped like any other out of range value.
	v, err := strconv.ParseInt(strings.TrimSpace(args[i]), 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, &usageError{usage: usage, arg: args[i]}
	}
	return v, nil
}

func intArg(args []string, i int, usage string) (int, error) {
	v, err := int64Arg(args, i, usage)
	if err != nil {
		return 0, err
	}
	// Anything this large is out of range for every command; keep the sign.
	return int(clamp64(v, -1<<31, 1<<31-1)), nil
}

func flagArg(args []string, i int, usage string) (bool, error) {
	v, err := int64Arg(args, i, usage)
	return v != 0, err
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
