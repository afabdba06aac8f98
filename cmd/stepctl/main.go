// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// stepctl drives one stepper axis from line commands.
//
// Steps are generated on GPIO lines of the host. A TMC2209 connected through a
// serial adapter on its PDN_UART pin can be configured at run time.
//
// Usage:
//
//	stepctl -step GPIO17 -dir GPIO27 -en GPIO22 -uart /dev/ttyUSB0
//
// Commands are read from stdin, or from a serial port with -console. Type
// "help" for the list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/GermanBionicSystems/stepdrive/console"
	"github.com/GermanBionicSystems/stepdrive/serialconn"
	"github.com/GermanBionicSystems/stepdrive/stepper"
	"github.com/GermanBionicSystems/stepdrive/tmc2209"
	"github.com/mattn/go-colorable"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stepctl: %s.\n", err)
		os.Exit(1)
	}
}

func run() error {
	stepPin := flag.String("step", "GPIO17", "STEP pin")
	dirPin := flag.String("dir", "GPIO27", "DIR pin")
	enPin := flag.String("en", "GPIO22", "EN pin, empty when hardwired")
	enActiveLow := flag.Bool("en-active-low", true, "driver is enabled by pulling EN low")
	pulse := flag.Duration("pulse", stepper.DefaultOpts.PulseWidth, "step pulse width")
	speed := flag.Int("speed", stepper.DefaultOpts.Speed, "initial speed in steps/s")

	uart := flag.String("uart", "", "serial device connected to PDN_UART, empty for none")
	baud := flag.Int("baud", serialconn.DefaultOpts.Baud, "UART baud rate")
	echo := flag.Bool("echo", true, "single wire UART, discard the echo")
	node := flag.Uint("node", 0, "TMC2209 node address, 0 to 3")
	rsense := flag.Float64("rsense", 0.11, "sense resistor in Ω")
	current := flag.Int("current", 600, "initial RMS current in mA")
	microsteps := flag.Int("microsteps", 16, "initial microsteps")
	spread := flag.Bool("spreadcycle", false, "start in SpreadCycle instead of StealthChop")

	consoleDev := flag.String("console", "", "serial device to read commands from instead of stdin")
	consoleBaud := flag.Int("console-baud", 115200, "console baud rate")
	color := flag.Bool("color", true, "use colors in reports")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	step, err := pinByName(*stepPin)
	if err != nil {
		return err
	}
	dir, err := pinByName(*dirPin)
	if err != nil {
		return err
	}
	var en gpio.PinOut
	if *enPin != "" {
		if en, err = pinByName(*enPin); err != nil {
			return err
		}
	}
	axis, err := stepper.New(step, dir, en, &stepper.Opts{
		PulseWidth:      *pulse,
		Guard:           stepper.DefaultOpts.Guard,
		Speed:           *speed,
		EnableActiveLow: *enActiveLow,
	})
	if err != nil {
		return err
	}
	defer axis.Halt()
	log.WithFields(log.Fields{"step": *stepPin, "dir": *dirPin, "en": *enPin}).Info("stepper ready")

	var in io.Reader = os.Stdin
	var out io.Writer = colorable.NewColorableStdout()
	if *consoleDev != "" {
		// No read timeout: the port blocks until a byte arrives.
		p, err := serial.Open(*consoleDev, &serial.Mode{BaudRate: *consoleBaud})
		if err != nil {
			return fmt.Errorf("failed to open console %s: %w", *consoleDev, err)
		}
		defer p.Close()
		in, out = p, p
	}

	var drv console.Driver
	if *uart != "" {
		d, err := openDriver(*uart, &serialconn.Opts{Baud: *baud, Echo: *echo, Timeout: serialconn.DefaultOpts.Timeout}, &tmc2209.Opts{
			Node:           uint8(*node),
			SenseResistor:  physic.ElectricResistance(*rsense * float64(physic.Ohm)),
			HoldMultiplier: tmc2209.DefaultOpts.HoldMultiplier,
			Current:        physic.ElectricCurrent(*current) * physic.MilliAmpere,
			Microsteps:     *microsteps,
			Stealth:        !*spread,
			TOff:           tmc2209.DefaultOpts.TOff,
			BlankTime:      tmc2209.DefaultOpts.BlankTime,
		})
		if err != nil {
			log.WithError(err).Warn("continuing without driver configuration")
		} else {
			defer d.Halt()
			drv = d
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interp := console.New(axis, drv, out, &console.Opts{Color: *color})
	fmt.Fprintln(out, "Ready. Type 'help'.")
	if drv != nil {
		_ = interp.Execute("info")
	}
	loop := console.NewLoop(interp, axis, console.ReadLines(ctx, in), out, log.StandardLogger())
	if err := loop.Run(ctx, stepper.NewMonotonicClock()); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func pinByName(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no pin %q", name)
	}
	return p, nil
}

func openDriver(dev string, copts *serialconn.Opts, opts *tmc2209.Opts) (*tmc2209.Dev, error) {
	c, err := serialconn.Open(dev, copts)
	if err != nil {
		return nil, err
	}
	d, err := tmc2209.New(c, opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := d.Init(); err != nil {
		c.Close()
		return nil, err
	}
	log.WithField("uart", dev).Info("TMC2209 initialized")
	return d, nil
}
