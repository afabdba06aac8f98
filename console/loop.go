// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/GermanBionicSystems/stepdrive/stepper"
	log "github.com/sirupsen/logrus"
)

// maxLinesPerIteration bounds the commands run between two scheduler ticks.
const maxLinesPerIteration = 8

// Loop is the host loop. It owns the axis: commands and scheduler ticks are
// all run from the goroutine calling Run or Iterate.
type Loop struct {
	in    *Interpreter
	axis  Axis
	lines <-chan string
	w     io.Writer
	log   log.FieldLogger
}

// NewLoop returns a Loop executing the lines received on lines with in, and
// ticking axis. Unsolicited messages, such as move completion, are written to
// w.
func NewLoop(in *Interpreter, axis Axis, lines <-chan string, w io.Writer, logger log.FieldLogger) *Loop {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Loop{in: in, axis: axis, lines: lines, w: w, log: logger}
}

// Iterate runs the commands already received, then ticks the scheduler once.
//
// It never waits for input.
func (l *Loop) Iterate(now stepper.Micros) {
drain:
	for i := 0; i < maxLinesPerIteration; i++ {
		select {
		case line, ok := <-l.lines:
			if !ok {
				l.log.Debug("command input closed")
				l.lines = nil
				break drain
			}
			if err := l.in.Execute(line); err != nil {
				l.log.WithError(err).WithField("line", line).Debug("command failed")
			}
		default:
			break drain
		}
	}

	done, err := l.axis.Tick(now)
	if err != nil {
		l.log.WithError(err).Warn("failed to drive step pins")
	}
	if done {
		fmt.Fprintln(l.w, "move done")
	}
}

// Run calls Iterate with the time read from c until ctx is canceled.
func (l *Loop) Run(ctx context.Context, c stepper.Clock) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		l.Iterate(c.Now())
		runtime.Gosched()
	}
}

// ReadLines sends each line read from r on the returned channel, until r
// returns an error or ctx is canceled. Carriage returns are dropped.
//
// It is meant to keep blocking reads out of the host loop.
func ReadLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string, maxLinesPerIteration)
	go func() {
		defer close(ch)
		s := bufio.NewScanner(r)
		for s.Scan() {
			select {
			case ch <- strings.ReplaceAll(s.Text(), "\r", ""):
			case <-ctx.Done():
				return
			}
		}
		if err := s.Err(); err != nil {
			log.WithError(err).Warn("failed to read commands")
		}
	}()
	return ch
}
