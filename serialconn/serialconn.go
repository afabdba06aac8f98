// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package serialconn exposes a serial port as a periph conn.Conn, for devices
// that use a request/reply protocol over a UART.
//
// On single wire buses, such as the PDN_UART pin of Trinamic drivers, every
// byte sent is also received. Opts.Echo makes Tx discard it.
package serialconn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"periph.io/x/conn/v3"
)

var (
	// ErrTimeout is returned when the device does not answer in time.
	ErrTimeout = errors.New("serialconn: read timeout")

	// ErrEcho is returned when the bytes read back do not match what was
	// sent, which happens when two nodes talk at the same time.
	ErrEcho = errors.New("serialconn: echo mismatch")
)

// Opts holds the configuration of the port.
type Opts struct {
	Baud int
	// Echo is set on single wire buses.
	Echo bool
	// Timeout bounds each read. It must be longer than the time the device
	// takes to answer.
	Timeout time.Duration
}

// DefaultOpts suits a TMC2209 on a USB serial adapter.
var DefaultOpts = Opts{
	Baud:    115200,
	Echo:    true,
	Timeout: 50 * time.Millisecond,
}

// Conn is a serial port used as a conn.Conn.
type Conn struct {
	name string
	port io.ReadWriter
	echo bool
	buf  []byte
}

// Open opens the serial port name, for example "/dev/ttyUSB0".
func Open(name string, opts *Opts) (*Conn, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	p, err := serial.Open(name, &serial.Mode{BaudRate: opts.Baud})
	if err != nil {
		return nil, fmt.Errorf("serialconn: failed to open %s: %w", name, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultOpts.Timeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("serialconn: failed to configure %s: %w", name, err)
	}
	return New(p, name, opts), nil
}

// New wraps an already opened port.
//
// Reads from port must return (0, nil) or an error on timeout, like
// go.bug.st/serial does.
func New(port io.ReadWriter, name string, opts *Opts) *Conn {
	if opts == nil {
		opts = &DefaultOpts
	}
	return &Conn{name: name, port: port, echo: opts.Echo}
}

func (c *Conn) String() string {
	return c.name
}

// Halt implements conn.Resource. It is a no-op.
func (c *Conn) Halt() error {
	return nil
}

// Close closes the port if it supports it.
func (c *Conn) Close() error {
	if cl, ok := c.port.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Duplex implements conn.Conn.
func (c *Conn) Duplex() conn.Duplex {
	if c.echo {
		return conn.Half
	}
	return conn.Full
}

// Tx sends w then reads len(r) bytes into r.
//
// Stale input is dropped before sending. With Opts.Echo the copy of w read
// back is checked and discarded.
func (c *Conn) Tx(w, r []byte) error {
	if f, ok := c.port.(interface{ ResetInputBuffer() error }); ok {
		if err := f.ResetInputBuffer(); err != nil {
			return fmt.Errorf("serialconn: %s: %w", c.name, err)
		}
	}
	if len(w) != 0 {
		if _, err := c.port.Write(w); err != nil {
			return fmt.Errorf("serialconn: %s: %w", c.name, err)
		}
		if c.echo {
			if cap(c.buf) < len(w) {
				c.buf = make([]byte, len(w))
			}
			echo := c.buf[:len(w)]
			if err := c.readFull(echo); err != nil {
				return err
			}
			if !bytes.Equal(echo, w) {
				return fmt.Errorf("%w on %s: sent % X, got % X", ErrEcho, c.name, w, echo)
			}
		}
	}
	if len(r) != 0 {
		return c.readFull(r)
	}
	return nil
}

func (c *Conn) readFull(b []byte) error {
	for off := 0; off < len(b); {
		n, err := c.port.Read(b[off:])
		if err != nil {
			return fmt.Errorf("serialconn: %s: %w", c.name, err)
		}
		if n == 0 {
			return fmt.Errorf("%w on %s after %d bytes", ErrTimeout, c.name, off)
		}
		off += n
	}
	return nil
}

var _ conn.Conn = &Conn{}
