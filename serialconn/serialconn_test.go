// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package serialconn

import (
	"bytes"
	"errors"
	"testing"

	"periph.io/x/conn/v3"
)

// fakePort is a single wire bus: everything written is readable back,
// followed by the device reply.
type fakePort struct {
	rx      bytes.Buffer
	tx      bytes.Buffer
	reply   []byte
	echo    bool
	chunk   int
	resets  int
	corrupt bool
}

func (f *fakePort) Write(b []byte) (int, error) {
	f.tx.Write(b)
	if f.echo {
		e := append([]byte(nil), b...)
		if f.corrupt {
			e[0] ^= 0xFF
		}
		f.rx.Write(e)
	}
	f.rx.Write(f.reply)
	return len(b), nil
}

func (f *fakePort) Read(b []byte) (int, error) {
	if f.chunk > 0 && len(b) > f.chunk {
		b = b[:f.chunk]
	}
	if f.rx.Len() == 0 {
		return 0, nil
	}
	return f.rx.Read(b)
}

func (f *fakePort) ResetInputBuffer() error {
	f.resets++
	f.rx.Reset()
	return nil
}

func TestTx(t *testing.T) {
	for _, test := range []struct {
		name      string
		port      fakePort
		opts      Opts
		w         []byte
		rLen      int
		want      []byte
		expectErr error
	}{
		{
			name: "write only",
			port: fakePort{echo: true},
			opts: DefaultOpts,
			w:    []byte{0x05, 0x00, 0x81, 0, 0, 0, 7, 0x70},
		},
		{
			name: "read with echo",
			port: fakePort{echo: true, reply: []byte{1, 2, 3}},
			opts: DefaultOpts,
			w:    []byte{0x05, 0x00, 0x06, 0x6F},
			rLen: 3,
			want: []byte{1, 2, 3},
		},
		{
			name: "split reads",
			port: fakePort{echo: true, reply: []byte{1, 2, 3, 4, 5}, chunk: 2},
			opts: DefaultOpts,
			w:    []byte{9, 8, 7},
			rLen: 5,
			want: []byte{1, 2, 3, 4, 5},
		},
		{
			name: "full duplex",
			port: fakePort{reply: []byte{4}},
			opts: Opts{Echo: false},
			w:    []byte{1},
			rLen: 1,
			want: []byte{4},
		},
		{
			name:      "timeout",
			port:      fakePort{echo: true, reply: []byte{1}},
			opts:      DefaultOpts,
			w:         []byte{1},
			rLen:      2,
			expectErr: ErrTimeout,
		},
		{
			name:      "collision",
			port:      fakePort{echo: true, corrupt: true},
			opts:      DefaultOpts,
			w:         []byte{1, 2},
			expectErr: ErrEcho,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := New(&test.port, "fake", &test.opts)
			var r []byte
			if test.rLen != 0 {
				r = make([]byte, test.rLen)
			}
			err := c.Tx(test.w, r)
			if !errors.Is(err, test.expectErr) {
				t.Fatalf("expected error: %v, got: %v", test.expectErr, err)
			}
			if err != nil {
				return
			}
			if !bytes.Equal(test.port.tx.Bytes(), test.w) {
				t.Fatalf("sent % X, want % X", test.port.tx.Bytes(), test.w)
			}
			if !bytes.Equal(r, test.want) {
				t.Fatalf("read % X, want % X", r, test.want)
			}
			if test.port.resets != 1 {
				t.Fatalf("input reset %d times", test.port.resets)
			}
		})
	}
}

func TestConn(t *testing.T) {
	c := New(&fakePort{}, "/dev/ttyUSB0", nil)
	if c.String() != "/dev/ttyUSB0" {
		t.Fatalf("String() = %q", c.String())
	}
	if c.Duplex() != conn.Half {
		t.Fatalf("Duplex() = %v", c.Duplex())
	}
	if err := c.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if d := New(&fakePort{}, "x", &Opts{}).Duplex(); d != conn.Full {
		t.Fatalf("Duplex() = %v", d)
	}
}
