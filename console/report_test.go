// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/GermanBionicSystems/stepdrive/tmc2209"
	"github.com/google/go-cmp/cmp"
	"github.com/maruel/ansi256"
)

var reportStatus = tmc2209.Status{
	IFCnt:      12,
	IOIn:       0x21000341,
	GConf:      0x000001C0,
	GStat:      0x00000001,
	IHoldIRun:  0x00011209,
	TPowerDown: 20,
	TPWMThrs:   0,
	TCoolThrs:  0,
	SGThrs:     80,
	ChopConf:   0x14028054,
	PWMConf:    0xC10D0024,
	VActual:    0,
	TStep:      1048575,
	MSCnt:      8,
	MSCurAct:   0x00F70018,
	DrvStatus:  0xC0120081,
	SGResult:   291,
}

func TestWriteReport(t *testing.T) {
	var out bytes.Buffer
	if err := WriteReport(&out, &reportStatus, nil); err != nil {
		t.Fatal(err)
	}
	want := `
=== TMC2209 dump ===
IFCNT (UART OK counter) = 12
IOIN = 0x21000341
IOIN.version = 21
IOIN.enn/ms1/ms2/diag/pdn_uart/step/dir/spread_en = 1/0/0/0/1/0/1/1
GCONF = 0x000001C0
GSTAT = 0x00000001
IHOLD_IRUN = 0x00011209
TPOWERDOWN = 20
TPWMTHRS = 0x00000000
TCOOLTHRS = 0x00000000
SGTHRS = 80
CHOPCONF = 0x14028054
PWMCONF = 0xC10D0024
VACTUAL = 0x00000000
TSTEP = 1048575
MSCNT = 8
MSCURACT = 0x00F70018
DRV_STATUS = 0xC0120081
SG_RESULT = 291
Flags: ot=0 otpw=1 s2ga=0 s2gb=0 ola=0 olb=1 t120=0 t143=0 t150=0 t157=0 stst=1 stealth=1 cs_actual=18
=== end ===

`
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteReportColor(t *testing.T) {
	s := reportStatus
	s.DrvStatus = 0x00000006 // ot, s2ga
	var out bytes.Buffer
	if err := WriteReport(&out, &s, ansi256.Default); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{
		ansi256.Default.Block(colorFault) + "\033[0m temp",
		ansi256.Default.Block(colorFault) + "\033[0m s2g ",
		ansi256.Default.Block(colorOK) + "\033[0m s2vs",
		ansi256.Default.Block(colorOK) + "\033[0m load",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report lacks %q", want)
		}
	}
}

func TestExecuteDumpColor(t *testing.T) {
	var out bytes.Buffer
	d := &fakeDriver{status: reportStatus}
	in := New(newAxis(t), d, &out, &Opts{Color: true})
	if err := in.Execute("info"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), ansi256.Default.Block(colorWarn)) {
		t.Fatalf("no warning block for otpw:\n%q", out.String())
	}
}
