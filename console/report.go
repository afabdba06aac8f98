// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package console

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/GermanBionicSystems/stepdrive/tmc2209"
	"github.com/maruel/ansi256"
)

var (
	colorOK    = color.NRGBA{0x00, 0xC0, 0x00, 0xFF}
	colorWarn  = color.NRGBA{0xE0, 0xC0, 0x00, 0xFF}
	colorFault = color.NRGBA{0xE0, 0x00, 0x00, 0xFF}
)

// WriteReport writes a human readable dump of the driver registers.
//
// When p is not nil, a row of colored blocks summarizes the driver health:
// temperature, short to ground, short to supply and open load.
func WriteReport(w io.Writer, s *tmc2209.Status, p *ansi256.Palette) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "\n=== TMC2209 dump ===\n")
	fmt.Fprintf(&b, "IFCNT (UART OK counter) = %d\n", s.IFCnt)
	hex32(&b, tmc2209.IOIN, s.IOIn)
	fmt.Fprintf(&b, "IOIN.version = %X\n", s.Version())
	fmt.Fprintf(&b, "IOIN.%s\n", s.Inputs())

	hex32(&b, tmc2209.GCONF, s.GConf)
	hex32(&b, tmc2209.GSTAT, s.GStat)
	hex32(&b, tmc2209.IHOLD_IRUN, s.IHoldIRun)
	fmt.Fprintf(&b, "%s = %d\n", tmc2209.TPOWERDOWN, s.TPowerDown)
	hex32(&b, tmc2209.TPWMTHRS, s.TPWMThrs)
	hex32(&b, tmc2209.TCOOLTHRS, s.TCoolThrs)
	fmt.Fprintf(&b, "%s = %d\n", tmc2209.SGTHRS, s.SGThrs)
	hex32(&b, tmc2209.CHOPCONF, s.ChopConf)
	hex32(&b, tmc2209.PWMCONF, s.PWMConf)

	hex32(&b, tmc2209.VACTUAL, s.VActual)
	fmt.Fprintf(&b, "%s = %d\n", tmc2209.TSTEP, s.TStep)
	fmt.Fprintf(&b, "%s = %d\n", tmc2209.MSCNT, s.MSCnt)
	hex32(&b, tmc2209.MSCURACT, s.MSCurAct)
	hex32(&b, tmc2209.DRV_STATUS, s.DrvStatus)
	fmt.Fprintf(&b, "%s = %d\n", tmc2209.SG_RESULT, s.SGResult)

	d := s.Driver()
	fmt.Fprintf(&b, "Flags: %s\n", d)
	if p != nil {
		healthStrip(&b, p, d)
	}
	fmt.Fprintf(&b, "=== end ===\n\n")
	_, err := b.WriteTo(w)
	return err
}

func hex32(w io.Writer, r tmc2209.Register, v uint32) {
	fmt.Fprintf(w, "%s = 0x%08X\n", r, v)
}

// healthStrip writes one colored block per health group.
func healthStrip(b *bytes.Buffer, p *ansi256.Palette, d tmc2209.DriverStatus) {
	groups := []struct {
		name  string
		fault bool
		warn  bool
	}{
		{"temp", d.OT, d.OTPW || d.T120},
		{"s2g", d.S2GA || d.S2GB, false},
		{"s2vs", d.S2VSA || d.S2VSB, false},
		{"load", false, d.OLA || d.OLB},
	}
	b.WriteString("\033[0m")
	for _, g := range groups {
		c := colorOK
		switch {
		case g.fault:
			c = colorFault
		case g.warn:
			c = colorWarn
		}
		b.WriteString(p.Block(c))
		b.WriteString("\033[0m ")
		b.WriteString(g.name)
		b.WriteString(" ")
	}
	b.WriteString("\033[0m\n")
}
