// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/stepdrive/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

const (
	syncByte   = 0x05
	masterAddr = 0xFF
	writeFlag  = 0x80
)

var (
	// ErrConnectionFailed is returned when the driver does not answer or is
	// not a TMC2209.
	ErrConnectionFailed = errors.New("failed to connect to TMC2209")

	// ErrInvalidSetting is returned when you provide an invalid value.
	ErrInvalidSetting = errors.New("invalid setting")

	// ErrCRC is returned when a reply datagram has a bad checksum.
	ErrCRC = errors.New("CRC mismatch")

	// ErrBadReply is returned when a reply datagram is malformed or answers
	// another register.
	ErrBadReply = errors.New("unexpected reply")
)

// Opts holds the configuration of the driver.
type Opts struct {
	// Node is the UART address selected by the MS1/MS2 pins, 0 to 3.
	Node uint8
	// SenseResistor is the value of the current sense resistors on the board.
	SenseResistor physic.ElectricResistance
	// HoldMultiplier is the standstill current as a fraction of the run
	// current.
	HoldMultiplier float64

	// The following are programmed by Init.

	// Current is the RMS run current.
	Current physic.ElectricCurrent
	// Microsteps is the number of microsteps per full step.
	Microsteps int
	// Stealth selects StealthChop instead of SpreadCycle.
	Stealth bool
	// TOff is the chopper off time, 1 to 15.
	TOff uint8
	// BlankTime is the comparator blank time in clock cycles: 16, 24, 32 or
	// 40.
	BlankTime int
}

// DefaultOpts is the recommended default options. It matches SilentStepStick
// style boards.
var DefaultOpts = Opts{
	Node:           0,
	SenseResistor:  110 * physic.MilliOhm,
	HoldMultiplier: 0.5,
	Current:        600 * physic.MilliAmpere,
	Microsteps:     16,
	Stealth:        true,
	TOff:           4,
	BlankTime:      24,
}

// Dev is a handle to a TMC2209.
type Dev struct {
	c    conn.Conn
	opts Opts

	// Copies of registers that are write only or that are updated field by
	// field.
	gconf      uint32
	chopconf   uint32
	pwmconf    uint32
	iholdIrun  uint32
	tpowerdown uint8
	tpwmthrs   uint32
	tcoolthrs  uint32
	sgthrs     uint8
	vactual    uint32
}

// New returns a handle to the TMC2209 at opts.Node on c.
//
// c must discard the echo of transmitted bytes on single wire setups. The
// connection is tested by reading the chip version.
func New(c conn.Conn, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Node > 3 {
		return nil, fmt.Errorf("tmc2209: node %d: %w", opts.Node, ErrInvalidSetting)
	}
	d := &Dev{
		c:          c,
		opts:       *opts,
		gconf:      resetGCONF,
		chopconf:   resetCHOPCONF,
		pwmconf:    resetPWMCONF,
		iholdIrun:  resetIHOLD_IRUN,
		tpowerdown: resetTPOWERDOWN,
	}
	if d.opts.SenseResistor <= 0 {
		d.opts.SenseResistor = DefaultOpts.SenseResistor
	}
	if d.opts.HoldMultiplier <= 0 || d.opts.HoldMultiplier > 1 {
		d.opts.HoldMultiplier = DefaultOpts.HoldMultiplier
	}

	v, err := d.ReadRegister(IOIN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if version := uint8(v >> 24); version != chipVersion {
		return nil, fmt.Errorf("%w: version 0x%02X", ErrConnectionFailed, version)
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("TMC2209{node=%d}", d.opts.Node)
}

// Halt disables the power stage by setting the chopper off time to 0. The
// motor is left unpowered.
//
// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return d.writeChopConf(d.chopconf &^ chopTOffMask)
}

// Init programs the driver for UART control with the settings of the options
// given to New:
//
//   - PDN_UART is used as UART, the current reference is internal and the
//     microstep resolution comes from CHOPCONF.
//   - TOff, BlankTime, Current, Microsteps and Stealth are programmed.
//   - Latched GSTAT flags are cleared.
func (d *Dev) Init() error {
	if d.opts.TOff == 0 || d.opts.TOff > 15 {
		return fmt.Errorf("tmc2209: toff %d: %w", d.opts.TOff, ErrInvalidSetting)
	}
	tbl, err := blankTimeBits(d.opts.BlankTime)
	if err != nil {
		return err
	}
	if d.opts.Current <= 0 {
		return fmt.Errorf("tmc2209: current %s: %w", d.opts.Current, ErrInvalidSetting)
	}

	gconf := d.gconf&^(gconfIScaleAnalog|gconfEnSpreadCycle) | gconfPDNDisable | gconfMstepRegSel
	if !d.opts.Stealth {
		gconf |= gconfEnSpreadCycle
	}
	chopconf := d.chopconf&^(chopTOffMask|chopTBLMask) | uint32(d.opts.TOff) | tbl<<chopTBLShift
	chopconf, iholdIrun := d.currentFields(chopconf, d.opts.Current)
	_, mres := microstepsMRES(d.opts.Microsteps)
	chopconf = chopconf&^chopMRESMask | mres<<chopMRESShift

	if err := d.writeReg(GCONF, gconf); err != nil {
		return err
	}
	d.gconf = gconf
	if err := d.writeChopConf(chopconf); err != nil {
		return err
	}
	if err := d.writeReg(IHOLD_IRUN, iholdIrun); err != nil {
		return err
	}
	d.iholdIrun = iholdIrun
	if err := d.writeReg(PWMCONF, d.pwmconf|pwmAutoscale); err != nil {
		return err
	}
	d.pwmconf |= pwmAutoscale
	return d.ClearStatus()
}

// ClearStatus clears the latched reset, overtemperature/short and undervoltage
// flags in GSTAT.
func (d *Dev) ClearStatus() error {
	return d.writeReg(GSTAT, 0x7)
}

// SetRMSCurrent sets the RMS run current. The hold current is derived from it
// with Opts.HoldMultiplier.
//
// The sense voltage range is switched to high sensitivity when the current is
// too low to be represented with enough resolution. Currents above what the
// sense resistors allow are capped.
func (d *Dev) SetRMSCurrent(i physic.ElectricCurrent) error {
	if i <= 0 {
		return fmt.Errorf("tmc2209: current %s: %w", i, ErrInvalidSetting)
	}
	chopconf, iholdIrun := d.currentFields(d.chopconf, i)
	if err := d.writeChopConf(chopconf); err != nil {
		return err
	}
	if err := d.writeReg(IHOLD_IRUN, iholdIrun); err != nil {
		return err
	}
	d.iholdIrun = iholdIrun
	return nil
}

// RMSCurrent returns the RMS run current programmed, as rounded by the current
// scale.
func (d *Dev) RMSCurrent() physic.ElectricCurrent {
	cs := float64((d.iholdIrun >> irunShift) & 0x1F)
	vfs := 0.325
	if d.chopconf&chopVSense != 0 {
		vfs = 0.180
	}
	a := (cs + 1) / 32 * vfs / (d.senseOhms() + 0.02) / 1.41421
	return physic.ElectricCurrent(a * float64(physic.Ampere))
}

// currentFields returns chopconf with VSENSE updated and the IHOLD_IRUN value
// for an RMS current of i.
func (d *Dev) currentFields(chopconf uint32, i physic.ElectricCurrent) (uint32, uint32) {
	amps := float64(i) / float64(physic.Ampere)
	r := d.senseOhms() + 0.02
	cs := 32*1.41421*amps*r/0.325 - 1
	chopconf &^= chopVSense
	if cs < 16 {
		chopconf |= chopVSense
		cs = 32*1.41421*amps*r/0.180 - 1
	}
	if cs < 0 {
		cs = 0
	}
	if cs > 31 {
		cs = 31
	}
	irun := uint32(cs)
	ihold := uint32(float64(irun) * d.opts.HoldMultiplier)
	delay := d.iholdIrun & (0xF << iholdDelayShift)
	return chopconf, delay | irun<<irunShift | ihold
}

func (d *Dev) senseOhms() float64 {
	return float64(d.opts.SenseResistor) / float64(physic.Ohm)
}

// SetMicrosteps sets the microstep resolution and returns the value used.
//
// n is clamped to [1, 256] and rounded down to a power of two.
func (d *Dev) SetMicrosteps(n int) (int, error) {
	n, mres := microstepsMRES(n)
	if err := d.writeChopConf(d.chopconf&^chopMRESMask | mres<<chopMRESShift); err != nil {
		return 0, err
	}
	return n, nil
}

// Microsteps returns the microstep resolution programmed.
func (d *Dev) Microsteps() int {
	return 256 >> ((d.chopconf & chopMRESMask) >> chopMRESShift)
}

func microstepsMRES(n int) (int, uint32) {
	if n < 1 {
		n = 1
	}
	if n > 256 {
		n = 256
	}
	mres := uint32(8)
	for 1<<(8-mres+1) <= n && mres > 0 {
		mres--
	}
	return 256 >> mres, mres
}

// SetChopperMode selects StealthChop (true) or SpreadCycle (false). PWM
// automatic scaling is always turned on.
func (d *Dev) SetChopperMode(stealth bool) error {
	gconf := d.gconf | gconfEnSpreadCycle
	if stealth {
		gconf &^= gconfEnSpreadCycle
	}
	if err := d.writeReg(GCONF, gconf); err != nil {
		return err
	}
	d.gconf = gconf
	if err := d.writeReg(PWMCONF, d.pwmconf|pwmAutoscale); err != nil {
		return err
	}
	d.pwmconf |= pwmAutoscale
	return nil
}

// SetShaft inverts the motor direction when true.
func (d *Dev) SetShaft(inverse bool) error {
	gconf := d.gconf &^ gconfShaft
	if inverse {
		gconf |= gconfShaft
	}
	if err := d.writeReg(GCONF, gconf); err != nil {
		return err
	}
	d.gconf = gconf
	return nil
}

// SetStallThreshold sets the StallGuard threshold and returns the value used.
// v is clamped to [0, 255].
func (d *Dev) SetStallThreshold(v int) (uint8, error) {
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	if err := d.writeReg(SGTHRS, uint32(v)); err != nil {
		return 0, err
	}
	d.sgthrs = uint8(v)
	return d.sgthrs, nil
}

// SetCoolStepThreshold sets TCOOLTHRS, the TSTEP value below which
// CoolStep and StallGuard output on DIAG are enabled.
func (d *Dev) SetCoolStepThreshold(tstep uint32) error {
	tstep &= 0xFFFFF
	if err := d.writeReg(TCOOLTHRS, tstep); err != nil {
		return err
	}
	d.tcoolthrs = tstep
	return nil
}

// SetStealthThreshold sets TPWMTHRS, the TSTEP value below which the driver
// switches from StealthChop to SpreadCycle.
func (d *Dev) SetStealthThreshold(tstep uint32) error {
	tstep &= 0xFFFFF
	if err := d.writeReg(TPWMTHRS, tstep); err != nil {
		return err
	}
	d.tpwmthrs = tstep
	return nil
}

// SetPowerDownDelay sets TPOWERDOWN, the delay from standstill to current
// reduction, in units of 2^18 clock cycles.
func (d *Dev) SetPowerDownDelay(v uint8) error {
	if err := d.writeReg(TPOWERDOWN, uint32(v)); err != nil {
		return err
	}
	d.tpowerdown = v
	return nil
}

// SetVelocity makes the driver generate steps on its own at v, in units of
// 0.715 microsteps per second with the internal clock. 0 hands control back to
// the STEP input.
func (d *Dev) SetVelocity(v int32) error {
	if v < -(1<<23) || v >= 1<<23 {
		return fmt.Errorf("tmc2209: velocity %d: %w", v, ErrInvalidSetting)
	}
	u := uint32(v) & 0xFFFFFF
	if err := d.writeReg(VACTUAL, u); err != nil {
		return err
	}
	d.vactual = u
	return nil
}

// ReadStatus reads the diagnostic registers.
func (d *Dev) ReadStatus() (Status, error) {
	s := Status{
		IHoldIRun:  d.iholdIrun,
		TPowerDown: d.tpowerdown,
		TPWMThrs:   d.tpwmthrs,
		TCoolThrs:  d.tcoolthrs,
		SGThrs:     d.sgthrs,
		VActual:    d.vactual,
	}
	var ifcnt, mscnt, sgResult uint32
	for _, r := range []struct {
		reg Register
		v   *uint32
	}{
		{IFCNT, &ifcnt},
		{IOIN, &s.IOIn},
		{GCONF, &s.GConf},
		{GSTAT, &s.GStat},
		{CHOPCONF, &s.ChopConf},
		{PWMCONF, &s.PWMConf},
		{TSTEP, &s.TStep},
		{MSCNT, &mscnt},
		{MSCURACT, &s.MSCurAct},
		{DRV_STATUS, &s.DrvStatus},
		{SG_RESULT, &sgResult},
	} {
		v, err := d.ReadRegister(r.reg)
		if err != nil {
			return Status{}, err
		}
		*r.v = v
	}
	s.IFCnt = uint8(ifcnt)
	s.MSCnt = uint16(mscnt & 0x3FF)
	s.SGResult = uint16(sgResult & 0x3FF)
	return s, nil
}

// ReadRegister reads a register.
func (d *Dev) ReadRegister(reg Register) (uint32, error) {
	w := []byte{syncByte, d.opts.Node, byte(reg), 0}
	w[3] = common.CRC8(w[:3])
	r := make([]byte, 8)
	if err := d.c.Tx(w, r); err != nil {
		return 0, fmt.Errorf("tmc2209: failed to read %s: %w", reg, err)
	}
	if r[0] != syncByte || r[1] != masterAddr || r[2] != byte(reg) {
		return 0, fmt.Errorf("tmc2209: reading %s got % X: %w", reg, r, ErrBadReply)
	}
	if crc := common.CRC8(r[:7]); crc != r[7] {
		return 0, fmt.Errorf("tmc2209: reading %s got CRC 0x%02X, want 0x%02X: %w", reg, r[7], crc, ErrCRC)
	}
	return binary.BigEndian.Uint32(r[3:7]), nil
}

// WriteRegister writes a register.
//
// The copy of write only registers kept by Dev is not updated; prefer the
// typed setters.
func (d *Dev) WriteRegister(reg Register, v uint32) error {
	return d.writeReg(reg, v)
}

func (d *Dev) writeReg(reg Register, v uint32) error {
	w := make([]byte, 8)
	w[0] = syncByte
	w[1] = d.opts.Node
	w[2] = byte(reg) | writeFlag
	binary.BigEndian.PutUint32(w[3:7], v)
	w[7] = common.CRC8(w[:7])
	if err := d.c.Tx(w, nil); err != nil {
		return fmt.Errorf("tmc2209: failed to write %s: %w", reg, err)
	}
	return nil
}

func (d *Dev) writeChopConf(v uint32) error {
	if err := d.writeReg(CHOPCONF, v); err != nil {
		return err
	}
	d.chopconf = v
	return nil
}

func blankTimeBits(clocks int) (uint32, error) {
	switch clocks {
	case 16:
		return 0, nil
	case 24:
		return 1, nil
	case 32:
		return 2, nil
	case 40:
		return 3, nil
	default:
		return 0, fmt.Errorf("tmc2209: blank time %d: %w", clocks, ErrInvalidSetting)
	}
}
