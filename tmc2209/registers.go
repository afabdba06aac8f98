// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import "fmt"

// Register is a register address.
type Register uint8

const (
	GCONF      Register = 0x00
	GSTAT      Register = 0x01
	IFCNT      Register = 0x02
	SLAVECONF  Register = 0x03
	IOIN       Register = 0x06
	IHOLD_IRUN Register = 0x10
	TPOWERDOWN Register = 0x11
	TSTEP      Register = 0x12
	TPWMTHRS   Register = 0x13
	TCOOLTHRS  Register = 0x14
	VACTUAL    Register = 0x22
	SGTHRS     Register = 0x40
	SG_RESULT  Register = 0x41
	COOLCONF   Register = 0x42
	MSCNT      Register = 0x6A
	MSCURACT   Register = 0x6B
	CHOPCONF   Register = 0x6C
	DRV_STATUS Register = 0x6F
	PWMCONF    Register = 0x70
	PWM_SCALE  Register = 0x71
	PWM_AUTO   Register = 0x72
)

var registerNames = map[Register]string{
	GCONF:      "GCONF",
	GSTAT:      "GSTAT",
	IFCNT:      "IFCNT",
	SLAVECONF:  "SLAVECONF",
	IOIN:       "IOIN",
	IHOLD_IRUN: "IHOLD_IRUN",
	TPOWERDOWN: "TPOWERDOWN",
	TSTEP:      "TSTEP",
	TPWMTHRS:   "TPWMTHRS",
	TCOOLTHRS:  "TCOOLTHRS",
	VACTUAL:    "VACTUAL",
	SGTHRS:     "SGTHRS",
	SG_RESULT:  "SG_RESULT",
	COOLCONF:   "COOLCONF",
	MSCNT:      "MSCNT",
	MSCURACT:   "MSCURACT",
	CHOPCONF:   "CHOPCONF",
	DRV_STATUS: "DRV_STATUS",
	PWMCONF:    "PWMCONF",
	PWM_SCALE:  "PWM_SCALE",
	PWM_AUTO:   "PWM_AUTO",
}

func (r Register) String() string {
	if s, ok := registerNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Register(0x%02X)", uint8(r))
}

// GCONF bits.
const (
	gconfIScaleAnalog  = 1 << 0
	gconfEnSpreadCycle = 1 << 2
	gconfShaft         = 1 << 3
	gconfPDNDisable    = 1 << 6
	gconfMstepRegSel   = 1 << 7
	gconfMultistepFilt = 1 << 8
)

// CHOPCONF fields.
const (
	chopTOffMask  = 0xF
	chopTBLShift  = 15
	chopTBLMask   = 0x3 << chopTBLShift
	chopVSense    = 1 << 17
	chopMRESShift = 24
	chopMRESMask  = 0xF << chopMRESShift
	chopIntPol    = 1 << 28
)

// PWMCONF bits.
const pwmAutoscale = 1 << 18

// IHOLD_IRUN fields.
const (
	irunShift       = 8
	iholdDelayShift = 16
)

// Power on values of the registers the driver keeps a copy of.
const (
	resetGCONF      = gconfIScaleAnalog | gconfMultistepFilt
	resetCHOPCONF   = 0x10000053
	resetPWMCONF    = 0xC10D0024
	resetIHOLD_IRUN = 1<<iholdDelayShift | 31<<irunShift | 16
	resetTPOWERDOWN = 20
)

// chipVersion is IOIN.VERSION of a TMC2209.
const chipVersion = 0x21

// Inputs is the state of the input pins, as reported in IOIN.
type Inputs struct {
	ENN      bool
	MS1      bool
	MS2      bool
	DIAG     bool
	PDNUART  bool
	Step     bool
	SpreadEn bool
	Dir      bool
}

func (i Inputs) String() string {
	return fmt.Sprintf("enn/ms1/ms2/diag/pdn_uart/step/dir/spread_en = %d/%d/%d/%d/%d/%d/%d/%d",
		b2i(i.ENN), b2i(i.MS1), b2i(i.MS2), b2i(i.DIAG), b2i(i.PDNUART), b2i(i.Step), b2i(i.Dir), b2i(i.SpreadEn))
}

// DriverStatus is the decoded content of DRV_STATUS.
type DriverStatus struct {
	// Overtemperature pre-warning and shutdown.
	OTPW bool
	OT   bool
	// Short to ground and short to supply, per phase.
	S2GA  bool
	S2GB  bool
	S2VSA bool
	S2VSB bool
	// Open load, per phase.
	OLA bool
	OLB bool
	// Temperature thresholds exceeded.
	T120 bool
	T143 bool
	T150 bool
	T157 bool
	// Actual current scale, 0 to 31.
	CSActual uint8
	// StealthChop is active.
	Stealth bool
	// Standstill.
	Stst bool
}

// Fault returns true if the driver has shut down or sees a short.
func (d DriverStatus) Fault() bool {
	return d.OT || d.S2GA || d.S2GB || d.S2VSA || d.S2VSB
}

func (d DriverStatus) String() string {
	return fmt.Sprintf("ot=%d otpw=%d s2ga=%d s2gb=%d ola=%d olb=%d t120=%d t143=%d t150=%d t157=%d stst=%d stealth=%d cs_actual=%d",
		b2i(d.OT), b2i(d.OTPW), b2i(d.S2GA), b2i(d.S2GB), b2i(d.OLA), b2i(d.OLB),
		b2i(d.T120), b2i(d.T143), b2i(d.T150), b2i(d.T157), b2i(d.Stst), b2i(d.Stealth), d.CSActual)
}

// Status is a snapshot of the driver registers.
//
// IHoldIRun, TPowerDown, TPWMThrs, TCoolThrs, SGThrs and VActual are write
// only; they hold the last value written by this package, or the power on
// value.
type Status struct {
	IFCnt      uint8
	IOIn       uint32
	GConf      uint32
	GStat      uint32
	IHoldIRun  uint32
	TPowerDown uint8
	TPWMThrs   uint32
	TCoolThrs  uint32
	SGThrs     uint8
	ChopConf   uint32
	PWMConf    uint32
	VActual    uint32
	TStep      uint32
	MSCnt      uint16
	MSCurAct   uint32
	DrvStatus  uint32
	SGResult   uint16
}

// Version returns the chip version, 0x21 for a TMC2209.
func (s *Status) Version() uint8 {
	return uint8(s.IOIn >> 24)
}

// Inputs decodes IOIN.
func (s *Status) Inputs() Inputs {
	return Inputs{
		ENN:      s.IOIn&(1<<0) != 0,
		MS1:      s.IOIn&(1<<2) != 0,
		MS2:      s.IOIn&(1<<3) != 0,
		DIAG:     s.IOIn&(1<<4) != 0,
		PDNUART:  s.IOIn&(1<<6) != 0,
		Step:     s.IOIn&(1<<7) != 0,
		SpreadEn: s.IOIn&(1<<8) != 0,
		Dir:      s.IOIn&(1<<9) != 0,
	}
}

// Driver decodes DRV_STATUS.
func (s *Status) Driver() DriverStatus {
	v := s.DrvStatus
	return DriverStatus{
		OTPW:     v&(1<<0) != 0,
		OT:       v&(1<<1) != 0,
		S2GA:     v&(1<<2) != 0,
		S2GB:     v&(1<<3) != 0,
		S2VSA:    v&(1<<4) != 0,
		S2VSB:    v&(1<<5) != 0,
		OLA:      v&(1<<6) != 0,
		OLB:      v&(1<<7) != 0,
		T120:     v&(1<<8) != 0,
		T143:     v&(1<<9) != 0,
		T150:     v&(1<<10) != 0,
		T157:     v&(1<<11) != 0,
		CSActual: uint8(v>>16) & 0x1F,
		Stealth:  v&(1<<30) != 0,
		Stst:     v&(1<<31) != 0,
	}
}

// Microsteps decodes CHOPCONF.MRES.
func (s *Status) Microsteps() int {
	return 256 >> ((s.ChopConf & chopMRESMask) >> chopMRESShift)
}

// Stealth returns true when StealthChop is selected in GCONF.
func (s *Status) Stealth() bool {
	return s.GConf&gconfEnSpreadCycle == 0
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
