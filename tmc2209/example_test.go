// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209_test

import (
	"fmt"
	"log"

	"github.com/GermanBionicSystems/stepdrive/serialconn"
	"github.com/GermanBionicSystems/stepdrive/tmc2209"
	"periph.io/x/conn/v3/physic"
)

func Example() {
	// PDN_UART wired to a USB serial adapter.
	c, err := serialconn.Open("/dev/ttyUSB0", &serialconn.DefaultOpts)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	dev, err := tmc2209.New(c, &tmc2209.DefaultOpts)
	if err != nil {
		log.Fatal(err)
	}
	if err := dev.Init(); err != nil {
		log.Fatal(err)
	}

	if err := dev.SetRMSCurrent(800 * physic.MilliAmpere); err != nil {
		log.Fatal(err)
	}
	if _, err := dev.SetMicrosteps(32); err != nil {
		log.Fatal(err)
	}

	s, err := dev.ReadStatus()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("version 0x%02X, %s\n", s.Version(), s.Driver())
}
