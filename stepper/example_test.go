// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper_test

import (
	"fmt"
	"log"
	"runtime"

	"github.com/GermanBionicSystems/stepdrive/stepper"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	step := gpioreg.ByName("GPIO17")
	dir := gpioreg.ByName("GPIO27")
	en := gpioreg.ByName("GPIO22")
	if step == nil || dir == nil || en == nil {
		log.Fatal("failed to find pins")
	}

	dev, err := stepper.New(step, dir, en, &stepper.DefaultOpts)
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Halt()

	// 1600 steps backward at 800 steps/s.
	if err := dev.Move(-1600, 800); err != nil {
		log.Fatal(err)
	}

	clock := stepper.NewMonotonicClock()
	for {
		done, err := dev.Tick(clock.Now())
		if err != nil {
			log.Fatal(err)
		}
		if done {
			break
		}
		runtime.Gosched()
	}
	fmt.Println(dev.Status())
}

func ExampleMotion() {
	m := stepper.NewMotion(nil)
	m.Move(2, 1000)
	for now := stepper.Micros(0); now < 2000; now += 500 {
		e := m.Tick(now)
		fmt.Println(now, e.Step, e.Done)
	}
	// Output:
	// 0 rising false
	// 500 falling false
	// 1000 rising true
	// 1500 falling false
}
