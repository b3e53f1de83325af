// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pcf8574_test

import (
	"fmt"
	"log"

	"github.com/GermanBionicSystems/sensors/pcf8574"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// Open default I²C bus.
	bus, err := i2creg.Open("")
	if err != nil {
		log.Fatalf("failed to open I²C: %v", err)
	}
	defer bus.Close()

	extender, err := pcf8574.New(bus, pcf8574.DefaultAddress)
	if err != nil {
		log.Fatalln(err)
	}
	defer extender.Halt()

	// Drive P0..P3 low and use P4..P7 as inputs.
	if err := extender.Write(0xf0); err != nil {
		log.Fatalln(err)
	}
	for _, pin := range extender.Pins[4:] {
		fmt.Printf("%s\t%s\n", pin.Name(), pin.Read())
	}
	if err := extender.Pins[0].Out(gpio.High); err != nil {
		log.Fatalln(err)
	}
}
