// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp9808_test

import (
	"fmt"
	"log"

	"github.com/GermanBionicSystems/sensors/mcp9808"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

func Example() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Close()

	dev, err := mcp9808.NewI2C(bus, mcp9808.DefaultAddress, &mcp9808.Opts{Resolution: mcp9808.Resolution0_25C})
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Halt()

	// Drive ALERT low above 30°C and clear it again below 28.5°C.
	err = dev.SetAlert(mcp9808.Alert{
		Lower:      physic.ZeroCelsius,
		Upper:      physic.ZeroCelsius + 30*physic.Kelvin,
		Critical:   physic.ZeroCelsius + 45*physic.Kelvin,
		Hysteresis: mcp9808.Hysteresis1_5C,
		Enabled:    true,
	})
	if err != nil {
		log.Fatal(err)
	}

	flags, t, err := dev.AlertStatus()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Temperature: %s upper=%t\n", t, flags&mcp9808.FlagUpper != 0)
}
