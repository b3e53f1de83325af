// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package max44009_test

import (
	"fmt"
	"log"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"github.com/GermanBionicSystems/sensors/max44009"
	"periph.io/x/conn/v3/i2c/i2creg"
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

	dev, err := max44009.NewI2C(bus, max44009.DefaultAddress, nil)
	if err != nil {
		log.Fatal(err)
	}
	// Assert INT when it gets dark or very bright for more than a second.
	if err := dev.SetThresholds(10*common.Lux, 10*common.KiloLux, time.Second); err != nil {
		log.Fatal(err)
	}
	if err := dev.EnableInterrupt(true); err != nil {
		log.Fatal(err)
	}
	l, err := dev.Sense()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Illuminance: %s\n", l)
}
