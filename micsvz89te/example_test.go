// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package micsvz89te_test

import (
	"fmt"
	"log"

	"github.com/GermanBionicSystems/sensors/micsvz89te"
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

	dev, err := micsvz89te.NewI2C(bus, micsvz89te.DefaultAddress)
	if err != nil {
		log.Fatal(err)
	}
	rev, err := dev.Revision()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Firmware: %s\n", rev)

	e := micsvz89te.Env{}
	if err := dev.Sense(&e); err != nil {
		log.Fatal(err)
	}
	fmt.Println(e.String())
}
