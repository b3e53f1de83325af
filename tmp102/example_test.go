// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmp102_test

import (
	"fmt"
	"log"
	"time"

	"github.com/GermanBionicSystems/sensors/tmp102"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// Use i2creg I²C bus registry to find the first available I²C bus.
	bus, err := i2creg.Open("")
	if err != nil {
		log.Fatalf("failed to open I²C: %v", err)
	}
	defer bus.Close()

	dev, err := tmp102.NewI2C(bus, tmp102.DefaultAddress, &tmp102.Opts{SampleRate: tmp102.RateOneHertz})
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Halt()

	// Take a single conversion while the device stays in shutdown between
	// readings.
	t, err := dev.OneShot()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("One shot: %s\n", t)

	ch, err := dev.SenseContinuous(time.Second)
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		time.Sleep(10 * time.Second)
		dev.Halt()
	}()
	for e := range ch {
		fmt.Println(e.Temperature)
	}
}
