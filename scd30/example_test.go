// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd30_test

import (
	"fmt"
	"log"
	"time"

	"github.com/GermanBionicSystems/sensors/scd30"
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

	dev, err := scd30.NewI2C(bus, scd30.DefaultAddress, &scd30.Opts{Interval: 5 * time.Second})
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Halt()

	cfg, err := dev.GetConfiguration()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Configuration=%#v\n", cfg)

	ch, err := dev.SenseContinuous(5 * time.Second)
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		e := <-ch
		fmt.Println(e.String())
	}
}
