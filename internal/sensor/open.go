// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"fmt"

	"github.com/GermanBionicSystems/sensors/bh1750"
	"github.com/GermanBionicSystems/sensors/bmp180"
	"github.com/GermanBionicSystems/sensors/ds3231"
	"github.com/GermanBionicSystems/sensors/htu21d"
	"github.com/GermanBionicSystems/sensors/hx711"
	"github.com/GermanBionicSystems/sensors/internal/config"
	"github.com/GermanBionicSystems/sensors/max31855"
	"github.com/GermanBionicSystems/sensors/max44009"
	"github.com/GermanBionicSystems/sensors/mcp9808"
	"github.com/GermanBionicSystems/sensors/micsvz89te"
	"github.com/GermanBionicSystems/sensors/pcf8574"
	"github.com/GermanBionicSystems/sensors/scd30"
	"github.com/GermanBionicSystems/sensors/tmp102"
	"periph.io/x/conn/v3/i2c"
)

// Open builds the driver described by c.
func Open(c config.SensorConfig, b *Buses) (Sensor, error) {
	d, ok := config.Devices[c.Type]
	if !ok {
		return nil, fmt.Errorf("sensor: %s: unknown type %q", c.Name, c.Type)
	}
	var (
		s   Sensor
		err error
	)
	switch d.Bus {
	case config.I2C:
		var bus i2c.Bus
		if bus, err = b.I2C(c.Bus); err != nil {
			return nil, err
		}
		s, err = openI2C(c, bus)
	case config.SPI:
		s, err = openSPI(c, b)
	case config.GPIO:
		s, err = openGPIO(c, b)
	}
	if err != nil {
		return nil, fmt.Errorf("sensor: %s: %w", c.Name, err)
	}
	return s, nil
}

func openI2C(c config.SensorConfig, bus i2c.Bus) (Sensor, error) {
	switch c.Type {
	case "tmp102":
		dev, err := tmp102.NewI2C(bus, c.Address, nil)
		if err != nil {
			return nil, err
		}
		return &envSensor{name: c.Name, dev: dev, quantities: temperature}, nil
	case "mcp9808":
		dev, err := mcp9808.NewI2C(bus, c.Address, nil)
		if err != nil {
			return nil, err
		}
		return &envSensor{name: c.Name, dev: dev, quantities: temperature}, nil
	case "htu21d":
		dev, err := htu21d.NewI2C(bus, c.Address, nil)
		if err != nil {
			return nil, err
		}
		return &envSensor{name: c.Name, dev: dev, quantities: temperature | humidity}, nil
	case "bmp180":
		dev, err := bmp180.NewI2C(bus, c.Address, nil)
		if err != nil {
			return nil, err
		}
		return &envSensor{name: c.Name, dev: dev, quantities: temperature | pressure}, nil
	case "bh1750":
		dev, err := bh1750.NewI2C(bus, c.Address, nil)
		if err != nil {
			return nil, err
		}
		return &lightSensor{name: c.Name, dev: dev}, nil
	case "max44009":
		dev, err := max44009.NewI2C(bus, c.Address, nil)
		if err != nil {
			return nil, err
		}
		return &lightSensor{name: c.Name, dev: dev}, nil
	case "scd30":
		dev, err := scd30.NewI2C(bus, c.Address, nil)
		if err != nil {
			return nil, err
		}
		return &co2Sensor{name: c.Name, dev: dev}, nil
	case "micsvz89te":
		dev, err := micsvz89te.NewI2C(bus, c.Address)
		if err != nil {
			return nil, err
		}
		return &vocSensor{name: c.Name, dev: dev}, nil
	case "pcf8574":
		dev, err := pcf8574.New(bus, c.Address)
		if err != nil {
			return nil, err
		}
		return &portSensor{name: c.Name, dev: dev}, nil
	case "ds3231":
		dev, err := ds3231.NewI2C(bus, c.Address)
		if err != nil {
			return nil, err
		}
		return &clockSensor{name: c.Name, dev: dev}, nil
	}
	return nil, fmt.Errorf("no I²C driver for %q", c.Type)
}

func openSPI(c config.SensorConfig, b *Buses) (Sensor, error) {
	p, err := b.SPI(c.Bus)
	if err != nil {
		return nil, err
	}
	dev, err := max31855.NewSPI(p)
	if err != nil {
		return nil, err
	}
	return &thermocoupleSensor{name: c.Name, dev: dev}, nil
}

func openGPIO(c config.SensorConfig, b *Buses) (Sensor, error) {
	dout, err := b.Pin(c.Pins["dout"])
	if err != nil {
		return nil, err
	}
	sck, err := b.Pin(c.Pins["sck"])
	if err != nil {
		return nil, err
	}
	dev, err := hx711.New(dout, sck, nil)
	if err != nil {
		return nil, err
	}
	if c.Scale != 0 {
		if err := dev.SetScale(c.Offset, c.Scale); err != nil {
			return nil, err
		}
	}
	return &loadSensor{name: c.Name, dev: dev, calibrated: c.Scale != 0}, nil
}
