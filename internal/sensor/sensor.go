// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensor adapts the device drivers to a common polling interface.
package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/sensors/internal/config"
	"github.com/GermanBionicSystems/sensors/internal/telemetry"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Sensor is a configured device that can be polled.
type Sensor interface {
	Name() string
	// Read takes one measurement and returns a reading per quantity.
	Read(ctx context.Context) ([]telemetry.Reading, error)
	Halt() error
}

// Buses opens host buses on demand and keeps them open until Close.
type Buses struct {
	i2cName string
	spiName string
	openI2C func(name string) (i2c.BusCloser, error)
	openSPI func(name string) (spi.PortCloser, error)
	pin     func(name string) gpio.PinIO

	i2c map[string]i2c.BusCloser
	spi map[string]spi.PortCloser
}

// NewBuses initializes the host drivers. i2cName and spiName select the
// default bus and port; empty selects the first one found.
func NewBuses(i2cName, spiName string) (*Buses, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("sensor: %w", err)
	}
	return newBuses(i2cName, spiName, i2creg.Open, spireg.Open, gpioreg.ByName), nil
}

func newBuses(i2cName, spiName string, openI2C func(string) (i2c.BusCloser, error), openSPI func(string) (spi.PortCloser, error), pin func(string) gpio.PinIO) *Buses {
	return &Buses{
		i2cName: i2cName,
		spiName: spiName,
		openI2C: openI2C,
		openSPI: openSPI,
		pin:     pin,
		i2c:     map[string]i2c.BusCloser{},
		spi:     map[string]spi.PortCloser{},
	}
}

// I2C returns the bus named name, or the default bus if name is empty.
func (b *Buses) I2C(name string) (i2c.Bus, error) {
	if name == "" {
		name = b.i2cName
	}
	if bus, ok := b.i2c[name]; ok {
		return bus, nil
	}
	bus, err := b.openI2C(name)
	if err != nil {
		return nil, fmt.Errorf("sensor: open I²C bus %q: %w", name, err)
	}
	b.i2c[name] = bus
	return bus, nil
}

// SPI returns the port named name, or the default port if name is empty.
// A port can only be connected to once.
func (b *Buses) SPI(name string) (spi.Port, error) {
	if name == "" {
		name = b.spiName
	}
	if p, ok := b.spi[name]; ok {
		return p, nil
	}
	p, err := b.openSPI(name)
	if err != nil {
		return nil, fmt.Errorf("sensor: open SPI port %q: %w", name, err)
	}
	b.spi[name] = p
	return p, nil
}

// Pin returns the GPIO pin named name.
func (b *Buses) Pin(name string) (gpio.PinIO, error) {
	p := b.pin(name)
	if p == nil {
		return nil, fmt.Errorf("sensor: unknown pin %q", name)
	}
	return p, nil
}

// Close closes all buses opened so far.
func (b *Buses) Close() error {
	var errs []error
	for name, bus := range b.i2c {
		if err := bus.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(b.i2c, name)
	}
	for name, p := range b.spi {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(b.spi, name)
	}
	return errors.Join(errs...)
}

// OpenAll opens every configured sensor. On failure the sensors opened so
// far are halted.
func OpenAll(cfgs []config.SensorConfig, b *Buses) ([]Sensor, error) {
	out := make([]Sensor, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := Open(c, b)
		if err != nil {
			for _, o := range out {
				_ = o.Halt()
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
