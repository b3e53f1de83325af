// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pcf8574 drives the NXP/TI PCF8574 and PCF8574A 8 bit I²C I/O
// expanders.
//
// The port is quasi-bidirectional. Writing a 1 to a pin enables a weak pull
// up so the pin can be used as an input. Writing a 0 drives the pin low. The
// chip has no registers: a one byte write sets the port latch and a one byte
// read returns the pin levels.
//
// Reading a pin whose latch is 0 always returns Low. Use In() on a pin or
// Set() with a 1 for the bits to read before calling Read().
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/pcf8574.pdf
package pcf8574

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
)

const (
	// DefaultAddress is the PCF8574 address with A2..A0 tied low. A2..A0
	// select addresses 0x20 through 0x27.
	DefaultAddress uint16 = 0x20
	// DefaultAddressA is the PCF8574A address with A2..A0 tied low. A2..A0
	// select addresses 0x38 through 0x3f.
	DefaultAddressA uint16 = 0x38

	// NumPins is the width of the port.
	NumPins = 8
)

// Dev is a handle to a PCF8574.
type Dev struct {
	// Pins are the eight port pins, P0 through P7. They are registered in
	// gpioreg as "PCF8574_<addr>_P<n>".
	Pins []gpio.PinIO

	d  *i2c.Dev
	mu sync.Mutex
	// latch shadows the last value written. The power-on value is all ones.
	latch byte
}

// New returns a handle to the expander and registers its pins. No bus
// transaction is performed.
func New(bus i2c.Bus, addr uint16) (*Dev, error) {
	dev := &Dev{d: &i2c.Dev{Bus: bus, Addr: addr}, latch: 0xff}
	dev.Pins = make([]gpio.PinIO, NumPins)
	for ix := range NumPins {
		p := &portPin{dev: dev, number: ix, name: fmt.Sprintf("PCF8574_%x_P%d", addr, ix)}
		if err := gpioreg.Register(p); err != nil {
			dev.unregister()
			return nil, fmt.Errorf("pcf8574: %w", err)
		}
		dev.Pins[ix] = p
	}
	return dev, nil
}

func (dev *Dev) unregister() {
	for _, p := range dev.Pins {
		if p != nil {
			_ = gpioreg.Unregister(p.Name())
		}
	}
}

// Read returns the level of the eight pins.
func (dev *Dev) Read() (byte, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	r := make([]byte, 1)
	if err := dev.d.Tx(nil, r); err != nil {
		return 0, fmt.Errorf("pcf8574: %w", err)
	}
	return r[0], nil
}

// Write sets the port latch.
func (dev *Dev) Write(v byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.write(v)
}

func (dev *Dev) write(v byte) error {
	if err := dev.d.Tx([]byte{v}, nil); err != nil {
		return fmt.Errorf("pcf8574: %w", err)
	}
	dev.latch = v
	return nil
}

// Set changes the bits of the latch selected by mask to the matching bits of
// value. The write is skipped when the latch does not change.
func (dev *Dev) Set(mask, value byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	v := dev.latch&^mask | value&mask
	if v == dev.latch {
		return nil
	}
	return dev.write(v)
}

// Latch returns the last value written to the port.
func (dev *Dev) Latch() byte {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.latch
}

// Halt releases all pins to their weak pull up and unregisters them from
// gpioreg. The pins cannot be used after this call. Implements
// conn.Resource.
func (dev *Dev) Halt() error {
	dev.unregister()
	return dev.Set(0xff, 0xff)
}

func (dev *Dev) String() string {
	return "pcf8574: " + dev.d.String()
}

var _ conn.Resource = &Dev{}
