// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package max31855 drives the Maxim MAX31855 cold-junction compensated
// thermocouple to digital converter.
//
// The device is read only: every SPI transaction clocks out a 32 bit frame
// holding the thermocouple temperature at 0.25°C resolution, the internal
// (cold junction) temperature at 0.0625°C resolution and the fault bits.
// Variants exist for K, J, N, T, S, R and E type thermocouples; the frame
// format is the same for all of them.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/MAX31855.pdf
package max31855

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	// MaxFrequency is the highest SCK frequency supported by the device.
	MaxFrequency = 5 * physic.MegaHertz
	// MinInterval is the conversion time of the device. Reading faster
	// returns the same conversion again.
	MinInterval = 100 * time.Millisecond

	bitFault = 16
	bitSCV   = 2
	bitSCG   = 1
	bitOC    = 0

	thermocoupleStep = 250 * physic.MilliKelvin
	internalStep     = 62500 * physic.MicroKelvin
)

var (
	// ErrOpenCircuit is returned when no thermocouple is connected.
	ErrOpenCircuit = errors.New("max31855: thermocouple open circuit")
	// ErrShortGND is returned when the thermocouple is shorted to ground.
	ErrShortGND = errors.New("max31855: thermocouple shorted to GND")
	// ErrShortVCC is returned when the thermocouple is shorted to VCC.
	ErrShortVCC = errors.New("max31855: thermocouple shorted to VCC")
	// ErrFault is returned when the fault bit is set without a specific
	// cause.
	ErrFault = errors.New("max31855: fault")
)

// Dev is a handle to a MAX31855.
type Dev struct {
	c    spi.Conn
	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSPI returns a handle to a MAX31855 connected on the SPI port p.
func NewSPI(p spi.Port) (*Dev, error) {
	c, err := p.Connect(MaxFrequency, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("max31855: %w", err)
	}
	return &Dev{c: c}, nil
}

// decode converts a raw frame. The internal temperature is valid even when a
// thermocouple fault is reported.
func decode(frame uint32) (physic.Temperature, physic.Temperature, error) {
	// 12 bits signed in bits 15..4.
	internal := physic.ZeroCelsius + physic.Temperature(int32(frame<<16)>>20)*internalStep
	if frame&(1<<bitFault) != 0 {
		switch {
		case frame&(1<<bitOC) != 0:
			return 0, internal, ErrOpenCircuit
		case frame&(1<<bitSCG) != 0:
			return 0, internal, ErrShortGND
		case frame&(1<<bitSCV) != 0:
			return 0, internal, ErrShortVCC
		default:
			return 0, internal, ErrFault
		}
	}
	// 14 bits signed in bits 31..18.
	thermocouple := physic.ZeroCelsius + physic.Temperature(int32(frame)>>18)*thermocoupleStep
	return thermocouple, internal, nil
}

// Temperatures returns the thermocouple temperature and the internal cold
// junction temperature. On a thermocouple fault the internal temperature is
// still returned along with one of the fault errors.
func (d *Dev) Temperatures() (physic.Temperature, physic.Temperature, error) {
	var w, r [4]byte
	d.mu.Lock()
	err := d.c.Tx(w[:], r[:])
	d.mu.Unlock()
	if err != nil {
		return 0, 0, fmt.Errorf("max31855: %w", err)
	}
	return decode(binary.BigEndian.Uint32(r[:]))
}

// Sense reads the thermocouple temperature. Implements physic.SenseEnv.
func (d *Dev) Sense(env *physic.Env) error {
	t, _, err := d.Temperatures()
	if err != nil {
		return err
	}
	env.Temperature = t
	env.Pressure = 0
	env.Humidity = 0
	return nil
}

// SenseContinuous implements physic.SenseEnv. Readings with a fault are
// dropped. Call Halt to stop.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < MinInterval {
		return nil, fmt.Errorf("max31855: interval must be at least %s", MinInterval)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("max31855: SenseContinuous already running")
	}
	const channelSize = 16
	ch := make(chan physic.Env, channelSize)
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer d.wg.Done()
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e := physic.Env{}
				if err := d.Sense(&e); err == nil && len(ch) < channelSize {
					ch <- e
				}
			}
		}
	}(d.stop)
	return ch, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(env *physic.Env) {
	env.Temperature = thermocoupleStep
	env.Pressure = 0
	env.Humidity = 0
}

// Halt stops a running SenseContinuous. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	return nil
}

func (d *Dev) String() string {
	return "max31855: " + d.c.String()
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
