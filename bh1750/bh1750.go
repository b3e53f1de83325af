// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bh1750 drives the ROHM BH1750FVI ambient light sensor.
//
// The sensor has no registers. Every transaction is a single opcode byte
// written to the device or a two byte big endian count read from it.
//
// # Datasheet
//
// https://www.mouser.com/datasheet/2/348/bh1750fvi-e-186247.pdf
package bh1750

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
)

// Mode is the measurement mode opcode.
type Mode byte

const (
	ContinuousHigh  Mode = 0x10 // 1 lx resolution.
	ContinuousHigh2 Mode = 0x11 // 0.5 lx resolution.
	ContinuousLow   Mode = 0x13 // 4 lx resolution.
	OneTimeHigh     Mode = 0x20
	OneTimeHigh2    Mode = 0x21
	OneTimeLow      Mode = 0x23
)

func (m Mode) continuous() bool {
	return m&0xf0 == 0x10
}

func (m Mode) low() bool {
	return m&0x0f == 0x03
}

func (m Mode) valid() bool {
	switch m {
	case ContinuousHigh, ContinuousHigh2, ContinuousLow, OneTimeHigh, OneTimeHigh2, OneTimeLow:
		return true
	}
	return false
}

const (
	// DefaultAddress is used when ADDR is low.
	DefaultAddress uint16 = 0x23
	// AlternateAddress is used when ADDR is high.
	AlternateAddress uint16 = 0x5c

	opPowerDown byte = 0x00
	opPowerOn   byte = 0x01
	opReset     byte = 0x07
	opMTHigh    byte = 0x40
	opMTLow     byte = 0x60

	// Measurement time register limits.
	MinMeasurementTime byte = 31
	MaxMeasurementTime byte = 254
	// DefaultMeasurementTime is the power-on value of the MTreg.
	DefaultMeasurementTime byte = 69
)

// Opts holds the configuration options.
type Opts struct {
	Mode Mode
	// MeasurementTime is the MTreg value. It scales both the sensitivity and
	// the conversion time. Zero selects DefaultMeasurementTime.
	MeasurementTime byte
}

// DefaultOpts is the recommended configuration.
var DefaultOpts = Opts{Mode: ContinuousHigh, MeasurementTime: DefaultMeasurementTime}

// Dev is a handle to a BH1750.
type Dev struct {
	d      *i2c.Dev
	mu     sync.Mutex
	mode   Mode
	mt     byte
	ready  time.Time
	halted bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewI2C powers on the sensor and applies opts. If opts is nil, DefaultOpts
// is used.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, mt: DefaultMeasurementTime}
	if err := d.PowerOn(); err != nil {
		return nil, err
	}
	mt := opts.MeasurementTime
	if mt == 0 {
		mt = DefaultMeasurementTime
	}
	if mt != DefaultMeasurementTime {
		if err := d.SetMeasurementTime(mt); err != nil {
			return nil, err
		}
	}
	if err := d.SetMode(opts.Mode); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) write(op byte) error {
	if err := d.d.Tx([]byte{op}, nil); err != nil {
		return fmt.Errorf("bh1750: opcode 0x%02x: %w", op, err)
	}
	return nil
}

// conversionTime is the maximum measurement duration for the mode at the
// current MTreg value.
func (d *Dev) conversionTime(m Mode) time.Duration {
	base := 180 * time.Millisecond
	if m.low() {
		base = 24 * time.Millisecond
	}
	return base * time.Duration(d.mt) / time.Duration(DefaultMeasurementTime)
}

// countToIlluminance applies lux = count / 1.2 * 69 / MT, halved in the H2
// modes.
func countToIlluminance(count uint16, mode Mode, mt byte) common.Illuminance {
	lux := float64(count) / 1.2 * float64(DefaultMeasurementTime) / float64(mt)
	if mode == ContinuousHigh2 || mode == OneTimeHigh2 {
		lux /= 2
	}
	return common.Illuminance(math.Round(lux * float64(common.Lux)))
}

// PowerOn leaves power down mode and waits for a measurement command.
func (d *Dev) PowerOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(opPowerOn); err != nil {
		return err
	}
	d.halted = false
	return nil
}

// wake powers the sensor back on after Halt and restarts a continuous
// measurement. The data register holds the result from before power down.
func (d *Dev) wake() error {
	if !d.halted {
		return nil
	}
	if err := d.write(opPowerOn); err != nil {
		return err
	}
	d.halted = false
	if d.mode.continuous() {
		if err := d.write(byte(d.mode)); err != nil {
			return err
		}
		d.ready = time.Now().Add(d.conversionTime(d.mode))
	}
	return nil
}

// Reset clears the data register. It only works while powered on.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(opReset)
}

// SetMode changes the measurement mode. A continuous mode starts measuring
// immediately. One time modes measure on each Sense call and power down
// afterward.
func (d *Dev) SetMode(m Mode) error {
	if !m.valid() {
		return fmt.Errorf("bh1750: invalid mode 0x%02x", byte(m))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = m
	if !m.continuous() {
		return nil
	}
	if err := d.write(byte(m)); err != nil {
		return err
	}
	d.ready = time.Now().Add(d.conversionTime(m))
	return nil
}

// SetMeasurementTime changes the MTreg value in the range 31 to 254. A
// larger value increases sensitivity and conversion time.
func (d *Dev) SetMeasurementTime(mt byte) error {
	if mt < MinMeasurementTime || mt > MaxMeasurementTime {
		return fmt.Errorf("bh1750: measurement time %d out of range [%d, %d]", mt, MinMeasurementTime, MaxMeasurementTime)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(opMTHigh | mt>>5); err != nil {
		return err
	}
	if err := d.write(opMTLow | mt&0x1f); err != nil {
		return err
	}
	d.mt = mt
	if d.mode.continuous() {
		// Restart so the next result uses the new sensitivity.
		if err := d.write(byte(d.mode)); err != nil {
			return err
		}
		d.ready = time.Now().Add(d.conversionTime(d.mode))
	}
	return nil
}

// Sense returns the illuminance. In one time modes it triggers a
// measurement and waits for it. In continuous modes it returns the latest
// result, waiting for the first one after a mode change.
func (d *Dev) Sense() (common.Illuminance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.wake(); err != nil {
		return 0, err
	}
	if d.mode.continuous() {
		if wait := time.Until(d.ready); wait > 0 {
			time.Sleep(wait)
		}
	} else {
		if err := d.write(byte(d.mode)); err != nil {
			return 0, err
		}
		time.Sleep(d.conversionTime(d.mode))
	}
	r := make([]byte, 2)
	if err := d.d.Tx(nil, r); err != nil {
		return 0, fmt.Errorf("bh1750: read: %w", err)
	}
	return countToIlluminance(uint16(r[0])<<8|uint16(r[1]), d.mode, d.mt), nil
}

// SenseContinuous returns a channel receiving a reading every interval until
// Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan common.Illuminance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if minInterval := d.conversionTime(d.mode); interval < minInterval {
		return nil, fmt.Errorf("bh1750: invalid duration. minimum %s", minInterval)
	}
	if d.stop != nil {
		return nil, errors.New("bh1750: SenseContinuous already running")
	}
	ch := make(chan common.Illuminance, 16)
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
				if l, err := d.Sense(); err == nil && len(ch) < cap(ch) {
					ch <- l
				}
			}
		}
	}(d.stop)
	return ch, nil
}

// Halt stops SenseContinuous and powers the sensor down. Implements
// conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(opPowerDown); err != nil {
		return err
	}
	d.halted = true
	return nil
}

func (d *Dev) String() string {
	return "bh1750: " + d.d.String()
}

var _ conn.Resource = &Dev{}
