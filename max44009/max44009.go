// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package max44009 drives the Maxim MAX44009 ambient light sensor.
//
// The sensor covers 0.045 lux to 188,000 lux with a floating point result
// made of a 4 bit exponent and an 8 bit mantissa. It provides an interrupt
// output driven by an upper and a lower threshold window.
//
// # Datasheet
//
// https://datasheets.maximintegrated.com/en/ds/MAX44009.pdf
package max44009

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
)

// IntegrationTime selects the integration time in manual mode.
type IntegrationTime byte

const (
	Integration800ms  IntegrationTime = 0
	Integration400ms  IntegrationTime = 1
	Integration200ms  IntegrationTime = 2
	Integration100ms  IntegrationTime = 3
	Integration50ms   IntegrationTime = 4 // Manual mode only.
	Integration25ms   IntegrationTime = 5 // Manual mode only.
	Integration12_5ms IntegrationTime = 6 // Manual mode only.
	Integration6_25ms IntegrationTime = 7 // Manual mode only.
)

// Duration returns the integration time.
func (i IntegrationTime) Duration() time.Duration {
	return 800 * time.Millisecond >> (i & 0x07)
}

const (
	// DefaultAddress is used when A0 is low.
	DefaultAddress uint16 = 0x4a
	// AlternateAddress is used when A0 is high.
	AlternateAddress uint16 = 0x4b

	regIntStatus  byte = 0x00
	regIntEnable  byte = 0x01
	regConfig     byte = 0x02
	regLuxHigh    byte = 0x03
	regLuxLow     byte = 0x04
	regThreshHigh byte = 0x05
	regThreshLow  byte = 0x06
	regThreshTime byte = 0x07

	cfgContinuous byte = 1 << 7
	cfgManual     byte = 1 << 6
	cfgCDR        byte = 1 << 3
	cfgTimMask    byte = 0x07

	// One mantissa count at exponent zero.
	step = 45 * common.MilliLux

	thresholdTimerStep = 100 * time.Millisecond

	overrangeExponent = 0x0f
)

// ErrOverrange is returned when the light level exceeds the measurement
// range.
var ErrOverrange = errors.New("max44009: light level overrange")

// Opts holds the configuration options.
type Opts struct {
	// Continuous converts back to back instead of every 800ms.
	Continuous bool
	// Manual disables automatic ranging and uses CurrentDivision and
	// IntegrationTime.
	Manual bool
	// CurrentDivision routes 1/8 of the photodiode current to the ADC.
	CurrentDivision bool
	IntegrationTime IntegrationTime
}

// DefaultOpts is the power-on configuration with automatic ranging.
var DefaultOpts = Opts{}

// Dev is a handle to a MAX44009.
type Dev struct {
	d    *i2c.Dev
	mu   sync.Mutex
	opts Opts
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewI2C writes the configuration register from opts. If opts is nil,
// DefaultOpts is used.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, opts: *opts}
	var cfg byte
	if opts.Continuous {
		cfg |= cfgContinuous
	}
	if opts.Manual {
		cfg |= cfgManual
		if opts.CurrentDivision {
			cfg |= cfgCDR
		}
		cfg |= byte(opts.IntegrationTime) & cfgTimMask
	}
	if err := common.WriteRegister(d.d, regConfig, cfg); err != nil {
		return nil, fmt.Errorf("max44009: %w", err)
	}
	return d, nil
}

func (d *Dev) readByte(reg byte) (byte, error) {
	r := make([]byte, 1)
	if err := common.ReadRegister(d.d, reg, r); err != nil {
		return 0, fmt.Errorf("max44009: read register 0x%02x: %w", reg, err)
	}
	return r[0], nil
}

func (d *Dev) writeByte(reg, v byte) error {
	if err := common.WriteRegister(d.d, reg, v); err != nil {
		return fmt.Errorf("max44009: write register 0x%02x: %w", reg, err)
	}
	return nil
}

// toIlluminance decodes the lux high and low bytes.
func toIlluminance(hi, lo byte) (common.Illuminance, error) {
	exp := hi >> 4
	if exp == overrangeExponent {
		return 0, ErrOverrange
	}
	mantissa := common.Illuminance((hi&0x0f)<<4 | lo&0x0f)
	return mantissa << exp * step, nil
}

// thresholdToByte encodes l with the smallest exponent that fits the
// mantissa in 8 bits. Only the 4 upper mantissa bits are stored.
func thresholdToByte(l common.Illuminance) byte {
	if l < 0 {
		l = 0
	}
	for e := byte(0); e < overrangeExponent; e++ {
		if m := l / (step << e); m <= 0xff {
			return e<<4 | byte(m>>4)
		}
	}
	return 0xef
}

// byteToThreshold decodes a threshold byte. The upper threshold fills the
// missing mantissa bits with ones, the lower one with zeros.
func byteToThreshold(b byte, upper bool) common.Illuminance {
	m := common.Illuminance(b&0x0f) << 4
	if upper {
		m |= 0x0f
	}
	return m << (b >> 4) * step
}

// Sense reads the latest conversion result.
func (d *Dev) Sense() (common.Illuminance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Registers are read one at a time. The device does not auto-increment.
	hi, err := d.readByte(regLuxHigh)
	if err != nil {
		return 0, err
	}
	lo, err := d.readByte(regLuxLow)
	if err != nil {
		return 0, err
	}
	return toIlluminance(hi, lo)
}

// SenseContinuous returns a channel receiving a reading every interval until
// Halt() is called. Overrange readings are dropped.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan common.Illuminance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	minInterval := 800 * time.Millisecond
	if d.opts.Continuous {
		minInterval = Integration100ms.Duration()
		if d.opts.Manual {
			minInterval = d.opts.IntegrationTime.Duration()
		}
	}
	if interval < minInterval {
		return nil, fmt.Errorf("max44009: invalid duration. minimum %s", minInterval)
	}
	if d.stop != nil {
		return nil, errors.New("max44009: SenseContinuous already running")
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

// SetThresholds programs the interrupt window. The interrupt asserts when
// the light level stays outside [low, high] for longer than persist, which
// is rounded down to 100ms steps.
func (d *Dev) SetThresholds(low, high common.Illuminance, persist time.Duration) error {
	if low > high {
		return errors.New("max44009: lower threshold above upper threshold")
	}
	timer := persist / thresholdTimerStep
	if timer < 0 || timer > 0xff {
		return fmt.Errorf("max44009: threshold timer %s out of range", persist)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeByte(regThreshHigh, thresholdToByte(high)); err != nil {
		return err
	}
	if err := d.writeByte(regThreshLow, thresholdToByte(low)); err != nil {
		return err
	}
	return d.writeByte(regThreshTime, byte(timer))
}

// Thresholds reads back the interrupt window as stored by the device.
func (d *Dev) Thresholds() (low, high common.Illuminance, persist time.Duration, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var r [3]byte
	for i, reg := range []byte{regThreshHigh, regThreshLow, regThreshTime} {
		if r[i], err = d.readByte(reg); err != nil {
			return
		}
	}
	high = byteToThreshold(r[0], true)
	low = byteToThreshold(r[1], false)
	persist = time.Duration(r[2]) * thresholdTimerStep
	return
}

// EnableInterrupt turns the INT output on or off.
func (d *Dev) EnableInterrupt(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var v byte
	if on {
		v = 1
	}
	return d.writeByte(regIntEnable, v)
}

// InterruptStatus reports whether an interrupt event occurred. Reading the
// status clears it and deasserts INT.
func (d *Dev) InterruptStatus() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.readByte(regIntStatus)
	return v&1 != 0, err
}

// Configuration reads the configuration register. In automatic mode the CDR
// and TIM fields reflect the range selected by the device.
func (d *Dev) Configuration() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readByte(regConfig)
}

// Halt stops SenseContinuous. The device has no power down mode. Implements
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
	return nil
}

func (d *Dev) String() string {
	return "max44009: " + d.d.String()
}

var _ conn.Resource = &Dev{}
