// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package htu21d drives the TE Connectivity HTU21D(F) humidity and
// temperature sensor. The Silicon Labs Si7021 and the Sensirion SHT21 use the
// same command set and work with this package.
//
// The driver uses the "no hold master" commands so the bus is released while
// a conversion is in progress. The device NACKs its address until the result
// is available.
//
// # Datasheet
//
// https://www.te.com/commerce/DocumentDelivery/DDEController?Action=showdoc&DocId=Data+Sheet%7FHPC199_6%7FA6%7Fpdf%7FEnglish%7FENG_DS_HPC199_6_A6.pdf
package htu21d

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Resolution is the measurement resolution pair. The value is the bit
// pattern of user register bits 7 and 0.
type Resolution byte

const (
	RH12T14 Resolution = 0x00 // Power-on default.
	RH8T12  Resolution = 0x01
	RH10T13 Resolution = 0x80
	RH11T11 Resolution = 0x81
)

const (
	// DefaultAddress is the only address the device responds to.
	DefaultAddress uint16 = 0x40

	cmdMeasureTemperature byte = 0xf3
	cmdMeasureHumidity    byte = 0xf5
	cmdWriteUser          byte = 0xe6
	cmdReadUser           byte = 0xe7
	cmdSoftReset          byte = 0xfe

	userResolutionMask byte = 0x81
	userBatteryLow     byte = 1 << 6
	userHeater         byte = 1 << 2

	statusMask uint16 = 0x0003
	// statusHumidity is set in the LSB of a humidity result and clear in a
	// temperature result.
	statusHumidity uint16 = 0x0002

	minRH = 0 * physic.PercentRH
	maxRH = 100 * physic.PercentRH
)

var errMeasurementType = errors.New("htu21d: result does not match the requested measurement")

// Maximum conversion times from the datasheet.
var (
	temperatureTime = map[Resolution]time.Duration{
		RH12T14: 50 * time.Millisecond,
		RH10T13: 25 * time.Millisecond,
		RH8T12:  13 * time.Millisecond,
		RH11T11: 7 * time.Millisecond,
	}
	humidityTime = map[Resolution]time.Duration{
		RH12T14: 16 * time.Millisecond,
		RH11T11: 8 * time.Millisecond,
		RH10T13: 5 * time.Millisecond,
		RH8T12:  3 * time.Millisecond,
	}
)

// Opts holds the configuration options.
type Opts struct {
	Resolution Resolution
	// MeasurementTimeout bounds the time spent polling for a result once the
	// nominal conversion time elapsed.
	MeasurementTimeout time.Duration
}

// DefaultOpts is the recommended configuration.
var DefaultOpts = Opts{Resolution: RH12T14, MeasurementTimeout: 100 * time.Millisecond}

// Dev is a handle to an HTU21D sensor.
type Dev struct {
	d          *i2c.Dev
	mu         sync.Mutex
	timeout    time.Duration
	resolution Resolution
	stop       chan struct{}
	wg         sync.WaitGroup
}

// NewI2C resets the device and applies opts. If opts is nil, DefaultOpts is
// used.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, timeout: opts.MeasurementTimeout}
	if err := d.SoftReset(); err != nil {
		return nil, err
	}
	if err := d.SetResolution(opts.Resolution); err != nil {
		return nil, err
	}
	return d, nil
}

// SoftReset reboots the device. The user register returns to its default
// except for the heater bit.
func (d *Dev) SoftReset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.d.Tx([]byte{cmdSoftReset}, nil); err != nil {
		return fmt.Errorf("htu21d: soft reset: %w", err)
	}
	time.Sleep(15 * time.Millisecond)
	d.resolution = RH12T14
	return nil
}

// measure starts a no hold conversion and polls until the device ACKs the
// result read. The checksum covers the two data bytes.
func (d *Dev) measure(cmd byte, wait time.Duration) (uint16, error) {
	if err := d.d.Tx([]byte{cmd}, nil); err != nil {
		return 0, fmt.Errorf("htu21d: start measurement: %w", err)
	}
	time.Sleep(wait)
	r := make([]byte, 3)
	var lastErr error
	err := common.Poll(d.timeout, time.Millisecond, func() (bool, error) {
		// A NACK is returned while the conversion is in progress.
		lastErr = d.d.Tx(nil, r)
		return lastErr == nil, nil
	})
	if err != nil {
		if lastErr != nil {
			return 0, fmt.Errorf("htu21d: %w: %v", err, lastErr)
		}
		return 0, fmt.Errorf("htu21d: %w", err)
	}
	if common.CRC8Poly(r[:2], 0x31, 0x00) != r[2] {
		return 0, fmt.Errorf("htu21d: %w", common.ErrCRC)
	}
	raw := uint16(r[0])<<8 | uint16(r[1])
	if (raw&statusHumidity != 0) != (cmd == cmdMeasureHumidity) {
		return 0, errMeasurementType
	}
	return raw, nil
}

func countToTemperature(raw uint16) physic.Temperature {
	s := float64(raw &^ statusMask)
	// T = -46.85 + 175.72 * S / 2^16
	return physic.ZeroCelsius + physic.Temperature((-46.85+175.72*s/65536)*float64(physic.Kelvin))
}

func countToHumidity(raw uint16) physic.RelativeHumidity {
	s := float64(raw &^ statusMask)
	// RH = -6 + 125 * S / 2^16
	rh := physic.RelativeHumidity((-6 + 125*s/65536) * float64(physic.PercentRH))
	if rh < minRH {
		rh = minRH
	} else if rh > maxRH {
		rh = maxRH
	}
	return rh
}

// Sense measures temperature then relative humidity. Implements
// physic.SenseEnv.
func (d *Dev) Sense(env *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	env.Pressure = 0
	raw, err := d.measure(cmdMeasureTemperature, temperatureTime[d.resolution])
	if err != nil {
		return err
	}
	env.Temperature = countToTemperature(raw)
	if raw, err = d.measure(cmdMeasureHumidity, humidityTime[d.resolution]); err != nil {
		return err
	}
	env.Humidity = countToHumidity(raw)
	return nil
}

// SenseContinuous implements physic.SenseEnv. Halt() stops the measurements
// and closes the channel.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if minInterval := temperatureTime[d.resolution] + humidityTime[d.resolution]; interval < minInterval {
		return nil, fmt.Errorf("htu21d: invalid duration. minimum %s", minInterval)
	}
	if d.stop != nil {
		return nil, errors.New("htu21d: SenseContinuous already running")
	}
	ch := make(chan physic.Env, 16)
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
				if err := d.Sense(&e); err == nil && len(ch) < cap(ch) {
					ch <- e
				}
			}
		}
	}(d.stop)
	return ch, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(env *physic.Env) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var tBits, rhBits uint
	switch d.resolution {
	case RH8T12:
		tBits, rhBits = 12, 8
	case RH10T13:
		tBits, rhBits = 13, 10
	case RH11T11:
		tBits, rhBits = 11, 11
	default:
		tBits, rhBits = 14, 12
	}
	env.Temperature = physic.Temperature(175.72 * float64(physic.Kelvin) / float64(uint(1)<<tBits))
	env.Humidity = physic.RelativeHumidity(125 * float64(physic.PercentRH) / float64(uint(1)<<rhBits))
	env.Pressure = 0
}

func (d *Dev) readUser() (byte, error) {
	r := make([]byte, 1)
	if err := d.d.Tx([]byte{cmdReadUser}, r); err != nil {
		return 0, fmt.Errorf("htu21d: read user register: %w", err)
	}
	return r[0], nil
}

// updateUser rewrites the user register. Reserved bits must be preserved so
// a read always precedes the write.
func (d *Dev) updateUser(mask, value byte) (byte, error) {
	u, err := d.readUser()
	if err != nil {
		return 0, err
	}
	v := (u &^ mask) | (value & mask)
	if v != u {
		if err := d.d.Tx([]byte{cmdWriteUser, v}, nil); err != nil {
			return 0, fmt.Errorf("htu21d: write user register: %w", err)
		}
	}
	return v, nil
}

// SetResolution changes the measurement resolution.
func (d *Dev) SetResolution(r Resolution) error {
	if byte(r)&^userResolutionMask != 0 {
		return fmt.Errorf("htu21d: invalid resolution 0x%02x", byte(r))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.updateUser(userResolutionMask, byte(r)); err != nil {
		return err
	}
	d.resolution = r
	return nil
}

// Resolution reads the resolution from the user register.
func (d *Dev) Resolution() (Resolution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, err := d.readUser()
	if err != nil {
		return 0, err
	}
	d.resolution = Resolution(u & userResolutionMask)
	return d.resolution, nil
}

// SetHeater turns the on-chip heater on or off. The heater raises the
// temperature of the sensor and is used to drive off condensation.
func (d *Dev) SetHeater(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var v byte
	if on {
		v = userHeater
	}
	_, err := d.updateUser(userHeater, v)
	return err
}

// BatteryLow returns true when the supply voltage dropped below 2.25V.
func (d *Dev) BatteryLow() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, err := d.readUser()
	if err != nil {
		return false, err
	}
	return u&userBatteryLow != 0, nil
}

// Halt stops SenseContinuous. The device returns to idle on its own after
// each conversion. Implements conn.Resource.
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
	return "htu21d: " + d.d.String()
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
