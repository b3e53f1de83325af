// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mcp9808 drives the Microchip MCP9808 digital temperature sensor.
//
// The device has a typical accuracy of ±0.25°C from -40°C to +125°C and a
// selectable resolution between 0.5°C and 0.0625°C. It provides an ALERT
// output driven by three programmable limits: upper, lower and critical.
//
// # Datasheet
//
// https://ww1.microchip.com/downloads/en/DeviceDoc/25095A.pdf
package mcp9808

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Resolution selects the ambient temperature resolution. Higher resolution
// increases the conversion time.
type Resolution byte

const (
	Resolution0_5C    Resolution = 0x00 // 30ms conversion
	Resolution0_25C   Resolution = 0x01 // 65ms conversion
	Resolution0_125C  Resolution = 0x02 // 130ms conversion
	Resolution0_0625C Resolution = 0x03 // 250ms conversion, power-on default
)

// Hysteresis applied to the limits when the temperature falls back.
type Hysteresis byte

const (
	Hysteresis0C   Hysteresis = 0x00
	Hysteresis1_5C Hysteresis = 0x01
	Hysteresis3C   Hysteresis = 0x02
	Hysteresis6C   Hysteresis = 0x03
)

// AlertFlags reports which limits the last ambient temperature reading
// crossed.
type AlertFlags byte

const (
	FlagLower    AlertFlags = 1 << 0
	FlagUpper    AlertFlags = 1 << 1
	FlagCritical AlertFlags = 1 << 2
)

const (
	// DefaultAddress is the address with A2..A0 tied to ground. A2..A0
	// select addresses 0x18 through 0x1f.
	DefaultAddress uint16 = 0x18

	regConfig     byte = 0x01
	regUpper      byte = 0x02
	regLower      byte = 0x03
	regCritical   byte = 0x04
	regAmbient    byte = 0x05
	regManufactID byte = 0x06
	regDeviceID   byte = 0x07
	regResolution byte = 0x08

	manufacturerID uint16 = 0x0054
	deviceID       byte   = 0x04

	// Configuration register bits.
	cfgAlertMode     uint16 = 1 << 0
	cfgAlertPolarity uint16 = 1 << 1
	cfgAlertSelect   uint16 = 1 << 2
	cfgAlertEnable   uint16 = 1 << 3
	cfgAlertStatus   uint16 = 1 << 4
	cfgIntClear      uint16 = 1 << 5
	cfgWindowLock    uint16 = 1 << 6
	cfgCriticalLock  uint16 = 1 << 7
	cfgShutdown      uint16 = 1 << 8
	posHysteresis           = 9

	ambientResolution physic.Temperature = 62_500 * physic.MicroKelvin
	limitResolution   physic.Temperature = 250 * physic.MilliKelvin

	MinimumTemperature physic.Temperature = physic.ZeroCelsius - 40*physic.Kelvin
	MaximumTemperature physic.Temperature = physic.ZeroCelsius + 125*physic.Kelvin
)

var (
	// ErrNotSupported is returned by NewI2C when the identity registers do not
	// match an MCP9808.
	ErrNotSupported = fmt.Errorf("mcp9808: %w", common.ErrNotSupported)
	// ErrLocked is returned when trying to change limits that were locked.
	ErrLocked = errors.New("mcp9808: limits are locked until power cycle")

	errInvalidLimits = errors.New("mcp9808: invalid alert limits")
)

var conversionTime = map[Resolution]time.Duration{
	Resolution0_5C:    30 * time.Millisecond,
	Resolution0_25C:   65 * time.Millisecond,
	Resolution0_125C:  130 * time.Millisecond,
	Resolution0_0625C: 250 * time.Millisecond,
}

// Alert is the configuration of the alert output and the limits.
type Alert struct {
	Lower    physic.Temperature
	Upper    physic.Temperature
	Critical physic.Temperature

	Hysteresis Hysteresis
	// Enabled turns on the ALERT output.
	Enabled bool
	// Interrupt selects interrupt mode rather than comparator mode.
	Interrupt bool
	// ActiveHigh selects the output polarity.
	ActiveHigh bool
	// CriticalOnly asserts the output only when T_A exceeds the critical
	// limit.
	CriticalOnly bool
	// Asserted reports the current state of the output. Read-only.
	Asserted bool
}

// Opts holds the configuration options for the device.
type Opts struct {
	Resolution Resolution
}

// DefaultOpts is the power-on configuration.
var DefaultOpts = Opts{Resolution: Resolution0_0625C}

// Dev represents an MCP9808 sensor.
type Dev struct {
	d          *i2c.Dev
	mu         sync.Mutex
	resolution Resolution
	shutdown   bool
	stop       chan struct{}
	wg         sync.WaitGroup
}

// NewI2C returns a new MCP9808 using the specified bus and address. The
// manufacturer and device ID registers are checked before the resolution is
// programmed. If opts is nil, DefaultOpts is used.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}}
	mfg, err := d.readWord(regManufactID)
	if err != nil {
		return nil, err
	}
	id, err := d.readWord(regDeviceID)
	if err != nil {
		return nil, err
	}
	if mfg != manufacturerID || byte(id>>8) != deviceID {
		return nil, ErrNotSupported
	}
	if err = d.SetResolution(opts.Resolution); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) readWord(reg byte) (uint16, error) {
	r := make([]byte, 2)
	if err := common.ReadRegister(d.d, reg, r); err != nil {
		return 0, fmt.Errorf("mcp9808: read register 0x%02x: %w", reg, err)
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

func (d *Dev) writeWord(reg byte, v uint16) error {
	if err := common.WriteRegister(d.d, reg, byte(v>>8), byte(v)); err != nil {
		return fmt.Errorf("mcp9808: write register 0x%02x: %w", reg, err)
	}
	return nil
}

// ambientToTemperature decodes the 13 bit two's complement T_A value.
func ambientToTemperature(raw uint16) physic.Temperature {
	count := int16(raw<<3) >> 3
	return physic.ZeroCelsius + physic.Temperature(count)*ambientResolution
}

// limitToCount encodes a limit in 0.25°C steps into bits 12..2.
func limitToCount(t physic.Temperature) uint16 {
	count := int16(math.Round(float64(t-physic.ZeroCelsius) / float64(limitResolution)))
	return uint16(count<<2) & 0x1ffc
}

func countToLimit(raw uint16) physic.Temperature {
	count := int16(raw<<3) >> 5
	return physic.ZeroCelsius + physic.Temperature(count)*limitResolution
}

// Sense reads the ambient temperature. Implements physic.SenseEnv.
func (d *Dev) Sense(env *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.wake(); err != nil {
		return err
	}
	raw, err := d.readWord(regAmbient)
	if err != nil {
		return err
	}
	env.Temperature = ambientToTemperature(raw)
	return nil
}

// AlertStatus reads the ambient temperature register and returns the limit
// flags it carries along with the temperature.
func (d *Dev) AlertStatus() (AlertFlags, physic.Temperature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.wake(); err != nil {
		return 0, MinimumTemperature, err
	}
	raw, err := d.readWord(regAmbient)
	if err != nil {
		return 0, MinimumTemperature, err
	}
	return AlertFlags(raw >> 13), ambientToTemperature(raw), nil
}

// SenseContinuous reads the sensor every interval until Halt() is called.
// The interval cannot be shorter than the conversion time of the current
// resolution.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if minInterval := conversionTime[d.resolution]; interval < minInterval {
		return nil, fmt.Errorf("mcp9808: invalid duration. minimum %s", minInterval)
	}
	if d.stop != nil {
		return nil, errors.New("mcp9808: SenseContinuous already running")
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
	env.Temperature = ambientResolution << (3 - d.resolution)
	env.Pressure = 0
	env.Humidity = 0
}

// SetResolution changes the ambient temperature resolution.
func (d *Dev) SetResolution(r Resolution) error {
	if r > Resolution0_0625C {
		return fmt.Errorf("mcp9808: invalid resolution %d", r)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.WriteRegister(d.d, regResolution, byte(r)); err != nil {
		return fmt.Errorf("mcp9808: %w", err)
	}
	d.resolution = r
	return nil
}

// Resolution reads back the resolution register.
func (d *Dev) Resolution() (Resolution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := make([]byte, 1)
	if err := common.ReadRegister(d.d, regResolution, r); err != nil {
		return 0, fmt.Errorf("mcp9808: %w", err)
	}
	d.resolution = Resolution(r[0] & 0x03)
	return d.resolution, nil
}

// SetAlert programs the three limits and the alert output configuration.
func (d *Dev) SetAlert(a Alert) error {
	if a.Lower >= a.Upper || a.Upper > a.Critical ||
		a.Lower < MinimumTemperature || a.Critical > MaximumTemperature {
		return errInvalidLimits
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	config, err := d.readWord(regConfig)
	if err != nil {
		return err
	}
	if config&(cfgWindowLock|cfgCriticalLock) != 0 {
		return ErrLocked
	}
	// Limits can only be changed while the output is disabled.
	config &^= cfgAlertEnable | cfgAlertMode | cfgAlertPolarity | cfgAlertSelect | 0x03<<posHysteresis
	if err = d.writeWord(regConfig, config); err != nil {
		return err
	}
	if err = d.writeWord(regUpper, limitToCount(a.Upper)); err != nil {
		return err
	}
	if err = d.writeWord(regLower, limitToCount(a.Lower)); err != nil {
		return err
	}
	if err = d.writeWord(regCritical, limitToCount(a.Critical)); err != nil {
		return err
	}
	config |= uint16(a.Hysteresis&0x03) << posHysteresis
	if a.Interrupt {
		config |= cfgAlertMode
	}
	if a.ActiveHigh {
		config |= cfgAlertPolarity
	}
	if a.CriticalOnly {
		config |= cfgAlertSelect
	}
	if a.Enabled {
		config |= cfgAlertEnable
	}
	return d.writeWord(regConfig, config)
}

// GetAlert reads the limits and the alert output configuration.
func (d *Dev) GetAlert() (Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := Alert{}
	config, err := d.readWord(regConfig)
	if err != nil {
		return a, err
	}
	a.Hysteresis = Hysteresis(config>>posHysteresis) & 0x03
	a.Interrupt = config&cfgAlertMode != 0
	a.ActiveHigh = config&cfgAlertPolarity != 0
	a.CriticalOnly = config&cfgAlertSelect != 0
	a.Enabled = config&cfgAlertEnable != 0
	a.Asserted = config&cfgAlertStatus != 0
	for _, l := range []struct {
		reg byte
		t   *physic.Temperature
	}{{regUpper, &a.Upper}, {regLower, &a.Lower}, {regCritical, &a.Critical}} {
		raw, err := d.readWord(l.reg)
		if err != nil {
			return a, err
		}
		*l.t = countToLimit(raw)
	}
	return a, nil
}

// ClearInterrupt clears an interrupt mode alert.
func (d *Dev) ClearInterrupt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	config, err := d.readWord(regConfig)
	if err != nil {
		return err
	}
	return d.writeWord(regConfig, config|cfgIntClear)
}

// Wake leaves shutdown mode.
func (d *Dev) Wake() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setShutdown(false)
}

// wake leaves shutdown mode and waits for a fresh conversion. The ambient
// register keeps its last value while shut down.
func (d *Dev) wake() error {
	if !d.shutdown {
		return nil
	}
	if err := d.setShutdown(false); err != nil {
		return err
	}
	time.Sleep(conversionTime[d.resolution])
	return nil
}

// setShutdown must be called with d.mu held.
func (d *Dev) setShutdown(on bool) error {
	config, err := d.readWord(regConfig)
	if err != nil {
		return err
	}
	v := config &^ (cfgShutdown | cfgIntClear)
	if on {
		v |= cfgShutdown
	}
	if v != config {
		if err = d.writeWord(regConfig, v); err != nil {
			return err
		}
	}
	d.shutdown = on
	return nil
}

// Halt stops SenseContinuous if running and puts the device into its low
// power shutdown mode. Implements conn.Resource.
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
	return d.setShutdown(true)
}

func (d *Dev) String() string {
	return fmt.Sprintf("mcp9808: %s", d.d.String())
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
