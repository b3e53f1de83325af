// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmp102

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

// ConversionRate is the number of conversions per second made while the
// device runs continuously.
type ConversionRate byte

// AlertMode selects how the ALERT pin reacts to the limit registers.
type AlertMode byte

const (
	// Conversion (sample) Rates. The device default is 4 readings/second.
	RateQuarterHertz ConversionRate = iota
	RateOneHertz
	RateFourHertz
	RateEightHertz
)

const (
	// ModeComparator asserts ALERT while the temperature is above T_HIGH and
	// until it falls below T_LOW. Refer to section 6.4.5.1 of the datasheet.
	ModeComparator AlertMode = 0
	// ModeInterrupt asserts ALERT when a limit is crossed until a register is
	// read. Reading the temperature clears the alert, so be aware if you're
	// using SenseContinuous.
	ModeInterrupt AlertMode = 1
)

const (
	// DefaultAddress is the address with ADD0 tied to ground.
	DefaultAddress uint16 = 0x48

	regTemperature   byte = 0
	regConfiguration byte = 1
	regRangeLow      byte = 2
	regRangeHigh     byte = 3

	// Bit positions within the 16 bit configuration word.
	bitOneShot        = 15
	bitThermostatMode = 9
	bitShutdown       = 8
	posConversionRate = 6
	bitExtendedMode   = 4

	resolution physic.Temperature = 62_500 * physic.MicroKelvin

	oneShotTimeout = 50 * time.Millisecond

	// MinimumTemperature is the lowest temperature the device can read.
	MinimumTemperature physic.Temperature = physic.ZeroCelsius - 40*physic.Kelvin
	// MaximumTemperature is the highest temperature the device can read in
	// normal (12 bit) mode.
	MaximumTemperature physic.Temperature = physic.ZeroCelsius + 125*physic.Kelvin
	// MaximumExtendedTemperature is the highest temperature the device can
	// read in extended (13 bit) mode.
	MaximumExtendedTemperature physic.Temperature = physic.ZeroCelsius + 150*physic.Kelvin
)

var errInvalidRange = errors.New("tmp102: invalid temperature range")

// Opts represents configurable options for the TMP102.
type Opts struct {
	SampleRate   ConversionRate
	AlertSetting AlertMode
	// AlertLow and AlertHigh are written to T_LOW/T_HIGH on start when non
	// zero.
	AlertLow  physic.Temperature
	AlertHigh physic.Temperature
	// Extended selects the 13 bit data format, which extends the range to
	// 150°C.
	Extended bool
}

// DefaultOpts matches the power-on state of the device.
var DefaultOpts = Opts{SampleRate: RateFourHertz, AlertSetting: ModeComparator}

// Dev represents a TMP102 sensor.
type Dev struct {
	d    *i2c.Dev
	mu   sync.Mutex
	opts Opts
	// running is false while the device is in shutdown mode.
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewI2C returns a new TMP102 sensor using the specified bus and address.
// If opts is nil, DefaultOpts is used.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, opts: *opts}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.start(); err != nil {
		return nil, err
	}
	return d, nil
}

func (dev *Dev) readWord(reg byte) (uint16, error) {
	r := make([]byte, 2)
	if err := common.ReadRegister(dev.d, reg, r); err != nil {
		return 0, fmt.Errorf("tmp102: read register %d: %w", reg, err)
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

func (dev *Dev) writeWord(reg byte, value uint16) error {
	if err := common.WriteRegister(dev.d, reg, byte(value>>8), byte(value)); err != nil {
		return fmt.Errorf("tmp102: write register %d: %w", reg, err)
	}
	return nil
}

// start applies the options and takes the device out of shutdown mode.
func (dev *Dev) start() error {
	config, err := dev.readWord(regConfiguration)
	if err != nil {
		return err
	}
	config &^= 1<<bitShutdown | 1<<bitThermostatMode | 0x03<<posConversionRate | 1<<bitExtendedMode
	config |= uint16(dev.opts.AlertSetting&0x01) << bitThermostatMode
	config |= uint16(dev.opts.SampleRate&0x03) << posConversionRate
	if dev.opts.Extended {
		config |= 1 << bitExtendedMode
	}
	if err = dev.writeWord(regConfiguration, config); err != nil {
		return err
	}
	dev.running = true

	if dev.opts.AlertLow != 0 {
		if err = dev.writeWord(regRangeLow, temperatureToCount(dev.opts.AlertLow, dev.opts.Extended)); err != nil {
			return err
		}
	}
	if dev.opts.AlertHigh != 0 {
		err = dev.writeWord(regRangeHigh, temperatureToCount(dev.opts.AlertHigh, dev.opts.Extended))
	}
	return err
}

// temperatureToCount converts a temperature into the left aligned register
// format used by the temperature and limit registers.
func temperatureToCount(temp physic.Temperature, extended bool) uint16 {
	count := int16(math.Round(float64(temp-physic.ZeroCelsius) / float64(resolution)))
	if extended {
		return uint16(count << 3)
	}
	return uint16(count << 4)
}

// countToTemperature returns the temperature from a raw register value. In
// extended mode the value is 13 bits wide.
func countToTemperature(raw uint16, extended bool) physic.Temperature {
	count := int16(raw) >> 4
	if extended {
		count = int16(raw) >> 3
	}
	return physic.ZeroCelsius + physic.Temperature(count)*resolution
}

// ReadConfiguration returns the device's configuration register as a 16 bit
// unsigned integer. Refer to the datasheet for interpretation.
func (dev *Dev) ReadConfiguration() (uint16, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.readWord(regConfiguration)
}

func (dev *Dev) readTemperature() (physic.Temperature, error) {
	if !dev.running {
		if err := dev.start(); err != nil {
			return MinimumTemperature, err
		}
	}
	raw, err := dev.readWord(regTemperature)
	if err != nil {
		return MinimumTemperature, err
	}
	return countToTemperature(raw, dev.opts.Extended), nil
}

// OneShot puts the device in shutdown mode, triggers a single conversion and
// returns the result once the conversion-ready bit is set. The device stays in
// shutdown mode afterwards until Sense() is called.
func (dev *Dev) OneShot() (physic.Temperature, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	config, err := dev.readWord(regConfiguration)
	if err != nil {
		return MinimumTemperature, err
	}
	config |= 1<<bitShutdown | 1<<bitOneShot
	if err = dev.writeWord(regConfiguration, config); err != nil {
		return MinimumTemperature, err
	}
	dev.running = false
	// OS reads back as 0 while the conversion is in progress.
	err = common.Poll(oneShotTimeout, 5*time.Millisecond, func() (bool, error) {
		v, err := dev.readWord(regConfiguration)
		return v&(1<<bitOneShot) != 0, err
	})
	if err != nil {
		return MinimumTemperature, fmt.Errorf("tmp102: one-shot conversion: %w", err)
	}
	raw, err := dev.readWord(regTemperature)
	if err != nil {
		return MinimumTemperature, err
	}
	return countToTemperature(raw, dev.opts.Extended), nil
}

// GetAlertMode returns the current alert settings for the device.
func (dev *Dev) GetAlertMode() (mode AlertMode, rangeLow, rangeHigh physic.Temperature, err error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	rangeLow = MinimumTemperature
	rangeHigh = MaximumTemperature

	var config, raw uint16
	if config, err = dev.readWord(regConfiguration); err != nil {
		return
	}
	mode = AlertMode((config >> bitThermostatMode) & 0x01)
	if raw, err = dev.readWord(regRangeLow); err != nil {
		return
	}
	rangeLow = countToTemperature(raw, dev.opts.Extended)
	if raw, err = dev.readWord(regRangeHigh); err != nil {
		return
	}
	rangeHigh = countToTemperature(raw, dev.opts.Extended)
	return
}

// SetAlertMode sets the device to operate in alert (thermostat) mode. Alert
// mode will set the Alert pin on the device to active mode when the conditions
// apply. Refer to section 6.4.5 and section 6.5.4 of the TMP102 datasheet.
//
// To detect the alert trigger, connect the ALERT pin to a GPIO pin configured
// with edge detection, or poll it.
func (dev *Dev) SetAlertMode(mode AlertMode, rangeLow, rangeHigh physic.Temperature) error {
	maxTemp := MaximumTemperature
	if dev.opts.Extended {
		maxTemp = MaximumExtendedTemperature
	}
	if rangeLow >= rangeHigh || rangeLow < MinimumTemperature || rangeHigh > maxTemp {
		return errInvalidRange
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.opts.AlertSetting = mode
	dev.opts.AlertLow = rangeLow
	dev.opts.AlertHigh = rangeHigh

	if err := dev.writeWord(regRangeLow, temperatureToCount(rangeLow, dev.opts.Extended)); err != nil {
		return err
	}
	if err := dev.writeWord(regRangeHigh, temperatureToCount(rangeHigh, dev.opts.Extended)); err != nil {
		return err
	}
	running, err := dev.readWord(regConfiguration)
	if err != nil {
		return err
	}
	config := (running &^ (1<<bitShutdown | 1<<bitThermostatMode)) | uint16(mode&0x01)<<bitThermostatMode
	if config == running {
		return nil
	}
	if err = dev.writeWord(regConfiguration, config); err == nil {
		dev.running = true
	}
	return err
}

// Sense reads the temperature from the device. Implements physic.SenseEnv.
func (dev *Dev) Sense(env *physic.Env) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	t, err := dev.readTemperature()
	if err == nil {
		env.Temperature = t
	}
	return err
}

// SenseContinuous continuously reads from the device and writes the value to
// the returned channel. Implements physic.SenseEnv. To terminate the
// continuous read, call Halt().
func (dev *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < 125*time.Millisecond {
		return nil, errors.New("tmp102: invalid duration. minimum 125ms")
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.stop != nil {
		return nil, errors.New("tmp102: SenseContinuous already running")
	}
	const channelSize = 16
	channel := make(chan physic.Env, channelSize)
	dev.stop = make(chan struct{})
	dev.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer dev.wg.Done()
		defer close(channel)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e := physic.Env{}
				if err := dev.Sense(&e); err == nil && len(channel) < channelSize {
					channel <- e
				}
			}
		}
	}(dev.stop)
	return channel, nil
}

// Halt aborts a running SenseContinuous and puts the device into shutdown
// mode. Implements conn.Resource.
func (dev *Dev) Halt() error {
	dev.mu.Lock()
	if dev.stop != nil {
		close(dev.stop)
		dev.stop = nil
		dev.mu.Unlock()
		dev.wg.Wait()
		dev.mu.Lock()
	}
	defer dev.mu.Unlock()

	current, err := dev.readWord(regConfiguration)
	if err != nil {
		return err
	}
	dev.running = false
	if current&(1<<bitShutdown) != 0 {
		return nil
	}
	return dev.writeWord(regConfiguration, current|1<<bitShutdown)
}

// Precision returns the sensor's precision, or minimum value between steps the
// device can make. The specified precision is 0.0625 degrees Celsius. Note
// that the accuracy of the device is +/- 0.5 degrees Celsius.
func (dev *Dev) Precision(env *physic.Env) {
	env.Temperature = resolution
	env.Pressure = 0
	env.Humidity = 0
}

func (dev *Dev) String() string {
	return fmt.Sprintf("tmp102: %s", dev.d.String())
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
