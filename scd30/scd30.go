// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package scd30 drives the Sensirion SCD30 CO₂, temperature and humidity
// module over I²C.
//
// The SCD30 uses 16 bit commands. Every data word is followed by a CRC-8.
// The device does not support repeated start reads. A read command must be
// written, followed by a stop and a pause of at least 3ms before the result
// is read.
//
// # Datasheet
//
// https://sensirion.com/media/documents/4EAF6AF8/61652C3C/Sensirion_CO2_Sensors_SCD30_Datasheet.pdf
//
// https://sensirion.com/media/documents/D7CEEF4A/6165372F/Sensirion_CO2_Sensors_SCD30_Interface_Description.pdf
package scd30

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

// PPM is a CO₂ concentration in parts per million.
type PPM float32

func (p PPM) String() string {
	return fmt.Sprintf("%.1f PPM", float32(p))
}

// Env is a reading of the three measured quantities.
type Env struct {
	physic.Env
	CO2 PPM
}

func (e *Env) String() string {
	return fmt.Sprintf("Temperature: %s Humidity: %s CO2: %s", e.Temperature, e.Humidity, e.CO2)
}

// DefaultAddress is the only address the device responds to.
const DefaultAddress uint16 = 0x61

type command uint16

const (
	cmdStartContinuous   command = 0x0010
	cmdStopContinuous    command = 0x0104
	cmdInterval          command = 0x4600
	cmdDataReady         command = 0x0202
	cmdReadMeasurement   command = 0x0300
	cmdASC               command = 0x5306
	cmdForceRecalibrate  command = 0x5204
	cmdTemperatureOffset command = 0x5403
	cmdAltitude          command = 0x5102
	cmdFirmwareVersion   command = 0xd100
	cmdSoftReset         command = 0xd304
)

const (
	readDelay = 3 * time.Millisecond

	MinInterval = 2 * time.Second
	MaxInterval = 1800 * time.Second

	MinAmbientPressure = 700 * 100 * physic.Pascal
	MaxAmbientPressure = 1400 * 100 * physic.Pascal

	MinRecalibration PPM = 400
	MaxRecalibration PPM = 2000
)

// Opts holds the configuration applied by NewI2C.
type Opts struct {
	// Interval is the measurement interval in the range 2s to 1800s.
	Interval time.Duration
	// AmbientPressure compensates the CO₂ reading. Zero disables pressure
	// compensation.
	AmbientPressure physic.Pressure
	// DataReadyTimeout bounds the wait for a new measurement in Sense. Zero
	// means twice Interval.
	DataReadyTimeout time.Duration
}

// DefaultOpts is the power-on measurement interval without pressure
// compensation.
var DefaultOpts = Opts{Interval: MinInterval}

// DevConfig is the persistent configuration of the device. The device stores
// every field in non-volatile memory as soon as it is written.
type DevConfig struct {
	Interval time.Duration
	// ASCEnabled turns on automatic self calibration.
	ASCEnabled bool
	// TemperatureOffset is subtracted from the measured temperature. It must
	// not be negative.
	TemperatureOffset physic.Temperature
	// Altitude compensates the CO₂ reading when no ambient pressure is set.
	Altitude physic.Distance
}

// Dev is a handle to an SCD30.
type Dev struct {
	d        *i2c.Dev
	mu       sync.Mutex
	interval time.Duration
	timeout  time.Duration
	sensing  bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewI2C programs the measurement interval and starts continuous
// measurement. If opts is nil, DefaultOpts is used.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, timeout: opts.DataReadyTimeout}
	if err := d.setInterval(opts.Interval); err != nil {
		return nil, err
	}
	if err := d.Start(opts.AmbientPressure); err != nil {
		return nil, err
	}
	return d, nil
}

// write sends cmd and its optional argument word.
func (d *Dev) write(cmd command, args ...uint16) error {
	w := []byte{byte(cmd >> 8), byte(cmd)}
	for _, a := range args {
		v := []byte{byte(a >> 8), byte(a)}
		w = append(w, v[0], v[1], common.CRC8(v))
	}
	if err := d.d.Tx(w, nil); err != nil {
		return fmt.Errorf("scd30: command 0x%04x: %w", uint16(cmd), err)
	}
	return nil
}

// read sends cmd then reads n CRC protected words after the mandatory pause.
func (d *Dev) read(cmd command, n int) ([]uint16, error) {
	if err := d.write(cmd); err != nil {
		return nil, err
	}
	time.Sleep(readDelay)
	r := make([]byte, 3*n)
	if err := d.d.Tx(nil, r); err != nil {
		return nil, fmt.Errorf("scd30: read 0x%04x: %w", uint16(cmd), err)
	}
	words := make([]uint16, n)
	for i := range words {
		if common.CRC8(r[3*i:3*i+2]) != r[3*i+2] {
			return nil, fmt.Errorf("scd30: read 0x%04x word %d: %w", uint16(cmd), i, common.ErrCRC)
		}
		words[i] = uint16(r[3*i])<<8 | uint16(r[3*i+1])
	}
	return words, nil
}

func (d *Dev) setInterval(interval time.Duration) error {
	if interval < MinInterval || interval > MaxInterval {
		return fmt.Errorf("scd30: interval %s out of range [%s, %s]", interval, MinInterval, MaxInterval)
	}
	if err := d.write(cmdInterval, uint16(interval/time.Second)); err != nil {
		return err
	}
	d.interval = interval
	return nil
}

// Start triggers continuous measurement. pressure is either zero or within
// 700 to 1400 mbar.
func (d *Dev) Start(pressure physic.Pressure) error {
	if pressure != 0 && (pressure < MinAmbientPressure || pressure > MaxAmbientPressure) {
		return fmt.Errorf("scd30: ambient pressure %s out of range", pressure)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(cmdStartContinuous, uint16(pressure/(100*physic.Pascal))); err != nil {
		return err
	}
	d.sensing = true
	return nil
}

// DataReady reports whether a measurement can be read.
func (d *Dev) DataReady() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dataReady()
}

func (d *Dev) dataReady() (bool, error) {
	w, err := d.read(cmdDataReady, 1)
	if err != nil {
		return false, err
	}
	return w[0] == 1, nil
}

func wordsToFloat(hi, lo uint16) float64 {
	return float64(math.Float32frombits(uint32(hi)<<16 | uint32(lo)))
}

// Sense waits for the next measurement and reads it.
func (d *Dev) Sense(env *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	env.Pressure = 0
	if !d.sensing {
		return errors.New("scd30: continuous measurement not started")
	}
	timeout := d.timeout
	if timeout == 0 {
		timeout = 2 * d.interval
	}
	if err := common.Poll(timeout, 100*time.Millisecond, d.dataReady); err != nil {
		return fmt.Errorf("scd30: waiting for data: %w", err)
	}
	w, err := d.read(cmdReadMeasurement, 6)
	if err != nil {
		return err
	}
	env.CO2 = PPM(wordsToFloat(w[0], w[1]))
	env.Temperature = physic.ZeroCelsius + physic.Temperature(wordsToFloat(w[2], w[3])*float64(physic.Kelvin))
	env.Humidity = physic.RelativeHumidity(wordsToFloat(w[4], w[5]) * float64(physic.PercentRH))
	return nil
}

// SenseContinuous returns a channel receiving a reading every interval until
// Halt() is called. The interval cannot be shorter than the measurement
// interval of the device.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if interval < d.interval {
		return nil, fmt.Errorf("scd30: invalid duration. minimum %s", d.interval)
	}
	if d.stop != nil {
		return nil, errors.New("scd30: SenseContinuous already running")
	}
	ch := make(chan Env, 16)
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
				e := Env{}
				if err := d.Sense(&e); err == nil && len(ch) < cap(ch) {
					ch <- e
				}
			}
		}
	}(d.stop)
	return ch, nil
}

// Precision returns the resolution of the float values reported by the
// device.
func (d *Dev) Precision(env *physic.Env) {
	env.Temperature = 10 * physic.MilliKelvin
	env.Humidity = 10 * physic.MilliRH
	env.Pressure = 0
}

// Halt stops SenseContinuous and continuous measurement. Implements
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
	if !d.sensing {
		return nil
	}
	d.sensing = false
	return d.write(cmdStopContinuous)
}

// GetConfiguration reads the persistent configuration.
func (d *Dev) GetConfiguration() (*DevConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := &DevConfig{}
	w, err := d.read(cmdInterval, 1)
	if err != nil {
		return nil, err
	}
	cfg.Interval = time.Duration(w[0]) * time.Second
	if w, err = d.read(cmdASC, 1); err != nil {
		return nil, err
	}
	cfg.ASCEnabled = w[0] == 1
	if w, err = d.read(cmdTemperatureOffset, 1); err != nil {
		return nil, err
	}
	cfg.TemperatureOffset = physic.Temperature(w[0]) * 10 * physic.MilliKelvin
	if w, err = d.read(cmdAltitude, 1); err != nil {
		return nil, err
	}
	cfg.Altitude = physic.Distance(w[0]) * physic.Metre
	return cfg, nil
}

// SetConfiguration writes every field of cfg to the device.
func (d *Dev) SetConfiguration(cfg *DevConfig) error {
	if cfg.TemperatureOffset < 0 || cfg.TemperatureOffset > 0xffff*10*physic.MilliKelvin {
		return fmt.Errorf("scd30: temperature offset %s out of range", cfg.TemperatureOffset)
	}
	if cfg.Altitude < 0 || cfg.Altitude > 0xffff*physic.Metre {
		return fmt.Errorf("scd30: altitude %s out of range", cfg.Altitude)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.setInterval(cfg.Interval); err != nil {
		return err
	}
	var asc uint16
	if cfg.ASCEnabled {
		asc = 1
	}
	if err := d.write(cmdASC, asc); err != nil {
		return err
	}
	if err := d.write(cmdTemperatureOffset, uint16(cfg.TemperatureOffset/(10*physic.MilliKelvin))); err != nil {
		return err
	}
	return d.write(cmdAltitude, uint16(cfg.Altitude/physic.Metre))
}

// ForceRecalibration tells the device the current CO₂ concentration. The
// sensor must have been running in a stable environment for at least two
// minutes.
func (d *Dev) ForceRecalibration(reference PPM) error {
	if reference < MinRecalibration || reference > MaxRecalibration {
		return fmt.Errorf("scd30: recalibration reference %s out of range", reference)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(cmdForceRecalibrate, uint16(reference))
}

// FirmwareVersion returns the major and minor firmware version.
func (d *Dev) FirmwareVersion() (major, minor byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.read(cmdFirmwareVersion, 1)
	if err != nil {
		return 0, 0, err
	}
	return byte(w[0] >> 8), byte(w[0]), nil
}

// SoftReset restarts the device. Continuous measurement resumes with the
// stored interval if it was running before the reset.
func (d *Dev) SoftReset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(cmdSoftReset); err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	return nil
}

func (d *Dev) String() string {
	return "scd30: " + d.d.String()
}

var _ conn.Resource = &Dev{}
