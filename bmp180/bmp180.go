// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bmp180 drives the Bosch BMP180 barometric pressure sensor. The
// older BMP085 is register compatible.
//
// Readings are compensated with the integer algorithm from the datasheet
// using the factory calibration stored in the device EEPROM.
//
// # Datasheet
//
// https://cdn-shop.adafruit.com/datasheets/BST-BMP180-DS000-09.pdf
package bmp180

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

// Oversampling trades conversion time and power for pressure noise.
type Oversampling uint8

const (
	UltraLowPower       Oversampling = 0
	Standard            Oversampling = 1
	HighResolution      Oversampling = 2
	UltraHighResolution Oversampling = 3
)

const (
	// DefaultAddress is the fixed address of the device.
	DefaultAddress uint16 = 0x77

	regCalibration byte = 0xaa
	regChipID      byte = 0xd0
	regSoftReset   byte = 0xe0
	regControl     byte = 0xf4
	regResult      byte = 0xf6

	chipID         byte = 0x55
	resetValue     byte = 0xb6
	cmdTemperature byte = 0x2e
	cmdPressure    byte = 0x34
	ctrlSCO        byte = 1 << 5

	temperatureTime = 4500 * time.Microsecond

	// StandardSeaLevel is the ISA pressure at mean sea level.
	StandardSeaLevel = 101325 * physic.Pascal
)

var pressureTime = [...]time.Duration{
	UltraLowPower:       4500 * time.Microsecond,
	Standard:            7500 * time.Microsecond,
	HighResolution:      13500 * time.Microsecond,
	UltraHighResolution: 25500 * time.Microsecond,
}

var (
	// ErrNotSupported is returned when the chip ID is not 0x55.
	ErrNotSupported = fmt.Errorf("bmp180: %w", common.ErrNotSupported)
	// ErrBadCalibration is returned when a calibration word reads as 0x0000
	// or 0xFFFF, which indicates a damaged EEPROM or a bus fault.
	ErrBadCalibration = fmt.Errorf("bmp180: invalid calibration: %w", common.ErrCRC)
)

// Opts holds the configuration options.
type Opts struct {
	Oversampling Oversampling
	// MeasurementTimeout bounds the time spent polling the SCO bit once the
	// nominal conversion time elapsed.
	MeasurementTimeout time.Duration
}

// DefaultOpts is the recommended configuration.
var DefaultOpts = Opts{Oversampling: Standard, MeasurementTimeout: 50 * time.Millisecond}

// calibration holds the EEPROM coefficients, named as in the datasheet.
type calibration struct {
	ac1, ac2, ac3 int64
	ac4, ac5, ac6 int64
	b1, b2        int64
	mb, mc, md    int64
}

func newCalibration(r []byte) (calibration, error) {
	w := make([]int64, 11)
	for i := range w {
		u := uint16(r[2*i])<<8 | uint16(r[2*i+1])
		if u == 0 || u == 0xffff {
			return calibration{}, ErrBadCalibration
		}
		if i >= 3 && i <= 5 {
			// AC4..AC6 are unsigned.
			w[i] = int64(u)
		} else {
			w[i] = int64(int16(u))
		}
	}
	return calibration{
		ac1: w[0], ac2: w[1], ac3: w[2], ac4: w[3], ac5: w[4], ac6: w[5],
		b1: w[6], b2: w[7], mb: w[8], mc: w[9], md: w[10],
	}, nil
}

// compensate returns the temperature in 0.1°C and the pressure in Pa.
func (c *calibration) compensate(ut, up int64, oss Oversampling) (int64, int64) {
	x1 := ((ut - c.ac6) * c.ac5) >> 15
	x2 := (c.mc << 11) / (x1 + c.md)
	b5 := x1 + x2
	t := (b5 + 8) >> 4

	b6 := b5 - 4000
	x1 = (c.b2 * ((b6 * b6) >> 12)) >> 11
	x2 = (c.ac2 * b6) >> 11
	x3 := x1 + x2
	b3 := (((c.ac1*4 + x3) << oss) + 2) >> 2
	x1 = (c.ac3 * b6) >> 13
	x2 = (c.b1 * ((b6 * b6) >> 12)) >> 16
	x3 = ((x1 + x2) + 2) >> 2
	b4 := uint64(c.ac4) * uint64(x3+32768) >> 15
	b7 := uint64(up-b3) * (50000 >> oss)
	var p int64
	if b7 < 0x80000000 {
		p = int64(b7 * 2 / b4)
	} else {
		p = int64(b7 / b4 * 2)
	}
	x1 = (p >> 8) * (p >> 8)
	x1 = (x1 * 3038) >> 16
	x2 = (-7357 * p) >> 16
	return t, p + ((x1 + x2 + 3791) >> 4)
}

// Dev is a handle to a BMP180.
type Dev struct {
	d       *i2c.Dev
	mu      sync.Mutex
	oss     Oversampling
	timeout time.Duration
	cal     calibration
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewI2C checks the chip ID and reads the calibration. If opts is nil,
// DefaultOpts is used.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Oversampling > UltraHighResolution {
		return nil, fmt.Errorf("bmp180: invalid oversampling %d", opts.Oversampling)
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, oss: opts.Oversampling, timeout: opts.MeasurementTimeout}
	id := make([]byte, 1)
	if err := common.ReadRegister(d.d, regChipID, id); err != nil {
		return nil, fmt.Errorf("bmp180: %w", err)
	}
	if id[0] != chipID {
		return nil, ErrNotSupported
	}
	r := make([]byte, 22)
	if err := common.ReadRegister(d.d, regCalibration, r); err != nil {
		return nil, fmt.Errorf("bmp180: read calibration: %w", err)
	}
	var err error
	if d.cal, err = newCalibration(r); err != nil {
		return nil, err
	}
	return d, nil
}

// convert starts a conversion, waits for SCO to clear and reads n result
// bytes.
func (d *Dev) convert(cmd byte, wait time.Duration, n int) ([]byte, error) {
	if err := common.WriteRegister(d.d, regControl, cmd); err != nil {
		return nil, fmt.Errorf("bmp180: start conversion: %w", err)
	}
	time.Sleep(wait)
	ctrl := make([]byte, 1)
	err := common.Poll(d.timeout, time.Millisecond, func() (bool, error) {
		if err := common.ReadRegister(d.d, regControl, ctrl); err != nil {
			return false, err
		}
		return ctrl[0]&ctrlSCO == 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("bmp180: %w", err)
	}
	r := make([]byte, n)
	if err := common.ReadRegister(d.d, regResult, r); err != nil {
		return nil, fmt.Errorf("bmp180: read result: %w", err)
	}
	return r, nil
}

// Sense measures temperature and pressure. Implements physic.SenseEnv.
func (d *Dev) Sense(env *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	env.Humidity = 0
	r, err := d.convert(cmdTemperature, temperatureTime, 2)
	if err != nil {
		return err
	}
	ut := int64(r[0])<<8 | int64(r[1])
	if r, err = d.convert(cmdPressure|byte(d.oss)<<6, pressureTime[d.oss], 3); err != nil {
		return err
	}
	up := (int64(r[0])<<16 | int64(r[1])<<8 | int64(r[2])) >> (8 - d.oss)
	t, p := d.cal.compensate(ut, up, d.oss)
	env.Temperature = physic.ZeroCelsius + physic.Temperature(t)*100*physic.MilliKelvin
	env.Pressure = physic.Pressure(p) * physic.Pascal
	return nil
}

// SenseContinuous implements physic.SenseEnv.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if minInterval := temperatureTime + pressureTime[d.oss]; interval < minInterval {
		return nil, fmt.Errorf("bmp180: invalid duration. minimum %s", minInterval)
	}
	if d.stop != nil {
		return nil, errors.New("bmp180: SenseContinuous already running")
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
	env.Temperature = 100 * physic.MilliKelvin
	env.Pressure = physic.Pascal
	env.Humidity = 0
}

// SoftReset performs the same sequence as a power on reset.
func (d *Dev) SoftReset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.WriteRegister(d.d, regSoftReset, resetValue); err != nil {
		return fmt.Errorf("bmp180: soft reset: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// Halt stops SenseContinuous. The device enters standby after every
// conversion. Implements conn.Resource.
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
	return "bmp180: " + d.d.String()
}

// Altitude returns the height above the reference level using the
// international barometric formula.
func Altitude(p, seaLevel physic.Pressure) physic.Distance {
	m := 44330 * (1 - math.Pow(float64(p)/float64(seaLevel), 1/5.255))
	return physic.Distance(m * float64(physic.Metre))
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
