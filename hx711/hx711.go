// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hx711 drives the Avia Semiconductor HX711 24 bit ADC used with
// load cells.
//
// The HX711 has a two wire interface that is bit banged over GPIO. DOUT goes
// low when a conversion is ready. Each rising edge of PD_SCK shifts out one
// bit, MSB first. One to three extra pulses after the 24 data bits select the
// channel and gain of the next conversion. Holding PD_SCK high for more than
// 60µs powers the chip down.
//
// # Datasheet
//
// https://cdn.sparkfun.com/datasheets/Sensors/ForceFlex/hx711_english.pdf
package hx711

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Gain selects the input channel and its gain. The value is the number of
// extra clock pulses sent after a conversion.
type Gain int

const (
	GainA128 Gain = 1
	GainB32  Gain = 2
	GainA64  Gain = 3
)

// MinInterval is the conversion period with RATE tied low.
const MinInterval = 100 * time.Millisecond

// ErrNotCalibrated is returned by Sense when no scale was set.
var ErrNotCalibrated = errors.New("hx711: scale not set, call Calibrate or SetScale")

// Opts holds the configuration options.
type Opts struct {
	Gain Gain
	// ReadyTimeout bounds the wait for DOUT to go low.
	ReadyTimeout time.Duration
}

// DefaultOpts selects channel A with a gain of 128.
var DefaultOpts = Opts{Gain: GainA128, ReadyTimeout: time.Second}

// Dev is a handle to an HX711.
type Dev struct {
	dout gpio.PinIn
	sck  gpio.PinOut
	mu   sync.Mutex
	gain Gain
	// settle is set while the next conversion still uses channel A with a
	// gain of 128.
	settle  bool
	timeout time.Duration
	offset  int32
	// scale is in counts per Newton.
	scale float64
	stop  chan struct{}
	wg    sync.WaitGroup
}

// New configures the pins and powers up the chip. If opts is nil,
// DefaultOpts is used. The gain takes effect after the first conversion.
func New(dout gpio.PinIn, sck gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Gain < GainA128 || opts.Gain > GainA64 {
		return nil, fmt.Errorf("hx711: invalid gain %d", opts.Gain)
	}
	if err := dout.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("hx711: %w", err)
	}
	if err := sck.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hx711: %w", err)
	}
	return &Dev{dout: dout, sck: sck, gain: opts.Gain, settle: opts.Gain != GainA128, timeout: opts.ReadyTimeout}, nil
}

func (d *Dev) pulse() error {
	if err := d.sck.Out(gpio.High); err != nil {
		return err
	}
	return d.sck.Out(gpio.Low)
}

// readRaw returns the next conversion made with the configured gain.
func (d *Dev) readRaw() (int32, error) {
	if d.settle {
		if _, err := d.convert(); err != nil {
			return 0, err
		}
		d.settle = false
	}
	return d.convert()
}

// convert clocks out one conversion and selects d.gain for the next one.
func (d *Dev) convert() (int32, error) {
	err := common.Poll(d.timeout, time.Millisecond, func() (bool, error) {
		return d.dout.Read() == gpio.Low, nil
	})
	if err != nil {
		return 0, fmt.Errorf("hx711: %w", err)
	}
	var v uint32
	for i := 0; i < 24; i++ {
		if err := d.sck.Out(gpio.High); err != nil {
			return 0, fmt.Errorf("hx711: %w", err)
		}
		v <<= 1
		if d.dout.Read() == gpio.High {
			v |= 1
		}
		if err := d.sck.Out(gpio.Low); err != nil {
			return 0, fmt.Errorf("hx711: %w", err)
		}
	}
	for i := 0; i < int(d.gain); i++ {
		if err := d.pulse(); err != nil {
			return 0, fmt.Errorf("hx711: %w", err)
		}
	}
	// Sign extend the 24 bit two's complement value.
	return int32(v<<8) >> 8, nil
}

// ReadRaw waits for a conversion and returns the signed 24 bit value.
func (d *Dev) ReadRaw() (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRaw()
}

func (d *Dev) average(samples int) (float64, error) {
	if samples < 1 {
		return 0, fmt.Errorf("hx711: invalid number of samples %d", samples)
	}
	var sum int64
	for i := 0; i < samples; i++ {
		v, err := d.readRaw()
		if err != nil {
			return 0, err
		}
		sum += int64(v)
	}
	return float64(sum) / float64(samples), nil
}

// Tare averages samples conversions with no load and stores the result as the
// zero offset.
func (d *Dev) Tare(samples int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	avg, err := d.average(samples)
	if err != nil {
		return err
	}
	d.offset = int32(avg)
	return nil
}

// Calibrate computes the scale from samples conversions with the known force
// applied. Tare must have been called first.
func (d *Dev) Calibrate(known physic.Force, samples int) error {
	if known == 0 {
		return errors.New("hx711: calibration force must not be zero")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	avg, err := d.average(samples)
	if err != nil {
		return err
	}
	scale := (avg - float64(d.offset)) / (float64(known) / float64(physic.Newton))
	if scale == 0 {
		return errors.New("hx711: no change measured with calibration force")
	}
	d.scale = scale
	return nil
}

// SetScale sets the zero offset in counts and the scale in counts per Newton,
// typically from a previous calibration.
func (d *Dev) SetScale(offset int32, countsPerNewton float64) error {
	if countsPerNewton == 0 {
		return errors.New("hx711: scale must not be zero")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offset = offset
	d.scale = countsPerNewton
	return nil
}

// Scale returns the zero offset and the scale in counts per Newton.
func (d *Dev) Scale() (int32, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offset, d.scale
}

// Sense reads one conversion and converts it to a force.
func (d *Dev) Sense() (physic.Force, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scale == 0 {
		return 0, ErrNotCalibrated
	}
	v, err := d.readRaw()
	if err != nil {
		return 0, err
	}
	return physic.Force(float64(v-d.offset) / d.scale * float64(physic.Newton)), nil
}

// SenseContinuous returns a channel receiving a reading every interval until
// Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Force, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if interval < MinInterval {
		return nil, fmt.Errorf("hx711: invalid duration. minimum %s", MinInterval)
	}
	if d.scale == 0 {
		return nil, ErrNotCalibrated
	}
	if d.stop != nil {
		return nil, errors.New("hx711: SenseContinuous already running")
	}
	ch := make(chan physic.Force, 16)
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
				if f, err := d.Sense(); err == nil && len(ch) < cap(ch) {
					ch <- f
				}
			}
		}
	}(d.stop)
	return ch, nil
}

// SetGain changes the channel and gain. A conversion is read and discarded
// so the next one uses the new setting.
func (d *Dev) SetGain(g Gain) error {
	if g < GainA128 || g > GainA64 {
		return fmt.Errorf("hx711: invalid gain %d", g)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gain = g
	if _, err := d.convert(); err != nil {
		return err
	}
	d.settle = false
	return nil
}

// PowerUp wakes the chip. It resets to channel A with a gain of 128, so the
// configured gain applies after the first conversion.
func (d *Dev) PowerUp() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sck.Out(gpio.Low); err != nil {
		return fmt.Errorf("hx711: %w", err)
	}
	d.settle = d.gain != GainA128
	return nil
}

// Halt stops SenseContinuous and powers the chip down. Implements
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
	if err := d.sck.Out(gpio.High); err != nil {
		return fmt.Errorf("hx711: %w", err)
	}
	time.Sleep(100 * time.Microsecond)
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("hx711: dout=%s sck=%s", d.dout, d.sck)
}

var _ conn.Resource = &Dev{}
