// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hx711

import (
	"errors"
	"testing"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

// fakeChip emulates the serial interface of the HX711. Each frame shifts out
// the next value in values.
type fakeChip struct {
	values []int32
	// busy is the number of DOUT reads that report a conversion in progress.
	busy   int
	pulses int
	// extra records the number of gain pulses sent after each frame.
	extra []int
}

func (c *fakeChip) finish() {
	if c.pulses > 24 {
		c.extra = append(c.extra, c.pulses-24)
		c.values = c.values[1:]
	}
	c.pulses = 0
}

type doutPin struct {
	*gpiotest.Pin
	c *fakeChip
}

func (p *doutPin) Read() gpio.Level {
	if p.c.pulses > 24 {
		p.c.finish()
	}
	if p.c.pulses == 0 {
		if p.c.busy > 0 {
			p.c.busy--
			return gpio.High
		}
		return gpio.Low
	}
	return uint32(p.c.values[0])>>(24-p.c.pulses)&1 == 1
}

type sckPin struct {
	*gpiotest.Pin
	c *fakeChip
}

func (p *sckPin) Out(l gpio.Level) error {
	if l == gpio.High {
		p.c.pulses++
	}
	return p.Pin.Out(l)
}

func newDev(t *testing.T, c *fakeChip, opts *Opts) (*Dev, *sckPin) {
	sck := &sckPin{Pin: &gpiotest.Pin{N: "SCK", Num: 6}, c: c}
	d, err := New(&doutPin{Pin: &gpiotest.Pin{N: "DOUT", Num: 5}, c: c}, sck, opts)
	if err != nil {
		t.Fatal(err)
	}
	return d, sck
}

func TestReadRaw(t *testing.T) {
	c := &fakeChip{values: []int32{0x7fffff, -0x800000, -1, 12345}, busy: 3}
	d, _ := newDev(t, c, nil)
	for _, want := range []int32{0x7fffff, -0x800000, -1, 12345} {
		got, err := d.ReadRaw()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("got %d expected %d", got, want)
		}
	}
	c.finish()
	for i, e := range c.extra {
		if e != int(GainA128) {
			t.Errorf("frame %d: %d gain pulses", i, e)
		}
	}
}

func TestTimeout(t *testing.T) {
	c := &fakeChip{busy: 1 << 30}
	d, _ := newDev(t, c, &Opts{Gain: GainA128, ReadyTimeout: 5 * time.Millisecond})
	if _, err := d.ReadRaw(); !errors.Is(err, common.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestCalibration(t *testing.T) {
	c := &fakeChip{values: []int32{1000, 1002, 3001, 3001, 2001, -999}}
	d, _ := newDev(t, c, nil)
	if _, err := d.Sense(); !errors.Is(err, ErrNotCalibrated) {
		t.Errorf("expected ErrNotCalibrated, got %v", err)
	}
	if err := d.Tare(0); err == nil {
		t.Error("expected error for zero samples")
	}
	if err := d.Tare(2); err != nil {
		t.Fatal(err)
	}
	if err := d.Calibrate(10*physic.Newton, 2); err != nil {
		t.Fatal(err)
	}
	offset, scale := d.Scale()
	if offset != 1001 || scale != 200 {
		t.Errorf("unexpected offset %d scale %f", offset, scale)
	}
	f, err := d.Sense()
	if err != nil {
		t.Fatal(err)
	}
	if f != 5*physic.Newton {
		t.Errorf("unexpected force %s", f)
	}
	if f, err = d.Sense(); err != nil {
		t.Fatal(err)
	}
	if f != -10*physic.Newton {
		t.Errorf("unexpected force %s", f)
	}
}

func TestGain(t *testing.T) {
	c := &fakeChip{values: []int32{1, 2, 3}}
	d, _ := newDev(t, c, &Opts{Gain: GainB32, ReadyTimeout: time.Second})
	// The first conversion after power up is made on channel A and dropped.
	if v, err := d.ReadRaw(); err != nil {
		t.Fatal(err)
	} else if v != 2 {
		t.Errorf("got %d expected 2", v)
	}
	if err := d.SetGain(Gain(4)); err == nil {
		t.Error("expected error for invalid gain")
	}
	if err := d.SetGain(GainA64); err != nil {
		t.Fatal(err)
	}
	c.finish()
	if len(c.extra) != 3 || c.extra[0] != 2 || c.extra[1] != 2 || c.extra[2] != 3 {
		t.Errorf("unexpected gain pulses %v", c.extra)
	}
	if _, err := New(&gpiotest.Pin{}, &gpiotest.Pin{}, &Opts{Gain: 0}); err == nil {
		t.Error("expected error for invalid gain")
	}
}

func TestGainSettle(t *testing.T) {
	c := &fakeChip{values: []int32{99999, 1000, 1002, 3001, 3001, 99999, 2001}}
	d, _ := newDev(t, c, &Opts{Gain: GainA64, ReadyTimeout: time.Second})
	if err := d.Tare(2); err != nil {
		t.Fatal(err)
	}
	if err := d.Calibrate(10*physic.Newton, 2); err != nil {
		t.Fatal(err)
	}
	offset, scale := d.Scale()
	if offset != 1001 || scale != 200 {
		t.Errorf("unexpected offset %d scale %f", offset, scale)
	}
	// The chip is back on channel A after a power cycle.
	if err := d.PowerUp(); err != nil {
		t.Fatal(err)
	}
	f, err := d.Sense()
	if err != nil {
		t.Fatal(err)
	}
	if f != 5*physic.Newton {
		t.Errorf("unexpected force %s", f)
	}
	c.finish()
	if len(c.extra) != 7 {
		t.Errorf("expected 7 frames, got %v", c.extra)
	}
	for i, e := range c.extra {
		if e != int(GainA64) {
			t.Errorf("frame %d: %d gain pulses", i, e)
		}
	}
}

func TestHalt(t *testing.T) {
	c := &fakeChip{}
	d, sck := newDev(t, c, nil)
	if _, err := d.SenseContinuous(time.Second); !errors.Is(err, ErrNotCalibrated) {
		t.Errorf("expected ErrNotCalibrated, got %v", err)
	}
	if err := d.SetScale(0, 0); err == nil {
		t.Error("expected error for zero scale")
	}
	if err := d.SetScale(0, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SenseContinuous(time.Millisecond); err == nil {
		t.Error("expected error for short interval")
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if sck.Read() != gpio.High {
		t.Error("PD_SCK must stay high while powered down")
	}
	if err := d.PowerUp(); err != nil {
		t.Fatal(err)
	}
	if sck.Read() != gpio.Low {
		t.Error("PD_SCK must be low after PowerUp")
	}
}
