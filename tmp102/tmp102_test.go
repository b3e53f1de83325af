// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmp102

import (
	"errors"
	"testing"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

const addr = DefaultAddress

// startOps is the traffic generated by NewI2C with DefaultOpts against a
// device in its power-on state.
func startOps() []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: addr, W: []byte{regConfiguration}, R: []byte{0x60, 0xa0}},
		{Addr: addr, W: []byte{regConfiguration, 0x60, 0xa0}},
	}
}

func newDev(t *testing.T, ops []i2ctest.IO, opts *Opts) (*Dev, *i2ctest.Playback) {
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	dev, err := NewI2C(pb, addr, opts)
	if err != nil {
		t.Fatal(err)
	}
	return dev, pb
}

func TestConversions(t *testing.T) {
	tests := []struct {
		raw      uint16
		extended bool
		expected physic.Temperature
	}{
		{0x6400, false, physic.ZeroCelsius + 100*physic.Kelvin},
		{0x4b00, false, physic.ZeroCelsius + 75*physic.Kelvin},
		{0x0010, false, physic.ZeroCelsius + 62500*physic.MicroKelvin},
		{0x0000, false, physic.ZeroCelsius},
		{0xe700, false, physic.ZeroCelsius - 25*physic.Kelvin},
		{0xc900, false, physic.ZeroCelsius - 55*physic.Kelvin},
		{0x4b00, true, physic.ZeroCelsius + 150*physic.Kelvin},
		{0xf380, true, physic.ZeroCelsius - 25*physic.Kelvin},
	}
	for _, test := range tests {
		got := countToTemperature(test.raw, test.extended)
		if got != test.expected {
			t.Errorf("countToTemperature(0x%x, %t)=%s expected %s", test.raw, test.extended, got, test.expected)
		}
		if back := temperatureToCount(got, test.extended); back != test.raw {
			t.Errorf("temperatureToCount(%s, %t)=0x%x expected 0x%x", got, test.extended, back, test.raw)
		}
	}
}

func TestSense(t *testing.T) {
	ops := append(startOps(), i2ctest.IO{Addr: addr, W: []byte{regTemperature}, R: []byte{0x19, 0x00}})
	dev, pb := newDev(t, ops, nil)
	e := physic.Env{}
	if err := dev.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if expected := physic.ZeroCelsius + 25*physic.Kelvin; e.Temperature != expected {
		t.Errorf("read %s expected %s", e.Temperature, expected)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

// TestSenseContinuous tests the sense continuous function, which implicitly
// tests Sense() and countToTemperature().
func TestSenseContinuous(t *testing.T) {
	tests := []struct {
		bits     []byte
		expected physic.Temperature
	}{
		{[]byte{0x64, 0x00}, physic.ZeroCelsius + 100*physic.Kelvin},
		{[]byte{0x50, 0x00}, physic.ZeroCelsius + 80*physic.Kelvin},
		{[]byte{0x19, 0x00}, physic.ZeroCelsius + 25*physic.Kelvin},
		{[]byte{0xe7, 0x00}, physic.ZeroCelsius - 25*physic.Kelvin},
	}
	opts := Opts{
		SampleRate:   RateFourHertz,
		AlertSetting: ModeComparator,
		AlertLow:     physic.ZeroCelsius + 75*physic.Kelvin,
		AlertHigh:    physic.ZeroCelsius + 80*physic.Kelvin,
	}
	ops := append(startOps(),
		i2ctest.IO{Addr: addr, W: []byte{regRangeLow, 0x4b, 0x00}},
		i2ctest.IO{Addr: addr, W: []byte{regRangeHigh, 0x50, 0x00}},
	)
	for _, test := range tests {
		ops = append(ops, i2ctest.IO{Addr: addr, W: []byte{regTemperature}, R: test.bits})
	}
	ops = append(ops,
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration}, R: []byte{0x60, 0xa0}},
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration, 0x61, 0xa0}},
	)
	dev, pb := newDev(t, ops, &opts)

	ch, err := dev.SenseContinuous(125 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SenseContinuous(time.Second); err == nil {
		t.Error("expected error starting a second SenseContinuous")
	}
	for _, test := range tests {
		env := <-ch
		if env.Temperature != test.expected {
			t.Errorf("read %s expected %s", env.Temperature, test.expected)
		}
	}
	if err := dev.Halt(); err != nil {
		t.Error(err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed by Halt()")
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestSenseContinuousInterval(t *testing.T) {
	dev, _ := newDev(t, startOps(), nil)
	if _, err := dev.SenseContinuous(time.Millisecond); err == nil {
		t.Error("expected error for interval below 125ms")
	}
}

func TestOneShot(t *testing.T) {
	ops := append(startOps(),
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration}, R: []byte{0x60, 0xa0}},
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration, 0xe1, 0xa0}},
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration}, R: []byte{0x61, 0xa0}},
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration}, R: []byte{0xe1, 0xa0}},
		i2ctest.IO{Addr: addr, W: []byte{regTemperature}, R: []byte{0xe7, 0x00}},
	)
	dev, pb := newDev(t, ops, nil)
	temp, err := dev.OneShot()
	if err != nil {
		t.Fatal(err)
	}
	if expected := physic.ZeroCelsius - 25*physic.Kelvin; temp != expected {
		t.Errorf("read %s expected %s", temp, expected)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestOneShotTimeout(t *testing.T) {
	ops := append(startOps(),
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration}, R: []byte{0x60, 0xa0}},
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration, 0xe1, 0xa0}},
	)
	// The conversion never completes.
	for range 20 {
		ops = append(ops, i2ctest.IO{Addr: addr, W: []byte{regConfiguration}, R: []byte{0x61, 0xa0}})
	}
	dev, _ := newDev(t, ops, nil)
	if _, err := dev.OneShot(); !errors.Is(err, common.ErrTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestSetAlertMode(t *testing.T) {
	low := physic.ZeroCelsius + 75*physic.Kelvin + 500*physic.MilliKelvin
	high := physic.ZeroCelsius + 79*physic.Kelvin + 500*physic.MilliKelvin
	ops := append(startOps(),
		i2ctest.IO{Addr: addr, W: []byte{regRangeLow, 0x4b, 0x80}},
		i2ctest.IO{Addr: addr, W: []byte{regRangeHigh, 0x4f, 0x80}},
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration}, R: []byte{0x60, 0xa0}},
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration, 0x62, 0xa0}},
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration}, R: []byte{0x62, 0xa0}},
		i2ctest.IO{Addr: addr, W: []byte{regRangeLow}, R: []byte{0x4b, 0x80}},
		i2ctest.IO{Addr: addr, W: []byte{regRangeHigh}, R: []byte{0x4f, 0x80}},
	)
	dev, pb := newDev(t, ops, nil)
	if err := dev.SetAlertMode(ModeInterrupt, low, high); err != nil {
		t.Fatal(err)
	}
	mode, checkLow, checkHigh, err := dev.GetAlertMode()
	if err != nil {
		t.Fatal(err)
	}
	if mode != ModeInterrupt || checkLow != low || checkHigh != high {
		t.Errorf("Received: Mode=%d, Low=%s, High=%s. Expected: Mode=%d, Low=%s, High=%s",
			mode, checkLow, checkHigh, ModeInterrupt, low, high)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}

	if err := dev.SetAlertMode(ModeComparator, high, low); err == nil {
		t.Error("expected error for inverted range")
	}
	if err := dev.SetAlertMode(ModeComparator, low, MaximumExtendedTemperature); err == nil {
		t.Error("expected error for high limit outside normal mode range")
	}
}

func TestHaltAlreadyShutdown(t *testing.T) {
	ops := append(startOps(),
		i2ctest.IO{Addr: addr, W: []byte{regConfiguration}, R: []byte{0x61, 0xa0}},
	)
	dev, pb := newDev(t, ops, nil)
	if err := dev.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestString(t *testing.T) {
	dev, _ := newDev(t, startOps(), nil)
	if s := dev.String(); len(s) == 0 {
		t.Error("invalid String() result")
	}
}
