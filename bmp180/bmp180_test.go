// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bmp180

import (
	"errors"
	"testing"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

// Calibration from the datasheet example.
var datasheetCalibration = []byte{
	0x01, 0x98, 0xff, 0xb8, 0xc7, 0xd1, 0x7f, 0xe5, 0x7f, 0xf5, 0x5a, 0x71,
	0x18, 0x2e, 0x00, 0x04, 0x80, 0x00, 0xdd, 0xf9, 0x0b, 0x34,
}

var initOps = []i2ctest.IO{
	{Addr: DefaultAddress, W: []byte{regChipID}, R: []byte{chipID}},
	{Addr: DefaultAddress, W: []byte{regCalibration}, R: datasheetCalibration},
}

func TestCompensate(t *testing.T) {
	cal, err := newCalibration(datasheetCalibration)
	if err != nil {
		t.Fatal(err)
	}
	temp, p := cal.compensate(27898, 23843, UltraLowPower)
	if temp != 150 {
		t.Errorf("temperature %d expected 150", temp)
	}
	if p != 69964 {
		t.Errorf("pressure %d expected 69964", p)
	}
}

func TestBadCalibration(t *testing.T) {
	r := append([]byte{}, datasheetCalibration...)
	r[14], r[15] = 0xff, 0xff
	if _, err := newCalibration(r); !errors.Is(err, common.ErrCRC) {
		t.Errorf("expected ErrCRC class error, got %v", err)
	}
	r[14], r[15] = 0x00, 0x00
	if _, err := newCalibration(r); !errors.Is(err, ErrBadCalibration) {
		t.Errorf("expected ErrBadCalibration, got %v", err)
	}
}

func TestNotSupported(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{regChipID}, R: []byte{0x58}},
	}, DontPanic: true}
	if _, err := NewI2C(pb, DefaultAddress, nil); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestSense(t *testing.T) {
	ops := append(append([]i2ctest.IO{}, initOps...),
		i2ctest.IO{Addr: DefaultAddress, W: []byte{regControl, cmdTemperature}},
		i2ctest.IO{Addr: DefaultAddress, W: []byte{regControl}, R: []byte{cmdTemperature}},
		i2ctest.IO{Addr: DefaultAddress, W: []byte{regControl}, R: []byte{0x0e}},
		i2ctest.IO{Addr: DefaultAddress, W: []byte{regResult}, R: []byte{0x6c, 0xfa}},
		i2ctest.IO{Addr: DefaultAddress, W: []byte{regControl, cmdPressure}},
		i2ctest.IO{Addr: DefaultAddress, W: []byte{regControl}, R: []byte{0x14}},
		i2ctest.IO{Addr: DefaultAddress, W: []byte{regResult}, R: []byte{0x5d, 0x23, 0x00}},
	)
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	d, err := NewI2C(pb, DefaultAddress, &Opts{Oversampling: UltraLowPower, MeasurementTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	e := physic.Env{}
	if err := d.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if e.Temperature != physic.ZeroCelsius+15*physic.Kelvin {
		t.Errorf("unexpected temperature %s", e.Temperature)
	}
	if e.Pressure != 69964*physic.Pascal {
		t.Errorf("unexpected pressure %s", e.Pressure)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestSenseTimeout(t *testing.T) {
	ops := append(append([]i2ctest.IO{}, initOps...),
		i2ctest.IO{Addr: DefaultAddress, W: []byte{regControl, cmdTemperature}},
	)
	for i := 0; i < 50; i++ {
		ops = append(ops, i2ctest.IO{Addr: DefaultAddress, W: []byte{regControl}, R: []byte{cmdTemperature}})
	}
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	d, err := NewI2C(pb, DefaultAddress, &Opts{Oversampling: Standard, MeasurementTimeout: 5 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	e := physic.Env{}
	if err := d.Sense(&e); !errors.Is(err, common.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestAltitude(t *testing.T) {
	if a := Altitude(StandardSeaLevel, StandardSeaLevel); a != 0 {
		t.Errorf("altitude at sea level %s", a)
	}
	a := Altitude(69964*physic.Pascal, StandardSeaLevel)
	if a < 3016*physic.Metre || a > 3017*physic.Metre {
		t.Errorf("unexpected altitude %s", a)
	}
}

func TestSoftReset(t *testing.T) {
	pb := &i2ctest.Playback{Ops: append(append([]i2ctest.IO{}, initOps...),
		i2ctest.IO{Addr: DefaultAddress, W: []byte{regSoftReset, resetValue}},
	), DontPanic: true}
	d, err := NewI2C(pb, DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SoftReset(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SenseContinuous(time.Millisecond); err == nil {
		t.Error("expected error for short interval")
	}
	if err := d.Halt(); err != nil {
		t.Error(err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}
