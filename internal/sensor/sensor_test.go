// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/GermanBionicSystems/sensors/internal/config"
	"github.com/GermanBionicSystems/sensors/internal/telemetry"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"
)

var ignoreTime = cmpopts.IgnoreFields(telemetry.Reading{}, "Time")

type fixture struct {
	i2c  map[string]*i2ctest.Playback
	spi  map[string]*spitest.Playback
	pins map[string]*gpiotest.Pin
}

func (f *fixture) buses() *Buses {
	openI2C := func(name string) (i2c.BusCloser, error) {
		if pb, ok := f.i2c[name]; ok {
			return pb, nil
		}
		return nil, errors.New("no such bus")
	}
	openSPI := func(name string) (spi.PortCloser, error) {
		if pb, ok := f.spi[name]; ok {
			return pb, nil
		}
		return nil, errors.New("no such port")
	}
	pin := func(name string) gpio.PinIO {
		if p, ok := f.pins[name]; ok {
			return p
		}
		return nil
	}
	return newBuses("", "", openI2C, openSPI, pin)
}

func TestOpenUnknown(t *testing.T) {
	b := (&fixture{}).buses()
	if _, err := Open(config.SensorConfig{Name: "x", Type: "bme280"}, b); err == nil || !strings.Contains(err.Error(), "unknown type") {
		t.Fatal(err)
	}
	if _, err := Open(config.SensorConfig{Name: "x", Type: "ds3231", Address: 0x68}, b); err == nil || !strings.Contains(err.Error(), "no such bus") {
		t.Fatal(err)
	}
	if _, err := Open(config.SensorConfig{Name: "x", Type: "max31855"}, b); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Open(config.SensorConfig{Name: "x", Type: "hx711", Pins: map[string]string{"dout": "GPIO5", "sck": "GPIO6"}}, b); err == nil || !strings.Contains(err.Error(), "unknown pin") {
		t.Fatal(err)
	}
}

func TestClock(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x68, W: []byte{0x00}, R: []byte{0x30, 0x45, 0x13, 0x06, 0x15, 0x03, 0x24}},
		{Addr: 0x68, W: []byte{0x11}, R: []byte{0x19, 0x40}},
	}, DontPanic: true}
	f := &fixture{i2c: map[string]*i2ctest.Playback{"": pb}}
	b := f.buses()
	s, err := Open(config.SensorConfig{Name: "rtc", Type: "ds3231", Address: 0x68}, b)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "rtc" {
		t.Fatal(s.Name())
	}
	got, err := s.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []telemetry.Reading{
		{Sensor: "rtc", Quantity: QuantityTemperature, Value: 25.25, Unit: "°C"},
		{Sensor: "rtc", Quantity: QuantityClockOffset, Unit: "s"},
	}
	if diff := cmp.Diff(want, got, ignoreTime, cmpopts.IgnoreFields(telemetry.Reading{}, "Value")); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if got[0].Value != 25.25 {
		t.Fatal(got[0].Value)
	}
	// The RTC is set to 2024, far behind the host clock.
	if got[1].Value >= 0 {
		t.Fatal(got[1].Value)
	}
	if err := s.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestVOC(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x70, W: []byte{0x0c, 0, 0, 0, 0, 0xf3}},
		{Addr: 0x70, R: []byte{242, 242, 0x10, 0x27, 0x00, 0x00, 0xe2}},
	}, DontPanic: true}
	f := &fixture{i2c: map[string]*i2ctest.Playback{"1": pb}}
	s, err := Open(config.SensorConfig{Name: "air", Type: "micsvz89te", Bus: "1", Address: 0x70}, f.buses())
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []telemetry.Reading{
		{Sensor: "air", Quantity: QuantityVOC, Value: 1000, Unit: "ppb"},
		{Sensor: "air", Quantity: QuantityCO2, Value: 2000, Unit: "ppm"},
		{Sensor: "air", Quantity: QuantityResistance, Value: 100000, Unit: "Ω"},
	}
	if diff := cmp.Diff(want, got, ignoreTime); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestThermocouple(t *testing.T) {
	pb := &spitest.Playback{Playback: conntest.Playback{
		Ops:       []conntest.IO{{W: []byte{0, 0, 0, 0}, R: []byte{0x01, 0x90, 0x19, 0x00}}},
		DontPanic: true,
	}}
	f := &fixture{spi: map[string]*spitest.Playback{"": pb}}
	b := f.buses()
	s, err := Open(config.SensorConfig{Name: "oven", Type: "max31855"}, b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []telemetry.Reading{
		{Sensor: "oven", Quantity: QuantityTemperature, Value: 25, Unit: "°C"},
		{Sensor: "oven", Quantity: QuantityColdJunction, Value: 25, Unit: "°C"},
	}
	if diff := cmp.Diff(want, got, ignoreTime); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	// The port is shared and can only be connected once.
	if _, err := Open(config.SensorConfig{Name: "oven2", Type: "max31855"}, b); err == nil {
		t.Fatal("expected error")
	}
	if err := s.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadCell(t *testing.T) {
	f := &fixture{pins: map[string]*gpiotest.Pin{
		"GPIO5": {N: "GPIO5", Num: 5},
		"GPIO6": {N: "GPIO6", Num: 6},
	}}
	b := f.buses()
	cfg := config.SensorConfig{Name: "scale", Type: "hx711", Pins: map[string]string{"dout": "GPIO5", "sck": "GPIO6"}}

	// A DOUT stuck low clocks out zeros.
	raw, err := Open(cfg, b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := raw.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []telemetry.Reading{{Sensor: "scale", Quantity: QuantityRaw}}
	if diff := cmp.Diff(want, got, ignoreTime); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	cfg.Offset = -1000
	cfg.Scale = 200
	calibrated, err := Open(cfg, b)
	if err != nil {
		t.Fatal(err)
	}
	if got, err = calibrated.Read(context.Background()); err != nil {
		t.Fatal(err)
	}
	want = []telemetry.Reading{{Sensor: "scale", Quantity: QuantityForce, Value: 5, Unit: "N"}}
	if diff := cmp.Diff(want, got, ignoreTime); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := calibrated.Halt(); err != nil {
		t.Fatal(err)
	}
	if f.pins["GPIO6"].Read() != gpio.High {
		t.Fatal("SCK must be high after Halt")
	}
}

func TestReadCanceled(t *testing.T) {
	pb := &i2ctest.Playback{DontPanic: true}
	f := &fixture{i2c: map[string]*i2ctest.Playback{"": pb}}
	s, err := Open(config.SensorConfig{Name: "rtc", Type: "ds3231", Address: 0x68}, f.buses())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Fatal(err)
	}
}

func TestOpenAll(t *testing.T) {
	pb := &i2ctest.Playback{DontPanic: true}
	f := &fixture{i2c: map[string]*i2ctest.Playback{"": pb}}
	b := f.buses()
	got, err := OpenAll([]config.SensorConfig{
		{Name: "rtc", Type: "ds3231", Address: 0x68},
		{Name: "air", Type: "micsvz89te", Address: 0x70},
	}, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name() != "rtc" || got[1].Name() != "air" {
		t.Fatalf("unexpected sensors %v", got)
	}
	if _, err := OpenAll([]config.SensorConfig{
		{Name: "rtc", Type: "ds3231", Address: 0x68},
		{Name: "bad", Type: "bme280"},
	}, b); err == nil {
		t.Fatal("expected error")
	}
}
