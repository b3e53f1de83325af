// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"context"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"github.com/GermanBionicSystems/sensors/ds3231"
	"github.com/GermanBionicSystems/sensors/hx711"
	"github.com/GermanBionicSystems/sensors/internal/telemetry"
	"github.com/GermanBionicSystems/sensors/max31855"
	"github.com/GermanBionicSystems/sensors/micsvz89te"
	"github.com/GermanBionicSystems/sensors/pcf8574"
	"github.com/GermanBionicSystems/sensors/scd30"
	"periph.io/x/conn/v3/physic"
)

// Quantity names and units used in readings.
const (
	QuantityTemperature  = "temperature"
	QuantityHumidity     = "humidity"
	QuantityPressure     = "pressure"
	QuantityIlluminance  = "illuminance"
	QuantityCO2          = "co2"
	QuantityVOC          = "voc"
	QuantityResistance   = "resistance"
	QuantityForce        = "force"
	QuantityRaw          = "raw"
	QuantityPort         = "port"
	QuantityClockOffset  = "clock_offset"
	QuantityColdJunction = "cold_junction"
)

func reading(sensor, quantity string, v float64, unit string, t time.Time) telemetry.Reading {
	return telemetry.Reading{Sensor: sensor, Quantity: quantity, Value: v, Unit: unit, Time: t}
}

func percentRH(h physic.RelativeHumidity) float64 {
	return float64(h) / float64(physic.PercentRH)
}

func hectoPascal(p physic.Pressure) float64 {
	return float64(p) / float64(100*physic.Pascal)
}

type envQuantity int

const (
	temperature envQuantity = 1 << iota
	humidity
	pressure
)

type envSenser interface {
	Sense(env *physic.Env) error
	Halt() error
}

// envSensor adapts drivers implementing Sense(*physic.Env).
type envSensor struct {
	name       string
	dev        envSenser
	quantities envQuantity
}

func (s *envSensor) Name() string { return s.name }

func (s *envSensor) Read(ctx context.Context) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var e physic.Env
	if err := s.dev.Sense(&e); err != nil {
		return nil, err
	}
	now := time.Now()
	var out []telemetry.Reading
	if s.quantities&temperature != 0 {
		out = append(out, reading(s.name, QuantityTemperature, e.Temperature.Celsius(), "°C", now))
	}
	if s.quantities&humidity != 0 {
		out = append(out, reading(s.name, QuantityHumidity, percentRH(e.Humidity), "%rH", now))
	}
	if s.quantities&pressure != 0 {
		out = append(out, reading(s.name, QuantityPressure, hectoPascal(e.Pressure), "hPa", now))
	}
	return out, nil
}

func (s *envSensor) Halt() error { return s.dev.Halt() }

type lightSenser interface {
	Sense() (common.Illuminance, error)
	Halt() error
}

type lightSensor struct {
	name string
	dev  lightSenser
}

func (s *lightSensor) Name() string { return s.name }

func (s *lightSensor) Read(ctx context.Context) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, err := s.dev.Sense()
	if err != nil {
		return nil, err
	}
	return []telemetry.Reading{reading(s.name, QuantityIlluminance, l.Lux(), "lx", time.Now())}, nil
}

func (s *lightSensor) Halt() error { return s.dev.Halt() }

type co2Sensor struct {
	name string
	dev  *scd30.Dev
}

func (s *co2Sensor) Name() string { return s.name }

func (s *co2Sensor) Read(ctx context.Context) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var e scd30.Env
	if err := s.dev.Sense(&e); err != nil {
		return nil, err
	}
	now := time.Now()
	return []telemetry.Reading{
		reading(s.name, QuantityCO2, float64(e.CO2), "ppm", now),
		reading(s.name, QuantityTemperature, e.Temperature.Celsius(), "°C", now),
		reading(s.name, QuantityHumidity, percentRH(e.Humidity), "%rH", now),
	}, nil
}

func (s *co2Sensor) Halt() error { return s.dev.Halt() }

type vocSensor struct {
	name string
	dev  *micsvz89te.Dev
}

func (s *vocSensor) Name() string { return s.name }

func (s *vocSensor) Read(ctx context.Context) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var e micsvz89te.Env
	if err := s.dev.Sense(&e); err != nil {
		return nil, err
	}
	now := time.Now()
	return []telemetry.Reading{
		reading(s.name, QuantityVOC, float64(e.VOC), "ppb", now),
		reading(s.name, QuantityCO2, float64(e.CO2), "ppm", now),
		reading(s.name, QuantityResistance, float64(e.Resistance)/float64(physic.Ohm), "Ω", now),
	}, nil
}

func (s *vocSensor) Halt() error { return s.dev.Halt() }

type thermocoupleSensor struct {
	name string
	dev  *max31855.Dev
}

func (s *thermocoupleSensor) Name() string { return s.name }

func (s *thermocoupleSensor) Read(ctx context.Context) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tc, cj, err := s.dev.Temperatures()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return []telemetry.Reading{
		reading(s.name, QuantityTemperature, tc.Celsius(), "°C", now),
		reading(s.name, QuantityColdJunction, cj.Celsius(), "°C", now),
	}, nil
}

func (s *thermocoupleSensor) Halt() error { return s.dev.Halt() }

// loadSensor reports the force when a calibration is configured and the raw
// conversion otherwise.
type loadSensor struct {
	name       string
	dev        *hx711.Dev
	calibrated bool
}

func (s *loadSensor) Name() string { return s.name }

func (s *loadSensor) Read(ctx context.Context) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.calibrated {
		v, err := s.dev.ReadRaw()
		if err != nil {
			return nil, err
		}
		return []telemetry.Reading{reading(s.name, QuantityRaw, float64(v), "", time.Now())}, nil
	}
	f, err := s.dev.Sense()
	if err != nil {
		return nil, err
	}
	return []telemetry.Reading{reading(s.name, QuantityForce, float64(f)/float64(physic.Newton), "N", time.Now())}, nil
}

func (s *loadSensor) Halt() error { return s.dev.Halt() }

type portSensor struct {
	name string
	dev  *pcf8574.Dev
}

func (s *portSensor) Name() string { return s.name }

func (s *portSensor) Read(ctx context.Context) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := s.dev.Read()
	if err != nil {
		return nil, err
	}
	return []telemetry.Reading{reading(s.name, QuantityPort, float64(v), "", time.Now())}, nil
}

func (s *portSensor) Halt() error { return s.dev.Halt() }

// clockSensor reports the RTC temperature and how far the RTC is ahead of
// the host clock.
type clockSensor struct {
	name string
	dev  *ds3231.Dev
}

func (s *clockSensor) Name() string { return s.name }

func (s *clockSensor) Read(ctx context.Context) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rtc, err := s.dev.Time()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	t, err := s.dev.Temperature()
	if err != nil {
		return nil, err
	}
	return []telemetry.Reading{
		reading(s.name, QuantityTemperature, t.Celsius(), "°C", now),
		reading(s.name, QuantityClockOffset, rtc.Sub(now.Truncate(time.Second)).Seconds(), "s", now),
	}, nil
}

func (s *clockSensor) Halt() error { return s.dev.Halt() }
