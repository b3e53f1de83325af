// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package telemetry forwards sensor readings to outputs.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// Reading is one measured quantity of one sensor.
type Reading struct {
	Sensor   string    `json:"sensor"`
	Quantity string    `json:"quantity"`
	Value    float64   `json:"value"`
	Unit     string    `json:"unit"`
	Time     time.Time `json:"time"`
	// Err is set when the sensor could not be read. Quantity, Value and Unit
	// are then empty.
	Err string `json:"error,omitempty"`
}

// Failed returns a Reading reporting that sensor could not be read.
func Failed(sensor string, err error, t time.Time) Reading {
	return Reading{Sensor: sensor, Err: err.Error(), Time: t}
}

// Sink is an output for batches of readings.
type Sink interface {
	Publish(ctx context.Context, batch []Reading) error
	Close() error
}

// Multi publishes to every sink.
type Multi []Sink

// Publish sends batch to every sink, even if some fail, and joins the errors.
func (m Multi) Publish(ctx context.Context, batch []Reading) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Sink = Multi{}
