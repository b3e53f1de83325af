// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package runner polls sensors on an interval and publishes the readings.
package runner

import (
	"context"
	"log"
	"time"

	"github.com/GermanBionicSystems/sensors/internal/sensor"
	"github.com/GermanBionicSystems/sensors/internal/telemetry"
)

// Runner polls a set of sensors.
type Runner struct {
	Sensors  []sensor.Sensor
	Sink     telemetry.Sink
	Interval time.Duration
	// Logf defaults to log.Printf.
	Logf func(format string, v ...interface{})
}

func (r *Runner) logf(format string, v ...interface{}) {
	if r.Logf != nil {
		r.Logf(format, v...)
		return
	}
	log.Printf(format, v...)
}

// Poll reads every sensor once and publishes the batch. A sensor that fails
// is logged and reported as a failed reading.
func (r *Runner) Poll(ctx context.Context) error {
	var batch []telemetry.Reading
	for _, s := range r.Sensors {
		if err := ctx.Err(); err != nil {
			return err
		}
		readings, err := s.Read(ctx)
		if err != nil {
			r.logf("%s: %v", s.Name(), err)
			batch = append(batch, telemetry.Failed(s.Name(), err, time.Now()))
			continue
		}
		batch = append(batch, readings...)
	}
	if len(batch) == 0 {
		return nil
	}
	return r.Sink.Publish(ctx, batch)
}

// Run polls immediately and then on every tick until ctx is canceled.
// Publishing errors are logged and do not stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		if err := r.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logf("publish: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
