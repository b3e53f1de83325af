// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensors is a container for sensor drivers built on periph.io.
//
// Each subdirectory drives one device over I²C, SPI or GPIO using
// periph.io/x/conn/v3. The common package holds the helpers they share and
// cmd/sensorlog ties the drivers to telemetry outputs.
package sensors
