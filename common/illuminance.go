// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "strconv"

// Illuminance is a measurement of luminous flux per unit area stored as an
// int64 micro lux.
//
// physic has no type for lux, so the light sensor drivers share this one.
type Illuminance int64

const (
	MicroLux Illuminance = 1
	MilliLux Illuminance = 1000 * MicroLux
	Lux      Illuminance = 1000 * MilliLux
	KiloLux  Illuminance = 1000 * Lux
)

// Lux returns the value as floating point lux.
func (i Illuminance) Lux() float64 {
	return float64(i) / float64(Lux)
}

// String returns the illuminance formatted in lux with 3 decimals.
func (i Illuminance) String() string {
	return strconv.FormatFloat(i.Lux(), 'f', 3, 64) + "lx"
}
