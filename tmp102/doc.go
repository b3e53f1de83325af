// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tmp102 drives the Texas Instruments TMP102 I²C temperature sensor.
// The TMP112 and TMP75 share the register map and work with this driver.
//
// Range: -40°C - 125°C (150°C in extended mode)
//
// Accuracy: +/- 0.5°C
//
// Resolution: 0.0625°C
//
// The device can run continuously at one of four conversion rates, or be left
// in shutdown mode and asked for single conversions with OneShot(), which
// keeps the quiescent current below 1µA.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/tmp102.pdf
package tmp102
