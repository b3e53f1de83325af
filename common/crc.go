// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple driver packages: CRC
// calculations, register helpers, BCD conversion and bounded polling of
// device busy flags.
package common

// CRC8 calculates the 8-bit CRC of the byte slice parameter and returns the
// calculated value. This is the variant used by Sensirion and TI sensors:
// polynomial 0x31, initial value 0xff.
func CRC8(bytes []byte) byte {
	return CRC8Poly(bytes, 0x31, 0xff)
}

// CRC8Poly calculates an MSB-first 8-bit CRC using the supplied polynomial
// (x^8 omitted) and initial value. No final XOR is applied.
func CRC8Poly(bytes []byte, poly, init byte) byte {
	crc := init
	for _, val := range bytes {
		crc ^= val
		for range 8 {
			if (crc & 0x80) == 0 {
				crc <<= 1
			} else {
				crc = (crc << 1) ^ poly
			}
		}
	}
	return crc
}
