// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"errors"
	"time"

	"periph.io/x/conn/v3"
)

var (
	// ErrTimeout is returned when a device did not clear its busy indication
	// within the allotted time.
	ErrTimeout = errors.New("timeout waiting for device")
	// ErrCRC is returned when the checksum of data read from a device does not
	// match the computed value.
	ErrCRC = errors.New("data corrupted: checksum mismatch")
	// ErrNotSupported is returned when the identity registers of a device do
	// not match what the driver expects.
	ErrNotSupported = errors.New("device not supported")
)

// Poll calls ready until it returns true, returns an error, or timeout has
// elapsed. Between calls it sleeps for interval. A timeout of zero performs a
// single attempt. If the deadline passes without ready reporting true,
// ErrTimeout is returned.
func Poll(timeout, interval time.Duration, ready func() (bool, error)) error {
	end := time.Now().Add(timeout)
	for {
		ok, err := ready()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(end) {
			return ErrTimeout
		}
		time.Sleep(interval)
	}
}

// ReadRegister writes the register address and reads len(r) bytes back using
// a repeated start.
func ReadRegister(c conn.Conn, reg byte, r []byte) error {
	return c.Tx([]byte{reg}, r)
}

// WriteRegister writes data starting at register reg.
func WriteRegister(c conn.Conn, reg byte, data ...byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	return c.Tx(w, nil)
}

// UpdateRegister performs a read-modify-write of a single byte register. Only
// the bits set in mask are replaced by the corresponding bits of value. The
// write is skipped if the register already holds the result.
func UpdateRegister(c conn.Conn, reg, mask, value byte) error {
	r := make([]byte, 1)
	if err := ReadRegister(c, reg, r); err != nil {
		return err
	}
	v := (r[0] &^ mask) | (value & mask)
	if v == r[0] {
		return nil
	}
	return WriteRegister(c, reg, v)
}

// BCDToBin converts a packed binary coded decimal byte to its value.
func BCDToBin(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}

// BinToBCD converts a value in the range 0-99 to packed binary coded decimal.
func BinToBCD(v int) byte {
	return byte((v/10)<<4 | v%10)
}
