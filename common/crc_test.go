// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "testing"

func TestCRC8(t *testing.T) {
	var tests = []struct {
		bytes  []byte
		result byte
	}{
		{bytes: []byte{0xbe, 0xef}, result: 0x92},
		{bytes: []byte{0x01, 0xa4}, result: 0x4d},
		{bytes: []byte{0xab, 0xcd}, result: 0x6f},
	}
	for _, test := range tests {
		res := CRC8(test.bytes)
		if res != test.result {
			t.Errorf("CRC8(%#v)!=0x%x received 0x%x", test.bytes, test.result, res)
		}
	}
}

func TestCRC8Poly(t *testing.T) {
	// HTU21D datasheet example: 0x683A -> 0x7C, init value zero.
	var tests = []struct {
		bytes  []byte
		result byte
	}{
		{bytes: []byte{0x68, 0x3a}, result: 0x7c},
		{bytes: []byte{0x4e, 0x85}, result: 0x6b},
		{bytes: []byte{0xdc}, result: 0x79},
	}
	for _, test := range tests {
		res := CRC8Poly(test.bytes, 0x31, 0x00)
		if res != test.result {
			t.Errorf("CRC8Poly(%#v)!=0x%x received 0x%x", test.bytes, test.result, res)
		}
	}
	if CRC8Poly([]byte{0xbe, 0xef}, 0x31, 0xff) != CRC8([]byte{0xbe, 0xef}) {
		t.Error("CRC8 and CRC8Poly disagree for the Sensirion parameters")
	}
}
