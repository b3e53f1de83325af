// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goburrow/serial"
)

// Serial writes one line per reading to a UART:
//
//	<RFC3339 time>,<sensor>,<quantity>,<value>,<unit>
//
// A failed sensor is written with quantity "error" and the message in place
// of the unit.
type Serial struct {
	port io.WriteCloser
	buf  bytes.Buffer
}

// NewSerial opens the UART at device with 8N1 framing.
func NewSerial(device string, baud int, timeout time.Duration) (*Serial, error) {
	p, err := serial.Open(&serial.Config{
		Address:  device,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", device, err)
	}
	return newSerial(p), nil
}

func newSerial(w io.WriteCloser) *Serial {
	return &Serial{port: w}
}

func formatLine(buf *bytes.Buffer, r Reading) {
	buf.WriteString(r.Time.UTC().Format(time.RFC3339))
	buf.WriteByte(',')
	buf.WriteString(r.Sensor)
	buf.WriteByte(',')
	if r.Err != "" {
		buf.WriteString("error,,")
		buf.WriteString(strconv.Quote(r.Err))
	} else {
		buf.WriteString(r.Quantity)
		buf.WriteByte(',')
		buf.WriteString(strconv.FormatFloat(r.Value, 'f', -1, 64))
		buf.WriteByte(',')
		buf.WriteString(r.Unit)
	}
	buf.WriteString("\r\n")
}

// Publish implements Sink.
func (s *Serial) Publish(ctx context.Context, batch []Reading) error {
	s.buf.Reset()
	for _, r := range batch {
		formatLine(&s.buf, r)
	}
	if _, err := s.buf.WriteTo(s.port); err != nil {
		return fmt.Errorf("telemetry: serial: %w", err)
	}
	return nil
}

// Close closes the UART.
func (s *Serial) Close() error {
	return s.port.Close()
}

var _ Sink = &Serial{}
