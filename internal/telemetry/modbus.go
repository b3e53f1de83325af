// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Register maps a quantity of a sensor to the first of two holding registers
// that receive the value as a big endian IEEE 754 float32.
type Register struct {
	Sensor   string
	Quantity string
	Address  uint16
}

type registerKey struct {
	sensor, quantity string
}

// Modbus writes mapped readings to the holding registers of a Modbus TCP
// server. Readings without a mapping are ignored.
type Modbus struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
	regs    map[registerKey]uint16
}

// NewModbus connects to endpoint and addresses unitID.
func NewModbus(endpoint string, unitID uint8, timeout time.Duration, regs []Register) (*Modbus, error) {
	if endpoint == "" {
		return nil, errors.New("telemetry: modbus: endpoint required")
	}
	h := modbus.NewTCPClientHandler(endpoint)
	h.Timeout = timeout
	h.SlaveId = unitID
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("telemetry: modbus: %w", err)
	}
	m := newModbus(modbus.NewClient(h), regs)
	m.handler = h
	return m, nil
}

func newModbus(c modbus.Client, regs []Register) *Modbus {
	m := &Modbus{client: c, regs: make(map[registerKey]uint16, len(regs))}
	for _, r := range regs {
		m.regs[registerKey{r.Sensor, r.Quantity}] = r.Address
	}
	return m
}

// float32Registers encodes v as two registers, high word first.
func float32Registers(v float64) []byte {
	b := math.Float32bits(float32(v))
	return []byte{byte(b >> 24), byte(b >> 16), byte(b >> 8), byte(b)}
}

// Publish implements Sink.
func (m *Modbus) Publish(ctx context.Context, batch []Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, r := range batch {
		if r.Err != "" {
			continue
		}
		addr, ok := m.regs[registerKey{r.Sensor, r.Quantity}]
		if !ok {
			continue
		}
		if _, err := m.client.WriteMultipleRegisters(addr, 2, float32Registers(r.Value)); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: modbus: register %d: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes the TCP connection.
func (m *Modbus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler == nil {
		return nil
	}
	return m.handler.Close()
}

var _ Sink = &Modbus{}
