// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"time"
)

// Bus is the host interface a device type is attached to.
type Bus int

const (
	I2C Bus = iota
	SPI
	GPIO
)

// Device describes a supported device type.
type Device struct {
	Bus Bus
	// Address is the default I²C address.
	Address uint16
	// Pins are the GPIO roles that must be configured.
	Pins []string
}

// Devices lists the supported device types by configuration name.
var Devices = map[string]Device{
	"tmp102":     {Bus: I2C, Address: 0x48},
	"mcp9808":    {Bus: I2C, Address: 0x18},
	"htu21d":     {Bus: I2C, Address: 0x40},
	"bh1750":     {Bus: I2C, Address: 0x23},
	"max44009":   {Bus: I2C, Address: 0x4a},
	"bmp180":     {Bus: I2C, Address: 0x77},
	"scd30":      {Bus: I2C, Address: 0x61},
	"micsvz89te": {Bus: I2C, Address: 0x70},
	"pcf8574":    {Bus: I2C, Address: 0x20},
	"ds3231":     {Bus: I2C, Address: 0x68},
	"max31855":   {Bus: SPI},
	"hx711":      {Bus: GPIO, Pins: []string{"dout", "sck"}},
}

const minInterval = 100 * time.Millisecond

// Validate checks the configuration. It does not mutate it.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: empty configuration")
	}
	if cfg.Interval < minInterval {
		return fmt.Errorf("config: interval %s is below %s", cfg.Interval, minInterval)
	}
	if len(cfg.Sensors) == 0 {
		return errors.New("config: no sensors configured")
	}
	names := make(map[string]bool, len(cfg.Sensors))
	spiPorts := map[string]string{}
	for _, s := range cfg.Sensors {
		d, ok := Devices[s.Type]
		if !ok {
			return fmt.Errorf("config: sensor %q: unknown type %q", s.Name, s.Type)
		}
		if names[s.Name] {
			return fmt.Errorf("config: duplicate sensor name %q", s.Name)
		}
		names[s.Name] = true
		if d.Bus == I2C && (s.Address < 0x08 || s.Address > 0x77) {
			return fmt.Errorf("config: sensor %q: address 0x%02x out of range [0x08, 0x77]", s.Name, s.Address)
		}
		if d.Bus == SPI {
			port := s.Bus
			if port == "" {
				port = cfg.SPIPort
			}
			if prev, ok := spiPorts[port]; ok {
				return fmt.Errorf("config: sensors %q and %q share SPI port %q", prev, s.Name, port)
			}
			spiPorts[port] = s.Name
		}
		for _, p := range d.Pins {
			if s.Pins[p] == "" {
				return fmt.Errorf("config: sensor %q: pin %q is required", s.Name, p)
			}
		}
	}
	sinks := cfg.Sinks
	if sinks.Console == nil && sinks.Serial == nil && sinks.MQTT == nil && sinks.Modbus == nil {
		return errors.New("config: no sink configured")
	}
	if sinks.Serial != nil && sinks.Serial.Device == "" {
		return errors.New("config: serial: device is required")
	}
	if sinks.MQTT != nil {
		if sinks.MQTT.Broker == "" {
			return errors.New("config: mqtt: broker is required")
		}
		if sinks.MQTT.QoS > 2 {
			return fmt.Errorf("config: mqtt: invalid qos %d", sinks.MQTT.QoS)
		}
	}
	if m := sinks.Modbus; m != nil {
		if m.Endpoint == "" {
			return errors.New("config: modbus: endpoint is required")
		}
		used := make(map[uint16]string)
		for _, r := range m.Registers {
			if !names[r.Sensor] {
				return fmt.Errorf("config: modbus: register %d refers to unknown sensor %q", r.Address, r.Sensor)
			}
			if r.Quantity == "" {
				return fmt.Errorf("config: modbus: register %d has no quantity", r.Address)
			}
			if r.Address == 0xffff {
				return fmt.Errorf("config: modbus: register %d leaves no room for a float32", r.Address)
			}
			// A float32 spans two registers.
			for _, a := range []uint16{r.Address, r.Address + 1} {
				if prev, ok := used[a]; ok {
					return fmt.Errorf("config: modbus: register %d used by %s and %s/%s", a, prev, r.Sensor, r.Quantity)
				}
				used[a] = r.Sensor + "/" + r.Quantity
			}
		}
	}
	return nil
}
