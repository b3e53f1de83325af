// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import "time"

const (
	DefaultInterval     = 5 * time.Second
	DefaultSerialBaud   = 115200
	DefaultTimeout      = time.Second
	DefaultMQTTTopic    = "sensors"
	DefaultMQTTClientID = "sensorlog"
	DefaultModbusUnitID = 1
)

// Normalize fills in defaults. It is called before Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	for i := range cfg.Sensors {
		s := &cfg.Sensors[i]
		if s.Name == "" {
			s.Name = s.Type
		}
		if s.Address == 0 {
			if d, ok := Devices[s.Type]; ok {
				s.Address = d.Address
			}
		}
	}
	if c := cfg.Sinks.Serial; c != nil {
		if c.BaudRate == 0 {
			c.BaudRate = DefaultSerialBaud
		}
		if c.Timeout == 0 {
			c.Timeout = DefaultTimeout
		}
	}
	if c := cfg.Sinks.MQTT; c != nil {
		if c.Topic == "" {
			c.Topic = DefaultMQTTTopic
		}
		if c.ClientID == "" {
			c.ClientID = DefaultMQTTClientID
		}
		if c.Timeout == 0 {
			c.Timeout = DefaultTimeout
		}
	}
	if c := cfg.Sinks.Modbus; c != nil {
		if c.UnitID == 0 {
			c.UnitID = DefaultModbusUnitID
		}
		if c.Timeout == 0 {
			c.Timeout = DefaultTimeout
		}
	}
}
