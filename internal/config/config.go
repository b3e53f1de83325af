// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the YAML configuration of sensorlog.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	// Interval between two polls of all sensors.
	Interval time.Duration `yaml:"interval"`
	// I2CBus and SPIPort name the host buses; empty selects the first one.
	I2CBus  string         `yaml:"i2c_bus"`
	SPIPort string         `yaml:"spi_port"`
	Sensors []SensorConfig `yaml:"sensors"`
	Sinks   SinksConfig    `yaml:"sinks"`
}

// SensorConfig describes one device.
type SensorConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Bus overrides the I²C bus or SPI port of the device.
	Bus string `yaml:"bus"`
	// Address is the I²C address. Zero selects the device default.
	Address uint16 `yaml:"address"`
	// Pins lists GPIO names by role, e.g. dout and sck for hx711.
	Pins map[string]string `yaml:"pins"`
	// Offset and Scale restore an hx711 calibration.
	Offset int32   `yaml:"offset"`
	Scale  float64 `yaml:"scale"`
}

// SinksConfig enables the telemetry outputs. A nil entry is disabled.
type SinksConfig struct {
	Console *ConsoleConfig `yaml:"console"`
	Serial  *SerialConfig  `yaml:"serial"`
	MQTT    *MQTTConfig    `yaml:"mqtt"`
	Modbus  *ModbusConfig  `yaml:"modbus"`
}

// ConsoleConfig configures the terminal output.
type ConsoleConfig struct {
	// Color forces ANSI colors on or off. Unset detects a terminal.
	Color *bool `yaml:"color"`
}

// SerialConfig configures the UART output.
type SerialConfig struct {
	Device   string        `yaml:"device"`
	BaudRate int           `yaml:"baud_rate"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MQTTConfig configures the MQTT output.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ModbusConfig configures the Modbus TCP output.
type ModbusConfig struct {
	Endpoint  string           `yaml:"endpoint"`
	UnitID    uint8            `yaml:"unit_id"`
	Timeout   time.Duration    `yaml:"timeout"`
	Registers []RegisterConfig `yaml:"registers"`
}

// RegisterConfig maps one quantity of a sensor to a pair of holding
// registers.
type RegisterConfig struct {
	Sensor   string `yaml:"sensor"`
	Quantity string `yaml:"quantity"`
	Address  uint16 `yaml:"address"`
}

// Load reads, normalizes and validates the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a YAML document, then normalizes and validates it.
func Parse(b []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
