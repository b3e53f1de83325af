// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// sensorlog polls the sensors listed in a YAML file and forwards the
// readings to the console, a UART, an MQTT broker or a Modbus TCP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GermanBionicSystems/sensors/internal/config"
	"github.com/GermanBionicSystems/sensors/internal/runner"
	"github.com/GermanBionicSystems/sensors/internal/sensor"
	"github.com/GermanBionicSystems/sensors/internal/telemetry"
)

func openSinks(cfg config.SinksConfig) (telemetry.Multi, error) {
	var sinks telemetry.Multi
	fail := func(err error) (telemetry.Multi, error) {
		_ = sinks.Close()
		return nil, err
	}
	if c := cfg.Console; c != nil {
		sinks = append(sinks, telemetry.NewConsole(os.Stdout, c.Color))
	}
	if c := cfg.Serial; c != nil {
		s, err := telemetry.NewSerial(c.Device, c.BaudRate, c.Timeout)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if c := cfg.MQTT; c != nil {
		s, err := telemetry.NewMQTT(telemetry.MQTTOpts{
			Broker:   c.Broker,
			ClientID: c.ClientID,
			Username: c.Username,
			Password: c.Password,
			Topic:    c.Topic,
			QoS:      c.QoS,
			Timeout:  c.Timeout,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if c := cfg.Modbus; c != nil {
		regs := make([]telemetry.Register, 0, len(c.Registers))
		for _, r := range c.Registers {
			regs = append(regs, telemetry.Register{Sensor: r.Sensor, Quantity: r.Quantity, Address: r.Address})
		}
		s, err := telemetry.NewModbus(c.Endpoint, c.UnitID, c.Timeout, regs)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func mainImpl() error {
	path := flag.String("config", "sensorlog.yaml", "configuration file")
	once := flag.Bool("once", false, "poll all sensors once and exit")
	flag.Parse()
	if flag.NArg() != 0 {
		return fmt.Errorf("unexpected argument: %q", flag.Args())
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	buses, err := sensor.NewBuses(cfg.I2CBus, cfg.SPIPort)
	if err != nil {
		return err
	}
	defer buses.Close()
	sensors, err := sensor.OpenAll(cfg.Sensors, buses)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sensors {
			if err := s.Halt(); err != nil {
				log.Printf("%s: halt: %v", s.Name(), err)
			}
		}
	}()
	sinks, err := openSinks(cfg.Sinks)
	if err != nil {
		return err
	}
	defer sinks.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	r := &runner.Runner{Sensors: sensors, Sink: sinks, Interval: cfg.Interval}
	if *once {
		return r.Poll(ctx)
	}
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "sensorlog: %s.\n", err)
		os.Exit(1)
	}
}
