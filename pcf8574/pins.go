// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pcf8574

import (
	"errors"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// ErrNotImplemented is returned for features the chip lacks.
var ErrNotImplemented = errors.New("pcf8574: not implemented")

type portPin struct {
	dev    *Dev
	number int
	name   string
}

func (p *portPin) bit() byte {
	return 1 << p.number
}

func (p *portPin) String() string {
	return p.name
}

func (p *portPin) Name() string {
	return p.name
}

func (p *portPin) Number() int {
	return p.number
}

// Function returns "Out" while the pin is driven low and "In" while its weak
// pull up is enabled.
func (p *portPin) Function() string {
	if p.dev.Latch()&p.bit() == 0 {
		return "Out"
	}
	return "In"
}

func (p *portPin) Halt() error {
	return nil
}

// In enables the weak pull up so the pin can be read. The chip has no pull
// down and no per pin edge detection.
func (p *portPin) In(pull gpio.Pull, edge gpio.Edge) error {
	if pull == gpio.PullDown {
		return errors.New("pcf8574: pull down not supported")
	}
	if edge != gpio.NoEdge {
		return ErrNotImplemented
	}
	return p.dev.Set(p.bit(), p.bit())
}

func (p *portPin) Read() gpio.Level {
	v, err := p.dev.Read()
	if err != nil {
		log.Println(err)
		return gpio.Low
	}
	return v&p.bit() != 0
}

// WaitForEdge is not supported. The INT output signals a change on any pin
// and must be monitored with a host GPIO.
func (p *portPin) WaitForEdge(timeout time.Duration) bool {
	return false
}

func (p *portPin) Pull() gpio.Pull {
	if p.dev.Latch()&p.bit() != 0 {
		return gpio.PullUp
	}
	return gpio.Float
}

func (p *portPin) DefaultPull() gpio.Pull {
	return gpio.PullUp
}

func (p *portPin) Out(l gpio.Level) error {
	var v byte
	if l {
		v = p.bit()
	}
	return p.dev.Set(p.bit(), v)
}

func (p *portPin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return ErrNotImplemented
}

var _ gpio.PinIO = &portPin{}
