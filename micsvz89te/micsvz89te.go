// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package micsvz89te drives the SGX Sensortech MiCS-VZ-89TE indoor air
// quality module.
//
// The module reports a volatile organic compounds level in ppb, a CO₂
// equivalent in ppm and the raw sensor resistance. Requests are a command
// byte followed by four data bytes and a checksum. Responses are six data
// bytes and a checksum.
//
// # Datasheet
//
// https://www.sgxsensortech.com/content/uploads/2016/07/MiCS-VZ-89TE-V1.0.pdf
package micsvz89te

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensors/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// PPB is a VOC concentration in parts per billion isobutylene equivalent.
type PPB float64

func (p PPB) String() string {
	return fmt.Sprintf("%.1f PPB", float64(p))
}

// PPM is a CO₂ equivalent concentration in parts per million.
type PPM float64

func (p PPM) String() string {
	return fmt.Sprintf("%.1f PPM", float64(p))
}

// Env is a reading of the module.
type Env struct {
	VOC        PPB
	CO2        PPM
	Resistance physic.ElectricResistance
	// Status is the raw status byte of the module.
	Status byte
}

func (e *Env) String() string {
	return fmt.Sprintf("VOC: %s CO2: %s Resistance: %s", e.VOC, e.CO2, e.Resistance)
}

// Revision is the firmware date and revision.
type Revision struct {
	Year, Month, Day int
	Revision         byte
}

func (r Revision) String() string {
	return fmt.Sprintf("20%02d-%02d-%02d rev %c", r.Year, r.Month, r.Day, r.Revision)
}

const (
	// DefaultAddress is the only address the module responds to.
	DefaultAddress uint16 = 0x70

	cmdStatus   byte = 0x0c
	cmdRevision byte = 0x0d
	cmdR0       byte = 0x10

	responseDelay = 100 * time.Millisecond

	// MinInterval is the update period of the module.
	MinInterval = time.Second
)

// ErrCRC is returned when the checksum of a response does not match.
var ErrCRC = fmt.Errorf("micsvz89te: %w", common.ErrCRC)

// Dev is a handle to a MiCS-VZ-89TE module.
type Dev struct {
	d    *i2c.Dev
	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewI2C returns a handle to the module. The module needs no configuration.
func NewI2C(b i2c.Bus, addr uint16) (*Dev, error) {
	return &Dev{d: &i2c.Dev{Bus: b, Addr: addr}}, nil
}

// checksum sums the bytes into 16 bits, adds the low and high bytes of the
// sum and subtracts the result from 0xFF.
func checksum(b []byte) byte {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return 0xff - (byte(sum) + byte(sum>>8))
}

// request sends cmd with empty data and returns the six response data bytes.
func (d *Dev) request(cmd byte) ([]byte, error) {
	w := []byte{cmd, 0, 0, 0, 0, 0}
	w[5] = checksum(w[:5])
	if err := d.d.Tx(w, nil); err != nil {
		return nil, fmt.Errorf("micsvz89te: command 0x%02x: %w", cmd, err)
	}
	time.Sleep(responseDelay)
	r := make([]byte, 7)
	if err := d.d.Tx(nil, r); err != nil {
		return nil, fmt.Errorf("micsvz89te: read 0x%02x: %w", cmd, err)
	}
	if checksum(r[:6]) != r[6] {
		return nil, ErrCRC
	}
	return r[:6], nil
}

func decodeStatus(r []byte) Env {
	return Env{
		VOC:        PPB((float64(r[0]) - 13) * 1000 / 229),
		CO2:        PPM((float64(r[1])-13)*1600/229 + 400),
		Resistance: 10 * physic.ElectricResistance(int64(r[2])+int64(r[3])<<8+int64(r[4])<<16) * physic.Ohm,
		Status:     r[5],
	}
}

// Sense reads the current VOC, CO₂ equivalent and resistance.
func (d *Dev) Sense(env *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.request(cmdStatus)
	if err != nil {
		return err
	}
	*env = decodeStatus(r)
	return nil
}

// SenseContinuous returns a channel receiving a reading every interval until
// Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if interval < MinInterval {
		return nil, fmt.Errorf("micsvz89te: invalid duration. minimum %s", MinInterval)
	}
	if d.stop != nil {
		return nil, errors.New("micsvz89te: SenseContinuous already running")
	}
	ch := make(chan Env, 16)
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer d.wg.Done()
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e := Env{}
				if err := d.Sense(&e); err == nil && len(ch) < cap(ch) {
					ch <- e
				}
			}
		}
	}(d.stop)
	return ch, nil
}

// Revision reads the firmware date and revision.
func (d *Dev) Revision() (Revision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.request(cmdRevision)
	if err != nil {
		return Revision{}, err
	}
	return Revision{Year: int(r[0]), Month: int(r[1]), Day: int(r[2]), Revision: r[3]}, nil
}

// R0 reads the calibrated sensor resistance in clean air.
func (d *Dev) R0() (physic.ElectricResistance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.request(cmdR0)
	if err != nil {
		return 0, err
	}
	return physic.ElectricResistance(int64(r[0])|int64(r[1])<<8) * physic.KiloOhm, nil
}

// Halt stops SenseContinuous. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	return nil
}

func (d *Dev) String() string {
	return "micsvz89te: " + d.d.String()
}

var _ conn.Resource = &Dev{}
