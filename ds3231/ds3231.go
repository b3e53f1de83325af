// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds3231 drives the Maxim DS3231 temperature compensated real time
// clock.
//
// The clock keeps seconds through years with a century bit, so years 2000
// to 2199 can be represented. Times are exchanged in UTC. The device also
// offers two alarms, a square wave or interrupt output, a 32kHz output and a
// temperature sensor with 0.25°C resolution.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS3231.pdf
package ds3231

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

// AlarmMatch selects which fields of an alarm must match the time for the
// alarm to fire.
type AlarmMatch int

const (
	// AlarmEverySecond fires once per second. Alarm 1 only.
	AlarmEverySecond AlarmMatch = iota
	// AlarmEveryMinute fires at second 00 of every minute. Alarm 2 only.
	AlarmEveryMinute
	// AlarmSeconds matches the seconds. Alarm 1 only.
	AlarmSeconds
	// AlarmMinutes matches the minutes and, on alarm 1, the seconds.
	AlarmMinutes
	// AlarmHours matches the hours, minutes and, on alarm 1, the seconds.
	AlarmHours
	// AlarmDate additionally matches the day of the month.
	AlarmDate
	// AlarmWeekday additionally matches the day of the week.
	AlarmWeekday
)

// Alarm is the configuration of one of the two alarms.
type Alarm struct {
	Match AlarmMatch
	// Day is the day of the month (1-31) for AlarmDate or the day of the
	// week (1-7, Sunday is 1) for AlarmWeekday.
	Day    int
	Hour   int
	Minute int
	// Second is ignored by alarm 2, which always fires at second 00.
	Second int
}

// SquareWave is the frequency of the SQW output.
type SquareWave byte

const (
	SquareWave1Hz    SquareWave = 0
	SquareWave1024Hz SquareWave = 1
	SquareWave4096Hz SquareWave = 2
	SquareWave8192Hz SquareWave = 3
)

const (
	// DefaultAddress is the fixed address of the device.
	DefaultAddress uint16 = 0x68

	regSeconds     byte = 0x00
	regAlarm1      byte = 0x07
	regAlarm2      byte = 0x0b
	regControl     byte = 0x0e
	regStatus      byte = 0x0f
	regAging       byte = 0x10
	regTemperature byte = 0x11

	ctrlCONV  byte = 1 << 5
	ctrlRS    byte = 0x18
	ctrlINTCN byte = 1 << 2
	ctrlA2IE  byte = 1 << 1
	ctrlA1IE  byte = 1 << 0

	statOSF     byte = 1 << 7
	statEN32kHz byte = 1 << 3
	statBSY     byte = 1 << 2

	hour12   byte = 1 << 6
	hourPM   byte = 1 << 5
	century  byte = 1 << 7
	alarmMsk byte = 1 << 7
	alarmDY  byte = 1 << 6

	conversionTimeout = 200 * time.Millisecond
)

var (
	errInvalidAlarm = errors.New("ds3231: alarm must be 1 or 2")
	// ErrInvalidTime is returned when the time registers do not hold a valid
	// date, typically after the oscillator stopped.
	ErrInvalidTime = errors.New("ds3231: invalid time in registers")
)

// Dev is a handle to a DS3231.
type Dev struct {
	d  *i2c.Dev
	mu sync.Mutex
}

// NewI2C returns a handle to the clock. No bus transaction is performed.
func NewI2C(b i2c.Bus, addr uint16) (*Dev, error) {
	return &Dev{d: &i2c.Dev{Bus: b, Addr: addr}}, nil
}

func (d *Dev) read(reg byte, n int) ([]byte, error) {
	r := make([]byte, n)
	if err := common.ReadRegister(d.d, reg, r); err != nil {
		return nil, fmt.Errorf("ds3231: read register 0x%02x: %w", reg, err)
	}
	return r, nil
}

func (d *Dev) update(reg, mask, value byte) error {
	if err := common.UpdateRegister(d.d, reg, mask, value); err != nil {
		return fmt.Errorf("ds3231: update register 0x%02x: %w", reg, err)
	}
	return nil
}

// decodeHour handles both the 12 and 24 hour formats.
func decodeHour(b byte) int {
	if b&hour12 != 0 {
		h := common.BCDToBin(b&0x1f) % 12
		if b&hourPM != 0 {
			h += 12
		}
		return h
	}
	return common.BCDToBin(b & 0x3f)
}

func decodeTime(r []byte) (time.Time, error) {
	year := 2000 + common.BCDToBin(r[6])
	if r[5]&century != 0 {
		year += 100
	}
	month := common.BCDToBin(r[5] & 0x1f)
	day := common.BCDToBin(r[4] & 0x3f)
	hour := decodeHour(r[2])
	minute := common.BCDToBin(r[1] & 0x7f)
	second := common.BCDToBin(r[0] & 0x7f)
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, ErrInvalidTime
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

func encodeTime(t time.Time) ([]byte, error) {
	t = t.UTC()
	if t.Year() < 2000 || t.Year() > 2199 {
		return nil, fmt.Errorf("ds3231: year %d out of range [2000, 2199]", t.Year())
	}
	month := common.BinToBCD(int(t.Month()))
	if t.Year() >= 2100 {
		month |= century
	}
	return []byte{
		common.BinToBCD(t.Second()),
		common.BinToBCD(t.Minute()),
		common.BinToBCD(t.Hour()),
		byte(t.Weekday()) + 1,
		common.BinToBCD(t.Day()),
		month,
		common.BinToBCD(t.Year() % 100),
	}, nil
}

// Time reads the current time.
func (d *Dev) Time() (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.read(regSeconds, 7)
	if err != nil {
		return time.Time{}, err
	}
	return decodeTime(r)
}

// SetTime sets the clock in 24 hour format and clears the oscillator stop
// flag. Sub-second precision is dropped.
func (d *Dev) SetTime(t time.Time) error {
	w, err := encodeTime(t)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.WriteRegister(d.d, regSeconds, w...); err != nil {
		return fmt.Errorf("ds3231: set time: %w", err)
	}
	return d.update(regStatus, statOSF, 0)
}

// OscillatorStopped reports whether the oscillator stopped since the time was
// last set. When true the time is not valid.
func (d *Dev) OscillatorStopped() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.read(regStatus, 1)
	if err != nil {
		return false, err
	}
	return r[0]&statOSF != 0, nil
}

func (d *Dev) temperature() (physic.Temperature, error) {
	r, err := d.read(regTemperature, 2)
	if err != nil {
		return 0, err
	}
	// 10 bit two's complement in 0.25°C steps.
	quarters := int16(uint16(r[0])<<8|uint16(r[1])) >> 6
	return physic.ZeroCelsius + physic.Temperature(quarters)*250*physic.MilliKelvin, nil
}

// Temperature returns the last temperature conversion. The device converts
// every 64 seconds. Use ForceConversion for a fresh reading.
func (d *Dev) Temperature() (physic.Temperature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.temperature()
}

// Sense reads the temperature sensor.
func (d *Dev) Sense(env *physic.Env) error {
	t, err := d.Temperature()
	if err != nil {
		return err
	}
	env.Temperature = t
	env.Pressure = 0
	env.Humidity = 0
	return nil
}

// ForceConversion starts a temperature conversion and waits for it to
// complete.
func (d *Dev) ForceConversion() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	// A conversion must not be started while one is in progress.
	err := common.Poll(conversionTimeout, 2*time.Millisecond, func() (bool, error) {
		r, err := d.read(regStatus, 1)
		if err != nil {
			return false, err
		}
		return r[0]&statBSY == 0, nil
	})
	if err != nil {
		return fmt.Errorf("ds3231: %w", err)
	}
	if err := d.update(regControl, ctrlCONV, ctrlCONV); err != nil {
		return err
	}
	err = common.Poll(conversionTimeout, 2*time.Millisecond, func() (bool, error) {
		r, err := d.read(regControl, 1)
		if err != nil {
			return false, err
		}
		return r[0]&ctrlCONV == 0, nil
	})
	if err != nil {
		return fmt.Errorf("ds3231: %w", err)
	}
	return nil
}

// maskedFields returns the number of alarm fields, counted from the day
// field down, that are masked for m.
func maskedFields(n int, m AlarmMatch) (int, error) {
	switch {
	case n == 1 && m == AlarmEverySecond:
		return 4, nil
	case n == 2 && m == AlarmEveryMinute:
		return 3, nil
	case n == 1 && m == AlarmSeconds:
		return 3, nil
	case m == AlarmMinutes:
		return 2, nil
	case m == AlarmHours:
		return 1, nil
	case m == AlarmDate, m == AlarmWeekday:
		return 0, nil
	}
	return 0, fmt.Errorf("ds3231: alarm match %d not supported by alarm %d", m, n)
}

// SetAlarm programs alarm n, 1 or 2. The alarm flag is not cleared.
func (d *Dev) SetAlarm(n int, a Alarm) error {
	if n != 1 && n != 2 {
		return errInvalidAlarm
	}
	masked, err := maskedFields(n, a.Match)
	if err != nil {
		return err
	}
	if a.Second < 0 || a.Second > 59 || a.Minute < 0 || a.Minute > 59 || a.Hour < 0 || a.Hour > 23 {
		return errors.New("ds3231: invalid alarm time")
	}
	var day byte
	switch a.Match {
	case AlarmWeekday:
		if a.Day < 1 || a.Day > 7 {
			return errors.New("ds3231: invalid alarm weekday")
		}
		day = alarmDY | byte(a.Day)
	case AlarmDate:
		if a.Day < 1 || a.Day > 31 {
			return errors.New("ds3231: invalid alarm date")
		}
		day = common.BinToBCD(a.Day)
	}
	fields := []byte{common.BinToBCD(a.Second), common.BinToBCD(a.Minute), common.BinToBCD(a.Hour), day}
	reg := regAlarm1
	if n == 2 {
		fields = fields[1:]
		reg = regAlarm2
	}
	for i := len(fields) - masked; i < len(fields); i++ {
		fields[i] |= alarmMsk
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.WriteRegister(d.d, reg, fields...); err != nil {
		return fmt.Errorf("ds3231: set alarm %d: %w", n, err)
	}
	return nil
}

// Alarm reads the configuration of alarm n, 1 or 2.
func (d *Dev) Alarm(n int) (Alarm, error) {
	if n != 1 && n != 2 {
		return Alarm{}, errInvalidAlarm
	}
	reg, size := regAlarm1, 4
	if n == 2 {
		reg, size = regAlarm2, 3
	}
	d.mu.Lock()
	r, err := d.read(reg, size)
	d.mu.Unlock()
	if err != nil {
		return Alarm{}, err
	}
	if n == 2 {
		r = append([]byte{0}, r...)
	}
	a := Alarm{
		Second: common.BCDToBin(r[0] & 0x7f),
		Minute: common.BCDToBin(r[1] & 0x7f),
		Hour:   decodeHour(r[2] & 0x7f),
	}
	masked := 0
	for i := len(r) - 1; i >= 4-size && r[i]&alarmMsk != 0; i-- {
		masked++
	}
	for i := 4 - size; i < len(r)-masked; i++ {
		if r[i]&alarmMsk != 0 {
			return Alarm{}, fmt.Errorf("ds3231: unsupported mask combination on alarm %d", n)
		}
	}
	switch masked {
	case 0:
		if r[3]&alarmDY != 0 {
			a.Match = AlarmWeekday
			a.Day = int(r[3] & 0x0f)
		} else {
			a.Match = AlarmDate
			a.Day = common.BCDToBin(r[3] & 0x3f)
		}
	case 1:
		a.Match = AlarmHours
	case 2:
		a.Match = AlarmMinutes
	case 3:
		if n == 1 {
			a.Match = AlarmSeconds
		} else {
			a.Match = AlarmEveryMinute
		}
	case 4:
		a.Match = AlarmEverySecond
	}
	if n == 2 {
		a.Second = 0
	}
	return a, nil
}

func alarmFlag(n int) (byte, error) {
	switch n {
	case 1:
		return 1 << 0, nil
	case 2:
		return 1 << 1, nil
	}
	return 0, errInvalidAlarm
}

// AlarmFired reports whether alarm n matched since its flag was last
// cleared.
func (d *Dev) AlarmFired(n int) (bool, error) {
	flag, err := alarmFlag(n)
	if err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.read(regStatus, 1)
	if err != nil {
		return false, err
	}
	return r[0]&flag != 0, nil
}

// ClearAlarm clears the flag of alarm n, which releases INT/SQW if it was
// asserted by that alarm.
func (d *Dev) ClearAlarm(n int) error {
	flag, err := alarmFlag(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.update(regStatus, flag, 0)
}

// SetSquareWave outputs a square wave on INT/SQW. Alarm interrupts are not
// signaled on the pin while the square wave is enabled.
func (d *Dev) SetSquareWave(rate SquareWave) error {
	if rate > SquareWave8192Hz {
		return fmt.Errorf("ds3231: invalid square wave rate %d", rate)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.update(regControl, ctrlRS|ctrlINTCN, byte(rate)<<3)
}

// EnableInterrupts switches INT/SQW to interrupt mode and enables the alarm
// interrupts.
func (d *Dev) EnableInterrupts(alarm1, alarm2 bool) error {
	v := ctrlINTCN
	if alarm1 {
		v |= ctrlA1IE
	}
	if alarm2 {
		v |= ctrlA2IE
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.update(regControl, ctrlINTCN|ctrlA1IE|ctrlA2IE, v)
}

// Enable32kHz turns the 32kHz output on or off.
func (d *Dev) Enable32kHz(on bool) error {
	var v byte
	if on {
		v = statEN32kHz
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.update(regStatus, statEN32kHz, v)
}

// AgingOffset returns the crystal aging trim. A positive value slows the
// oscillator by roughly 0.1ppm per step at 25°C.
func (d *Dev) AgingOffset() (int8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.read(regAging, 1)
	if err != nil {
		return 0, err
	}
	return int8(r[0]), nil
}

// SetAgingOffset writes the crystal aging trim. It takes effect at the next
// temperature conversion.
func (d *Dev) SetAgingOffset(v int8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.WriteRegister(d.d, regAging, byte(v)); err != nil {
		return fmt.Errorf("ds3231: set aging offset: %w", err)
	}
	return nil
}

// Halt implements conn.Resource. The clock keeps running.
func (d *Dev) Halt() error {
	return nil
}

func (d *Dev) String() string {
	return "ds3231: " + d.d.String()
}

var _ conn.Resource = &Dev{}
