// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/dieface/internal/imu"
)

// FXOS8700 register map, subset used by the driver.
const (
	regStatus     = 0x00
	regWhoAmI     = 0x0D
	regXYZDataCfg = 0x0E
	regCtrlReg1   = 0x2A
	regMagOutX    = 0x33
	regMCtrlReg1  = 0x5B
	regMCtrlReg2  = 0x5C
)

// FXOS8700 identity and default wiring.
const (
	FXOSWhoAmI      = 0xC7
	FXOSDefaultAddr = 0x1E
	FXOSDefaultBus  = "/dev/i2c-1"
)

// fxosInit is written in order: standby, hybrid accel+mag with 8x
// oversampling, auto-increment into the mag block, ±4g, then 200 Hz low
// noise active.
var fxosInit = []struct{ reg, val byte }{
	{regCtrlReg1, 0x00},
	{regMCtrlReg1, 0x1F},
	{regMCtrlReg2, 0x20},
	{regXYZDataCfg, 0x01},
	{regCtrlReg1, 0x0D},
}

// ErrWrongDevice means the WHO_AM_I register did not answer 0xC7.
var ErrWrongDevice = errors.New("fxos8700: unexpected WHO_AM_I")

// FXOS8700 reads the combined accelerometer/magnetometer over I2C.
type FXOS8700 struct {
	busName string
	addr    uint16

	closer i2c.BusCloser // set when Open opened the bus itself
	dev    *i2c.Dev
}

// NewFXOS8700 returns a driver for the device on the named I2C bus. Nothing
// is touched until Open.
func NewFXOS8700(busName string, addr uint16) *FXOS8700 {
	if addr == 0 {
		addr = FXOSDefaultAddr
	}
	return &FXOS8700{busName: busName, addr: addr}
}

// NewFXOS8700OnBus uses an already opened bus.
func NewFXOS8700OnBus(bus i2c.Bus, addr uint16) *FXOS8700 {
	d := NewFXOS8700("", addr)
	d.dev = &i2c.Dev{Addr: d.addr, Bus: bus}
	return d
}

// Open initializes periph, opens the bus if needed, checks WHO_AM_I and
// runs the init sequence.
func (d *FXOS8700) Open() error {
	if d.dev == nil {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("fxos8700: periph host init: %w", err)
		}
		bus, err := i2creg.Open(d.busName)
		if err != nil {
			return fmt.Errorf("fxos8700: open I2C bus %q: %w", d.busName, err)
		}
		d.closer = bus
		d.dev = &i2c.Dev{Addr: d.addr, Bus: bus}
	}

	id, err := d.ReadRegister(regWhoAmI)
	if err != nil {
		return fmt.Errorf("fxos8700: read WHO_AM_I: %w", err)
	}
	if id != FXOSWhoAmI {
		return fmt.Errorf("%w: 0x%02X", ErrWrongDevice, id)
	}
	log.Printf("fxos8700: WHO_AM_I = 0x%02X at 0x%02X", id, d.addr)

	for _, w := range fxosInit {
		if err := d.WriteRegister(w.reg, w.val); err != nil {
			return fmt.Errorf("fxos8700: init 0x%02X: %w", w.reg, err)
		}
	}
	// first hybrid sample needs a couple of ODR periods
	time.Sleep(10 * time.Millisecond)
	return nil
}

// ReadAccelMag reads status plus accelerometer, then re-reads the
// magnetometer block directly.
func (d *FXOS8700) ReadAccelMag() (imu.IMURaw, error) {
	if d.dev == nil {
		return imu.IMURaw{}, errors.New("fxos8700: read before open")
	}
	block := make([]byte, 13)
	if err := d.dev.Tx([]byte{regStatus}, block); err != nil {
		return imu.IMURaw{}, fmt.Errorf("fxos8700: read data block: %w", err)
	}
	mag := make([]byte, 6)
	if err := d.dev.Tx([]byte{regMagOutX}, mag); err != nil {
		return imu.IMURaw{}, fmt.Errorf("fxos8700: read magnetometer: %w", err)
	}
	return imu.IMURaw{
		Source: "fxos8700",
		Accel:  decodeTriple(block[1:7]),
		Mag:    decodeTriple(mag),
	}, nil
}

// ReadRegister reads one register.
func (d *FXOS8700) ReadRegister(reg byte) (byte, error) {
	b := make([]byte, 1)
	if err := d.dev.Tx([]byte{reg}, b); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteRegister writes one register.
func (d *FXOS8700) WriteRegister(reg, val byte) error {
	return d.dev.Tx([]byte{reg, val}, nil)
}

// Close puts the device in standby and releases the bus if Open opened it.
func (d *FXOS8700) Close() error {
	if d.dev == nil {
		return nil
	}
	err := d.WriteRegister(regCtrlReg1, 0x00)
	if d.closer != nil {
		if cerr := d.closer.Close(); err == nil {
			err = cerr
		}
		d.closer = nil
		d.dev = nil
	}
	return err
}

// decodeTriple reads three big-endian words.
func decodeTriple(b []byte) imu.RawSample {
	return imu.RawSample{
		X: int16(b[0])<<8 | int16(b[1]),
		Y: int16(b[2])<<8 | int16(b[3]),
		Z: int16(b[4])<<8 | int16(b[5]),
	}
}
