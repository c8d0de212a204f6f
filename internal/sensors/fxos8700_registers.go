// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"strconv"
	"strings"
)

// BitField describes one field inside a register.
type BitField struct {
	Bits        string `json:"bits"` // "7", "5:3"
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo describes a device register for the register debug tool.
type RegisterInfo struct {
	Address     string     `json:"address"` // "0x2A"
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// Addr parses Address.
func (r RegisterInfo) Addr() (byte, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(r.Address, "0x"), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("register %s: bad address %q", r.Name, r.Address)
	}
	return byte(v), nil
}

// Writable reports whether the register may be written.
func (r RegisterInfo) Writable() bool { return strings.Contains(r.Access, "W") }

// LookupRegister finds a register by address.
func LookupRegister(addr byte) (RegisterInfo, bool) {
	want := fmt.Sprintf("0x%02X", addr)
	for _, r := range FXOS8700RegisterMap() {
		if r.Address == want {
			return r, true
		}
	}
	return RegisterInfo{}, false
}

// FXOS8700RegisterMap returns metadata for the FXOS8700 registers this
// project configures or reads.
func FXOS8700RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		// Status and data
		{Address: "0x00", Name: "STATUS", Description: "Data ready status (F_MODE=0)", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "ZYXOW", Description: "X, Y or Z data overwritten", Values: ""},
				{Bits: "3", Name: "ZYXDR", Description: "New X, Y and Z data ready", Values: ""},
			}},
		{Address: "0x01", Name: "OUT_X_MSB", Description: "Accelerometer X high byte", Access: "R"},
		{Address: "0x02", Name: "OUT_X_LSB", Description: "Accelerometer X low byte (14-bit left justified)", Access: "R"},
		{Address: "0x03", Name: "OUT_Y_MSB", Description: "Accelerometer Y high byte", Access: "R"},
		{Address: "0x04", Name: "OUT_Y_LSB", Description: "Accelerometer Y low byte", Access: "R"},
		{Address: "0x05", Name: "OUT_Z_MSB", Description: "Accelerometer Z high byte", Access: "R"},
		{Address: "0x06", Name: "OUT_Z_LSB", Description: "Accelerometer Z low byte", Access: "R"},
		{Address: "0x0B", Name: "SYSMOD", Description: "Current system mode", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "1:0", Name: "SYSMOD", Description: "System mode", Values: "0=Standby, 1=Wake, 2=Sleep"},
			}},
		{Address: "0x0D", Name: "WHO_AM_I", Description: "Device identification", Access: "R", Default: "0xC7",
			BitFields: []BitField{
				{Bits: "7:0", Name: "WHO_AM_I", Description: "Fixed device ID", Values: "0xC7"},
			}},

		// Accelerometer configuration
		{Address: "0x0E", Name: "XYZ_DATA_CFG", Description: "Accelerometer full scale range", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4", Name: "HPF_OUT", Description: "High-pass filtered output", Values: "0=Disabled, 1=Enabled"},
				{Bits: "1:0", Name: "FS", Description: "Full scale range", Values: "0=±2g, 1=±4g, 2=±8g"},
			}},
		{Address: "0x2A", Name: "CTRL_REG1", Description: "System control 1", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:6", Name: "ASLP_RATE", Description: "Auto-wake sample rate in sleep", Values: "0=50Hz, 1=12.5Hz, 2=6.25Hz, 3=1.56Hz"},
				{Bits: "5:3", Name: "DR", Description: "Output data rate (hybrid mode halves it)", Values: "0=800Hz, 1=400Hz, 2=200Hz, 3=100Hz, 4=50Hz, 5=12.5Hz, 6=6.25Hz, 7=1.56Hz"},
				{Bits: "2", Name: "LNOISE", Description: "Reduced noise mode (±4g max)", Values: "0=Normal, 1=Low noise"},
				{Bits: "1", Name: "F_READ", Description: "Fast read (8-bit data)", Values: "0=Normal, 1=Fast"},
				{Bits: "0", Name: "ACTIVE", Description: "Standby or active", Values: "0=Standby, 1=Active"},
			}},
		{Address: "0x2B", Name: "CTRL_REG2", Description: "System control 2", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "ST", Description: "Self-test enable", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "RST", Description: "Software reset", Values: "1=Reset"},
				{Bits: "4:3", Name: "SMODS", Description: "Sleep mode power scheme", Values: "0=Normal, 1=Low noise low power, 2=High resolution, 3=Low power"},
				{Bits: "2", Name: "SLPE", Description: "Auto-sleep enable", Values: "0=Disabled, 1=Enabled"},
				{Bits: "1:0", Name: "MODS", Description: "Active mode power scheme", Values: "0=Normal, 1=Low noise low power, 2=High resolution, 3=Low power"},
			}},
		{Address: "0x2F", Name: "OFF_X", Description: "Accelerometer X offset", Access: "RW", Default: "0x00"},
		{Address: "0x30", Name: "OFF_Y", Description: "Accelerometer Y offset", Access: "RW", Default: "0x00"},
		{Address: "0x31", Name: "OFF_Z", Description: "Accelerometer Z offset", Access: "RW", Default: "0x00"},

		// Magnetometer
		{Address: "0x32", Name: "M_DR_STATUS", Description: "Magnetometer data ready status", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "ZYXOW", Description: "Magnetic data overwritten", Values: ""},
				{Bits: "3", Name: "ZYXDR", Description: "New magnetic data ready", Values: ""},
			}},
		{Address: "0x33", Name: "M_OUT_X_MSB", Description: "Magnetometer X high byte", Access: "R"},
		{Address: "0x34", Name: "M_OUT_X_LSB", Description: "Magnetometer X low byte", Access: "R"},
		{Address: "0x35", Name: "M_OUT_Y_MSB", Description: "Magnetometer Y high byte", Access: "R"},
		{Address: "0x36", Name: "M_OUT_Y_LSB", Description: "Magnetometer Y low byte", Access: "R"},
		{Address: "0x37", Name: "M_OUT_Z_MSB", Description: "Magnetometer Z high byte", Access: "R"},
		{Address: "0x38", Name: "M_OUT_Z_LSB", Description: "Magnetometer Z low byte", Access: "R"},
		{Address: "0x51", Name: "TEMP", Description: "Die temperature, 0.96 °C/LSB", Access: "R"},
		{Address: "0x5B", Name: "M_CTRL_REG1", Description: "Magnetometer control 1", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "M_ACAL", Description: "Auto-calibration", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "M_RST", Description: "One-shot magnetic reset", Values: "1=Reset"},
				{Bits: "5", Name: "M_OST", Description: "One-shot measurement", Values: "1=Trigger"},
				{Bits: "4:2", Name: "M_OS", Description: "Oversample ratio", Values: "0-7 (7=highest)"},
				{Bits: "1:0", Name: "M_HMS", Description: "Sensor mode", Values: "0=Accel only, 1=Mag only, 3=Hybrid"},
			}},
		{Address: "0x5C", Name: "M_CTRL_REG2", Description: "Magnetometer control 2", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5", Name: "HYB_AUTOINC_MODE", Description: "Burst read jumps from 0x06 to 0x33", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4", Name: "M_MAXMIN_DIS", Description: "Disable min/max tracking", Values: "0=Enabled, 1=Disabled"},
				{Bits: "3", Name: "M_MAXMIN_DIS_THS", Description: "Disable min/max on threshold event", Values: ""},
				{Bits: "2", Name: "M_MAXMIN_RST", Description: "Reset min/max registers", Values: "1=Reset"},
				{Bits: "1:0", Name: "M_RST_CNT", Description: "Magnetic reset frequency", Values: "0=Every 1 ODR cycle, 1=16, 2=512, 3=Disabled"},
			}},
		{Address: "0x5D", Name: "M_CTRL_REG3", Description: "Magnetometer control 3", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "M_RAW", Description: "Bypass hard-iron offset registers", Values: "0=Offsets applied, 1=Raw"},
				{Bits: "6:4", Name: "M_ASLP_OS", Description: "Oversample ratio in sleep", Values: "0-7"},
			}},
	}
}
