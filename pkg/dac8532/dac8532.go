// Driver for the DAC8532 dual 16-bit DAC.
//
// Each update is a three-byte frame: a command byte selecting the
// output, then the 16-bit code big-endian. The part latches the value
// on chip-select release, which the bus framer guarantees happens
// after every transaction.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package dac8532

import (
	"math"

	"adda-hat/pkg/bus"
	"adda-hat/pkg/errors"
	"adda-hat/pkg/log"
)

// DefaultVRef is the HAT's supply-referenced full scale.
const DefaultVRef = 5.0

// maxCode is the 16-bit full-scale code.
const maxCode = 0xFFFF

// Channel selects one of the two outputs.
type Channel byte

const (
	ChannelA Channel = 0x30
	ChannelB Channel = 0x34
)

func (c Channel) String() string {
	if c == ChannelB {
		return "B"
	}
	return "A"
}

func (c Channel) valid() bool {
	return c == ChannelA || c == ChannelB
}

// Device drives one DAC8532 behind a chip-select framer.
type Device struct {
	frame  *bus.Framer
	vref   float64
	logger *log.Logger
}

// New creates a Device. A vref of zero selects DefaultVRef.
func New(frame *bus.Framer, vref float64) *Device {
	if vref == 0 {
		vref = DefaultVRef
	}
	return &Device{
		frame:  frame,
		vref:   vref,
		logger: log.GetLogger("dac8532"),
	}
}

// Encode converts a voltage to the 16-bit output code, saturating at
// the ends of the 0..vref range.
func Encode(voltage, vref float64) uint16 {
	if voltage <= 0 {
		return 0
	}
	if voltage >= vref {
		return maxCode
	}
	return uint16(math.Round(voltage / vref * maxCode))
}

// Decode converts an output code back to the voltage it produces.
func Decode(code uint16, vref float64) float64 {
	return float64(code) / maxCode * vref
}

// WriteCode programs one output with a raw 16-bit code.
func (d *Device) WriteCode(ch Channel, code uint16) error {
	if !ch.valid() {
		return errors.New(errors.CodeConfig, "dac8532.write", "invalid channel %#x", byte(ch))
	}
	frame := []byte{byte(ch), byte(code >> 8), byte(code)}
	if err := d.frame.Write(frame); err != nil {
		return errors.Wrap(errors.CodeDeviceUnavailable, "dac8532.write", err, "channel %s", ch)
	}
	return nil
}

// WriteVoltage programs one output in volts. Out-of-range requests
// saturate at 0 and vref.
func (d *Device) WriteVoltage(ch Channel, voltage float64) error {
	return d.WriteCode(ch, Encode(voltage, d.vref))
}

// PowerDown drives one output to zero scale.
func (d *Device) PowerDown(ch Channel) error {
	return d.WriteCode(ch, 0)
}

// Zero drives both outputs to 0 V. Used on shutdown so the board does
// not hold its last level.
func (d *Device) Zero() error {
	for _, ch := range []Channel{ChannelA, ChannelB} {
		if err := d.PowerDown(ch); err != nil {
			return err
		}
	}
	d.logger.Debug("outputs zeroed")
	return nil
}

// VRef returns the configured full-scale voltage.
func (d *Device) VRef() float64 {
	return d.vref
}
