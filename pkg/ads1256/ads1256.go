// Driver for the ADS1256 24-bit delta-sigma ADC.
//
// The converter sits behind a chip-select framer on the shared SPI bus
// and signals end of conversion on a dedicated data-ready line, active
// low. All multi-byte register writes go out as one framed block so a
// DAC transfer can never split them.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package ads1256

import (
	"time"

	"adda-hat/pkg/bus"
	"adda-hat/pkg/errors"
	"adda-hat/pkg/gpio"
	"adda-hat/pkg/log"
)

// DefaultVRef is the HAT's on-board reference.
const DefaultVRef = 5.0

// DefaultReadyTimeout bounds a single data-ready wait. The slowest
// rate (2.5 SPS) needs up to 400 ms per conversion.
const DefaultReadyTimeout = 2 * time.Second

// resetPulse is the width of each phase of the hardware reset.
const resetPulse = 200 * time.Millisecond

// fullScale is the positive full-scale code of the 24-bit converter.
const fullScale = 0x7FFFFF

// Config holds the wiring and acquisition settings of one converter.
type Config struct {
	ResetPin int
	ReadyPin int

	Gain Gain
	Rate DataRate
	VRef float64

	// ReadyTimeout bounds each data-ready wait. Zero selects
	// DefaultReadyTimeout.
	ReadyTimeout time.Duration
}

// Device drives one ADS1256.
type Device struct {
	frame  *bus.Framer
	ctrl   *gpio.Controller
	cfg    Config
	logger *log.Logger

	sleep func(time.Duration)

	configured bool
}

// New creates a Device. The reset and ready pins must already be
// claimed on the controller (reset as output, ready as input).
func New(frame *bus.Framer, ctrl *gpio.Controller, cfg Config) *Device {
	if cfg.VRef == 0 {
		cfg.VRef = DefaultVRef
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	return &Device{
		frame:  frame,
		ctrl:   ctrl,
		cfg:    cfg,
		logger: log.GetLogger("ads1256"),
		sleep:  time.Sleep,
	}
}

// Rate returns the programmed data rate.
func (d *Device) Rate() DataRate {
	return d.cfg.Rate
}

// Reset pulses the hardware reset line: high, low, high, with
// settling time between edges.
func (d *Device) Reset() error {
	for _, level := range []int{1, 0, 1} {
		if err := d.ctrl.Write(d.cfg.ResetPin, level); err != nil {
			return errors.Wrap(errors.CodeResource, "ads1256.reset", err, "reset line")
		}
		d.sleep(resetPulse)
	}
	return nil
}

func (d *Device) writeCmd(cmd byte) error {
	return d.frame.Write([]byte{cmd})
}

func (d *Device) writeReg(reg, value byte) error {
	return d.frame.Write([]byte{cmdWReg | reg, 0x00, value})
}

func (d *Device) readReg(reg byte) (byte, error) {
	r := make([]byte, 3)
	if err := d.frame.Exchange([]byte{cmdRReg | reg, 0x00, 0x00}, r); err != nil {
		return 0, err
	}
	return r[2], nil
}

// ReadChipID returns the 4-bit part identifier from STATUS.
func (d *Device) ReadChipID() (byte, error) {
	if err := d.WaitReady(); err != nil {
		return 0, err
	}
	status, err := d.readReg(regStatus)
	if err != nil {
		return 0, err
	}
	return status >> 4, nil
}

// Configure resets the converter, verifies the chip identifier and
// programs STATUS, MUX, ADCON and DRATE in a single register block.
// Until Configure succeeds, conversion reads fail.
func (d *Device) Configure() error {
	if !d.cfg.Rate.valid() {
		return errors.New(errors.CodeConfig, "ads1256.configure",
			"invalid data rate %d", d.cfg.Rate)
	}
	if d.cfg.Gain > Gain64 {
		return errors.New(errors.CodeConfig, "ads1256.configure",
			"invalid gain setting %d", d.cfg.Gain)
	}

	if err := d.Reset(); err != nil {
		return err
	}

	id, err := d.ReadChipID()
	if err != nil {
		return errors.Wrap(errors.CodeInit, "ads1256.configure", err, "chip id read")
	}
	if id != ChipID {
		return errors.New(errors.CodeInit, "ads1256.configure",
			"chip id mismatch: got %d, want %d", id, ChipID)
	}

	// STATUS: MSB first, auto-cal off, input buffer on.
	status := byte(1 << 5)
	adcon := byte(d.cfg.Gain) & 0x07

	block := []byte{
		cmdWReg | regStatus,
		0x03, // four registers
		status,
		muxSingle(0),
		adcon,
		d.cfg.Rate.regByte(),
	}
	if err := d.frame.Write(block); err != nil {
		return errors.Wrap(errors.CodeInit, "ads1256.configure", err, "register block")
	}
	d.sleep(time.Millisecond)

	d.configured = true
	d.logger.WithFields(log.Fields{
		"gain": d.cfg.Gain.Factor(),
		"sps":  d.cfg.Rate.SPS(),
		"vref": d.cfg.VRef,
	}).Info("converter configured")
	return nil
}

func (d *Device) requireConfigured(op string) error {
	if !d.configured {
		return errors.New(errors.CodeInit, op, "converter not configured")
	}
	return nil
}

// SelectChannel routes single-ended channel 0-7 against analog common.
func (d *Device) SelectChannel(channel int) error {
	if channel < 0 || channel >= NumChannels {
		return errors.New(errors.CodeConfig, "ads1256.channel",
			"channel %d out of range 0-%d", channel, NumChannels-1)
	}
	return d.writeReg(regMux, muxSingle(channel))
}

// SelectDifferential routes differential pair 0-3 (AIN0/1 .. AIN6/7).
func (d *Device) SelectDifferential(pair int) error {
	if pair < 0 || pair >= NumPairs {
		return errors.New(errors.CodeConfig, "ads1256.channel",
			"pair %d out of range 0-%d", pair, NumPairs-1)
	}
	return d.writeReg(regMux, muxDiff(pair))
}

// WaitReady polls the data-ready line until it goes low or the
// configured timeout elapses.
func (d *Device) WaitReady() error {
	deadline := time.Now().Add(d.cfg.ReadyTimeout)
	for {
		v, err := d.ctrl.Read(d.cfg.ReadyPin)
		if err != nil {
			return errors.Wrap(errors.CodeResource, "ads1256.wait_ready", err, "ready line")
		}
		if v == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New(errors.CodeConversionTimeout, "ads1256.wait_ready",
				"no conversion within %v", d.cfg.ReadyTimeout)
		}
		d.sleep(50 * time.Microsecond)
	}
}

// ReadSample reads the last completed conversion as a sign-extended
// 24-bit value.
func (d *Device) ReadSample() (int32, error) {
	r := make([]byte, 4)
	if err := d.frame.Exchange([]byte{cmdRData, 0x00, 0x00, 0x00}, r); err != nil {
		return 0, err
	}
	return Decode24(r[1:4]), nil
}

// Decode24 assembles a big-endian 24-bit two's-complement sample.
func Decode24(b []byte) int32 {
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	if v&0x800000 != 0 {
		v |= 0xFF000000
	}
	return int32(v)
}

// convert runs one conversion on the currently routed input:
// resynchronize, wake, wait for data-ready, read.
func (d *Device) convert() (int32, error) {
	if err := d.writeCmd(cmdSync); err != nil {
		return 0, err
	}
	if err := d.writeCmd(cmdWakeup); err != nil {
		return 0, err
	}
	if err := d.WaitReady(); err != nil {
		return 0, err
	}
	return d.ReadSample()
}

// ReadChannel converts one single-ended channel.
func (d *Device) ReadChannel(channel int) (int32, error) {
	if err := d.requireConfigured("ads1256.read"); err != nil {
		return 0, err
	}
	if err := d.SelectChannel(channel); err != nil {
		return 0, err
	}
	return d.convert()
}

// ReadDifferential converts one differential pair.
func (d *Device) ReadDifferential(pair int) (int32, error) {
	if err := d.requireConfigured("ads1256.read"); err != nil {
		return 0, err
	}
	if err := d.SelectDifferential(pair); err != nil {
		return 0, err
	}
	return d.convert()
}

// ReadAllChannels scans the eight single-ended channels in ascending
// order. Element i of the result is channel i.
func (d *Device) ReadAllChannels() ([]int32, error) {
	out := make([]int32, NumChannels)
	for ch := 0; ch < NumChannels; ch++ {
		v, err := d.ReadChannel(ch)
		if err != nil {
			return nil, err
		}
		out[ch] = v
	}
	return out, nil
}

// ReadAllDifferential scans the four differential pairs in ascending
// order.
func (d *Device) ReadAllDifferential() ([]int32, error) {
	out := make([]int32, NumPairs)
	for p := 0; p < NumPairs; p++ {
		v, err := d.ReadDifferential(p)
		if err != nil {
			return nil, err
		}
		out[p] = v
	}
	return out, nil
}

// SelfCal runs offset and gain self-calibration and waits for the
// converter to finish.
func (d *Device) SelfCal() error {
	if err := d.writeCmd(cmdSelfCal); err != nil {
		return err
	}
	return d.WaitReady()
}

// Standby puts the converter in standby; Wakeup resumes it.
func (d *Device) Standby() error {
	return d.writeCmd(cmdStandby)
}

func (d *Device) Wakeup() error {
	return d.writeCmd(cmdWakeup)
}

// Voltage converts a raw sample to volts at the configured reference
// and gain.
func (d *Device) Voltage(raw int32) float64 {
	return float64(raw) * d.cfg.VRef / (float64(fullScale) * float64(d.cfg.Gain.Factor()))
}
