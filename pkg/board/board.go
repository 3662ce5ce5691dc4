// Board assembly for the AD/DA HAT.
//
// Wires the GPIO controller, the locked SPI bus, both chip-select
// framers and the two converter drivers into one object with a single
// Open/Destroy lifecycle. Destroy is safe to call from any exit path,
// any number of times.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package board

import (
	"io"
	"time"

	"adda-hat/pkg/ads1256"
	"adda-hat/pkg/bus"
	"adda-hat/pkg/config"
	"adda-hat/pkg/dac8532"
	"adda-hat/pkg/errors"
	"adda-hat/pkg/gpio"
	"adda-hat/pkg/log"
	"adda-hat/pkg/metrics"
	"adda-hat/pkg/spi"
)

// Default wiring of the HAT on a Raspberry Pi header.
const (
	DefaultGPIOChip = "gpiochip0"
	DefaultResetPin = 18
	DefaultReadyPin = 17
	DefaultADCCS    = 22
	DefaultDACCS    = 23
)

// Options is the resolved board configuration.
type Options struct {
	GPIOChip   string
	SPIPath    string
	SPISpeedHz int64

	ResetPin int
	ReadyPin int
	ADCCSPin int
	DACCSPin int

	Gain         ads1256.Gain
	Rate         ads1256.DataRate
	ADCVRef      float64
	DACVRef      float64
	ReadyTimeout time.Duration

	MonitorAddr string
}

// DefaultOptions returns the stock HAT wiring at full rate, unity
// gain.
func DefaultOptions() Options {
	return Options{
		GPIOChip:   DefaultGPIOChip,
		SPIPath:    spi.DevicePath(0, 0),
		SPISpeedHz: spi.DefaultSpeedHz,
		ResetPin:   DefaultResetPin,
		ReadyPin:   DefaultReadyPin,
		ADCCSPin:   DefaultADCCS,
		DACCSPin:   DefaultDACCS,
		Gain:       ads1256.Gain1,
		Rate:       ads1256.DataRate30000,
		ADCVRef:     ads1256.DefaultVRef,
		DACVRef:     dac8532.DefaultVRef,
		MonitorAddr: ":9160",
	}
}

// OptionsFromConfig resolves Options from the [board], [ads1256] and
// [dac8532] sections of a config file. Missing options keep their
// defaults; unknown options are reported as errors.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := DefaultOptions()

	if sec := cfg.GetSectionOptional("board"); sec != nil {
		var err error
		if opts.GPIOChip, err = sec.Get("gpiochip", opts.GPIOChip); err != nil {
			return opts, err
		}
		busNum, err := sec.GetInt("spi_bus", 0)
		if err != nil {
			return opts, err
		}
		devNum, err := sec.GetInt("spi_device", 0)
		if err != nil {
			return opts, err
		}
		opts.SPIPath = spi.DevicePath(busNum, devNum)
		hz, err := sec.GetInt("clock_hz", int(spi.DefaultSpeedHz))
		if err != nil {
			return opts, err
		}
		opts.SPISpeedHz = int64(hz)
	}

	if sec := cfg.GetSectionOptional("ads1256"); sec != nil {
		var err error
		if opts.ADCCSPin, err = sec.GetPin("cs_pin", opts.ADCCSPin); err != nil {
			return opts, err
		}
		if opts.ReadyPin, err = sec.GetPin("drdy_pin", opts.ReadyPin); err != nil {
			return opts, err
		}
		if opts.ResetPin, err = sec.GetPin("rst_pin", opts.ResetPin); err != nil {
			return opts, err
		}
		factor, err := sec.GetInt("gain", 1)
		if err != nil {
			return opts, err
		}
		if opts.Gain, err = ads1256.GainFor(factor); err != nil {
			return opts, err
		}
		sps, err := sec.GetFloat("data_rate", 30000)
		if err != nil {
			return opts, err
		}
		if opts.Rate, err = ads1256.DataRateFor(sps); err != nil {
			return opts, err
		}
		if opts.ADCVRef, err = sec.GetFloat("vref", opts.ADCVRef); err != nil {
			return opts, err
		}
		if opts.ReadyTimeout, err = sec.GetDuration("ready_timeout", 0); err != nil {
			return opts, err
		}
	}

	if sec := cfg.GetSectionOptional("dac8532"); sec != nil {
		var err error
		if opts.DACCSPin, err = sec.GetPin("cs_pin", opts.DACCSPin); err != nil {
			return opts, err
		}
		if opts.DACVRef, err = sec.GetFloat("vref", opts.DACVRef); err != nil {
			return opts, err
		}
	}

	if sec := cfg.GetSectionOptional("monitor"); sec != nil {
		var err error
		if opts.MonitorAddr, err = sec.Get("listen", opts.MonitorAddr); err != nil {
			return opts, err
		}
	}

	if err := cfg.CheckUnusedOptions(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Board is an opened AD/DA HAT.
type Board struct {
	Metrics *metrics.Acquisition

	ctrl      *gpio.Controller
	conn      io.Closer
	adc       *ads1256.Device
	dac       *dac8532.Device
	opts      Options
	logger    *log.Logger
	destroyed bool
}

// Open claims the board's GPIO lines, takes the SPI bus and brings the
// ADC through its reset and configuration sequence. On any failure the
// partially acquired resources are released before returning.
func Open(opts Options) (*Board, error) {
	driver, err := gpio.NewChipDriver(opts.GPIOChip)
	if err != nil {
		return nil, err
	}
	conn, err := spi.Open(opts.SPIPath, opts.SPISpeedHz)
	if err != nil {
		driver.Close()
		return nil, err
	}
	return open(driver, conn, conn, opts)
}

// open assembles a Board on explicit backends. Tests enter here with
// the simulators.
func open(driver gpio.LineDriver, conn spi.Conn, closer io.Closer, opts Options) (*Board, error) {
	b := &Board{
		ctrl:    gpio.NewController(driver),
		conn:    closer,
		opts:    opts,
		logger:  log.GetLogger("board"),
		Metrics: metrics.NewAcquisition(opts.Rate.SPS()),
	}

	claims := []struct {
		pin int
		dir gpio.Direction
	}{
		{opts.ResetPin, gpio.Output},
		{opts.ADCCSPin, gpio.Output},
		{opts.DACCSPin, gpio.Output},
		{opts.ReadyPin, gpio.Input},
	}
	for _, c := range claims {
		if err := b.ctrl.Claim(c.pin, c.dir); err != nil {
			b.Destroy()
			return nil, err
		}
	}

	countTransfer := func() { b.Metrics.BusTransfers.Inc(nil) }
	adcFrame := bus.NewFramer(conn, b.ctrl, opts.ADCCSPin)
	adcFrame.Observe(countTransfer)
	dacFrame := bus.NewFramer(conn, b.ctrl, opts.DACCSPin)
	dacFrame.Observe(countTransfer)

	b.adc = ads1256.New(adcFrame, b.ctrl, ads1256.Config{
		ResetPin:     opts.ResetPin,
		ReadyPin:     opts.ReadyPin,
		Gain:         opts.Gain,
		Rate:         opts.Rate,
		VRef:         opts.ADCVRef,
		ReadyTimeout: opts.ReadyTimeout,
	})
	b.dac = dac8532.New(dacFrame, opts.DACVRef)

	if err := b.adc.Configure(); err != nil {
		b.Metrics.RecordError(string(errors.CodeOf(err)))
		b.Destroy()
		return nil, err
	}

	b.logger.WithFields(log.Fields{
		"spi":  opts.SPIPath,
		"chip": opts.GPIOChip,
		"sps":  opts.Rate.SPS(),
	}).Info("board open")
	return b, nil
}

// Converter returns the ADC driver.
func (b *Board) Converter() *ads1256.Device {
	return b.adc
}

// DAC returns the DAC driver.
func (b *Board) DAC() *dac8532.Device {
	return b.dac
}

// ReadVoltage converts one single-ended channel and returns volts.
func (b *Board) ReadVoltage(channel int) (float64, error) {
	if b.destroyed {
		return 0, errors.New(errors.CodeResource, "board.read", "board destroyed")
	}
	raw, err := b.adc.ReadChannel(channel)
	if err != nil {
		b.Metrics.RecordError(string(errors.CodeOf(err)))
		return 0, err
	}
	v := b.adc.Voltage(raw)
	b.Metrics.RecordChannel(channel, v)
	return v, nil
}

// Scan converts all eight single-ended channels and returns volts in
// channel order.
func (b *Board) Scan() ([]float64, error) {
	if b.destroyed {
		return nil, errors.New(errors.CodeResource, "board.scan", "board destroyed")
	}
	start := time.Now()
	raw, err := b.adc.ReadAllChannels()
	if err != nil {
		b.Metrics.RecordError(string(errors.CodeOf(err)))
		return nil, err
	}
	volts := make([]float64, len(raw))
	for ch, r := range raw {
		volts[ch] = b.adc.Voltage(r)
		b.Metrics.RecordChannel(ch, volts[ch])
	}
	b.Metrics.RecordScan(time.Since(start), len(raw))
	return volts, nil
}

// SetOutput programs one DAC output in volts.
func (b *Board) SetOutput(ch dac8532.Channel, volts float64) error {
	if b.destroyed {
		return errors.New(errors.CodeResource, "board.output", "board destroyed")
	}
	if err := b.dac.WriteVoltage(ch, volts); err != nil {
		b.Metrics.RecordError(string(errors.CodeOf(err)))
		return err
	}
	b.Metrics.RecordDAC(ch.String(), volts)
	return nil
}

// Destroy zeroes the DAC outputs, releases the GPIO lines and the SPI
// bus. Best effort and repeat-safe.
func (b *Board) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true

	if b.dac != nil {
		if err := b.dac.Zero(); err != nil {
			b.logger.WithError(err).Warn("zeroing DAC outputs on shutdown")
		}
	}
	b.ctrl.Close()
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			b.logger.WithError(err).Warn("closing SPI bus")
		}
	}
	b.logger.Info("board destroyed")
}
