package board

import (
	"bytes"
	"testing"
	"time"

	"adda-hat/pkg/ads1256"
	"adda-hat/pkg/config"
	"adda-hat/pkg/dac8532"
	"adda-hat/pkg/errors"
	"adda-hat/pkg/gpio"
	"adda-hat/pkg/spi"
)

var chipIDResponse = []byte{0x00, 0x00, 0x30}

func openTestBoard(t *testing.T, responses ...[]byte) (*Board, *spi.SimConn, *gpio.SimDriver) {
	t.Helper()
	sim := gpio.NewSimDriver()
	conn := spi.NewSimConn(responses...)
	b, err := open(sim, conn, conn, DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return b, conn, sim
}

func TestOpenClaimsAndConfigures(t *testing.T) {
	b, conn, sim := openTestBoard(t, chipIDResponse)
	defer b.Destroy()

	for _, pin := range []int{DefaultResetPin, DefaultReadyPin, DefaultADCCS, DefaultDACCS} {
		if !sim.Requested(pin) {
			t.Errorf("pin %d not claimed", pin)
		}
	}
	// Chip id read plus the four-register config block.
	if len(conn.Writes) != 2 {
		t.Fatalf("open used %d transfers, want 2", len(conn.Writes))
	}
	if conn.Writes[1][0] != 0x50 || conn.Writes[1][1] != 0x03 {
		t.Errorf("config block header = % X", conn.Writes[1][:2])
	}
}

func TestDestroyZeroesAndReleases(t *testing.T) {
	b, conn, sim := openTestBoard(t, chipIDResponse)

	b.Destroy()

	n := len(conn.Writes)
	if n < 2 {
		t.Fatal("missing shutdown transfers")
	}
	if !bytes.Equal(conn.Writes[n-2], []byte{0x30, 0x00, 0x00}) ||
		!bytes.Equal(conn.Writes[n-1], []byte{0x34, 0x00, 0x00}) {
		t.Errorf("shutdown frames = % X / % X", conn.Writes[n-2], conn.Writes[n-1])
	}
	for _, pin := range []int{DefaultResetPin, DefaultReadyPin, DefaultADCCS, DefaultDACCS} {
		if sim.Requested(pin) {
			t.Errorf("pin %d still claimed after Destroy", pin)
		}
	}
	if err := conn.Close(); err == nil {
		t.Error("bus not closed by Destroy")
	}

	// Destroy again must be a no-op.
	b.Destroy()
	if len(conn.Writes) != n {
		t.Errorf("second Destroy issued transfers")
	}

	if _, err := b.ReadVoltage(0); !errors.IsCode(err, errors.CodeResource) {
		t.Errorf("read after Destroy: %v", err)
	}
}

func TestOpenFailsOnChipID(t *testing.T) {
	sim := gpio.NewSimDriver()
	conn := spi.NewSimConn([]byte{0x00, 0x00, 0x70})
	_, err := open(sim, conn, conn, DefaultOptions())
	if err == nil {
		t.Fatal("open should fail on chip id mismatch")
	}
	if !errors.IsCode(err, errors.CodeInit) {
		t.Errorf("error code = %q, want INIT", errors.CodeOf(err))
	}
	for _, pin := range []int{DefaultResetPin, DefaultReadyPin, DefaultADCCS, DefaultDACCS} {
		if sim.Requested(pin) {
			t.Errorf("pin %d leaked after failed open", pin)
		}
	}
}

func TestScanRecordsMetrics(t *testing.T) {
	responses := make([][]byte, 2+4*ads1256.NumChannels)
	responses[0] = chipIDResponse
	for ch := 0; ch < ads1256.NumChannels; ch++ {
		responses[2+4*ch+3] = []byte{0x00, 0x40, 0x00, 0x00}
	}
	b, _, _ := openTestBoard(t, responses...)
	defer b.Destroy()

	volts, err := b.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(volts) != ads1256.NumChannels {
		t.Fatalf("got %d channels", len(volts))
	}
	for ch, v := range volts {
		// 0x400000 is half of positive full scale.
		if v < 2.49 || v > 2.51 {
			t.Errorf("channel %d = %v, want ~2.5", ch, v)
		}
	}
	if got := b.Metrics.ScansTotal.Get(nil); got != 1 {
		t.Errorf("scans metric = %v", got)
	}
	if got := b.Metrics.SamplesTotal.Get(nil); got != 8 {
		t.Errorf("samples metric = %v", got)
	}
	// Configure framed two transactions; each channel takes four more.
	if got := b.Metrics.BusTransfers.Get(nil); got != 2+4*ads1256.NumChannels {
		t.Errorf("bus transfers metric = %v, want %d", got, 2+4*ads1256.NumChannels)
	}
}

func TestSetOutput(t *testing.T) {
	b, conn, _ := openTestBoard(t, chipIDResponse)
	defer b.Destroy()

	if err := b.SetOutput(dac8532.ChannelB, 2.5); err != nil {
		t.Fatalf("SetOutput: %v", err)
	}
	if !bytes.Equal(conn.LastWrite(), []byte{0x34, 0x80, 0x00}) {
		t.Errorf("wire bytes = % X", conn.LastWrite())
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg, err := config.LoadString(`
[board]
gpiochip: gpiochip4
spi_bus: 1
spi_device: 2
clock_hz: 500000

[ads1256]
gain: 4
data_rate: 1000
ready_timeout: 250ms

[dac8532]
vref: 3.3

[monitor]
listen: 127.0.0.1:9999
`)
	if err != nil {
		t.Fatal(err)
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	if opts.GPIOChip != "gpiochip4" {
		t.Errorf("gpiochip = %q", opts.GPIOChip)
	}
	if opts.SPIPath != "/dev/spidev1.2" {
		t.Errorf("spi path = %q", opts.SPIPath)
	}
	if opts.SPISpeedHz != 500000 {
		t.Errorf("clock = %d", opts.SPISpeedHz)
	}
	if opts.Gain != ads1256.Gain4 {
		t.Errorf("gain = %v", opts.Gain)
	}
	if opts.Rate != ads1256.DataRate1000 {
		t.Errorf("rate = %v", opts.Rate)
	}
	if opts.ReadyTimeout != 250*time.Millisecond {
		t.Errorf("ready timeout = %v", opts.ReadyTimeout)
	}
	if opts.DACVRef != 3.3 {
		t.Errorf("dac vref = %v", opts.DACVRef)
	}
	if opts.MonitorAddr != "127.0.0.1:9999" {
		t.Errorf("monitor addr = %q", opts.MonitorAddr)
	}
	// Untouched options keep the stock wiring.
	if opts.ResetPin != DefaultResetPin || opts.ADCCSPin != DefaultADCCS {
		t.Error("default pins lost")
	}
}

func TestOptionsFromConfigRejectsTypos(t *testing.T) {
	cfg, err := config.LoadString("[ads1256]\ngains: 4\n")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Error("unknown option accepted")
	}
}
