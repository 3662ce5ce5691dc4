package dac8532

import (
	"bytes"
	"fmt"
	"math"
	"testing"

	"adda-hat/pkg/bus"
	"adda-hat/pkg/errors"
	"adda-hat/pkg/gpio"
	"adda-hat/pkg/spi"
)

const testCSPin = 23

func newTestDevice(t *testing.T) (*Device, *spi.SimConn, *gpio.SimDriver) {
	t.Helper()
	sim := gpio.NewSimDriver()
	ctrl := gpio.NewController(sim)
	if err := ctrl.Claim(testCSPin, gpio.Output); err != nil {
		t.Fatalf("claim cs: %v", err)
	}
	conn := spi.NewSimConn()
	return New(bus.NewFramer(conn, ctrl, testCSPin), DefaultVRef), conn, sim
}

func TestWriteVoltageWireFormat(t *testing.T) {
	d, conn, sim := newTestDevice(t)

	if err := d.WriteVoltage(ChannelA, 2.5); err != nil {
		t.Fatalf("WriteVoltage: %v", err)
	}
	// 2.5 V at a 5 V reference is mid-scale.
	if !bytes.Equal(conn.LastWrite(), []byte{0x30, 0x80, 0x00}) {
		t.Errorf("wire bytes = % X, want 30 80 00", conn.LastWrite())
	}
	if sim.Level(testCSPin) != 1 {
		t.Error("select line left asserted")
	}

	if err := d.WriteVoltage(ChannelB, 5.0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(conn.LastWrite(), []byte{0x34, 0xFF, 0xFF}) {
		t.Errorf("channel B full scale = % X", conn.LastWrite())
	}
}

func TestEncodeSaturates(t *testing.T) {
	cases := []struct {
		voltage float64
		want    uint16
	}{
		{-1.0, 0},
		{0.0, 0},
		{2.5, 0x8000},
		{5.0, 0xFFFF},
		{7.2, 0xFFFF},
	}
	for _, c := range cases {
		if got := Encode(c.voltage, 5.0); got != c.want {
			t.Errorf("Encode(%v) = %#x, want %#x", c.voltage, got, c.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 0.5, 1.25, 2.5, 3.3, 4.999, 5.0} {
		got := Decode(Encode(v, 5.0), 5.0)
		// One LSB at a 5 V reference is ~76 uV.
		if math.Abs(got-v) > 5.0/maxCode {
			t.Errorf("round trip %v -> %v", v, got)
		}
	}
}

func TestZero(t *testing.T) {
	d, conn, _ := newTestDevice(t)
	if err := d.Zero(); err != nil {
		t.Fatal(err)
	}
	if len(conn.Writes) != 2 {
		t.Fatalf("Zero used %d transfers, want 2", len(conn.Writes))
	}
	if !bytes.Equal(conn.Writes[0], []byte{0x30, 0x00, 0x00}) ||
		!bytes.Equal(conn.Writes[1], []byte{0x34, 0x00, 0x00}) {
		t.Errorf("zero frames = % X / % X", conn.Writes[0], conn.Writes[1])
	}
}

func TestTransferFailureCode(t *testing.T) {
	d, conn, _ := newTestDevice(t)

	conn.Err = fmt.Errorf("bus gone")
	err := d.WriteVoltage(ChannelA, 2.5)
	if err == nil {
		t.Fatal("failed transfer should surface an error")
	}
	// Bus faults are DEVICE_UNAVAILABLE; RESOURCE is for pin claims.
	if !errors.IsCode(err, errors.CodeDeviceUnavailable) {
		t.Errorf("error code = %q, want DEVICE_UNAVAILABLE", errors.CodeOf(err))
	}
}

func TestInvalidChannel(t *testing.T) {
	d, _, _ := newTestDevice(t)
	if err := d.WriteCode(Channel(0x31), 0); !errors.IsCode(err, errors.CodeConfig) {
		t.Errorf("invalid channel error = %v", err)
	}
}
