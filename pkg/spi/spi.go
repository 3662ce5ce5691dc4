// SPI bus access over the Linux spidev interface.
//
// The AD/DA board hangs both converters off one bus; the ADS1256
// requires SPI mode 1 (CPOL=0, CPHA=1) and the DAC8532 tolerates it,
// so the whole bus runs in mode 1.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package spi

import (
	"fmt"
	"os"

	xspi "golang.org/x/exp/io/spi"
	"golang.org/x/sys/unix"

	"adda-hat/pkg/errors"
	"adda-hat/pkg/log"
)

// DefaultSpeedHz is the bus clock used when the config does not name
// one. The ADS1256 serial interface tops out well above this; 1 MHz
// keeps the timing comfortable on long HAT traces.
const DefaultSpeedHz = 1000000

// Conn is a full-duplex SPI connection. Implemented by the devfs
// Transport and by the in-memory simulator used in tests.
type Conn interface {
	// Exchange clocks len(w) bytes out while reading into r. The
	// slices must be the same length; r may be nil for write-only
	// transfers.
	Exchange(w, r []byte) error

	Close() error
}

// DevicePath builds the spidev node path for a bus/device pair.
func DevicePath(bus, device int) string {
	return fmt.Sprintf("/dev/spidev%d.%d", bus, device)
}

// Transport is a Conn over a kernel spidev node. The node is held
// under an exclusive flock for the lifetime of the Transport so two
// driver processes cannot interleave transfers on the bus.
type Transport struct {
	dev    *xspi.Device
	lock   *os.File
	path   string
	logger *log.Logger
	closed bool
}

// Open opens a spidev node in mode 1 at the given clock. A speedHz of
// zero selects DefaultSpeedHz. All open failures, including a bus lock
// held by another process, surface as DEVICE_UNAVAILABLE.
func Open(path string, speedHz int64) (*Transport, error) {
	if speedHz == 0 {
		speedHz = DefaultSpeedHz
	}

	lock, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDeviceUnavailable, "spi.open", err, "%s", path)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		return nil, errors.Wrap(errors.CodeDeviceUnavailable, "spi.open", err,
			"%s held by another process", path)
	}

	dev, err := xspi.Open(&xspi.Devfs{
		Dev:      path,
		Mode:     xspi.Mode1,
		MaxSpeed: speedHz,
	})
	if err != nil {
		unix.Flock(int(lock.Fd()), unix.LOCK_UN)
		lock.Close()
		return nil, errors.Wrap(errors.CodeDeviceUnavailable, "spi.open", err, "%s", path)
	}

	t := &Transport{
		dev:    dev,
		lock:   lock,
		path:   path,
		logger: log.GetLogger("spi"),
	}
	t.logger.WithFields(log.Fields{"device": path, "speed_hz": speedHz}).Info("bus open")
	return t, nil
}

// Exchange runs one full-duplex transfer.
func (t *Transport) Exchange(w, r []byte) error {
	if t.closed {
		return errors.New(errors.CodeDeviceUnavailable, "spi.exchange", "bus %s closed", t.path)
	}
	if r == nil {
		r = make([]byte, len(w))
	}
	if err := t.dev.Tx(w, r); err != nil {
		return errors.Wrap(errors.CodeDeviceUnavailable, "spi.exchange", err, "%s", t.path)
	}
	return nil
}

// WriteOnly clocks bytes out, discarding whatever the device shifts
// back.
func (t *Transport) WriteOnly(w []byte) error {
	return t.Exchange(w, nil)
}

// Close releases the device and the bus lock. Safe to call repeatedly.
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.dev.Close()
	unix.Flock(int(t.lock.Fd()), unix.LOCK_UN)
	t.lock.Close()
	if err != nil {
		return errors.Wrap(errors.CodeDeviceUnavailable, "spi.close", err, "%s", t.path)
	}
	t.logger.WithField("device", t.path).Info("bus closed")
	return nil
}
