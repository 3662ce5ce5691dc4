// Chip-select framing on the shared SPI bus.
//
// Both converters share MOSI/MISO/SCLK; which chip listens is decided
// by its select line. A Framer pairs one select line with the bus and
// guarantees the line is released after every transaction, including
// error paths, so a failed ADC read can never leave the DAC locked
// out.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package bus

import (
	"adda-hat/pkg/errors"
	"adda-hat/pkg/gpio"
	"adda-hat/pkg/spi"
)

// Framer frames transfers to one chip: select low, transfer, select
// high.
type Framer struct {
	conn    spi.Conn
	ctrl    *gpio.Controller
	cs      int
	observe func()
}

// NewFramer binds a select line to the bus. The line must already be
// claimed as an output on the controller.
func NewFramer(conn spi.Conn, ctrl *gpio.Controller, csPin int) *Framer {
	return &Framer{conn: conn, ctrl: ctrl, cs: csPin}
}

// Observe registers fn to run once per framed transaction, after the
// select line went low. Used for transfer accounting.
func (f *Framer) Observe(fn func()) {
	f.observe = fn
}

// Transact asserts the select line, runs body with the bus, and
// deasserts the line no matter how body exits, panics included. A body
// error wins over a deassert error.
func (f *Framer) Transact(body func(conn spi.Conn) error) (err error) {
	if werr := f.ctrl.Write(f.cs, 0); werr != nil {
		return errors.Wrap(errors.CodeResource, "bus.select", werr, "line %d", f.cs)
	}
	defer func() {
		if derr := f.ctrl.Write(f.cs, 1); derr != nil && err == nil {
			err = errors.Wrap(errors.CodeResource, "bus.deselect", derr, "line %d", f.cs)
		}
	}()

	if f.observe != nil {
		f.observe()
	}
	return body(f.conn)
}

// Exchange runs a single framed full-duplex transfer.
func (f *Framer) Exchange(w, r []byte) error {
	return f.Transact(func(conn spi.Conn) error {
		return conn.Exchange(w, r)
	})
}

// Write runs a single framed write-only transfer.
func (f *Framer) Write(w []byte) error {
	return f.Exchange(w, nil)
}
