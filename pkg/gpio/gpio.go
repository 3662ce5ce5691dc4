// GPIO pin ownership for the AD/DA board.
//
// The board uses four dedicated lines: ADC reset, ADC chip-select,
// DAC chip-select and the ADS1256 data-ready output. The Controller
// owns the claim state of those lines for the process lifetime.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gpio

import (
	"adda-hat/pkg/errors"
	"adda-hat/pkg/log"
)

// Direction of a claimed line.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Line is one requested GPIO line.
type Line interface {
	// SetValue drives the line to 0 or 1. Outputs only.
	SetValue(value int) error

	// Value reads the current line level.
	Value() (int, error)

	// Close releases the line back to the kernel.
	Close() error
}

// LineDriver requests lines on one GPIO chip. Implemented by the gpiod
// chip backend and by the in-memory simulator used in tests.
type LineDriver interface {
	RequestOutput(offset, initial int) (Line, error)
	RequestInput(offset int) (Line, error)
	Close() error
}

type claimedLine struct {
	line Line
	dir  Direction
}

// Controller tracks claimed lines on one chip and enforces direction
// on read/write. Not safe for concurrent use; the driver stack is
// single-threaded by design.
type Controller struct {
	driver LineDriver
	pins   map[int]claimedLine
	logger *log.Logger
	closed bool
}

// NewController creates a Controller on top of a LineDriver.
func NewController(driver LineDriver) *Controller {
	return &Controller{
		driver: driver,
		pins:   make(map[int]claimedLine),
		logger: log.GetLogger("gpio"),
	}
}

func (c *Controller) request(offset int, dir Direction) (Line, error) {
	if dir == Output {
		// Both chip-selects and reset idle high.
		return c.driver.RequestOutput(offset, 1)
	}
	return c.driver.RequestInput(offset)
}

// Claim requests a line in the given direction. Claiming is idempotent:
// a line this Controller already holds is released first and claimed
// fresh. A request the hardware rejects is retried exactly once, since
// a crashed previous run can leave the line busy until the kernel
// reaps it.
func (c *Controller) Claim(offset int, dir Direction) error {
	if p, ok := c.pins[offset]; ok {
		if err := p.line.Close(); err != nil {
			c.logger.WithError(err).Warn("release before re-claim of line %d", offset)
		}
		delete(c.pins, offset)
	}

	line, err := c.request(offset, dir)
	if err != nil {
		c.logger.WithError(err).Debug("claim of line %d failed, retrying once", offset)
		line, err = c.request(offset, dir)
		if err != nil {
			return errors.Wrap(errors.CodeResource, "gpio.claim", err,
				"line %d as %s", offset, dir)
		}
	}

	c.pins[offset] = claimedLine{line: line, dir: dir}
	c.logger.WithFields(log.Fields{"line": offset, "direction": dir.String()}).Debug("claimed")
	return nil
}

// Write drives a claimed output line to the given level (0 or 1).
func (c *Controller) Write(offset, level int) error {
	p, ok := c.pins[offset]
	if !ok {
		return errors.New(errors.CodeResource, "gpio.write", "line %d not claimed", offset)
	}
	if p.dir != Output {
		return errors.New(errors.CodeResource, "gpio.write", "line %d claimed as input", offset)
	}
	if err := p.line.SetValue(level); err != nil {
		return errors.Wrap(errors.CodeResource, "gpio.write", err, "line %d", offset)
	}
	return nil
}

// Read returns the level of a claimed input line.
func (c *Controller) Read(offset int) (int, error) {
	p, ok := c.pins[offset]
	if !ok {
		return 0, errors.New(errors.CodeResource, "gpio.read", "line %d not claimed", offset)
	}
	if p.dir != Input {
		return 0, errors.New(errors.CodeResource, "gpio.read", "line %d claimed as output", offset)
	}
	v, err := p.line.Value()
	if err != nil {
		return 0, errors.Wrap(errors.CodeResource, "gpio.read", err, "line %d", offset)
	}
	return v, nil
}

// Claimed reports whether the Controller currently holds the line.
func (c *Controller) Claimed(offset int) bool {
	_, ok := c.pins[offset]
	return ok
}

// ReleaseAll releases every claimed line. Best-effort teardown:
// per-line failures are logged and the remaining lines are still
// released. Safe to call repeatedly.
func (c *Controller) ReleaseAll() {
	for offset, p := range c.pins {
		if err := p.line.Close(); err != nil {
			c.logger.WithError(err).Warn("release of line %d failed", offset)
		}
		delete(c.pins, offset)
	}
}

// Close releases all lines and the underlying chip. Safe to call more
// than once.
func (c *Controller) Close() {
	c.ReleaseAll()
	if c.closed {
		return
	}
	c.closed = true
	if err := c.driver.Close(); err != nil {
		c.logger.WithError(err).Warn("chip close failed")
	}
}
