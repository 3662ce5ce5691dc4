// In-memory GPIO simulator for tests and bench runs without hardware.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gpio

import "fmt"

// SimDriver is a LineDriver backed by in-memory line state. Tests can
// preload input levels, inject request failures and inspect the levels
// written by the code under test.
type SimDriver struct {
	levels map[int]int
	busy   map[int]bool

	// FailRequests makes the next N line requests fail, simulating a
	// line still held by a crashed process.
	FailRequests int
}

// NewSimDriver creates an empty simulator. All lines read 0 until set.
func NewSimDriver() *SimDriver {
	return &SimDriver{
		levels: make(map[int]int),
		busy:   make(map[int]bool),
	}
}

// SetLevel sets the level a simulated input line will report.
func (d *SimDriver) SetLevel(offset, level int) {
	d.levels[offset] = level
}

// Level returns the last level driven or preloaded on a line.
func (d *SimDriver) Level(offset int) int {
	return d.levels[offset]
}

// Requested reports whether a line is currently requested.
func (d *SimDriver) Requested(offset int) bool {
	return d.busy[offset]
}

func (d *SimDriver) request(offset int) error {
	if d.FailRequests > 0 {
		d.FailRequests--
		return fmt.Errorf("gpiosim: line %d busy", offset)
	}
	if d.busy[offset] {
		return fmt.Errorf("gpiosim: line %d already requested", offset)
	}
	d.busy[offset] = true
	return nil
}

func (d *SimDriver) RequestOutput(offset, initial int) (Line, error) {
	if err := d.request(offset); err != nil {
		return nil, err
	}
	d.levels[offset] = initial
	return &simLine{driver: d, offset: offset, output: true}, nil
}

func (d *SimDriver) RequestInput(offset int) (Line, error) {
	if err := d.request(offset); err != nil {
		return nil, err
	}
	return &simLine{driver: d, offset: offset}, nil
}

func (d *SimDriver) Close() error {
	return nil
}

type simLine struct {
	driver *SimDriver
	offset int
	output bool
	closed bool
}

func (l *simLine) SetValue(value int) error {
	if l.closed {
		return fmt.Errorf("gpiosim: line %d closed", l.offset)
	}
	l.driver.levels[l.offset] = value
	return nil
}

func (l *simLine) Value() (int, error) {
	if l.closed {
		return 0, fmt.Errorf("gpiosim: line %d closed", l.offset)
	}
	return l.driver.levels[l.offset], nil
}

func (l *simLine) Close() error {
	if l.closed {
		return fmt.Errorf("gpiosim: line %d double close", l.offset)
	}
	l.closed = true
	l.driver.busy[l.offset] = false
	return nil
}
