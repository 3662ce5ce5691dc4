// gpiod-backed line driver (Linux GPIO character device).
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gpio

import (
	"github.com/warthog618/gpiod"

	"adda-hat/pkg/errors"
)

// Consumer is the label attached to requested lines, visible in
// gpioinfo output.
const Consumer = "adda-hat"

type chipDriver struct {
	chip *gpiod.Chip
}

// NewChipDriver opens a GPIO character device ("gpiochip0",
// "gpiochip4" on a Pi 5) and returns a LineDriver on it.
func NewChipDriver(name string) (LineDriver, error) {
	chip, err := gpiod.NewChip(name, gpiod.WithConsumer(Consumer))
	if err != nil {
		return nil, errors.Wrap(errors.CodeResource, "gpio.open", err, "chip %s", name)
	}
	return &chipDriver{chip: chip}, nil
}

func (d *chipDriver) RequestOutput(offset, initial int) (Line, error) {
	return d.chip.RequestLine(offset, gpiod.AsOutput(initial))
}

func (d *chipDriver) RequestInput(offset int) (Line, error) {
	return d.chip.RequestLine(offset, gpiod.AsInput)
}

func (d *chipDriver) Close() error {
	return d.chip.Close()
}
