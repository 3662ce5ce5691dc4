// Unified error handling for the AD/DA host driver.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"errors"
	"fmt"
)

// Code classifies driver errors into the categories callers dispatch on.
type Code string

const (
	// CodeResource: a GPIO line could not be claimed or released even
	// after the release-and-retry path. Fatal; the driver instance is
	// unusable.
	CodeResource Code = "RESOURCE"

	// CodeDeviceUnavailable: the SPI bus node could not be opened
	// exclusively, or a bus transaction failed. Fatal per transaction.
	CodeDeviceUnavailable Code = "DEVICE_UNAVAILABLE"

	// CodeInit: the device rejected or did not acknowledge its
	// configuration. Fatal; initialization aborts.
	CodeInit Code = "INIT"

	// CodeConversionTimeout: the data-ready wait exceeded its bound.
	// Recoverable; the caller may retry the read.
	CodeConversionTimeout Code = "CONVERSION_TIMEOUT"

	// CodeConfig: invalid or missing configuration value.
	CodeConfig Code = "CONFIG"
)

// Error is the unified error type for the driver stack.
type Error struct {
	// Code is the error category.
	Code Code

	// Op names the failing operation ("gpio.claim", "ads1256.wait_ready", ...).
	Op string

	// Message is a human-readable description.
	Message string

	// Err wraps the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s: %s", e.Code, e.Op, e.Message)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code, operation and message.
func New(code Code, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(code Code, op string, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of err, or "" if err carries no code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err (or anything it wraps) carries the code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsTimeout reports whether err is a recoverable conversion timeout.
// All other driver errors are fatal to their operation.
func IsTimeout(err error) bool {
	return IsCode(err, CodeConversionTimeout)
}
