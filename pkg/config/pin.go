package config

import (
	"strconv"
	"strings"
)

// ParsePin parses a GPIO pin specification into a chip line offset.
// Accepted forms: "18", "gpio18", "GPIO18".
func ParsePin(desc string) (int, error) {
	d := strings.TrimSpace(desc)
	if d == "" {
		return 0, NewConfigError("", "", "empty pin specification")
	}
	lower := strings.ToLower(d)
	lower = strings.TrimPrefix(lower, "gpio")
	offset, err := strconv.Atoi(lower)
	if err != nil || offset < 0 {
		return 0, NewConfigError("", "", "invalid pin specification: "+desc)
	}
	return offset, nil
}

// GetPin returns a GPIO line offset option value from the section.
func (s *Section) GetPin(option string, fallback ...int) (int, error) {
	key := strings.ToLower(option)
	if v, ok := s.options[key]; ok {
		s.markAccessed(option)
		offset, err := ParsePin(v)
		if err != nil {
			return 0, ErrInvalidValue(s.name, option, v, "pin (e.g. 18 or gpio18)")
		}
		return offset, nil
	}
	if len(fallback) > 0 {
		s.markAccessed(option)
		return fallback[0], nil
	}
	return 0, ErrMissingOption(s.name, option)
}
