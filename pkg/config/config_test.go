package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
[board]
gpiochip: gpiochip0
spi_bus: 0
spi_device: 0
clock_hz: 1000000

[ads1256]
cs_pin: gpio22
drdy_pin: 17
rst_pin: 18
gain: 1
data_rate: 30000   # samples per second
vref: 5.0
ready_timeout: 500ms

[dac8532]
cs_pin: 23
vref: 5.0
`

func TestLoadString(t *testing.T) {
	cfg, err := LoadString(sampleConfig)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	if !cfg.HasSection("board") || !cfg.HasSection("ads1256") || !cfg.HasSection("dac8532") {
		t.Fatal("expected board/ads1256/dac8532 sections")
	}
	if cfg.HasSection("nonexistent") {
		t.Error("unexpected section reported present")
	}

	board, err := cfg.GetSection("board")
	if err != nil {
		t.Fatalf("GetSection(board): %v", err)
	}
	chip, err := board.Get("gpiochip")
	if err != nil || chip != "gpiochip0" {
		t.Errorf("gpiochip = %q, err %v", chip, err)
	}
	hz, err := board.GetInt("clock_hz")
	if err != nil || hz != 1000000 {
		t.Errorf("clock_hz = %d, err %v", hz, err)
	}
}

func TestTypedGetters(t *testing.T) {
	cfg, _ := LoadString(sampleConfig)
	adc, _ := cfg.GetSection("ads1256")

	vref, err := adc.GetFloat("vref")
	if err != nil || vref != 5.0 {
		t.Errorf("vref = %v, err %v", vref, err)
	}

	// Comment after the value must be stripped.
	rate, err := adc.GetInt("data_rate")
	if err != nil || rate != 30000 {
		t.Errorf("data_rate = %d, err %v", rate, err)
	}

	d, err := adc.GetDuration("ready_timeout")
	if err != nil || d != 500*time.Millisecond {
		t.Errorf("ready_timeout = %v, err %v", d, err)
	}

	if _, err := adc.GetInt("missing"); err == nil {
		t.Error("expected error for missing option without fallback")
	}
	if v, err := adc.GetInt("missing", 42); err != nil || v != 42 {
		t.Errorf("fallback = %d, err %v", v, err)
	}
}

func TestGetPin(t *testing.T) {
	cfg, _ := LoadString(sampleConfig)
	adc, _ := cfg.GetSection("ads1256")
	dac, _ := cfg.GetSection("dac8532")

	cases := []struct {
		sec    *Section
		option string
		want   int
	}{
		{adc, "cs_pin", 22},
		{adc, "drdy_pin", 17},
		{adc, "rst_pin", 18},
		{dac, "cs_pin", 23},
	}
	for _, c := range cases {
		got, err := c.sec.GetPin(c.option)
		if err != nil {
			t.Errorf("GetPin(%s): %v", c.option, err)
			continue
		}
		if got != c.want {
			t.Errorf("GetPin(%s) = %d, want %d", c.option, got, c.want)
		}
	}

	if _, err := ParsePin("gpio-3"); err == nil {
		t.Error("expected error for negative pin")
	}
	if _, err := ParsePin(""); err == nil {
		t.Error("expected error for empty pin")
	}
}

func TestGetIntWithBounds(t *testing.T) {
	cfg, _ := LoadString("[ads1256]\ngain: 64\n")
	sec, _ := cfg.GetSection("ads1256")

	minVal, maxVal := 1, 64
	if _, err := sec.GetIntWithBounds("gain", &minVal, &maxVal); err != nil {
		t.Errorf("gain within bounds rejected: %v", err)
	}
	maxVal = 32
	if _, err := sec.GetIntWithBounds("gain", &minVal, &maxVal); err == nil {
		t.Error("gain above max accepted")
	}
}

func TestUnusedOptionReporting(t *testing.T) {
	cfg, _ := LoadString("[board]\ngpiochip: gpiochip0\nspi_buss: 1\n")
	sec, _ := cfg.GetSection("board")
	sec.Get("gpiochip")

	err := cfg.CheckUnusedOptions()
	if err == nil {
		t.Fatal("expected unused option error")
	}
	if !strings.Contains(err.Error(), "spi_buss") {
		t.Errorf("error should name the typo option: %v", err)
	}
}

func TestDuplicateSectionsMerge(t *testing.T) {
	cfg, _ := LoadString("[board]\nspi_bus: 0\n[board]\nspi_bus: 1\nspi_device: 1\n")
	sec, _ := cfg.GetSection("board")
	if v, _ := sec.GetInt("spi_bus"); v != 1 {
		t.Errorf("later section should override, got %d", v)
	}
	if v, _ := sec.GetInt("spi_device"); v != 1 {
		t.Errorf("merged option missing, got %d", v)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.cfg")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.HasSection("ads1256") {
		t.Error("file config missing section")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.cfg")); err == nil {
		t.Error("expected error for missing file")
	}
}
