// adda-test is a command-line tool for checking an AD/DA HAT.
// It verifies the SPI link and chip identification, reads the ADC
// channels and exercises the DAC outputs.
//
// Usage:
//
//	adda-test [options]
//
// Options:
//
//	-config string    Board config file (optional)
//	-chip string      GPIO character device (default: gpiochip0)
//	-spi string       spidev node (default: /dev/spidev0.0)
//	-test string      Test to run: "id", "scan", "diff", "dac", "selfcal", "all" (default: "id")
//	-count int        Scan repetitions for the scan tests (default: 1)
//	-volts float      Voltage for the dac test (default: 2.5)
//
// Examples:
//
//	# Verify the converter answers with its part id
//	adda-test -test id
//
//	# Ten full single-ended scans with voltages
//	adda-test -test scan -count 10
//
//	# Drive both DAC outputs
//	adda-test -test dac -volts 1.25
//
//	# Pi 5 wiring from a config file
//	adda-test -config board.cfg -test all
package main

import (
	"flag"
	"fmt"
	"os"

	"adda-hat/pkg/board"
	"adda-hat/pkg/config"
	"adda-hat/pkg/dac8532"
	"adda-hat/pkg/log"
)

func main() {
	configFile := flag.String("config", "", "Board config file")
	chip := flag.String("chip", "", "GPIO character device")
	spiDev := flag.String("spi", "", "spidev node")
	test := flag.String("test", "id", "Test to run: id, scan, diff, dac, selfcal, all")
	count := flag.Int("count", 1, "Scan repetitions")
	volts := flag.Float64("volts", 2.5, "Voltage for the dac test")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *verbose {
		l := log.New("adda")
		l.SetLevel(log.DEBUG)
		log.SetDefaultLogger(l)
	}

	opts := board.DefaultOptions()
	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			fail("loading config: %v", err)
		}
		if opts, err = board.OptionsFromConfig(cfg); err != nil {
			fail("resolving config: %v", err)
		}
	}
	if *chip != "" {
		opts.GPIOChip = *chip
	}
	if *spiDev != "" {
		opts.SPIPath = *spiDev
	}

	b, err := board.Open(opts)
	if err != nil {
		fail("opening board: %v", err)
	}
	defer b.Destroy()

	ok := true
	run := func(name string, fn func(*board.Board) error) {
		if *test != name && *test != "all" {
			return
		}
		fmt.Printf("=== %s ===\n", name)
		if err := fn(b); err != nil {
			fmt.Printf("FAIL: %v\n", err)
			ok = false
			return
		}
		fmt.Println("OK")
	}

	run("id", testID)
	run("scan", func(b *board.Board) error { return testScan(b, *count) })
	run("diff", func(b *board.Board) error { return testDiff(b, *count) })
	run("dac", func(b *board.Board) error { return testDAC(b, *volts) })
	run("selfcal", testSelfCal)

	if !ok {
		os.Exit(1)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func testID(b *board.Board) error {
	id, err := b.Converter().ReadChipID()
	if err != nil {
		return err
	}
	fmt.Printf("chip id: %d\n", id)
	return nil
}

func testScan(b *board.Board, count int) error {
	for i := 0; i < count; i++ {
		volts, err := b.Scan()
		if err != nil {
			return err
		}
		for ch, v := range volts {
			fmt.Printf("  ch%d: %8.5f V\n", ch, v)
		}
	}
	fmt.Print(b.Metrics.Gather())
	return nil
}

func testDiff(b *board.Board, count int) error {
	adc := b.Converter()
	for i := 0; i < count; i++ {
		raw, err := adc.ReadAllDifferential()
		if err != nil {
			return err
		}
		for pair, r := range raw {
			fmt.Printf("  pair%d (AIN%d-AIN%d): %8.5f V\n",
				pair, 2*pair, 2*pair+1, adc.Voltage(r))
		}
	}
	return nil
}

func testDAC(b *board.Board, volts float64) error {
	for _, ch := range []dac8532.Channel{dac8532.ChannelA, dac8532.ChannelB} {
		if err := b.SetOutput(ch, volts); err != nil {
			return err
		}
		fmt.Printf("  output %s: %.3f V\n", ch, volts)
	}
	return nil
}

func testSelfCal(b *board.Board) error {
	return b.Converter().SelfCal()
}
