// adda-monitor runs a continuous acquisition loop on the AD/DA HAT
// and serves live readings over HTTP and WebSocket.
//
// Every cycle it scans the eight ADC channels, then mirrors channel 0
// onto DAC output A and its complement (vref - v) onto output B, the
// classic loopback demo for the board: wire A back to AIN0 and watch
// the two outputs chase each other.
//
// Usage:
//
//	adda-monitor [options]
//
// Options:
//
//	-config string      Board config file (optional)
//	-addr string        HTTP listen address (default from config, ":9160")
//	-interval duration  Scan interval (default: 100ms)
//	-no-dac             Skip the DAC mirror writes
//
// Endpoints: /status, /metrics, /health, /stream (WebSocket).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"adda-hat/pkg/board"
	"adda-hat/pkg/config"
	"adda-hat/pkg/dac8532"
	"adda-hat/pkg/log"
	"adda-hat/pkg/monitor"
)

// boardSource adapts the board to the monitor's snapshot interface.
type boardSource struct {
	mu       sync.Mutex
	channels []float64
	outputs  map[string]float64
	scans    float64
	samples  float64
	errs     float64
}

func (s *boardSource) record(channels []float64, outA, outB float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels[:0], channels...)
	s.outputs = map[string]float64{"A": outA, "B": outB}
	s.scans++
	s.samples += float64(len(channels))
}

func (s *boardSource) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs++
}

func (s *boardSource) Snapshot() monitor.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := monitor.Status{
		Time:     time.Now(),
		Channels: append([]float64(nil), s.channels...),
		Outputs:  make(map[string]float64, len(s.outputs)),
		Scans:    s.scans,
		Samples:  s.samples,
		Errors:   s.errs,
	}
	for k, v := range s.outputs {
		st.Outputs[k] = v
	}
	return st
}

func main() {
	configFile := flag.String("config", "", "Board config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config, default :9160)")
	interval := flag.Duration("interval", 100*time.Millisecond, "Scan interval")
	noDAC := flag.Bool("no-dac", false, "Skip the DAC mirror writes")
	flag.Parse()

	logger := log.GetLogger("adda-monitor")

	opts := board.DefaultOptions()
	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
			os.Exit(1)
		}
		if opts, err = board.OptionsFromConfig(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "resolving config: %v\n", err)
			os.Exit(1)
		}
	}

	b, err := board.Open(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening board: %v\n", err)
		os.Exit(1)
	}
	defer b.Destroy()

	listen := opts.MonitorAddr
	if *addr != "" {
		listen = *addr
	}
	src := &boardSource{}
	srv := monitor.New(monitor.Config{
		Addr:    listen,
		Source:  src,
		Metrics: b.Metrics,
	})
	go func() {
		if err := srv.Start(); err != nil {
			logger.WithError(err).Error("monitor server")
		}
	}()
	defer srv.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	vref := b.DAC().VRef()
	logger.WithField("interval", interval.String()).Info("acquisition loop running")
	for {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("shutting down")
			return
		case <-ticker.C:
			volts, err := b.Scan()
			if err != nil {
				src.recordError()
				logger.WithError(err).Warn("scan failed")
				continue
			}

			outA, outB := 0.0, 0.0
			if !*noDAC {
				outA = volts[0]
				outB = vref - volts[0]
				if err := b.SetOutput(dac8532.ChannelA, outA); err != nil {
					src.recordError()
					logger.WithError(err).Warn("DAC A write failed")
				}
				if err := b.SetOutput(dac8532.ChannelB, outB); err != nil {
					src.recordError()
					logger.WithError(err).Warn("DAC B write failed")
				}
			}
			src.record(volts, outA, outB)
		}
	}
}
