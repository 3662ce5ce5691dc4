// Acquisition metrics for the AD/DA board.
//
// Tracks sample throughput against the converter's programmed rate so
// a slow bus or an overloaded host shows up as lost efficiency rather
// than silently stretched scan intervals.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Acquisition aggregates the board metrics and registers them in one
// registry.
type Acquisition struct {
	SamplesTotal   *Counter
	ScansTotal     *Counter
	ScanTime       *Histogram
	ChannelVoltage *Gauge
	DACVoltage     *Gauge
	BusTransfers   *Counter
	ErrorsTotal    *Counter
	AchievedSPS    *Gauge
	TheoreticalSPS *Gauge
	Efficiency     *Gauge
	Uptime         *Gauge

	registry *Registry

	mu      sync.Mutex
	start   time.Time
	samples uint64
}

// NewAcquisition creates the metric set. theoreticalSPS is the
// programmed converter rate used as the efficiency baseline.
func NewAcquisition(theoreticalSPS float64) *Acquisition {
	a := &Acquisition{
		SamplesTotal: NewCounter("adda_samples_total",
			"Conversions read from the ADC"),
		ScansTotal: NewCounter("adda_scans_total",
			"Completed multi-channel scans"),
		ScanTime: NewHistogram("adda_scan_seconds",
			"Wall time of one full channel scan", DefaultBuckets()),
		ChannelVoltage: NewGauge("adda_channel_volts",
			"Last converted voltage per ADC channel"),
		DACVoltage: NewGauge("adda_dac_volts",
			"Last programmed voltage per DAC output"),
		BusTransfers: NewCounter("adda_bus_transfers_total",
			"Framed SPI transactions on the shared bus"),
		ErrorsTotal: NewCounter("adda_errors_total",
			"Driver errors by code"),
		AchievedSPS: NewGauge("adda_achieved_sps",
			"Measured single-channel sample rate"),
		TheoreticalSPS: NewGauge("adda_theoretical_sps",
			"Programmed converter output rate"),
		Efficiency: NewGauge("adda_sampling_efficiency",
			"Achieved rate as a fraction of the programmed rate"),
		Uptime: NewGauge("adda_uptime_seconds",
			"Time since the board was opened"),

		registry: NewRegistry(),
		start:    time.Now(),
	}

	a.TheoreticalSPS.Set(nil, theoreticalSPS)
	for _, m := range []Metric{
		a.SamplesTotal, a.ScansTotal, a.ScanTime, a.ChannelVoltage,
		a.DACVoltage, a.BusTransfers, a.ErrorsTotal, a.AchievedSPS,
		a.TheoreticalSPS, a.Efficiency, a.Uptime,
	} {
		a.registry.Register(m)
	}
	return a
}

// RecordScan accounts one completed scan of n channels taking d.
func (a *Acquisition) RecordScan(d time.Duration, n int) {
	a.ScansTotal.Inc(nil)
	a.SamplesTotal.Add(nil, float64(n))
	a.ScanTime.Observe(d.Seconds())

	a.mu.Lock()
	a.samples += uint64(n)
	samples := a.samples
	elapsed := time.Since(a.start).Seconds()
	a.mu.Unlock()

	if elapsed <= 0 {
		return
	}
	achieved := float64(samples) / elapsed
	a.AchievedSPS.Set(nil, achieved)
	if sps := a.TheoreticalSPS.Get(nil); sps > 0 {
		a.Efficiency.Set(nil, achieved/sps)
	}
	a.Uptime.Set(nil, elapsed)
}

// RecordChannel stores the last converted voltage for a channel.
func (a *Acquisition) RecordChannel(channel int, volts float64) {
	a.ChannelVoltage.Set(Labels{"channel": strconv.Itoa(channel)}, volts)
}

// RecordDAC stores the last programmed voltage for an output.
func (a *Acquisition) RecordDAC(output string, volts float64) {
	a.DACVoltage.Set(Labels{"output": output}, volts)
}

// RecordError counts one driver error under its code.
func (a *Acquisition) RecordError(code string) {
	a.ErrorsTotal.Inc(Labels{"code": code})
}

// Gather renders the metric set in Prometheus text format.
func (a *Acquisition) Gather() string {
	return a.registry.Gather()
}
