// Metrics primitives with Prometheus text output.
//
// Counter: monotonically increasing values
// Gauge: values that can go up and down
// Histogram: distribution of observations in buckets
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Labels are metric labels as key-value pairs.
type Labels map[string]string

func labelKey(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	return sb.String()
}

func formatLabels(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%q", k, labels[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is implemented by every metric type.
type Metric interface {
	Name() string
	Write(sb *strings.Builder)
}

type series struct {
	labels Labels
	value  float64
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name string
	help string
	mu   sync.Mutex
	vals map[string]*series
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help, vals: make(map[string]*series)}
}

func (c *Counter) Name() string { return c.name }

// Inc increments the counter by 1.
func (c *Counter) Inc(labels Labels) {
	c.Add(labels, 1)
}

// Add increments the counter by delta.
func (c *Counter) Add(labels Labels, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := labelKey(labels)
	s, ok := c.vals[key]
	if !ok {
		s = &series{labels: labels}
		c.vals[key] = s
	}
	s.value += delta
}

// Get returns the current value for a label set.
func (c *Counter) Get(labels Labels) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.vals[labelKey(labels)]; ok {
		return s.value
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	writeHeader(sb, c.name, c.help, "counter")
	for _, s := range sortedSeries(c.vals) {
		sb.WriteString(c.name)
		sb.WriteString(formatLabels(s.labels))
		sb.WriteByte(' ')
		sb.WriteString(formatFloat(s.value))
		sb.WriteByte('\n')
	}
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	name string
	help string
	mu   sync.Mutex
	vals map[string]*series
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help, vals: make(map[string]*series)}
}

func (g *Gauge) Name() string { return g.name }

// Set sets the gauge for a label set.
func (g *Gauge) Set(labels Labels, value float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := labelKey(labels)
	s, ok := g.vals[key]
	if !ok {
		s = &series{labels: labels}
		g.vals[key] = s
	}
	s.value = value
}

// Get returns the current value for a label set.
func (g *Gauge) Get(labels Labels) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.vals[labelKey(labels)]; ok {
		return s.value
	}
	return 0
}

func (g *Gauge) Write(sb *strings.Builder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	writeHeader(sb, g.name, g.help, "gauge")
	for _, s := range sortedSeries(g.vals) {
		sb.WriteString(g.name)
		sb.WriteString(formatLabels(s.labels))
		sb.WriteByte(' ')
		sb.WriteString(formatFloat(s.value))
		sb.WriteByte('\n')
	}
}

// Histogram tracks the distribution of observations.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	count   uint64
	sum     float64
}

// NewHistogram creates a histogram with the given bucket bounds.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	return &Histogram{
		name:    name,
		help:    help,
		buckets: sorted,
		counts:  make([]uint64, len(sorted)),
	}
}

// DefaultBuckets suits scan and transfer latencies.
func DefaultBuckets() []float64 {
	return []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}
}

func (h *Histogram) Name() string { return h.name }

// Observe records one value.
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

func (h *Histogram) Write(sb *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	writeHeader(sb, h.name, h.help, "histogram")
	for i, bound := range h.buckets {
		fmt.Fprintf(sb, "%s_bucket{le=%q} %d\n", h.name, formatFloat(bound), h.counts[i])
	}
	fmt.Fprintf(sb, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(sb, "%s_sum %s\n", h.name, formatFloat(h.sum))
	fmt.Fprintf(sb, "%s_count %d\n", h.name, h.count)
}

func writeHeader(sb *strings.Builder, name, help, typ string) {
	sb.WriteString("# HELP ")
	sb.WriteString(name)
	sb.WriteByte(' ')
	sb.WriteString(help)
	sb.WriteByte('\n')
	sb.WriteString("# TYPE ")
	sb.WriteString(name)
	sb.WriteByte(' ')
	sb.WriteString(typ)
	sb.WriteByte('\n')
}

func sortedSeries(vals map[string]*series) []*series {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*series, len(keys))
	for i, k := range keys {
		out[i] = vals[k]
	}
	return out
}

// Registry holds a set of metrics for export.
type Registry struct {
	mu      sync.Mutex
	metrics []Metric
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a metric to the registry.
func (r *Registry) Register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

// Gather renders all registered metrics in Prometheus text format.
func (r *Registry) Gather() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder
	for _, m := range r.metrics {
		m.Write(&sb)
	}
	return sb.String()
}
