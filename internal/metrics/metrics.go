// Package metrics is a small Prometheus text-exposition registry: plain
// fmt.Fprintf lines with "# HELP"/"# TYPE" preambles, no client library.
// Every component (guard, mesh router, store, gateway) registers its own
// series under one /metrics endpoint.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Registry collects named counters, gauges, and histograms and renders them
// in Prometheus text exposition format.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

type labelKey string

func keyFor(labels map[string]string) labelKey {
	if len(labels) == 0 {
		return ""
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%s=%q,", n, labels[n])
	}
	return labelKey(b.String())
}

type Counter struct {
	help      string
	mu        sync.Mutex
	values    map[labelKey]float64
	labelSets map[labelKey]map[string]string
}

type Gauge struct {
	help      string
	mu        sync.Mutex
	values    map[labelKey]float64
	labelSets map[labelKey]map[string]string
}

type Histogram struct {
	help      string
	buckets   []float64
	mu        sync.Mutex
	counts    map[labelKey][]int64 // parallel to buckets; the +Inf bucket is read from totals
	sums      map[labelKey]float64
	totals    map[labelKey]int64
	labelSets map[labelKey]map[string]string
}

// Counter returns (creating if absent) the named counter.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[name]
	if !ok {
		c = &Counter{help: help, values: make(map[labelKey]float64), labelSets: make(map[labelKey]map[string]string)}
		r.counters[name] = c
	}
	return c
}

// Inc increments the counter series identified by labels by 1.
func (c *Counter) Inc(labels map[string]string) { c.Add(1, labels) }

// Add adds delta to the counter series identified by labels.
func (c *Counter) Add(delta float64, labels map[string]string) {
	k := keyFor(labels)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[k] += delta
	c.labelSets[k] = labels
}

// Gauge returns (creating if absent) the named gauge.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gauges[name]
	if !ok {
		g = &Gauge{help: help, values: make(map[labelKey]float64), labelSets: make(map[labelKey]map[string]string)}
		r.gauges[name] = g
	}
	return g
}

// Set sets the gauge series identified by labels to v.
func (g *Gauge) Set(v float64, labels map[string]string) {
	k := keyFor(labels)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[k] = v
	g.labelSets[k] = labels
}

// DefaultLatencyBuckets matches the common web-latency bucket set (in
// seconds), used for http_request_duration_seconds and
// db_query_duration_seconds.
var DefaultLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Histogram returns (creating if absent) the named histogram with the given
// bucket boundaries.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histograms[name]
	if !ok {
		h = &Histogram{
			help:      help,
			buckets:   buckets,
			counts:    make(map[labelKey][]int64),
			sums:      make(map[labelKey]float64),
			totals:    make(map[labelKey]int64),
			labelSets: make(map[labelKey]map[string]string),
		}
		r.histograms[name] = h
	}
	return h
}

// Observe records one sample in the histogram series identified by labels.
func (h *Histogram) Observe(v float64, labels map[string]string) {
	k := keyFor(labels)
	h.mu.Lock()
	defer h.mu.Unlock()
	counts, ok := h.counts[k]
	if !ok {
		counts = make([]int64, len(h.buckets))
		h.counts[k] = counts
		h.labelSets[k] = labels
	}
	for i, b := range h.buckets {
		if v <= b {
			counts[i]++
		}
	}
	h.sums[k] += v
	h.totals[k]++
}

// WriteTo renders every registered series in Prometheus text exposition
// format 0.0.4.
func (r *Registry) WriteTo(w io.Writer) {
	r.mu.Lock()
	counters := make(map[string]*Counter, len(r.counters))
	gauges := make(map[string]*Gauge, len(r.gauges))
	histograms := make(map[string]*Histogram, len(r.histograms))
	names := make([]string, 0, len(r.counters)+len(r.gauges)+len(r.histograms))
	for n, c := range r.counters {
		counters[n] = c
		names = append(names, "c:"+n)
	}
	for n, g := range r.gauges {
		gauges[n] = g
		names = append(names, "g:"+n)
	}
	for n, h := range r.histograms {
		histograms[n] = h
		names = append(names, "h:"+n)
	}
	sort.Strings(names)
	r.mu.Unlock()

	for _, tagged := range names {
		kind, name := tagged[:1], tagged[2:]
		switch kind {
		case "c":
			writeCounter(w, name, counters[name])
		case "g":
			writeGauge(w, name, gauges[name])
		case "h":
			writeHistogram(w, name, histograms[name])
		}
	}
}

func writeCounter(w io.Writer, name string, c *Counter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(w, "# HELP %s %s\n", name, c.help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	for k, v := range c.values {
		fmt.Fprintf(w, "%s%s %v\n", name, labelSuffix(c.labelSets[k]), v)
	}
}

func writeGauge(w io.Writer, name string, g *Gauge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fmt.Fprintf(w, "# HELP %s %s\n", name, g.help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	for k, v := range g.values {
		fmt.Fprintf(w, "%s%s %v\n", name, labelSuffix(g.labelSets[k]), v)
	}
}

func writeHistogram(w io.Writer, name string, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(w, "# HELP %s %s\n", name, h.help)
	fmt.Fprintf(w, "# TYPE %s histogram\n", name)
	for k, counts := range h.counts {
		base := h.labelSets[k]
		for i, b := range h.buckets {
			fmt.Fprintf(w, "%s_bucket%s %d\n", name, labelSuffixWith(base, "le", fmt.Sprintf("%v", b)), counts[i])
		}
		fmt.Fprintf(w, "%s_bucket%s %d\n", name, labelSuffixWith(base, "le", "+Inf"), h.totals[k])
		fmt.Fprintf(w, "%s_sum%s %v\n", name, labelSuffix(base), h.sums[k])
		fmt.Fprintf(w, "%s_count%s %d\n", name, labelSuffix(base), h.totals[k])
	}
}

func labelSuffix(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	names := make([]string, 0, len(labels))
	for n := range labels {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s=%q", n, labels[n]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func labelSuffixWith(labels map[string]string, extraKey, extraVal string) string {
	merged := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		merged[k] = v
	}
	merged[extraKey] = extraVal
	return labelSuffix(merged)
}
