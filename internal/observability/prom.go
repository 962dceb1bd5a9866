package observability

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Prometheus text exposition (version 0.0.4) for the few series this service exports.
// Label sets are written in sorted order so scrapes are stable.

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

type series struct {
	name   string
	help   string
	kind   string
	labels []string
}

func (s series) header(w io.Writer) error {
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", s.name, s.help, s.name, s.kind)
	return err
}

// key renders values against the series labels. Missing values read "unknown".
func (s series) key(values []string) string {
	if len(s.labels) == 0 {
		return ""
	}
	pairs := make([]string, len(s.labels))
	for i, l := range s.labels {
		v := "unknown"
		if i < len(values) {
			v = values[i]
		}
		pairs[i] = l + `="` + labelEscaper.Replace(v) + `"`
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// withBound appends the histogram "le" label to a rendered label set.
func withBound(key, le string) string {
	if key == "" {
		return `{le="` + le + `"}`
	}
	return strings.TrimSuffix(key, "}") + `,le="` + le + `"}`
}

type CounterVec struct {
	series
	mu     sync.Mutex
	counts map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{
		series: series{name: name, help: help, kind: "counter", labels: labels},
		counts: map[string]float64{},
	}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	k := c.key(values)
	c.mu.Lock()
	c.counts[k]++
	c.mu.Unlock()
}

// Value returns the current count for one label set.
func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	k := c.key(values)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[k]
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if err := c.header(w); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range slices.Sorted(maps.Keys(c.counts)) {
		if _, err := fmt.Fprintf(w, "%s%s %g\n", c.name, k, c.counts[k]); err != nil {
			return err
		}
	}
	return nil
}

// Gauge is an unlabeled up/down count, used for in-flight requests.
type Gauge struct {
	series
	n atomic.Int64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{series: series{name: name, help: help, kind: "gauge"}}
}

func (g *Gauge) Inc() {
	if g != nil {
		g.n.Add(1)
	}
}

func (g *Gauge) Dec() {
	if g != nil {
		g.n.Add(-1)
	}
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if err := g.header(w); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s %d\n", g.name, g.n.Load())
	return err
}

var defaultBounds = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

type HistogramVec struct {
	series
	bounds []float64
	mu     sync.Mutex
	obs    map[string]*observations
}

// observations holds per-bucket (not cumulative) counts; the last slot is +Inf.
type observations struct {
	perBucket []uint64
	sum       float64
	count     uint64
}

// NewHistogramVec takes bounds in ascending order; nil selects request-latency defaults.
func NewHistogramVec(name, help string, labels []string, bounds []float64) *HistogramVec {
	if len(bounds) == 0 {
		bounds = defaultBounds
	}
	return &HistogramVec{
		series: series{name: name, help: help, kind: "histogram", labels: labels},
		bounds: bounds,
		obs:    map[string]*observations{},
	}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	k := h.key(values)
	h.mu.Lock()
	defer h.mu.Unlock()
	o := h.obs[k]
	if o == nil {
		o = &observations{perBucket: make([]uint64, len(h.bounds)+1)}
		h.obs[k] = o
	}
	o.perBucket[sort.SearchFloat64s(h.bounds, v)]++
	o.sum += v
	o.count++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if err := h.header(w); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range slices.Sorted(maps.Keys(h.obs)) {
		o := h.obs[k]
		var cum uint64
		for i, n := range o.perBucket {
			cum += n
			le := "+Inf"
			if i < len(h.bounds) {
				le = fmt.Sprintf("%g", h.bounds[i])
			}
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withBound(k, le), cum); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %g\n%s_count%s %d\n", h.name, k, o.sum, h.name, k, o.count); err != nil {
			return err
		}
	}
	return nil
}
