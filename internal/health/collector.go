// Package health scores external data sources across five dimensions and
// turns the result into the risk multiplier consumed by the budget
// manager. Sources degrade toward CRITICAL when evidence is missing; the
// subsystem assumes the worst on uncertainty.
package health

import (
	"sync"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
)

// RequestSample is one recorded request outcome.
type RequestSample struct {
	At       time.Time
	Success  bool
	TimedOut bool
	Retried  bool
}

// DataSample is one recorded data delivery.
type DataSample struct {
	At             time.Time
	DataTS         time.Time
	FieldsExpected int
	FieldsReceived int
	Empty          bool
}

// ValueSample is one recorded value of a tracked numeric field.
type ValueSample struct {
	At    time.Time
	Value float64
}

// ErrorSample is one recorded source error.
type ErrorSample struct {
	At    time.Time
	Fatal bool
}

// MetricsSnapshot is a copy of one source's samples inside the window,
// safe to read without locks.
type MetricsSnapshot struct {
	Source   string
	Now      time.Time
	Window   time.Duration
	Requests []RequestSample
	Data     []DataSample
	Values   map[string][]ValueSample
	Errors   []ErrorSample
}

type sourceMetrics struct {
	mu       sync.Mutex
	requests []RequestSample
	data     []DataSample
	values   map[string][]ValueSample
	errors   []ErrorSample
}

// MetricsCollector gathers per-source samples in bounded rolling windows.
// Recording is best-effort and never returns an error; each source has its
// own lock so busy sources do not contend.
type MetricsCollector struct {
	mu         sync.RWMutex
	sources    map[string]*sourceMetrics
	maxSamples int
	clk        clock.Clock
}

// NewMetricsCollector creates a collector whose windows keep at most
// maxSamples entries per series.
func NewMetricsCollector(maxSamples int, clk clock.Clock) *MetricsCollector {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &MetricsCollector{
		sources:    make(map[string]*sourceMetrics),
		maxSamples: maxSamples,
		clk:        clk,
	}
}

// RecordRequest records one request outcome for the source.
func (c *MetricsCollector) RecordRequest(source string, success, timedOut, retried bool) {
	s := c.source(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = appendRequest(s.requests, RequestSample{
		At:       c.clk.Now(),
		Success:  success,
		TimedOut: timedOut,
		Retried:  retried,
	}, c.maxSamples)
}

// RecordData records one data delivery with its own timestamp and field
// counts. A delivery with zero received fields counts as empty.
func (c *MetricsCollector) RecordData(source string, dataTS time.Time, fieldsExpected, fieldsReceived int) {
	s := c.source(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = appendData(s.data, DataSample{
		At:             c.clk.Now(),
		DataTS:         dataTS,
		FieldsExpected: fieldsExpected,
		FieldsReceived: fieldsReceived,
		Empty:          fieldsReceived == 0,
	}, c.maxSamples)
}

// RecordValue records one observation of a tracked numeric field.
func (c *MetricsCollector) RecordValue(source, field string, value float64) {
	s := c.source(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string][]ValueSample)
	}
	s.values[field] = appendValue(s.values[field], ValueSample{
		At:    c.clk.Now(),
		Value: value,
	}, c.maxSamples)
}

// RecordError records one source error. Fatal errors weigh heavier in the
// error-rate score than recoverable ones.
func (c *MetricsCollector) RecordError(source string, fatal bool) {
	s := c.source(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = appendError(s.errors, ErrorSample{
		At:    c.clk.Now(),
		Fatal: fatal,
	}, c.maxSamples)
}

// Sources returns the names of all sources seen so far.
func (c *MetricsCollector) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	return names
}

// Snapshot copies the source's samples newer than now-window. Samples
// older than the window are dropped from the buffers while we hold the
// lock, which keeps eviction lazy but bounded.
func (c *MetricsCollector) Snapshot(source string, window time.Duration) MetricsSnapshot {
	now := c.clk.Now()
	cutoff := now.Add(-window)

	snap := MetricsSnapshot{
		Source: source,
		Now:    now,
		Window: window,
		Values: make(map[string][]ValueSample),
	}

	s := c.source(source)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = evictRequests(s.requests, cutoff)
	s.data = evictData(s.data, cutoff)
	s.errors = evictErrors(s.errors, cutoff)
	for field := range s.values {
		s.values[field] = evictValues(s.values[field], cutoff)
	}

	snap.Requests = append([]RequestSample(nil), s.requests...)
	snap.Data = append([]DataSample(nil), s.data...)
	snap.Errors = append([]ErrorSample(nil), s.errors...)
	for field, samples := range s.values {
		snap.Values[field] = append([]ValueSample(nil), samples...)
	}

	return snap
}

func (c *MetricsCollector) source(name string) *sourceMetrics {
	c.mu.RLock()
	s, ok := c.sources[name]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.sources[name]; ok {
		return s
	}
	s = &sourceMetrics{values: make(map[string][]ValueSample)}
	c.sources[name] = s
	return s
}

func appendRequest(buf []RequestSample, s RequestSample, max int) []RequestSample {
	buf = append(buf, s)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}

func appendData(buf []DataSample, s DataSample, max int) []DataSample {
	buf = append(buf, s)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}

func appendValue(buf []ValueSample, s ValueSample, max int) []ValueSample {
	buf = append(buf, s)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}

func appendError(buf []ErrorSample, s ErrorSample, max int) []ErrorSample {
	buf = append(buf, s)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}

func evictRequests(buf []RequestSample, cutoff time.Time) []RequestSample {
	i := 0
	for i < len(buf) && buf[i].At.Before(cutoff) {
		i++
	}
	return buf[i:]
}

func evictData(buf []DataSample, cutoff time.Time) []DataSample {
	i := 0
	for i < len(buf) && buf[i].At.Before(cutoff) {
		i++
	}
	return buf[i:]
}

func evictValues(buf []ValueSample, cutoff time.Time) []ValueSample {
	i := 0
	for i < len(buf) && buf[i].At.Before(cutoff) {
		i++
	}
	return buf[i:]
}

func evictErrors(buf []ErrorSample, cutoff time.Time) []ErrorSample {
	i := 0
	for i < len(buf) && buf[i].At.Before(cutoff) {
		i++
	}
	return buf[i:]
}
