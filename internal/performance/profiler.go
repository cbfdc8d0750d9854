package performance

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Profiler tracks per-phase timings of the simulation tick
type Profiler struct {
	mu        sync.RWMutex
	metrics   map[string]*Metric
	enabled   bool
	startTime time.Time
	budget    time.Duration
	overruns  int64
}

// Metric tracks statistics for a specific phase
type Metric struct {
	Name      string
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
	LastTime  time.Duration
	LastCall  time.Time
}

// Operation represents a single timed phase
type Operation struct {
	profiler *Profiler
	name     string
	start    time.Time
}

// NewProfiler creates a new profiler. A non-zero budget counts every
// recording of TickMetric that exceeds it as an overrun.
func NewProfiler(enabled bool, budget time.Duration) *Profiler {
	return &Profiler{
		metrics:   make(map[string]*Metric),
		enabled:   enabled,
		startTime: time.Now(),
		budget:    budget,
	}
}

// TickMetric is the name under which whole-tick durations are recorded
const TickMetric = "tick"

// Start begins timing a phase
func (p *Profiler) Start(name string) *Operation {
	if p == nil || !p.IsEnabled() {
		return nil
	}
	return &Operation{
		profiler: p,
		name:     name,
		start:    time.Now(),
	}
}

// End completes timing a phase and records the metric
func (o *Operation) End() time.Duration {
	if o == nil {
		return 0
	}
	duration := time.Since(o.start)
	o.profiler.Record(o.name, duration)
	return duration
}

// Record directly records a duration for a phase
func (p *Profiler) Record(name string, duration time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}

	metric, exists := p.metrics[name]
	if !exists {
		metric = &Metric{
			Name:    name,
			MinTime: duration,
			MaxTime: duration,
		}
		p.metrics[name] = metric
	}

	metric.Count++
	metric.TotalTime += duration
	metric.LastTime = duration
	metric.LastCall = time.Now()

	if duration < metric.MinTime {
		metric.MinTime = duration
	}
	if duration > metric.MaxTime {
		metric.MaxTime = duration
	}
	if name == TickMetric && p.budget > 0 && duration > p.budget {
		p.overruns++
	}
}

// GetMetric returns a copy of the statistics for a phase, or nil
func (p *Profiler) GetMetric(name string) *Metric {
	p.mu.RLock()
	defer p.mu.RUnlock()
	metric, ok := p.metrics[name]
	if !ok {
		return nil
	}
	clone := *metric
	return &clone
}

// GetMetrics returns copies of all metrics sorted by name
func (p *Profiler) GetMetrics() []Metric {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]Metric, 0, len(p.metrics))
	for _, metric := range p.metrics {
		result = append(result, *metric)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Overruns returns how many ticks exceeded the budget
func (p *Profiler) Overruns() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.overruns
}

// AverageTime returns the average time for a metric
func (m *Metric) AverageTime() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.Count)
}

// Reset clears all metrics
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = make(map[string]*Metric)
	p.overruns = 0
	p.startTime = time.Now()
}

// Report generates a human-readable report
func (p *Profiler) Report() string {
	metrics := p.GetMetrics()
	if len(metrics) == 0 {
		return "No performance metrics recorded"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Tick Report (since %s) ===\n", p.started().Format(time.RFC3339))
	fmt.Fprintf(&b, "%-24s %10s %10s %10s %10s %10s\n", "Phase", "Count", "Avg", "Min", "Max", "Last")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, metric := range metrics {
		fmt.Fprintf(&b, "%-24s %10d %10s %10s %10s %10s\n",
			metric.Name,
			metric.Count,
			metric.AverageTime().Round(time.Microsecond),
			metric.MinTime.Round(time.Microsecond),
			metric.MaxTime.Round(time.Microsecond),
			metric.LastTime.Round(time.Microsecond),
		)
	}
	fmt.Fprintf(&b, "\nOverruns: %d  Total runtime: %s\n", p.Overruns(), time.Since(p.started()).Round(time.Second))
	return b.String()
}

// LogReport writes one structured event per phase
func (p *Profiler) LogReport(logger zerolog.Logger) {
	for _, metric := range p.GetMetrics() {
		logger.Info().
			Str("phase", metric.Name).
			Int64("count", metric.Count).
			Dur("avg", metric.AverageTime()).
			Dur("max", metric.MaxTime).
			Msg("tick profile")
	}
	if n := p.Overruns(); n > 0 {
		logger.Warn().Int64("overruns", n).Msg("ticks exceeded budget")
	}
}

// MetricJSON is the wire form of a metric, durations in microseconds
type MetricJSON struct {
	Name     string    `json:"name"`
	Count    int64     `json:"count"`
	TotalUS  int64     `json:"total_us"`
	AvgUS    int64     `json:"avg_us"`
	MinUS    int64     `json:"min_us"`
	MaxUS    int64     `json:"max_us"`
	LastUS   int64     `json:"last_us"`
	LastCall time.Time `json:"last_call"`
}

// ReportJSON is the wire form of the whole report
type ReportJSON struct {
	StartTime time.Time    `json:"start_time"`
	RuntimeMS int64        `json:"runtime_ms"`
	Overruns  int64        `json:"overruns"`
	Metrics   []MetricJSON `json:"metrics"`
}

// JSONReport generates a JSON report
func (p *Profiler) JSONReport() ([]byte, error) {
	report := ReportJSON{
		StartTime: p.started(),
		RuntimeMS: time.Since(p.started()).Milliseconds(),
		Overruns:  p.Overruns(),
	}
	for _, metric := range p.GetMetrics() {
		report.Metrics = append(report.Metrics, MetricJSON{
			Name:     metric.Name,
			Count:    metric.Count,
			TotalUS:  metric.TotalTime.Microseconds(),
			AvgUS:    metric.AverageTime().Microseconds(),
			MinUS:    metric.MinTime.Microseconds(),
			MaxUS:    metric.MaxTime.Microseconds(),
			LastUS:   metric.LastTime.Microseconds(),
			LastCall: metric.LastCall,
		})
	}
	return json.MarshalIndent(report, "", "  ")
}

func (p *Profiler) started() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.startTime
}

// Enable enables profiling
func (p *Profiler) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
}

// Disable disables profiling
func (p *Profiler) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
}

// IsEnabled returns whether profiling is enabled
func (p *Profiler) IsEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}
