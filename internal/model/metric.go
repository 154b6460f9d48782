package model

import (
	"fmt"
	"regexp"
	"time"
)

// MetricType enumerates the supported Prometheus-style metric kinds.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
	MetricTypeSummary   MetricType = "summary"
	MetricTypeEnum      MetricType = "enum"
)

// metricNameRE matches a valid Prometheus metric name.
var metricNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MetricConfig is the configuration of a single named metric.
type MetricConfig struct {
	Name        string
	Type        MetricType
	Description string
	Labels      []string
	Buckets     []float64 // histogram only, strictly sorted, unique
	States      []string  // enum only, unique
	Expiration  *time.Duration // nil means "no expiration tracking"
	Increment   bool // counter only
}

// Validate checks the invariants from spec.md §3 that are local to a single
// metric (cross-metric/cross-query invariants live in internal/config).
func (m *MetricConfig) Validate() error {
	if !metricNameRE.MatchString(m.Name) {
		return fmt.Errorf("metric %q: invalid name", m.Name)
	}
	switch m.Type {
	case MetricTypeCounter, MetricTypeGauge, MetricTypeHistogram, MetricTypeSummary, MetricTypeEnum:
	default:
		return fmt.Errorf("metric %q: unsupported type %q", m.Name, m.Type)
	}
	if m.Name == DatabaseLabel {
		return fmt.Errorf("metric %q: reserved name", m.Name)
	}
	for _, l := range m.Labels {
		if l == DatabaseLabel {
			return fmt.Errorf("metric %q: label %q is reserved", m.Name, l)
		}
	}
	if m.Type != MetricTypeHistogram && len(m.Buckets) > 0 {
		return fmt.Errorf("metric %q: buckets only valid for histogram", m.Name)
	}
	if m.Type == MetricTypeHistogram {
		for i := 1; i < len(m.Buckets); i++ {
			if m.Buckets[i] <= m.Buckets[i-1] {
				return fmt.Errorf("metric %q: buckets must be strictly sorted and unique", m.Name)
			}
		}
	}
	if m.Type != MetricTypeEnum && len(m.States) > 0 {
		return fmt.Errorf("metric %q: states only valid for enum", m.Name)
	}
	if m.Type == MetricTypeEnum {
		seen := make(map[string]bool, len(m.States))
		for _, s := range m.States {
			if seen[s] {
				return fmt.Errorf("metric %q: duplicate state %q", m.Name, s)
			}
			seen[s] = true
		}
		if len(m.States) == 0 {
			return fmt.Errorf("metric %q: enum requires at least one state", m.Name)
		}
	}
	if m.Increment && m.Type != MetricTypeCounter {
		return fmt.Errorf("metric %q: increment only valid for counter", m.Name)
	}
	return nil
}
