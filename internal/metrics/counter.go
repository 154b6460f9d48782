package metrics

import (
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// settableCounterVec implements a counter metric whose value is set
// directly rather than only added to, used for a user metric configured
// with increment=false (spec.md §4.4). client_golang's CounterVec only
// exposes Inc/Add, so this keeps its own value per label set and emits it
// through prometheus.NewConstMetric, the way the teacher's metric.go
// writes a raw dto.Counter value rather than going through
// prometheus.Counter.Add.
type settableCounterVec struct {
	desc       *prometheus.Desc
	labelNames []string

	mu     sync.Mutex
	values map[string]counterEntry
}

type counterEntry struct {
	labelValues []string
	value       float64
}

func newSettableCounterVec(opts prometheus.Opts, labelNames []string) *settableCounterVec {
	return &settableCounterVec{
		desc:       prometheus.NewDesc(opts.Name, opts.Help, labelNames, nil),
		labelNames: labelNames,
		values:     make(map[string]counterEntry),
	}
}

func (v *settableCounterVec) Describe(ch chan<- *prometheus.Desc) { ch <- v.desc }

func (v *settableCounterVec) Collect(ch chan<- prometheus.Metric) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range v.values {
		m, err := prometheus.NewConstMetric(v.desc, prometheus.CounterValue, e.value, e.labelValues...)
		if err == nil {
			ch <- m
		}
	}
}

func (v *settableCounterVec) set(labels prometheus.Labels, value float64) error {
	key, ordered, err := v.orderedValues(labels)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.values[key] = counterEntry{labelValues: ordered, value: value}
	v.mu.Unlock()
	return nil
}

func (v *settableCounterVec) delete(labels prometheus.Labels) bool {
	key, _, err := v.orderedValues(labels)
	if err != nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.values[key]; ok {
		delete(v.values, key)
		return true
	}
	return false
}

func (v *settableCounterVec) orderedValues(labels prometheus.Labels) (string, []string, error) {
	ordered := make([]string, len(v.labelNames))
	for i, name := range v.labelNames {
		val, ok := labels[name]
		if !ok {
			return "", nil, fmt.Errorf("metric: missing value for label %q", name)
		}
		ordered[i] = val
	}
	return strings.Join(ordered, "\xff"), ordered, nil
}
