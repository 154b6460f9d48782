// Package metrics adapts query_exporter's metric model onto
// client_golang's prometheus.Registry, the way metrics.py wraps the
// prometheus_client library: metrics are declared once from
// model.MetricConfig and then updated by label set as query results come
// in.
package metrics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/queryexporter/query-exporter/internal/model"
)

// Registry holds every declared metric, typed by model.MetricType, and
// exposes label-keyed update operations.
type Registry struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	labelNames map[string][]string
	counters       map[string]*prometheus.CounterVec
	directCounters map[string]*settableCounterVec
	gauges         map[string]*prometheus.GaugeVec
	histograms     map[string]*prometheus.HistogramVec
	summaries      map[string]*prometheus.SummaryVec
	enums          map[string]*enumVec
}

// New creates an empty Registry backed by a fresh prometheus.Registry.
func New() *Registry {
	return &Registry{
		reg:            prometheus.NewRegistry(),
		labelNames:     make(map[string][]string),
		counters:       make(map[string]*prometheus.CounterVec),
		directCounters: make(map[string]*settableCounterVec),
		gauges:         make(map[string]*prometheus.GaugeVec),
		histograms:     make(map[string]*prometheus.HistogramVec),
		summaries:      make(map[string]*prometheus.SummaryVec),
		enums:          make(map[string]*enumVec),
	}
}

// Gatherer exposes the underlying registry for HTTP scraping.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Register declares cfg's metric. extraLabels are additional label names
// every series for this metric carries regardless of cfg.Labels (the
// static per-database label keys) — per spec.md's invariant that every
// configured database declares the same set of static label keys,
// extraLabels is identical across every metric. The database label is
// added to every metric by Register itself.
func (r *Registry) Register(cfg *model.MetricConfig, extraLabels []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.labelNames[cfg.Name]; exists {
		return fmt.Errorf("metric %q already registered", cfg.Name)
	}

	names := append([]string{}, cfg.Labels...)
	names = append(names, extraLabels...)
	names = append(names, model.DatabaseLabel)
	sort.Strings(names)
	r.labelNames[cfg.Name] = names

	opts := prometheus.Opts{Name: cfg.Name, Help: cfg.Description}

	switch cfg.Type {
	case model.MetricTypeCounter:
		if cfg.Increment {
			v := prometheus.NewCounterVec(prometheus.CounterOpts(opts), names)
			if err := r.reg.Register(v); err != nil {
				return err
			}
			r.counters[cfg.Name] = v
		} else {
			v := newSettableCounterVec(opts, names)
			if err := r.reg.Register(v); err != nil {
				return err
			}
			r.directCounters[cfg.Name] = v
		}
	case model.MetricTypeGauge:
		v := prometheus.NewGaugeVec(prometheus.GaugeOpts(opts), names)
		if err := r.reg.Register(v); err != nil {
			return err
		}
		r.gauges[cfg.Name] = v
	case model.MetricTypeHistogram:
		v := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: cfg.Name, Help: cfg.Description, Buckets: cfg.Buckets,
		}, names)
		if err := r.reg.Register(v); err != nil {
			return err
		}
		r.histograms[cfg.Name] = v
	case model.MetricTypeSummary:
		v := prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: cfg.Name, Help: cfg.Description}, names)
		if err := r.reg.Register(v); err != nil {
			return err
		}
		r.summaries[cfg.Name] = v
	case model.MetricTypeEnum:
		ev, err := newEnumVec(opts, names, cfg.States)
		if err != nil {
			return err
		}
		if err := ev.registerAll(r.reg); err != nil {
			return err
		}
		r.enums[cfg.Name] = ev
	default:
		return fmt.Errorf("metric %q: unsupported type %q", cfg.Name, cfg.Type)
	}
	return nil
}

// Inc increments a counter by one, for builtin bookkeeping counters
// (queries, database_errors) that count occurrences rather than mirror a
// query result.
func (r *Registry) Inc(name string, labels prometheus.Labels) error {
	r.mu.Lock()
	v, ok := r.counters[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("metric %q is not a counter", name)
	}
	c, err := v.GetMetricWith(labels)
	if err != nil {
		return err
	}
	c.Inc()
	return nil
}

// Add increments a counter by delta, for a user counter metric configured
// with increment=true (spec.md §4.4: the query result is added to the
// running total rather than replacing it).
func (r *Registry) Add(name string, labels prometheus.Labels, delta float64) error {
	r.mu.Lock()
	v, ok := r.counters[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("metric %q is not a counter", name)
	}
	c, err := v.GetMetricWith(labels)
	if err != nil {
		return err
	}
	c.Add(delta)
	return nil
}

// SetCounter directly sets a counter's value, for a user counter metric
// configured with increment=false (spec.md §4.4: "directly set the
// underlying counter value, bypassing the 'only incrementing' contract").
// client_golang's CounterVec has no Set method, so this is backed by a
// separate const-metric vec the way the teacher's metric.go emits a raw
// dto.Counter value rather than going through prometheus.Counter.Add.
func (r *Registry) SetCounter(name string, labels prometheus.Labels, value float64) error {
	r.mu.Lock()
	v, ok := r.directCounters[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("metric %q is not a direct-set counter", name)
	}
	return v.set(labels, value)
}

// Set replaces a gauge's value for the given label set.
func (r *Registry) Set(name string, labels prometheus.Labels, value float64) error {
	r.mu.Lock()
	v, ok := r.gauges[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("metric %q is not a gauge", name)
	}
	g, err := v.GetMetricWith(labels)
	if err != nil {
		return err
	}
	g.Set(value)
	return nil
}

// Observe records a sample against a histogram or summary.
func (r *Registry) Observe(name string, labels prometheus.Labels, value float64) error {
	r.mu.Lock()
	h, isHist := r.histograms[name]
	s, isSumm := r.summaries[name]
	r.mu.Unlock()
	switch {
	case isHist:
		o, err := h.GetMetricWith(labels)
		if err != nil {
			return err
		}
		o.Observe(value)
	case isSumm:
		o, err := s.GetMetricWith(labels)
		if err != nil {
			return err
		}
		o.Observe(value)
	default:
		return fmt.Errorf("metric %q is not a histogram or summary", name)
	}
	return nil
}

// SetState sets an enum metric's active state for the given label set.
func (r *Registry) SetState(name string, labels prometheus.Labels, state string) error {
	r.mu.Lock()
	ev, ok := r.enums[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("metric %q is not an enum", name)
	}
	return ev.set(labels, state)
}

// Remove deletes every series for a metric matching labels (counters,
// gauges, histograms, summaries; enums remove all of their per-state
// series together), the way a Last-Seen expiration sweep retracts a
// series that stopped appearing in results.
func (r *Registry) Remove(name string, labels prometheus.Labels) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.counters[name]; ok {
		return v.Delete(labels)
	}
	if v, ok := r.directCounters[name]; ok {
		return v.delete(labels)
	}
	if v, ok := r.gauges[name]; ok {
		return v.Delete(labels)
	}
	if v, ok := r.histograms[name]; ok {
		return v.Delete(labels)
	}
	if v, ok := r.summaries[name]; ok {
		return v.Delete(labels)
	}
	if v, ok := r.enums[name]; ok {
		return v.delete(labels)
	}
	return false
}
