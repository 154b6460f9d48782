package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// enumVec implements an enum metric — client_golang has no native enum
// type, so, the way other exporters in the ecosystem do it, one state is
// "active" (gauge value 1) and the rest are 0, with a "state" label
// distinguishing the series.
type enumVec struct {
	labelNames []string
	states     []string
	gauge      *prometheus.GaugeVec
	opts       prometheus.Opts
}

func newEnumVec(opts prometheus.Opts, labelNames []string, states []string) (*enumVec, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("metric %q: enum requires at least one state", opts.Name)
	}
	names := append([]string{}, labelNames...)
	names = append(names, "state")
	ev := &enumVec{
		labelNames: labelNames,
		states:     states,
		opts:       opts,
	}
	ev.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts(opts), names)
	return ev, nil
}

func (ev *enumVec) registerAll(reg *prometheus.Registry) error {
	return reg.Register(ev.gauge)
}

// set activates state for labels and zeroes every other state for the same
// label set.
func (ev *enumVec) set(labels prometheus.Labels, state string) error {
	found := false
	for _, s := range ev.states {
		if s == state {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("metric %q: unknown state %q", ev.opts.Name, state)
	}
	for _, s := range ev.states {
		l := prometheus.Labels{}
		for k, v := range labels {
			l[k] = v
		}
		l["state"] = s
		g, err := ev.gauge.GetMetricWith(l)
		if err != nil {
			return err
		}
		if s == state {
			g.Set(1)
		} else {
			g.Set(0)
		}
	}
	return nil
}

func (ev *enumVec) delete(labels prometheus.Labels) bool {
	deleted := false
	for _, s := range ev.states {
		l := prometheus.Labels{}
		for k, v := range labels {
			l[k] = v
		}
		l["state"] = s
		if ev.gauge.Delete(l) {
			deleted = true
		}
	}
	return deleted
}
