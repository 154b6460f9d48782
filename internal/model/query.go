package model

import (
	"fmt"
	"sort"
	"time"
)

// QueryMetric names a metric a Query populates and the columns that supply
// its labels.
type QueryMetric struct {
	Name   string
	Labels []string
}

// Query is a named SQL statement run against one or more databases on a
// timed or cron schedule (or aperiodically, on demand).
type Query struct {
	Name          string
	Databases     []string
	Metrics       []QueryMetric
	SQL           string
	Interval      time.Duration // zero means "use Schedule instead"
	Schedule      string        // cron expression, mutually exclusive with Interval
	Timeout       time.Duration // zero means "no timeout"
	ParameterSets []map[string]interface{}
	Alerts        []string
}

// Timed reports whether the query is driven by the scheduler (interval or
// cron) as opposed to only running aperiodically, on scrape.
func (q *Query) Timed() bool {
	return q.Interval > 0 || q.Schedule != ""
}

// QueryExecution is a (Query, parameter set) pair: the unit the scheduler
// fires and the executor dispatches.
type QueryExecution struct {
	Name       string
	Query      *Query
	Parameters map[string]interface{}
}

// Executions expands a Query into one QueryExecution per parameter set. A
// Query with no parameter sets yields exactly one execution, named after the
// query itself; one with N parameter sets yields N executions named
// "<query>[paramsN]".
func (q *Query) Executions() []*QueryExecution {
	if len(q.ParameterSets) == 0 {
		return []*QueryExecution{{Name: q.Name, Query: q, Parameters: nil}}
	}
	execs := make([]*QueryExecution, 0, len(q.ParameterSets))
	for i, params := range q.ParameterSets {
		execs = append(execs, &QueryExecution{
			Name:       fmt.Sprintf("%s[params%d]", q.Name, i),
			Query:      q,
			Parameters: params,
		})
	}
	return execs
}

// QueryResults is the raw, ordered result of running a Query's SQL.
type QueryResults struct {
	Columns   []string
	Rows      [][]Scalar
	Timestamp time.Time
	Latency   time.Duration
}

// MetricResult is one value, destined for one metric, with its labels.
type MetricResult struct {
	Metric string
	Value  float64
	Labels map[string]string
}

// MapResults maps QueryResults to MetricResult values per the column
// mapping rules in spec.md §4.2.
func (q *Query) MapResults(raw QueryResults) ([]MetricResult, error) {
	if len(raw.Rows) == 0 {
		return nil, nil
	}

	metricNames := make(map[string]bool, len(q.Metrics))
	labelNames := make(map[string]bool)
	for _, m := range q.Metrics {
		metricNames[m.Name] = true
		for _, l := range m.Labels {
			labelNames[l] = true
		}
	}

	declaresLabels := false
	for _, m := range q.Metrics {
		if len(m.Labels) > 0 {
			declaresLabels = true
			break
		}
	}

	colIndex := make(map[string]int, len(raw.Columns))
	for i, c := range raw.Columns {
		colIndex[c] = i
	}

	if declaresLabels {
		// The set of non-metric columns must equal the union of declared labels.
		nonMetricCols := make(map[string]bool)
		for _, c := range raw.Columns {
			if !metricNames[c] {
				nonMetricCols[c] = true
			}
		}
		if !sameSet(nonMetricCols, labelNames) {
			return nil, fmt.Errorf("%w: query %q", ErrWrongColumnNames, q.Name)
		}
	} else {
		// No metric declares labels: every metric column must appear and the
		// row's arity must equal metrics+labels.
		for _, m := range q.Metrics {
			if _, ok := colIndex[m.Name]; !ok {
				return nil, fmt.Errorf("%w: query %q missing column %q", ErrWrongResultCount, q.Name, m.Name)
			}
		}
		if len(raw.Columns) != len(q.Metrics)+len(labelNames) {
			return nil, fmt.Errorf("%w: query %q", ErrWrongResultCount, q.Name)
		}
	}

	results := make([]MetricResult, 0, len(raw.Rows)*len(q.Metrics))
	for _, row := range raw.Rows {
		for _, m := range q.Metrics {
			idx, ok := colIndex[m.Name]
			if !ok {
				return nil, fmt.Errorf("%w: query %q missing column %q", ErrWrongColumnNames, q.Name, m.Name)
			}
			value, err := row[idx].Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: metric %q: %s", ErrInvalidMetricValue, m.Name, err)
			}
			labels := make(map[string]string, len(m.Labels))
			for _, l := range m.Labels {
				lidx, ok := colIndex[l]
				if !ok {
					return nil, fmt.Errorf("%w: query %q missing label column %q", ErrWrongColumnNames, q.Name, l)
				}
				labels[l] = row[lidx].String()
			}
			results = append(results, MetricResult{Metric: m.Name, Value: value, Labels: labels})
		}
	}
	return results, nil
}

// SortedLabelValues returns the values of labels in labels, sorted by label
// name, for use as a Last-Seen tracking key.
func SortedLabelValues(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for n := range labels {
		names = append(names, n)
	}
	sort.Strings(names)
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = labels[n]
	}
	return values
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
