package metrics

import "github.com/queryexporter/query-exporter/internal/model"

// Builtin returns the metrics query_exporter reports about itself,
// mirroring metrics.py's BUILTIN_METRICS: per-database error and execution
// counts, and per-query latency/timing, updated by the executor around
// every query run rather than derived from user SQL.
func Builtin() []*model.MetricConfig {
	return []*model.MetricConfig{
		{
			Name:        BuiltinDatabaseErrors,
			Type:        model.MetricTypeCounter,
			Description: "Number of database errors",
			Increment:   true,
		},
		{
			Name:        BuiltinQueries,
			Type:        model.MetricTypeCounter,
			Description: "Number of queries executed",
			Labels:      []string{LabelQuery, LabelStatus},
			Increment:   true,
		},
		{
			Name:        BuiltinLatency,
			Type:        model.MetricTypeHistogram,
			Description: "Query execution latency, in seconds",
			Labels:      []string{LabelQuery},
			Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		{
			Name:        BuiltinTimestamp,
			Type:        model.MetricTypeGauge,
			Description: "Unix timestamp of the last successful query execution",
			Labels:      []string{LabelQuery},
		},
		{
			Name:        BuiltinInterval,
			Type:        model.MetricTypeGauge,
			Description: "Configured execution interval, in seconds (reported only for interval-scheduled queries)",
			Labels:      []string{LabelQuery},
		},
	}
}

// Label names builtin metrics carry besides the database label: "query"
// on every query-scoped metric, and "status" on queries only.
const (
	LabelQuery  = "query"
	LabelStatus = "status"
)

// Names of the builtin metrics returned by Builtin.
const (
	BuiltinDatabaseErrors = "database_errors"
	BuiltinQueries        = "queries"
	BuiltinLatency        = "query_latency"
	BuiltinTimestamp      = "query_timestamp"
	BuiltinInterval       = "query_interval"
)
