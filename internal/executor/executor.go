// Package executor wires the scheduler, per-database workers, metric
// registry, and alert dispatcher together and runs the per-execution
// pipeline: skip queries already known to be broken, classify every
// outcome, update builtin and user metrics, and evaluate any alerts a
// query declares. It generalizes executor.py's QueryExecutor, folding in
// the Last-Seen tracker it also owns.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/queryexporter/query-exporter/internal/alerting"
	"github.com/queryexporter/query-exporter/internal/config"
	"github.com/queryexporter/query-exporter/internal/db"
	"github.com/queryexporter/query-exporter/internal/metrics"
	"github.com/queryexporter/query-exporter/internal/model"
	"github.com/queryexporter/query-exporter/internal/scheduler"
)

// Executor runs every configured query, on schedule or on demand, against
// every database it targets.
type Executor struct {
	cfg      *config.Config
	registry *metrics.Registry
	sched    *scheduler.Scheduler
	logger   log.Logger

	workers     map[string]db.Worker
	staticLabel []string

	lastSeen    *lastSeenTracker
	alertStates *alerting.StateMachine
	dispatcher  *alerting.Dispatcher

	mu    sync.Mutex
	fatal map[string]bool // key: database + "/" + query name
}

// New builds an Executor from a validated Config: it declares every
// builtin and user metric on registry, starts one worker per database, and
// schedules every timed query.
func New(cfg *config.Config, registry *metrics.Registry, logger log.Logger) (*Executor, error) {
	e := &Executor{
		cfg:         cfg,
		registry:    registry,
		sched:       scheduler.New(logger),
		logger:      logger,
		workers:     make(map[string]db.Worker),
		lastSeen:    newLastSeenTracker(),
		alertStates: alerting.NewStateMachine(time.Hour),
		fatal:       make(map[string]bool),
	}

	for _, dc := range cfg.Databases {
		for k := range dc.Labels {
			e.staticLabel = appendUnique(e.staticLabel, k)
		}
	}

	for _, mc := range metrics.Builtin() {
		if err := registry.Register(mc, e.staticLabel); err != nil {
			return nil, fmt.Errorf("registering builtin metric %q: %w", mc.Name, err)
		}
	}
	for _, mc := range cfg.Metrics {
		if err := registry.Register(mc, e.staticLabel); err != nil {
			return nil, fmt.Errorf("registering metric %q: %w", mc.Name, err)
		}
	}

	for name, dc := range cfg.Databases {
		e.workers[name] = db.NewWorker(dc, logger)
	}

	if cfg.AlertmanagerURL != "" {
		e.dispatcher = alerting.NewDispatcher(cfg.AlertmanagerURL, logger)
	}

	for _, q := range cfg.Queries {
		if !q.Timed() {
			continue
		}
		iter, err := timesIterator(q)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", q.Name, err)
		}
		for _, dbName := range q.Databases {
			for _, qe := range q.Executions() {
				dbName, qe := dbName, qe
				e.sched.Add(dbName+"/"+qe.Name, iter, func(ctx context.Context) {
					e.execute(ctx, dbName, qe)
				})
			}
		}
	}

	return e, nil
}

func timesIterator(q *model.Query) (scheduler.TimesIterator, error) {
	if q.Schedule != "" {
		return scheduler.NewCronIterator(q.Schedule)
	}
	return &scheduler.IntervalIterator{Interval: q.Interval}, nil
}

func appendUnique(s []string, v string) []string {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}

// Start begins running every timed query on its schedule.
func (e *Executor) Start(ctx context.Context) error {
	return e.sched.Start(ctx)
}

// Stop halts the scheduler and closes every database worker.
func (e *Executor) Stop() {
	e.sched.Stop()
	for _, w := range e.workers {
		w.Close()
	}
}

// RunAperiodic runs every query that has neither an interval nor a
// schedule against every database it targets, the way a scrape request
// triggers query_exporter's on-demand queries.
func (e *Executor) RunAperiodic(ctx context.Context) {
	for _, q := range e.cfg.Queries {
		if q.Timed() {
			continue
		}
		for _, dbName := range q.Databases {
			for _, qe := range q.Executions() {
				e.execute(ctx, dbName, qe)
			}
		}
	}
}

// ClearExpiredSeries retracts metric series that have a configured
// expiration and haven't been updated within it.
func (e *Executor) ClearExpiredSeries(now time.Time) {
	for _, mc := range e.cfg.Metrics {
		if mc.Expiration == nil {
			continue
		}
		for _, labels := range e.lastSeen.expired(mc.Name, *mc.Expiration, now) {
			e.registry.Remove(mc.Name, toPromLabels(labels))
		}
	}
	e.alertStates.GC(now)
}

func (e *Executor) isFatal(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatal[key]
}

func (e *Executor) markFatal(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fatal[key] = true
}

// retireIfFullyFatal drops qe's schedule entries across every database it
// targets once all of them are in the fatal-set, permanently removing the
// query per spec.md §3 "Lifecycles" and §4.4 step 1.
func (e *Executor) retireIfFullyFatal(qe *model.QueryExecution) {
	for _, dbName := range qe.Query.Databases {
		if !e.isFatal(dbName + "/" + qe.Name) {
			return
		}
	}
	for _, dbName := range qe.Query.Databases {
		e.sched.Remove(dbName + "/" + qe.Name)
	}
}

// execute runs one query execution against one database and updates every
// metric and alert it affects, classifying the outcome the way
// executor.py's _execute_query does: connect errors and timeouts are
// transient and logged; a query error is pinned into the fatal set only
// when the worker classifies it as fatal; a successful run always updates
// the builtin bookkeeping metrics before the user metrics.
func (e *Executor) execute(ctx context.Context, dbName string, qe *model.QueryExecution) {
	key := dbName + "/" + qe.Name
	if e.isFatal(key) {
		return
	}

	logger := log.With(e.logger, "database", dbName, "query", qe.Name)
	w := e.workers[dbName]
	rows, err := w.Execute(ctx, qe)
	if err != nil {
		e.handleExecuteError(logger, key, dbName, qe, err)
		return
	}

	dbLabels := e.cfg.Databases[dbName].Labels
	_ = e.registry.Observe(metrics.BuiltinLatency, withDatabase(prometheus.Labels{metrics.LabelQuery: qe.Query.Name}, dbName, dbLabels), rows.Latency.Seconds())
	_ = e.registry.Set(metrics.BuiltinTimestamp, withDatabase(prometheus.Labels{metrics.LabelQuery: qe.Query.Name}, dbName, dbLabels), float64(rows.Timestamp.Unix()))
	if qe.Query.Interval > 0 {
		_ = e.registry.Set(metrics.BuiltinInterval, withDatabase(prometheus.Labels{metrics.LabelQuery: qe.Query.Name}, dbName, dbLabels), qe.Query.Interval.Seconds())
	}

	results, err := qe.Query.MapResults(rows)
	if err != nil {
		if errors.Is(err, model.ErrInvalidMetricValue) {
			// Non-coercible value: the query itself is fine, only this
			// cycle's data isn't; retried next cycle, never fatal.
			level.Warn(logger).Log("msg", "invalid metric value", "err", err)
			_ = e.registry.Inc(metrics.BuiltinQueries, withDatabase(prometheus.Labels{metrics.LabelQuery: qe.Query.Name, metrics.LabelStatus: "invalid-value"}, dbName, dbLabels))
			return
		}
		// Wrong column names/count: a static mismatch between the query
		// and its declared metrics, which will never resolve itself.
		level.Error(logger).Log("msg", "invalid query result", "err", err)
		_ = e.registry.Inc(metrics.BuiltinQueries, withDatabase(prometheus.Labels{metrics.LabelQuery: qe.Query.Name, metrics.LabelStatus: "error"}, dbName, dbLabels))
		e.markFatal(key)
		e.retireIfFullyFatal(qe)
		return
	}

	for _, r := range results {
		labels := withDatabase(toPromLabels(r.Labels), dbName, dbLabels)
		e.updateMetric(logger, r, labels)
		e.lastSeen.touch(r.Metric, labels, time.Now())
	}

	if len(qe.Query.Alerts) > 0 {
		e.evaluateAlerts(ctx, logger, qe, results, dbLabels)
	}

	_ = e.registry.Inc(metrics.BuiltinQueries, withDatabase(prometheus.Labels{metrics.LabelQuery: qe.Query.Name, metrics.LabelStatus: "success"}, dbName, dbLabels))
}

func (e *Executor) handleExecuteError(logger log.Logger, key, dbName string, qe *model.QueryExecution, err error) {
	dbLabels := e.cfg.Databases[dbName].Labels
	switch v := err.(type) {
	case *db.ConnectError:
		// Connect errors never mark the query fatal; the worker retries
		// the connection on the next cycle, and "queries" is not touched.
		level.Warn(logger).Log("msg", "connect error", "err", v)
		_ = e.registry.Inc(metrics.BuiltinDatabaseErrors, withDatabase(prometheus.Labels{}, dbName, dbLabels))
	case *db.TimeoutError:
		level.Warn(logger).Log("msg", "query timed out")
		_ = e.registry.Inc(metrics.BuiltinQueries, withDatabase(prometheus.Labels{metrics.LabelQuery: qe.Query.Name, metrics.LabelStatus: "timeout"}, dbName, dbLabels))
	case *db.QueryError:
		level.Error(logger).Log("msg", "query error", "err", v, "fatal", v.Fatal)
		_ = e.registry.Inc(metrics.BuiltinQueries, withDatabase(prometheus.Labels{metrics.LabelQuery: qe.Query.Name, metrics.LabelStatus: "error"}, dbName, dbLabels))
		if v.Fatal {
			e.markFatal(key)
			e.retireIfFullyFatal(qe)
		}
	default:
		level.Error(logger).Log("msg", "unexpected error", "err", err)
	}
}

func (e *Executor) updateMetric(logger log.Logger, r model.MetricResult, labels prometheus.Labels) {
	mc, ok := e.cfg.Metrics[r.Metric]
	if !ok {
		return
	}
	var err error
	switch mc.Type {
	case model.MetricTypeCounter:
		if mc.Increment {
			err = e.registry.Add(r.Metric, labels, r.Value)
		} else {
			err = e.registry.SetCounter(r.Metric, labels, r.Value)
		}
	case model.MetricTypeGauge:
		err = e.registry.Set(r.Metric, labels, r.Value)
	case model.MetricTypeHistogram, model.MetricTypeSummary:
		err = e.registry.Observe(r.Metric, labels, r.Value)
	case model.MetricTypeEnum:
		idx := int(r.Value)
		if idx >= 0 && idx < len(mc.States) {
			err = e.registry.SetState(r.Metric, labels, mc.States[idx])
		} else {
			err = fmt.Errorf("metric %q: state index %d out of range", r.Metric, idx)
		}
	}
	if err != nil {
		level.Error(logger).Log("msg", "failed to update metric", "metric", r.Metric, "err", err)
	}
}

func (e *Executor) evaluateAlerts(ctx context.Context, logger log.Logger, qe *model.QueryExecution, results []model.MetricResult, dbLabels map[string]string) {
	var fired []alerting.Notification
	now := time.Now()
	for _, alertName := range qe.Query.Alerts {
		rule, ok := e.cfg.Alerts[alertName]
		if !ok {
			continue
		}
		for _, r := range results {
			if r.Metric != rule.Metric {
				continue
			}
			active := rule.Condition.Evaluate(r.Value)
			key := alerting.Key(rule.Name, dbLabels, r.Labels)
			_, justFired, start := e.alertStates.Evaluate(key, rule.For, active, now)
			if justFired {
				level.Warn(logger).Log("msg", "alert firing", "alert", rule.Name, "value", r.Value)
				fired = append(fired, alerting.Notification{
					Rule:         rule,
					Query:        qe.Query.Name,
					DBLabels:     dbLabels,
					ResultLabels: r.Labels,
					Value:        r.Value,
					Start:        start,
					Duration:     now.Sub(start),
				})
			}
		}
	}
	if len(fired) > 0 && e.dispatcher != nil {
		if err := e.dispatcher.Send(ctx, fired); err != nil {
			level.Warn(logger).Log("msg", "failed to dispatch alerts", "err", err)
		}
	}
}

func toPromLabels(m map[string]string) prometheus.Labels {
	l := make(prometheus.Labels, len(m))
	for k, v := range m {
		l[k] = v
	}
	return l
}

func withDatabase(l prometheus.Labels, dbName string, dbLabels map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(l)+len(dbLabels)+1)
	for k, v := range l {
		out[k] = v
	}
	for k, v := range dbLabels {
		out[k] = v
	}
	out[model.DatabaseLabel] = dbName
	return out
}
