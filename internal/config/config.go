package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/queryexporter/query-exporter/internal/alerting"
	"github.com/queryexporter/query-exporter/internal/model"
)

// Config is the fully validated, normalized configuration query_exporter
// runs from: the YAML schema's rawConfig, decoded and cross-checked
// against every invariant in schema.py's pydantic validators.
type Config struct {
	MinInterval     time.Duration
	AlertmanagerURL string
	Databases       map[string]*model.DatabaseConfig
	Metrics         map[string]*model.MetricConfig
	Queries         map[string]*model.Query
	Alerts          map[string]*alerting.Rule
}

// Load reads and merges one or more YAML configuration files, resolving
// !env/!file/!include tags relative to each file's own directory, and
// builds a validated Config. Defining the same database, metric, or query
// name in more than one file is an error (duplicate names are never
// silently overridden).
func Load(paths []string) (*Config, error) {
	merged := &rawConfig{
		Databases: map[string]rawDatabase{},
		Metrics:   map[string]rawMetric{},
		Queries:   map[string]rawQuery{},
		Alerts:    map[string]rawAlert{},
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if len(root.Content) == 0 {
			continue
		}
		if err := resolveTags(&root, dirOf(path)); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		var doc rawConfig
		if err := root.Content[0].Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		if err := doc.checkOverflow(path); err != nil {
			return nil, err
		}

		if doc.Global.MinIntervalSeconds != 0 {
			merged.Global.MinIntervalSeconds = doc.Global.MinIntervalSeconds
		}
		if doc.Global.AlertmanagerURL != "" {
			merged.Global.AlertmanagerURL = doc.Global.AlertmanagerURL
		}
		if err := mergeNamed(merged.Databases, doc.Databases, "database", path); err != nil {
			return nil, err
		}
		if err := mergeNamed(merged.Metrics, doc.Metrics, "metric", path); err != nil {
			return nil, err
		}
		if err := mergeNamed(merged.Queries, doc.Queries, "query", path); err != nil {
			return nil, err
		}
		if err := mergeNamed(merged.Alerts, doc.Alerts, "alert", path); err != nil {
			return nil, err
		}
	}

	return build(merged)
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func mergeNamed[T any](dst map[string]T, src map[string]T, kind, path string) error {
	for name, v := range src {
		if _, exists := dst[name]; exists {
			return fmt.Errorf("%s: duplicate %s name %q", path, kind, name)
		}
		dst[name] = v
	}
	return nil
}

// build converts raw, merged YAML into a validated Config, checking the
// cross-cutting invariants schema.py enforces across the whole document
// rather than on a single field: every configured database declares the
// same set of static label keys, no metric or label collides with the
// reserved "database" label, every query's interval and schedule are
// mutually exclusive, and every query references only declared databases
// and metrics.
func build(raw *rawConfig) (*Config, error) {
	cfg := &Config{
		MinInterval:     seconds(&raw.Global.MinIntervalSeconds),
		AlertmanagerURL: raw.Global.AlertmanagerURL,
		Databases:       map[string]*model.DatabaseConfig{},
		Metrics:         map[string]*model.MetricConfig{},
		Queries:         map[string]*model.Query{},
		Alerts:          map[string]*alerting.Rule{},
	}

	var labelKeys []string
	for name, rd := range raw.Databases {
		dsn, err := rd.dsn()
		if err != nil {
			return nil, fmt.Errorf("database %q: %w", name, err)
		}
		for l := range rd.Labels {
			if l == model.DatabaseLabel {
				return nil, fmt.Errorf("database %q: label %q is reserved", name, l)
			}
		}
		keys := sortedKeys(rd.Labels)
		if labelKeys == nil {
			labelKeys = keys
		} else if !equalStrings(labelKeys, keys) {
			return nil, fmt.Errorf("database %q: static label keys must be identical across every database", name)
		}
		cfg.Databases[name] = &model.DatabaseConfig{
			Name:          name,
			DSN:           dsn,
			Autocommit:    boolOr(rd.Autocommit, true),
			KeepConnected: boolOr(rd.KeepConnected, true),
			ConnectSQL:    rd.ConnectSQL,
			Labels:        rd.Labels,
			PoolSize:      rd.PoolSize,
			MaxOverflow:   rd.MaxOverflow,
		}
	}

	for name, rm := range raw.Metrics {
		var exp *time.Duration
		if rm.ExpirationSeconds != nil {
			d := time.Duration(*rm.ExpirationSeconds) * time.Second
			exp = &d
		}
		mc := &model.MetricConfig{
			Name:        name,
			Type:        model.MetricType(rm.Type),
			Description: rm.Description,
			Labels:      rm.Labels,
			Buckets:     rm.Buckets,
			States:      rm.States,
			Expiration:  exp,
			Increment:   rm.Increment,
		}
		if err := mc.Validate(); err != nil {
			return nil, err
		}
		cfg.Metrics[name] = mc
	}

	// Reserved "database" label aside, a database's own static labels must
	// not collide with any metric's declared labels either — spec.md §3
	// "declared database labels may not collide with metric labels".
	for dbName, dc := range cfg.Databases {
		for l := range dc.Labels {
			for _, mc := range cfg.Metrics {
				for _, ml := range mc.Labels {
					if l == ml {
						return nil, fmt.Errorf("database %q: label %q collides with metric %q's label %q", dbName, l, mc.Name, ml)
					}
				}
			}
		}
	}

	for name, ra := range raw.Alerts {
		condExpr := ra.Condition
		if condExpr == "" {
			condExpr = "> 0"
		}
		cond, err := alerting.ParseCondition(condExpr)
		if err != nil {
			return nil, fmt.Errorf("alert %q: %w", name, err)
		}
		if _, ok := cfg.Metrics[ra.Metric]; !ok {
			return nil, fmt.Errorf("alert %q: references undeclared metric %q", name, ra.Metric)
		}
		forDuration, err := alerting.ParseForDuration(ra.For)
		if err != nil {
			return nil, fmt.Errorf("alert %q: %w", name, err)
		}
		labelNames, err := ra.labelNames()
		if err != nil {
			return nil, fmt.Errorf("alert %q: %w", name, err)
		}
		cfg.Alerts[name] = &alerting.Rule{
			Name:        name,
			Metric:      ra.Metric,
			Condition:   cond,
			For:         forDuration,
			Severity:    ra.Severity,
			Labels:      labelNames,
			Annotations: ra.Annotations,
			Summary:     ra.Summary,
			Description: ra.Description,
		}
	}

	for name, rq := range raw.Queries {
		if rq.IntervalSeconds != nil && rq.Schedule != "" {
			return nil, fmt.Errorf("query %q: interval and schedule are mutually exclusive", name)
		}
		for _, db := range rq.Databases {
			if _, ok := cfg.Databases[db]; !ok {
				return nil, fmt.Errorf("query %q: references undeclared database %q", name, db)
			}
		}
		metrics := make([]model.QueryMetric, 0, len(rq.Metrics))
		for _, m := range rq.Metrics {
			mc, ok := cfg.Metrics[m]
			if !ok {
				return nil, fmt.Errorf("query %q: references undeclared metric %q", name, m)
			}
			metrics = append(metrics, model.QueryMetric{Name: m, Labels: mc.Labels})
		}
		for _, a := range rq.Alerts {
			if _, ok := cfg.Alerts[a]; !ok {
				return nil, fmt.Errorf("query %q: references undeclared alert %q", name, a)
			}
		}
		params, err := model.ExpandParameterSets(rq.Parameters, rq.ParametersMap)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", name, err)
		}
		if err := model.ValidateParameterKeys(rq.SQL, params); err != nil {
			return nil, fmt.Errorf("query %q: %w", name, err)
		}
		cfg.Queries[name] = &model.Query{
			Name:          name,
			Databases:     rq.Databases,
			Metrics:       metrics,
			SQL:           rq.SQL,
			Interval:      seconds(rq.IntervalSeconds),
			Schedule:      rq.Schedule,
			Timeout:       seconds(rq.TimeoutSeconds),
			ParameterSets: params,
			Alerts:        rq.Alerts,
		}
	}

	return cfg, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
