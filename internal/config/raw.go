package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// rawConfig is the top-level YAML document shape, named and structured the
// way the teacher's config.go lays out its own Config/JobConfig hierarchy,
// but carrying query_exporter's schema instead of sql_exporter's.
type rawConfig struct {
	Global    rawGlobal             `yaml:"global"`
	Databases map[string]rawDatabase `yaml:"databases"`
	Metrics   map[string]rawMetric   `yaml:"metrics"`
	Queries   map[string]rawQuery    `yaml:"queries"`
	Alerts    map[string]rawAlert    `yaml:"alerts"`

	XXX map[string]interface{} `yaml:",inline"`
}

func (c *rawConfig) checkOverflow(context string) error {
	if len(c.XXX) > 0 {
		var keys []string
		for k := range c.XXX {
			keys = append(keys, k)
		}
		return fmt.Errorf("%s: unknown fields: %v", context, keys)
	}
	return nil
}

type rawGlobal struct {
	MinIntervalSeconds int    `yaml:"min_interval"`
	AlertmanagerURL    string `yaml:"alertmanager_url"`
}

type rawDatabase struct {
	DSN           yaml.Node         `yaml:"dsn"`
	Autocommit    *bool             `yaml:"autocommit"`
	KeepConnected *bool             `yaml:"keep-connected"`
	ConnectSQL    []string          `yaml:"connect-sql"`
	Labels        map[string]string `yaml:"labels"`
	PoolSize      int               `yaml:"pool-size"`
	MaxOverflow   int               `yaml:"max-overflow"`
}

func (d *rawDatabase) dsn() (string, error) {
	switch d.DSN.Kind {
	case yaml.ScalarNode:
		var s string
		if err := d.DSN.Decode(&s); err != nil {
			return "", err
		}
		return s, nil
	case yaml.MappingNode:
		var m rawDSN
		if err := d.DSN.Decode(&m); err != nil {
			return "", err
		}
		return m.buildDSN()
	case 0:
		return "", fmt.Errorf("dsn is required")
	default:
		return "", fmt.Errorf("dsn must be a string or a mapping")
	}
}

type rawMetric struct {
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Labels      []string `yaml:"labels"`
	Buckets     []float64 `yaml:"buckets"`
	States      []string `yaml:"states"`
	ExpirationSeconds *int `yaml:"expiration"`
	Increment   bool     `yaml:"increment"`
}

type rawQuery struct {
	Databases     []string                            `yaml:"databases"`
	Metrics       []string                             `yaml:"metrics"`
	SQL           string                               `yaml:"sql"`
	IntervalSeconds *int                               `yaml:"interval"`
	Schedule      string                               `yaml:"schedule"`
	TimeoutSeconds *int                                `yaml:"timeout"`
	Parameters    []map[string]interface{}             `yaml:"parameters"`
	ParametersMap map[string][]map[string]interface{}  `yaml:"parameters-by-key"`
	Alerts        []string                             `yaml:"alerts"`
}

type rawAlert struct {
	Metric      string            `yaml:"metric"` // name of the metric the condition is evaluated against
	Condition   string            `yaml:"condition"`
	For         string            `yaml:"for"`
	Severity    string            `yaml:"severity"`
	Labels      yaml.Node         `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
	Summary     string            `yaml:"summary"`
	Description string            `yaml:"description"`
}

// labelNames normalizes the duck-typed "labels" field (spec.md §9
// REDESIGN FLAGS: "duck-typed alert label lists that may arrive as either
// a list or a mapping") to the single canonical form: a list of label
// names to pull from the query result. A mapping's keys are taken as the
// names; a sequence is taken as-is.
func (a *rawAlert) labelNames() ([]string, error) {
	switch a.Labels.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		var names []string
		if err := a.Labels.Decode(&names); err != nil {
			return nil, fmt.Errorf("labels: %w", err)
		}
		return names, nil
	case yaml.MappingNode:
		var m map[string]interface{}
		if err := a.Labels.Decode(&m); err != nil {
			return nil, fmt.Errorf("labels: %w", err)
		}
		names := make([]string, 0, len(m))
		for k := range m {
			names = append(names, k)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("labels: must be a list or a mapping")
	}
}

func seconds(n *int) time.Duration {
	if n == nil {
		return 0
	}
	return time.Duration(*n) * time.Second
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
