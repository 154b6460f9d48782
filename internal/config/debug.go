package config

import (
	"net/url"

	"gopkg.in/yaml.v3"

	"github.com/queryexporter/query-exporter/internal/model"
)

// debugDatabase, debugMetric, and debugQuery are the shapes YAML marshals
// the loaded Config back into for the /config endpoint, keeping the
// rendering independent of the YAML schema Load reads (the loaded Config is
// already normalized, and its DSNs need redaction the raw schema doesn't).
type debugDatabase struct {
	DSN           string            `yaml:"dsn"`
	Labels        map[string]string `yaml:"labels,omitempty"`
	Autocommit    bool              `yaml:"autocommit"`
	KeepConnected bool              `yaml:"keep-connected"`
}

type debugMetric struct {
	Type        model.MetricType `yaml:"type"`
	Description string           `yaml:"description,omitempty"`
	Labels      []string         `yaml:"labels,omitempty"`
}

type debugQuery struct {
	Databases []string `yaml:"databases"`
	Metrics   []string `yaml:"metrics"`
	SQL       string   `yaml:"sql"`
	Interval  string   `yaml:"interval,omitempty"`
	Schedule  string   `yaml:"schedule,omitempty"`
}

// YAML renders c back into YAML for display on the /config debug endpoint,
// mirroring sql_exporter's Exporter.Config().YAML() that content.go's
// ConfigHandlerFunc calls. Every DSN is redacted first: unlike sql_exporter's
// targets, query_exporter's DSNs routinely embed a cleartext password, and
// this is the one place that value would otherwise leak to anyone who can
// reach the HTTP port.
func (c *Config) YAML() ([]byte, error) {
	dump := struct {
		Databases map[string]debugDatabase `yaml:"databases"`
		Metrics   map[string]debugMetric    `yaml:"metrics"`
		Queries   map[string]debugQuery     `yaml:"queries"`
	}{
		Databases: make(map[string]debugDatabase, len(c.Databases)),
		Metrics:   make(map[string]debugMetric, len(c.Metrics)),
		Queries:   make(map[string]debugQuery, len(c.Queries)),
	}

	for name, dc := range c.Databases {
		dump.Databases[name] = debugDatabase{
			DSN:           RedactDSN(dc.DSN),
			Labels:        dc.Labels,
			Autocommit:    dc.Autocommit,
			KeepConnected: dc.KeepConnected,
		}
	}
	for name, mc := range c.Metrics {
		dump.Metrics[name] = debugMetric{
			Type:        mc.Type,
			Description: mc.Description,
			Labels:      mc.Labels,
		}
	}
	for name, q := range c.Queries {
		names := make([]string, len(q.Metrics))
		for i, m := range q.Metrics {
			names[i] = m.Name
		}
		var interval string
		if q.Interval > 0 {
			interval = q.Interval.String()
		}
		dump.Queries[name] = debugQuery{
			Databases: q.Databases,
			Metrics:   names,
			SQL:       q.SQL,
			Interval:  interval,
			Schedule:  q.Schedule,
		}
	}

	return yaml.Marshal(dump)
}

// RedactDSN masks any embedded password in dsn so it never reaches logs or
// the /config endpoint. Best-effort: a DSN that isn't parseable as a URL, or
// that carries no password, is returned unchanged rather than dropped.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); !ok {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}
