package config

import (
	"fmt"
	"net/url"
)

// rawDSN is the mapping form of a database connection, an alternative to
// giving the DSN as a single string, mirroring schema.py's _validate_dsn
// accepting either a connection string or its component parts.
type rawDSN struct {
	Dialect  string            `yaml:"dialect"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Database string            `yaml:"database"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Options  map[string]string `yaml:"options"`
}

// buildDSN turns the mapping form into the URL-encoded connection string
// every downstream driver (and internal/db's scheme dispatch) expects.
func (d *rawDSN) buildDSN() (string, error) {
	if d.Dialect == "" {
		return "", fmt.Errorf("dsn: dialect is required")
	}
	u := url.URL{Scheme: d.Dialect, Host: d.Host}
	if d.Port != 0 {
		u.Host = fmt.Sprintf("%s:%d", d.Host, d.Port)
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	if d.Database != "" {
		u.Path = "/" + d.Database
	}
	if len(d.Options) > 0 {
		q := url.Values{}
		for k, v := range d.Options {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
