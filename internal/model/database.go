package model

import "time"

// DatabaseLabel is the reserved label every metric carries to identify the
// database it was read from. It can never be declared by a user metric or a
// database's static labels (spec.md §3 invariants).
const DatabaseLabel = "database"

// DatabaseConfig describes one configured database connection.
type DatabaseConfig struct {
	Name          string
	DSN           string
	Autocommit    bool
	KeepConnected bool
	ConnectSQL    []string
	Labels        map[string]string

	// Pool sizing, both zero means "use the driver default" (effectively a
	// single, non-pooled connection as used by the teacher's sql.go).
	PoolSize    int
	MaxOverflow int
}
