package db

import "fmt"

// ConnectError is returned when opening or pinging a database connection
// fails. It never marks a query fatal; the next scheduled cycle retries.
type ConnectError struct {
	Database string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("database %q: connect error: %s", e.Database, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutError is returned when a query exceeds its configured timeout.
type TimeoutError struct {
	Query string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query %q: timed out", e.Query)
}

// QueryError wraps a failure that occurred while preparing or running a
// query. Fatal errors (static SQL/schema mismatches, or a known-fatal
// operational error such as bad auth or an unknown database) pin the
// (query, database) pair into the executor's fatal-set; anything else is
// retried on the next cycle.
type QueryError struct {
	Query string
	Fatal bool
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q: %s", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
