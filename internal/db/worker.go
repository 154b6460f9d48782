package db

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/queryexporter/query-exporter/internal/model"
)

// Worker serializes every query run against one configured database through
// a single dedicated goroutine, mirroring db_parallel.py's one-worker-per-
// database model. Queries queued against the same worker run in the order
// they were submitted.
type Worker interface {
	Execute(ctx context.Context, qe *model.QueryExecution) (model.QueryResults, error)
	Close()
}

type job struct {
	ctx    context.Context
	qe     *model.QueryExecution
	result chan jobResult
}

type jobResult struct {
	rows model.QueryResults
	err  error
}

type worker struct {
	cfg    *model.DatabaseConfig
	logger log.Logger

	jobs  chan *job
	stop  chan struct{}
	done  chan struct{}

	conn *sqlx.DB
}

// NewWorker starts a worker goroutine for cfg. The connection is opened
// lazily, on the first query.
func NewWorker(cfg *model.DatabaseConfig, logger log.Logger) Worker {
	w := &worker{
		cfg:    cfg,
		logger: log.With(logger, "database", cfg.Name),
		jobs:   make(chan *job, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) Execute(ctx context.Context, qe *model.QueryExecution) (model.QueryResults, error) {
	j := &job{ctx: ctx, qe: qe, result: make(chan jobResult, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return model.QueryResults{}, ctx.Err()
	case <-w.done:
		return model.QueryResults{}, &ConnectError{Database: w.cfg.Name, Err: context.Canceled}
	}
	select {
	case r := <-j.result:
		return r.rows, r.err
	case <-ctx.Done():
		return model.QueryResults{}, ctx.Err()
	}
}

func (w *worker) Close() {
	close(w.stop)
	<-w.done
}

func (w *worker) run() {
	defer close(w.done)
	for {
		select {
		case j := <-w.jobs:
			rows, err := w.handle(j)
			j.result <- jobResult{rows: rows, err: err}
			if len(w.jobs) == 0 && !w.cfg.KeepConnected {
				w.disconnect()
			}
		case <-w.stop:
			w.disconnect()
			return
		}
	}
}

func (w *worker) handle(j *job) (model.QueryResults, error) {
	ctx := j.ctx
	if j.qe.Query.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.qe.Query.Timeout)
		defer cancel()
	}

	if err := w.ensureConnected(ctx); err != nil {
		return model.QueryResults{}, err
	}

	start := time.Now()
	rows, err := w.runQuery(ctx, j.qe)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return model.QueryResults{}, &TimeoutError{Query: j.qe.Name}
		}
		return model.QueryResults{}, &QueryError{Query: j.qe.Name, Fatal: isFatalQueryError(err), Err: err}
	}
	rows.Latency = latency
	return rows, nil
}

func (w *worker) ensureConnected(ctx context.Context) error {
	if w.conn != nil {
		return nil
	}
	driverName, dsn, err := driverForDSN(w.cfg.DSN)
	if err != nil {
		return &ConnectError{Database: w.cfg.Name, Err: errors.Wrap(err, "dsn")}
	}

	var conn *sqlx.DB
	connect := func() error {
		c, err := sqlx.Open(driverName, dsn)
		if err != nil {
			return errors.Wrap(err, "open")
		}
		if err := c.PingContext(ctx); err != nil {
			c.Close()
			return errors.Wrap(err, "ping")
		}
		conn = c
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(connect, backoff.WithContext(bo, ctx)); err != nil {
		return &ConnectError{Database: w.cfg.Name, Err: err}
	}

	if w.cfg.PoolSize > 0 {
		conn.SetMaxOpenConns(w.cfg.PoolSize + w.cfg.MaxOverflow)
		conn.SetMaxIdleConns(w.cfg.PoolSize)
	}

	for _, stmt := range w.cfg.ConnectSQL {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return &ConnectError{Database: w.cfg.Name, Err: errors.Wrapf(err, "connect-sql %q", stmt)}
		}
	}

	level.Debug(w.logger).Log("msg", "connected")
	w.conn = conn
	return nil
}

func (w *worker) disconnect() {
	if w.conn == nil {
		return
	}
	if err := w.conn.Close(); err != nil {
		level.Warn(w.logger).Log("msg", "error closing connection", "err", err)
	}
	w.conn = nil
}

func (w *worker) runQuery(ctx context.Context, qe *model.QueryExecution) (model.QueryResults, error) {
	rows, err := w.conn.NamedQueryContext(ctx, qe.Query.SQL, namedParams(qe.Parameters))
	if err != nil {
		return model.QueryResults{}, errors.Wrap(err, "query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return model.QueryResults{}, errors.Wrap(err, "columns")
	}

	var scalarRows [][]model.Scalar
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return model.QueryResults{}, errors.Wrap(err, "scan")
		}
		row := make([]model.Scalar, len(raw))
		for i, v := range raw {
			row[i] = model.NewScalar(v)
		}
		scalarRows = append(scalarRows, row)
	}
	if err := rows.Err(); err != nil {
		return model.QueryResults{}, err
	}

	return model.QueryResults{
		Columns:   cols,
		Rows:      scalarRows,
		Timestamp: time.Now(),
	}, nil
}

// namedParams substitutes an empty map for nil, since sqlx.NamedQueryContext
// requires a non-nil argument even for parameterless queries.
func namedParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return map[string]interface{}{}
	}
	return params
}

// isFatalQueryError classifies a query failure as fatal (never going to
// succeed again without operator intervention: bad SQL, missing table,
// permission denied) or transient, mirroring db.py's DataBaseError handling
// which logs but retries on generic errors and only takes down a query
// permanently on an exhausted retry budget. Here we additionally treat
// known-permanent driver error codes as immediately fatal.
func isFatalQueryError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "42": // syntax error or access rule violation
			return true
		case "28": // invalid authorization specification (bad credentials)
			return true
		case "3D": // invalid catalog name (unknown database)
			return true
		}
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1054, 1146, 1064: // unknown column, unknown table, syntax error
			return true
		case 1045: // access denied (bad credentials)
			return true
		case 1049: // unknown database
			return true
		}
		return false
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		// sqlite3 reports schema and syntax problems under the single
		// generic SQLITE_ERROR code, so they're told apart by message
		// rather than by code the way lib/pq and go-sql-driver/mysql
		// distinguish SQLSTATE/error-number classes.
		msg := strings.ToLower(liteErr.Error())
		for _, substr := range []string{"no such table", "no such column", "syntax error", "no such database"} {
			if strings.Contains(msg, substr) {
				return true
			}
		}
		return false
	}
	return false
}
