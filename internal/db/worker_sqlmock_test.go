package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-kit/log"
	"github.com/jmoiron/sqlx"

	"github.com/queryexporter/query-exporter/internal/model"
)

// newMockedWorker builds a worker whose connection is already attached to a
// sqlmock-backed *sqlx.DB, bypassing driverForDSN/ensureConnected's real
// network dial — the same white-box injection pgbouncer_exporter's
// collector_test.go uses sqlmock for, just one layer lower (the worker's
// runQuery rather than a collector's Collect).
func newMockedWorker(t *testing.T) (*worker, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	w := &worker{
		cfg:    &model.DatabaseConfig{Name: "mockdb", KeepConnected: true},
		logger: log.NewNopLogger(),
		jobs:   make(chan *job, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		conn:   sqlx.NewDb(mockDB, "sqlmock"),
	}
	go w.run()
	t.Cleanup(w.Close)
	return w, mock
}

func TestWorkerRunQueryMockedRows(t *testing.T) {
	w, mock := newMockedWorker(t)
	mock.ExpectQuery("SELECT m, l FROM test").
		WillReturnRows(sqlmock.NewRows([]string{"m", "l"}).
			AddRow(1, "foo").
			AddRow(2, "bar"))

	qe := &model.QueryExecution{Name: "q", Query: testQuery("SELECT m, l FROM test")}
	qe.Query.Metrics = []model.QueryMetric{{Name: "m", Labels: []string{"l"}}}

	rows, err := w.Execute(context.Background(), qe)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestWorkerRunQueryMockedDriverError covers a query failure whose driver
// error carries no fatal classification signal (no pq/MySQL error code, no
// sqlite3 substring match) — the default non-fatal branch of
// isFatalQueryError, which a real sqlite3 connection can't easily produce
// since its own failures are always classified by message.
func TestWorkerRunQueryMockedDriverError(t *testing.T) {
	w, mock := newMockedWorker(t)
	mock.ExpectQuery("SELECT m FROM flaky").WillReturnError(context.DeadlineExceeded)

	qe := &model.QueryExecution{Name: "q", Query: testQuery("SELECT m FROM flaky")}

	_, err := w.Execute(context.Background(), qe)
	if err == nil {
		t.Fatal("expected an error")
	}
	qerr, ok := err.(*QueryError)
	if !ok {
		t.Fatalf("expected *QueryError, got %T: %v", err, err)
	}
	if qerr.Fatal {
		t.Errorf("a driver error with no fatal classification signal should not be classified fatal")
	}
}
