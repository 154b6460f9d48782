package model

import (
	"errors"
	"testing"
	"time"
)

func TestQueryExecutionsNoParameters(t *testing.T) {
	q := &Query{Name: "q", SQL: "SELECT 1"}
	execs := q.Executions()
	if len(execs) != 1 || execs[0].Name != "q" {
		t.Fatalf("expected a single execution named after the query, got %+v", execs)
	}
	if execs[0].Parameters != nil {
		t.Errorf("expected nil parameters, got %+v", execs[0].Parameters)
	}
}

func TestQueryExecutionsOnePerParameterSet(t *testing.T) {
	q := &Query{
		Name: "q",
		SQL:  "SELECT :n",
		ParameterSets: []map[string]interface{}{
			{"n": 1},
			{"n": 2},
		},
	}
	execs := q.Executions()
	if len(execs) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(execs))
	}
	if execs[0].Name != "q[params0]" || execs[1].Name != "q[params1]" {
		t.Errorf("unexpected execution names: %q, %q", execs[0].Name, execs[1].Name)
	}
}

func TestQueryTimed(t *testing.T) {
	if (&Query{}).Timed() {
		t.Error("expected an aperiodic query (no interval, no schedule) to not be timed")
	}
	if !(&Query{Interval: time.Second}).Timed() {
		t.Error("expected an interval query to be timed")
	}
	if !(&Query{Schedule: "* * * * *"}).Timed() {
		t.Error("expected a cron-scheduled query to be timed")
	}
}

func TestMapResultsNoLabels(t *testing.T) {
	q := &Query{
		Name:    "q",
		Metrics: []QueryMetric{{Name: "widgets"}},
	}
	raw := QueryResults{
		Columns: []string{"widgets"},
		Rows:    [][]Scalar{{NewScalar(5)}},
	}
	results, err := q.MapResults(raw)
	if err != nil {
		t.Fatalf("MapResults: %v", err)
	}
	if len(results) != 1 || results[0].Value != 5 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestMapResultsWithLabels(t *testing.T) {
	q := &Query{
		Name:    "q",
		Metrics: []QueryMetric{{Name: "widgets", Labels: []string{"warehouse"}}},
	}
	raw := QueryResults{
		Columns: []string{"warehouse", "widgets"},
		Rows: [][]Scalar{
			{NewScalar("east"), NewScalar(5)},
			{NewScalar("west"), NewScalar(9)},
		},
	}
	results, err := q.MapResults(raw)
	if err != nil {
		t.Fatalf("MapResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Labels["warehouse"] != "east" || results[1].Labels["warehouse"] != "west" {
		t.Errorf("unexpected label values: %+v", results)
	}
}

func TestMapResultsWrongColumnNames(t *testing.T) {
	q := &Query{
		Name:    "q",
		Metrics: []QueryMetric{{Name: "widgets", Labels: []string{"warehouse"}}},
	}
	raw := QueryResults{
		Columns: []string{"widgets", "unexpected_column"},
		Rows:    [][]Scalar{{NewScalar(5), NewScalar("x")}},
	}
	_, err := q.MapResults(raw)
	if !errors.Is(err, ErrWrongColumnNames) {
		t.Fatalf("expected ErrWrongColumnNames, got %v", err)
	}
}

func TestMapResultsWrongResultCount(t *testing.T) {
	q := &Query{
		Name:    "q",
		Metrics: []QueryMetric{{Name: "widgets"}},
	}
	raw := QueryResults{
		Columns: []string{"widgets", "extra"},
		Rows:    [][]Scalar{{NewScalar(5), NewScalar(1)}},
	}
	_, err := q.MapResults(raw)
	if !errors.Is(err, ErrWrongResultCount) {
		t.Fatalf("expected ErrWrongResultCount, got %v", err)
	}
}

func TestMapResultsInvalidMetricValue(t *testing.T) {
	q := &Query{
		Name:    "q",
		Metrics: []QueryMetric{{Name: "widgets"}},
	}
	raw := QueryResults{
		Columns: []string{"widgets"},
		Rows:    [][]Scalar{{NewScalar("not-a-number")}},
	}
	_, err := q.MapResults(raw)
	if !errors.Is(err, ErrInvalidMetricValue) {
		t.Fatalf("expected ErrInvalidMetricValue, got %v", err)
	}
}

func TestMapResultsEmptyRowsIsNotAnError(t *testing.T) {
	q := &Query{Name: "q", Metrics: []QueryMetric{{Name: "widgets"}}}
	results, err := q.MapResults(QueryResults{Columns: []string{"widgets"}})
	if err != nil {
		t.Fatalf("MapResults: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for an empty row set, got %+v", results)
	}
}

func TestSortedLabelValues(t *testing.T) {
	got := SortedLabelValues(map[string]string{"b": "2", "a": "1"})
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("expected values sorted by label name, got %+v", got)
	}
}
