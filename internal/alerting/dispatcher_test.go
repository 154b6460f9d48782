package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/log"
	amodels "github.com/prometheus/alertmanager/api/v2/models"
)

func TestDispatcherSendPostsAlertmanagerPayload(t *testing.T) {
	var got amodels.PostableAlerts
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/alerts" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, log.NewNopLogger())
	rule := &Rule{Name: "high_latency", Metric: "query_latency", Labels: []string{"region"}}
	start := time.Now().Add(-time.Minute)
	n := Notification{
		Rule:         rule,
		Query:        "slow_query",
		DBLabels:     map[string]string{"database": "db1"},
		ResultLabels: map[string]string{"region": "us-east"},
		Value:        12.5,
		Start:        start,
		Duration:     time.Minute,
	}

	if err := d.Send(context.Background(), []Notification{n}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 posted alert, got %d", len(got))
	}
	alert := got[0]
	if alert.Labels["alertname"] != "high_latency" {
		t.Errorf("missing alertname label: %+v", alert.Labels)
	}
	if alert.Labels["database"] != "db1" {
		t.Errorf("missing database label: %+v", alert.Labels)
	}
	if alert.Labels["region"] != "us-east" {
		t.Errorf("missing selected result label: %+v", alert.Labels)
	}
	if alert.Labels["severity"] != "warning" {
		t.Errorf("expected default severity, got %q", alert.Labels["severity"])
	}
	if alert.Annotations["value"] != "12.5" {
		t.Errorf("unexpected value annotation: %q", alert.Annotations["value"])
	}
}

func TestDispatcherSendEmptyIsNoop(t *testing.T) {
	d := NewDispatcher("http://127.0.0.1:1", log.NewNopLogger())
	if err := d.Send(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty notifications, got %v", err)
	}
}
