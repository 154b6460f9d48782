package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-openapi/strfmt"
	amodels "github.com/prometheus/alertmanager/api/v2/models"
)

// Dispatcher posts firing alerts to an Alertmanager instance's v2 API.
type Dispatcher struct {
	url    string
	client *http.Client
	logger log.Logger
}

// NewDispatcher builds a Dispatcher that POSTs to
// "<alertmanagerURL>/api/v2/alerts".
func NewDispatcher(alertmanagerURL string, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		url:    alertmanagerURL,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Notification is a single firing alert ready for dispatch.
type Notification struct {
	Rule         *Rule
	Query        string
	DBLabels     map[string]string
	ResultLabels map[string]string // full label set from the query result row
	Value        float64
	Start        time.Time
	Duration     time.Duration
}

// selectedLabels returns the subset of ResultLabels named by Rule.Labels,
// read by name from the result row per spec.md §4.6.
func (n Notification) selectedLabels() map[string]string {
	out := make(map[string]string, len(n.Rule.Labels))
	for _, name := range n.Rule.Labels {
		if v, ok := n.ResultLabels[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Send posts notifications to Alertmanager as a single batch. A non-2xx
// response is logged, not retried. Later evaluation cycles do not resend
// an alert that stays firing: the StateMachine reports a series as just
// fired only once until it goes inactive again.
func (d *Dispatcher) Send(ctx context.Context, notifications []Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	alerts := make(amodels.PostableAlerts, 0, len(notifications))
	for _, n := range notifications {
		// labels: database labels ∪ selected alert labels ∪
		// {alertname, severity, query} (spec.md §4.6).
		labels := amodels.LabelSet{}
		for k, v := range n.DBLabels {
			labels[k] = v
		}
		for k, v := range n.selectedLabels() {
			labels[k] = v
		}
		labels["alertname"] = n.Rule.Name
		labels["severity"] = n.Rule.SeverityOrDefault()
		labels["query"] = n.Query

		// annotations: config annotations ∪ defaults for
		// summary/description ∪ {value, duration}.
		annotations := amodels.LabelSet{}
		for k, v := range n.Rule.Annotations {
			annotations[k] = v
		}
		if _, ok := annotations["summary"]; !ok {
			annotations["summary"] = n.Rule.Summary
		}
		if _, ok := annotations["description"]; !ok {
			annotations["description"] = n.Rule.Description
		}
		annotations["value"] = strconv.FormatFloat(n.Value, 'g', -1, 64)
		annotations["duration"] = strconv.FormatFloat(n.Duration.Seconds(), 'f', 0, 64) + "s"

		alerts = append(alerts, &amodels.PostableAlert{
			Alert: amodels.Alert{
				Labels:       labels,
				GeneratorURL: strfmt.URI("query-exporter:///query/" + n.Query + "/alert/" + n.Rule.Name),
			},
			Annotations: annotations,
			StartsAt:    strfmt.DateTime(n.Start),
		})
	}

	body, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("marshaling alerts: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url+"/api/v2/alerts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		level.Warn(d.logger).Log("msg", "failed to send alerts", "err", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		level.Warn(d.logger).Log("msg", "alertmanager rejected alerts", "status", resp.StatusCode)
	}
	return nil
}
