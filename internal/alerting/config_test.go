package alerting

import (
	"testing"
	"time"
)

func TestParseForDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{"10", 10 * time.Minute}, // bare number defaults to minutes
	}
	for _, c := range cases {
		got, err := ParseForDuration(c.in)
		if err != nil {
			t.Fatalf("ParseForDuration(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseForDuration(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseForDurationRejectsGarbage(t *testing.T) {
	if _, err := ParseForDuration("soon"); err == nil {
		t.Fatal("expected an error for a non-numeric duration")
	}
}

func TestSeverityOrDefault(t *testing.T) {
	r := &Rule{}
	if r.SeverityOrDefault() != "warning" {
		t.Errorf("expected default severity warning, got %q", r.SeverityOrDefault())
	}
	r.Severity = "critical"
	if r.SeverityOrDefault() != "critical" {
		t.Errorf("expected configured severity, got %q", r.SeverityOrDefault())
	}
}
