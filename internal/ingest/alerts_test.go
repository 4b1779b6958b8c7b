package ingest

import (
	"testing"
	"time"

	"github.com/scarson/optilink-monitor/internal/database"
)

func record(site string, ts int64, score, utilization float64, errCount int) *database.MetricRecord {
	return &database.MetricRecord{
		SiteName:     site,
		Timestamp:    ts,
		AnomalyScore: score,
		Utilization:  utilization,
		ErrorCount:   errCount,
	}
}

func TestCheck_IndependentRules(t *testing.T) {
	m := NewAlertManager(defaultThresholds())
	now := time.Now().Unix()

	// One record breaching all three rules raises three alerts.
	alerts := m.Check([]*database.MetricRecord{record("SITE-NYC-01", now, 0.9, 95.0, 12)})
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}

	kinds := map[string]bool{}
	for _, a := range alerts {
		kinds[a.Kind] = true
		if a.Site != "SITE-NYC-01" {
			t.Errorf("wrong site on alert: %q", a.Site)
		}
		if a.ID == "" {
			t.Error("alert missing ID")
		}
	}
	for _, kind := range []string{AlertKindAnomaly, AlertKindUtilization, AlertKindErrorRate} {
		if !kinds[kind] {
			t.Errorf("missing alert kind %s", kind)
		}
	}
}

func TestCheck_NoBreachNoAlerts(t *testing.T) {
	m := NewAlertManager(defaultThresholds())
	now := time.Now().Unix()

	alerts := m.Check([]*database.MetricRecord{record("SITE-NYC-01", now, 0.1, 40.0, 2)})
	if len(alerts) != 0 {
		t.Errorf("expected no alerts, got %d", len(alerts))
	}
}

func TestCheck_ThresholdsInclusive(t *testing.T) {
	m := NewAlertManager(defaultThresholds())
	now := time.Now().Unix()

	// Alert rules fire at exactly the threshold.
	alerts := m.Check([]*database.MetricRecord{record("SITE-NYC-01", now, 0.8, 90.0, 10)})
	if len(alerts) != 3 {
		t.Errorf("expected 3 alerts at exact thresholds, got %d", len(alerts))
	}
}

func TestCheck_Severities(t *testing.T) {
	m := NewAlertManager(defaultThresholds())
	now := time.Now().Unix()

	alerts := m.Check([]*database.MetricRecord{record("SITE-NYC-01", now, 0.9, 95.0, 12)})
	bySeverity := map[string]string{}
	for _, a := range alerts {
		bySeverity[a.Kind] = a.Severity
	}

	if bySeverity[AlertKindAnomaly] != SeverityHigh {
		t.Errorf("anomaly severity: got %q", bySeverity[AlertKindAnomaly])
	}
	if bySeverity[AlertKindUtilization] != SeverityWarning {
		t.Errorf("utilization severity: got %q", bySeverity[AlertKindUtilization])
	}
	if bySeverity[AlertKindErrorRate] != SeverityMedium {
		t.Errorf("error rate severity: got %q", bySeverity[AlertKindErrorRate])
	}
}

func TestPrune_DropsAlertsPastLookback(t *testing.T) {
	m := NewAlertManager(defaultThresholds())

	base := time.Unix(1_000_000, 0)
	m.now = func() time.Time { return base }

	// Raise an alert whose triggering sample is 30 minutes old.
	m.Check([]*database.MetricRecord{record("SITE-NYC-01", base.Unix()-1800, 0.9, 0, 0)})
	if got := len(m.Recent(1)); got != 1 {
		t.Fatalf("expected 1 recent alert, got %d", got)
	}

	// 45 minutes later the alert is 75 minutes old; the next evaluation
	// pass prunes it using "now" at prune time.
	m.now = func() time.Time { return base.Add(45 * time.Minute) }
	m.Check(nil)

	if got := len(m.Recent(1)); got != 0 {
		t.Errorf("expected pruned buffer, got %d alerts", got)
	}
}

func TestRecent_WindowFilter(t *testing.T) {
	m := NewAlertManager(defaultThresholds())

	base := time.Unix(1_000_000, 0)
	m.now = func() time.Time { return base }

	m.Check([]*database.MetricRecord{
		record("SITE-NYC-01", base.Unix()-100, 0.9, 0, 0),
		record("SITE-LAX-02", base.Unix()-3000, 0.9, 0, 0),
	})

	if all := m.Recent(1); len(all) != 2 {
		t.Fatalf("expected 2 alerts in 1h window, got %d", len(all))
	}

	// Eviction is lazy: 20 minutes later the older alert has aged out of the
	// 1h read window even though no evaluation pass has pruned it yet.
	m.now = func() time.Time { return base.Add(20 * time.Minute) }
	if got := m.Recent(1); len(got) != 1 {
		t.Errorf("expected 1 alert inside read window, got %d", len(got))
	}
}

func TestCheck_BufferCapEnforced(t *testing.T) {
	m := NewAlertManager(defaultThresholds())
	now := time.Now().Unix()

	records := make([]*database.MetricRecord, 0, maxAlertBuffer+50)
	for i := 0; i < maxAlertBuffer+50; i++ {
		records = append(records, record("SITE-NYC-01", now, 0.9, 0, 0))
	}
	m.Check(records)

	if got := len(m.Recent(1)); got > maxAlertBuffer {
		t.Errorf("buffer exceeded cap: %d > %d", got, maxAlertBuffer)
	}
}
