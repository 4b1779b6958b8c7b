package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scarson/optilink-monitor/internal/database"
	"github.com/scarson/optilink-monitor/pkg/config"
)

// Alert kinds.
const (
	AlertKindAnomaly     = "anomaly"
	AlertKindUtilization = "utilization"
	AlertKindErrorRate   = "error_rate"
)

// Alert severities.
const (
	SeverityHigh    = "high"
	SeverityWarning = "warning"
	SeverityMedium  = "medium"
)

// alertLookback is how long a raised alert stays in the recent buffer.
const alertLookback = time.Hour

// maxAlertBuffer caps the recent-alert buffer independently of the lookback,
// so a flapping site cannot grow it without bound between prunes.
const maxAlertBuffer = 1000

// Alert is a derived, ephemeral record of a threshold breach. Alerts live only
// in the recent buffer and expire after the lookback window.
type Alert struct {
	ID        string  `json:"id"`
	Kind      string  `json:"type"`
	Site      string  `json:"site"`
	Severity  string  `json:"severity"`
	Message   string  `json:"message"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// AlertManager evaluates threshold rules over ingested records and keeps the
// bounded recent-alert buffer. Append, prune and read are all mutex-guarded:
// the poll cycle writes while API readers fetch concurrently.
type AlertManager struct {
	mu         sync.Mutex
	thresholds config.ThresholdConfig
	recent     []Alert
	now        func() time.Time
}

// NewAlertManager creates a manager with the given thresholds. The thresholds
// are fixed for the lifetime of the manager.
func NewAlertManager(thresholds config.ThresholdConfig) *AlertManager {
	return &AlertManager{
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Check evaluates the three threshold rules against every record. The rules
// are independent: a single record may raise zero, one, or several alerts.
// Newly raised alerts are appended to the recent buffer, which is then pruned
// against wall-clock "now".
func (m *AlertManager) Check(records []*database.MetricRecord) []Alert {
	var alerts []Alert

	for _, record := range records {
		if record.AnomalyScore >= m.thresholds.AnomalyScore {
			alerts = append(alerts, Alert{
				ID:        uuid.NewString(),
				Kind:      AlertKindAnomaly,
				Site:      record.SiteName,
				Severity:  SeverityHigh,
				Message:   fmt.Sprintf("Anomaly detected at %s (score: %.2f)", record.SiteName, record.AnomalyScore),
				Value:     record.AnomalyScore,
				Timestamp: record.Timestamp,
			})
		}

		if record.Utilization >= m.thresholds.Utilization {
			alerts = append(alerts, Alert{
				ID:        uuid.NewString(),
				Kind:      AlertKindUtilization,
				Site:      record.SiteName,
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("High utilization at %s (%.1f%%)", record.SiteName, record.Utilization),
				Value:     record.Utilization,
				Timestamp: record.Timestamp,
			})
		}

		if record.ErrorCount >= m.thresholds.ErrorCount {
			alerts = append(alerts, Alert{
				ID:        uuid.NewString(),
				Kind:      AlertKindErrorRate,
				Site:      record.SiteName,
				Severity:  SeverityMedium,
				Message:   fmt.Sprintf("High error count at %s (%d errors)", record.SiteName, record.ErrorCount),
				Value:     float64(record.ErrorCount),
				Timestamp: record.Timestamp,
			})
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent = append(m.recent, alerts...)
	m.pruneLocked()

	return alerts
}

// Recent returns alerts from the trailing window, newest last.
func (m *AlertManager) Recent(hours int) []Alert {
	cutoff := m.now().Unix() - int64(hours)*3600

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Alert
	for _, alert := range m.recent {
		if alert.Timestamp >= cutoff {
			result = append(result, alert)
		}
	}
	return result
}

// pruneLocked drops alerts older than the lookback window, then enforces the
// hard buffer cap oldest-first. Caller holds the mutex.
func (m *AlertManager) pruneLocked() {
	cutoff := m.now().Add(-alertLookback).Unix()

	kept := m.recent[:0]
	for _, alert := range m.recent {
		if alert.Timestamp >= cutoff {
			kept = append(kept, alert)
		}
	}
	m.recent = kept

	if len(m.recent) > maxAlertBuffer {
		m.recent = m.recent[len(m.recent)-maxAlertBuffer:]
	}
}
