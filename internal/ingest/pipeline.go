package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scarson/optilink-monitor/internal/database"
	"github.com/scarson/optilink-monitor/internal/telemetry"
)

// Store is the persistence surface the pipeline writes through.
type Store interface {
	InsertMetricsBatch(ctx context.Context, records []*database.MetricRecord) error
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

// RecordError describes one rejected batch element.
type RecordError struct {
	Index  int    `json:"index"`
	Site   string `json:"site,omitempty"`
	Reason string `json:"reason"`
}

// Result summarizes one ingestion call.
type Result struct {
	Accepted     int
	AlertsRaised int
	Rejected     []RecordError
}

// Pipeline validates enriched-sample batches, persists them atomically, and
// evaluates alert rules over what was stored. Malformed elements are rejected
// individually; only a store failure fails the whole call.
type Pipeline struct {
	store     Store
	alerts    *AlertManager
	retention time.Duration
	sweep     time.Duration
	log       *logrus.Logger
	now       func() time.Time
}

func NewPipeline(store Store, alerts *AlertManager, retention, sweep time.Duration, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		alerts:    alerts,
		retention: retention,
		sweep:     sweep,
		log:       log,
		now:       time.Now,
	}
}

// Alerts exposes the pipeline's alert manager for read queries.
func (p *Pipeline) Alerts() *AlertManager {
	return p.alerts
}

// Ingest validates each element of the batch, persists the valid ones as one
// atomic append, and runs alert evaluation over them. source labels where the
// batch came from (local poll, HTTP, Kafka) for logging.
func (p *Pipeline) Ingest(ctx context.Context, batch telemetry.Batch, source string) (Result, error) {
	var result Result
	var records []*database.MetricRecord

	for i, site := range batch.Sites {
		if reason := validate(site); reason != "" {
			result.Rejected = append(result.Rejected, RecordError{Index: i, Site: site.SiteName, Reason: reason})
			p.log.WithFields(logrus.Fields{
				"source":      source,
				"batch_index": i,
				"site":        site.SiteName,
			}).Warnf("rejecting record: %s", reason)
			continue
		}

		timestamp := site.Timestamp
		if timestamp == 0 {
			timestamp = batch.Timestamp
		}
		if timestamp == 0 {
			timestamp = p.now().Unix()
		}

		records = append(records, &database.MetricRecord{
			Timestamp:      timestamp,
			SiteName:       site.SiteName,
			ThroughputGbps: site.ThroughputGbps,
			ErrorCount:     site.ErrorCount,
			BERErrors:      site.BERErrors,
			LinkStatus:     site.LinkStatus,
			Utilization:    site.Utilization,
			AnomalyScore:   site.AnomalyScore,
			ForecastGbps:   site.ForecastGbps,
		})
	}

	if len(records) > 0 {
		if err := p.store.InsertMetricsBatch(ctx, records); err != nil {
			return result, fmt.Errorf("store unavailable: %w", err)
		}
	}

	result.Accepted = len(records)

	raised := p.alerts.Check(records)
	result.AlertsRaised = len(raised)
	for _, alert := range raised {
		p.log.WithFields(logrus.Fields{
			"type": alert.Kind,
			"site": alert.Site,
		}).Warnf("ALERT: %s", alert.Message)
	}

	return result, nil
}

// CleanupRetention deletes records strictly older than now minus the retention
// window and returns the count. Idempotent: a second run with no new data
// deletes nothing.
func (p *Pipeline) CleanupRetention(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention).Unix()

	deleted, err := p.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention cleanup: %w", err)
	}

	if deleted > 0 {
		p.log.WithField("deleted", deleted).Info("retention cleanup removed old records")
	}
	return deleted, nil
}

// RetentionLoop runs cleanup on its own fixed period until the context ends.
// It shares the store's delete path with any other writer; a failed sweep is
// logged and retried on the next tick.
func (p *Pipeline) RetentionLoop(ctx context.Context) {
	ticker := time.NewTicker(p.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.CleanupRetention(ctx); err != nil {
				p.log.WithError(err).Error("retention cleanup failed")
			}
		}
	}
}

// validate checks one batch element against the strict record shape. An empty
// reason means the element is acceptable.
func validate(site telemetry.EnrichedSample) string {
	if site.SiteName == "" {
		return "empty site name"
	}
	if site.Timestamp < 0 {
		return "negative timestamp"
	}
	if site.ThroughputGbps < 0 {
		return "negative throughput"
	}
	if site.ErrorCount < 0 || site.BERErrors < 0 {
		return "negative error count"
	}
	if !finite(site.Utilization) || site.Utilization < 0 || site.Utilization > 100 {
		return fmt.Sprintf("utilization %.2f outside [0,100]", site.Utilization)
	}
	if !finite(site.AnomalyScore) || site.AnomalyScore < 0 || site.AnomalyScore > 1 {
		return fmt.Sprintf("anomaly score %.2f outside [0,1]", site.AnomalyScore)
	}
	if site.ForecastGbps < 0 {
		return "negative forecast"
	}
	return ""
}

// finite rejects NaN and infinities, which slip past plain range comparisons.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
