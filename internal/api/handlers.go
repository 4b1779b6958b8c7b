package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/scarson/optilink-monitor/internal/database"
	"github.com/scarson/optilink-monitor/internal/ingest"
	"github.com/scarson/optilink-monitor/internal/telemetry"
)

// Query parameter defaults.
const (
	defaultLimit     = 100
	defaultHours     = 24
	defaultAlertHrs  = 1
	defaultThreshold = 0.8
)

// MetricStore is the read surface the query handlers need.
type MetricStore interface {
	LatestMetrics(ctx context.Context, limit int) ([]*database.MetricRecord, error)
	SiteMetrics(ctx context.Context, site string, hours int) ([]*database.MetricRecord, error)
	Anomalies(ctx context.Context, threshold float64, hours int) ([]*database.MetricRecord, error)
	Sites(ctx context.Context, hours int) ([]*database.SiteInfo, error)
}

// Ingestor accepts enriched batches.
type Ingestor interface {
	Ingest(ctx context.Context, batch telemetry.Batch, source string) (ingest.Result, error)
}

// AlertReader serves alerts from the recent buffer.
type AlertReader interface {
	Recent(hours int) []ingest.Alert
}

// LiveReader serves the latest cached sample per site.
type LiveReader interface {
	All(ctx context.Context) ([]telemetry.EnrichedSample, error)
}

type Handler struct {
	store    MetricStore
	ingestor Ingestor
	alerts   AlertReader
	live     LiveReader // optional
	logger   *logrus.Logger
}

func NewHandler(store MetricStore, ingestor Ingestor, alerts AlertReader, live LiveReader, logger *logrus.Logger) *Handler {
	return &Handler{store: store, ingestor: ingestor, alerts: alerts, live: live, logger: logger}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   "1.0.0",
	})
}

// IngestMetrics accepts a batch of enriched site samples.
func (h *Handler) IngestMetrics(c *gin.Context) {
	var batch telemetry.Batch
	if err := c.ShouldBindJSON(&batch); err != nil {
		h.logger.WithError(err).Warn("rejected malformed ingest payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data format"})
		return
	}
	if batch.Sites == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data format: missing sites"})
		return
	}

	result, err := h.ingestor.Ingest(c.Request.Context(), batch, "http")
	if err != nil {
		h.logger.WithError(err).Error("ingest failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "success",
		"records_processed": result.Accepted,
		"alerts_generated":  result.AlertsRaised,
		"rejected":          result.Rejected,
	})
}

// GetMetrics returns the latest records across all sites.
func (h *Handler) GetMetrics(c *gin.Context) {
	limit := intQuery(c, "limit", defaultLimit)

	records, err := h.store.LatestMetrics(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("failed to query latest metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now().Unix(),
		"metrics":   emptyIfNil(records),
	})
}

// GetSiteMetrics returns one site's records within a trailing window.
func (h *Handler) GetSiteMetrics(c *gin.Context) {
	site := c.Param("site")
	hours := intQuery(c, "hours", defaultHours)

	records, err := h.store.SiteMetrics(c.Request.Context(), site, hours)
	if err != nil {
		h.logger.WithError(err).WithField("site", site).Error("failed to query site metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"site":    site,
		"hours":   hours,
		"metrics": emptyIfNil(records),
	})
}

// GetAnomalies returns records at or above the score threshold.
func (h *Handler) GetAnomalies(c *gin.Context) {
	threshold := floatQuery(c, "threshold", defaultThreshold)
	hours := intQuery(c, "hours", defaultHours)

	records, err := h.store.Anomalies(c.Request.Context(), threshold, hours)
	if err != nil {
		h.logger.WithError(err).Error("failed to query anomalies")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"threshold": threshold,
		"hours":     hours,
		"anomalies": emptyIfNil(records),
	})
}

// GetAlerts returns alerts from the recent buffer.
func (h *Handler) GetAlerts(c *gin.Context) {
	hours := intQuery(c, "hours", defaultAlertHrs)

	alerts := h.alerts.Recent(hours)
	if alerts == nil {
		alerts = []ingest.Alert{}
	}

	c.JSON(http.StatusOK, gin.H{
		"hours":  hours,
		"alerts": alerts,
	})
}

// GetSites returns the site directory for a trailing window.
func (h *Handler) GetSites(c *gin.Context) {
	hours := intQuery(c, "hours", defaultHours)

	sites, err := h.store.Sites(c.Request.Context(), hours)
	if err != nil {
		h.logger.WithError(err).Error("failed to query sites")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if sites == nil {
		sites = []*database.SiteInfo{}
	}

	c.JSON(http.StatusOK, gin.H{
		"sites": sites,
		"count": len(sites),
	})
}

// GetLive returns the latest cached sample for every site.
func (h *Handler) GetLive(c *gin.Context) {
	if h.live == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "live cache not configured"})
		return
	}

	samples, err := h.live.All(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to read live cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache unavailable"})
		return
	}
	if samples == nil {
		samples = []telemetry.EnrichedSample{}
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now().Unix(),
		"sites":     samples,
	})
}

func intQuery(c *gin.Context, name string, defaultValue int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}

func floatQuery(c *gin.Context, name string, defaultValue float64) float64 {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func emptyIfNil(records []*database.MetricRecord) []*database.MetricRecord {
	if records == nil {
		return []*database.MetricRecord{}
	}
	return records
}
