package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/scarson/optilink-monitor/internal/database"
	"github.com/scarson/optilink-monitor/internal/ingest"
	"github.com/scarson/optilink-monitor/internal/telemetry"
)

type fakeMetricStore struct {
	latest    []*database.MetricRecord
	anomalies []*database.MetricRecord
	sites     []*database.SiteInfo

	gotLimit     int
	gotSite      string
	gotHours     int
	gotThreshold float64
}

func (f *fakeMetricStore) LatestMetrics(ctx context.Context, limit int) ([]*database.MetricRecord, error) {
	f.gotLimit = limit
	return f.latest, nil
}

func (f *fakeMetricStore) SiteMetrics(ctx context.Context, site string, hours int) ([]*database.MetricRecord, error) {
	f.gotSite = site
	f.gotHours = hours
	return f.latest, nil
}

func (f *fakeMetricStore) Anomalies(ctx context.Context, threshold float64, hours int) ([]*database.MetricRecord, error) {
	f.gotThreshold = threshold
	f.gotHours = hours
	return f.anomalies, nil
}

func (f *fakeMetricStore) Sites(ctx context.Context, hours int) ([]*database.SiteInfo, error) {
	f.gotHours = hours
	return f.sites, nil
}

type fakeIngestor struct {
	result ingest.Result
	err    error
	got    telemetry.Batch
}

func (f *fakeIngestor) Ingest(ctx context.Context, batch telemetry.Batch, source string) (ingest.Result, error) {
	f.got = batch
	return f.result, f.err
}

type fakeAlerts struct {
	alerts []ingest.Alert
}

func (f *fakeAlerts) Recent(hours int) []ingest.Alert {
	return f.alerts
}

func newTestRouter(store *fakeMetricStore, ingestor *fakeIngestor, alerts *fakeAlerts) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewRouter(NewHandler(store, ingestor, alerts, nil, log), log)
}

func TestIngestMetrics_Success(t *testing.T) {
	ingestor := &fakeIngestor{result: ingest.Result{Accepted: 2, AlertsRaised: 1}}
	router := newTestRouter(&fakeMetricStore{}, ingestor, &fakeAlerts{})

	body := `{"sites":[{"site_name":"SITE-NYC-01","timestamp":100,"throughput_gbps":400},
	                   {"site_name":"SITE-LAX-02","timestamp":100,"throughput_gbps":350}]}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/metrics", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp["records_processed"].(float64) != 2 {
		t.Errorf("expected records_processed 2, got %v", resp["records_processed"])
	}
	if resp["alerts_generated"].(float64) != 1 {
		t.Errorf("expected alerts_generated 1, got %v", resp["alerts_generated"])
	}
	if len(ingestor.got.Sites) != 2 {
		t.Errorf("expected 2 sites passed to ingestor, got %d", len(ingestor.got.Sites))
	}
}

func TestIngestMetrics_StructuralError(t *testing.T) {
	router := newTestRouter(&fakeMetricStore{}, &fakeIngestor{}, &fakeAlerts{})

	for _, body := range []string{`not json`, `{"foo": 1}`, `[]`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/metrics", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestIngestMetrics_StoreUnavailable(t *testing.T) {
	ingestor := &fakeIngestor{err: errors.New("store unavailable")}
	router := newTestRouter(&fakeMetricStore{}, ingestor, &fakeAlerts{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/metrics", strings.NewReader(`{"sites":[]}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestGetMetrics_DefaultLimit(t *testing.T) {
	store := &fakeMetricStore{}
	router := newTestRouter(store, &fakeIngestor{}, &fakeAlerts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if store.gotLimit != 100 {
		t.Errorf("expected default limit 100, got %d", store.gotLimit)
	}
}

func TestGetMetrics_ExplicitLimit(t *testing.T) {
	store := &fakeMetricStore{}
	router := newTestRouter(store, &fakeIngestor{}, &fakeAlerts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/metrics?limit=20", nil))

	if store.gotLimit != 20 {
		t.Errorf("expected limit 20, got %d", store.gotLimit)
	}
}

func TestGetSiteMetrics(t *testing.T) {
	store := &fakeMetricStore{}
	router := newTestRouter(store, &fakeIngestor{}, &fakeAlerts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sites/SITE-NYC-01/metrics?hours=6", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if store.gotSite != "SITE-NYC-01" {
		t.Errorf("expected site SITE-NYC-01, got %q", store.gotSite)
	}
	if store.gotHours != 6 {
		t.Errorf("expected hours 6, got %d", store.gotHours)
	}
}

func TestGetAnomalies_Defaults(t *testing.T) {
	store := &fakeMetricStore{}
	router := newTestRouter(store, &fakeIngestor{}, &fakeAlerts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/anomalies", nil))

	if store.gotThreshold != 0.8 {
		t.Errorf("expected default threshold 0.8, got %f", store.gotThreshold)
	}
	if store.gotHours != 24 {
		t.Errorf("expected default hours 24, got %d", store.gotHours)
	}
}

func TestGetAlerts(t *testing.T) {
	alerts := &fakeAlerts{alerts: []ingest.Alert{
		{ID: "a1", Kind: ingest.AlertKindAnomaly, Site: "SITE-NYC-01", Severity: ingest.SeverityHigh},
	}}
	router := newTestRouter(&fakeMetricStore{}, &fakeIngestor{}, alerts)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Alerts []ingest.Alert `json:"alerts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if len(resp.Alerts) != 1 || resp.Alerts[0].ID != "a1" {
		t.Errorf("unexpected alerts payload: %+v", resp.Alerts)
	}
}

func TestGetSites(t *testing.T) {
	store := &fakeMetricStore{sites: []*database.SiteInfo{
		{Name: "SITE-NYC-01", LastSeen: 1000, RecordCount: 42},
	}}
	router := newTestRouter(store, &fakeIngestor{}, &fakeAlerts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sites", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Sites []database.SiteInfo `json:"sites"`
		Count int                 `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Count != 1 || resp.Sites[0].Name != "SITE-NYC-01" {
		t.Errorf("unexpected sites payload: %+v", resp)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&fakeMetricStore{}, &fakeIngestor{}, &fakeAlerts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("unexpected health payload: %s", w.Body.String())
	}
}

func TestDashboardServed(t *testing.T) {
	router := newTestRouter(&fakeMetricStore{}, &fakeIngestor{}, &fakeAlerts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "OptiLink Monitoring Dashboard") {
		t.Error("dashboard HTML not served at /")
	}
}
