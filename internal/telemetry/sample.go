package telemetry

// Link status values as published by the kernel producer.
const (
	LinkDown     = 0
	LinkUp       = 1
	LinkDegraded = 2
)

// SiteSample is one decoded per-site measurement from the shared-memory region.
type SiteSample struct {
	SiteName       string  `json:"site_name"`
	Timestamp      int64   `json:"timestamp"`
	ThroughputGbps int     `json:"throughput_gbps"`
	ErrorCount     int     `json:"error_count"`
	BERErrors      int     `json:"ber_errors"`
	LinkStatus     int     `json:"link_status"`
	Utilization    float64 `json:"utilization"`
}

// EnrichedSample is a SiteSample plus the analytics outputs. Produced once per
// raw sample and immutable afterwards.
type EnrichedSample struct {
	SiteSample
	AnomalyScore float64 `json:"anomaly_score"`
	ForecastGbps int     `json:"forecast_gbps"`
}

// Batch is the ingestion wire format, shared by the HTTP endpoint and the
// Kafka bridge. A zero element timestamp means "assign at ingest".
type Batch struct {
	Timestamp int64            `json:"timestamp,omitempty"`
	Sites     []EnrichedSample `json:"sites"`
}
