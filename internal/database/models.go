package database

// MetricRecord is the durable form of an enriched sample. Records are
// append-only: never mutated after insert, deleted only by retention cleanup.
type MetricRecord struct {
	ID             int64   `json:"id"`
	Timestamp      int64   `json:"timestamp"`
	SiteName       string  `json:"site_name"`
	ThroughputGbps int     `json:"throughput_gbps"`
	ErrorCount     int     `json:"error_count"`
	BERErrors      int     `json:"ber_errors"`
	LinkStatus     int     `json:"link_status"`
	Utilization    float64 `json:"utilization"`
	AnomalyScore   float64 `json:"anomaly_score"`
	ForecastGbps   int     `json:"forecast_gbps"`
}

// SiteInfo summarizes one site's presence in the store over a query window.
type SiteInfo struct {
	Name        string `json:"name"`
	LastSeen    int64  `json:"last_seen"`
	RecordCount int    `json:"record_count"`
}
