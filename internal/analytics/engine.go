package analytics

import (
	"math"

	"github.com/scarson/optilink-monitor/internal/telemetry"
)

// Engine scores a site's recent history. Implementations must be pure: the
// same window always produces the same outputs. The statistical baseline and
// any model-backed scorer satisfy the same contract, so the pipeline never
// needs to know which one is active.
type Engine interface {
	// AnomalyScore returns a normalized [0,1] measure of how unusual the most
	// recent sample in the window is.
	AnomalyScore(window []telemetry.SiteSample) float64

	// ForecastGbps extrapolates throughput to the forecast horizon, in whole
	// Gbps, never negative.
	ForecastGbps(window []telemetry.SiteSample) int
}

const (
	// minAnomalySamples is the history needed before anomaly scoring engages.
	// Cold-start sites score 0.
	minAnomalySamples = 10

	// minForecastSamples is the history needed before trend extrapolation
	// engages.
	minForecastSamples = 5

	// forecastHorizonSeconds is how far ahead throughput is projected.
	forecastHorizonSeconds = 900

	// errorSpikeCount is the per-sample error count above which the anomaly
	// score is raised regardless of the z-score.
	errorSpikeCount = 10

	// errorSpikeScore is the floor applied on an error spike.
	errorSpikeScore = 0.8
)

// Statistical is the built-in scorer: a three-sigma z-score over recent
// throughput for anomalies, and a linear first-to-last trend for forecasts.
type Statistical struct{}

// NewStatistical returns the baseline statistical engine.
func NewStatistical() *Statistical {
	return &Statistical{}
}

// AnomalyScore computes |z|/3 of the newest sample's throughput against the
// mean and population standard deviation of the last 10 samples, clamped to
// [0,1]. Fewer than 10 samples or zero variance scores 0. An error spike
// (error count above 10) raises the score to at least 0.8.
func (s *Statistical) AnomalyScore(window []telemetry.SiteSample) float64 {
	if len(window) < minAnomalySamples {
		return 0.0
	}

	current := window[len(window)-1]
	recent := window[len(window)-minAnomalySamples:]

	var sum float64
	for _, r := range recent {
		sum += float64(r.ThroughputGbps)
	}
	mean := sum / float64(len(recent))

	var variance float64
	for _, r := range recent {
		d := float64(r.ThroughputGbps) - mean
		variance += d * d
	}
	variance /= float64(len(recent))
	std := math.Sqrt(variance)

	var score float64
	if std > 0 {
		z := math.Abs(float64(current.ThroughputGbps)-mean) / std
		score = math.Min(z/3.0, 1.0)
	}

	if current.ErrorCount > errorSpikeCount {
		score = math.Max(score, errorSpikeScore)
	}

	return score
}

// ForecastGbps fits a slope through the earliest and latest of the last 5
// samples and projects it 900 seconds past the latest one, floored at zero.
// Fewer than 5 samples, or 5 samples sharing one timestamp, return the
// current throughput unchanged.
func (s *Statistical) ForecastGbps(window []telemetry.SiteSample) int {
	if len(window) < minForecastSamples {
		if len(window) == 0 {
			return 0
		}
		return window[len(window)-1].ThroughputGbps
	}

	recent := window[len(window)-minForecastSamples:]
	first := recent[0]
	last := recent[len(recent)-1]

	if last.Timestamp == first.Timestamp {
		return last.ThroughputGbps
	}

	slope := float64(last.ThroughputGbps-first.ThroughputGbps) / float64(last.Timestamp-first.Timestamp)
	forecast := int(float64(last.ThroughputGbps) + slope*forecastHorizonSeconds)
	if forecast < 0 {
		forecast = 0
	}
	return forecast
}
