package agent

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scarson/optilink-monitor/internal/analytics"
	"github.com/scarson/optilink-monitor/internal/history"
	"github.com/scarson/optilink-monitor/internal/ingest"
	"github.com/scarson/optilink-monitor/internal/shmem"
	"github.com/scarson/optilink-monitor/internal/telemetry"
)

// Source is where raw site samples come from. The shared-memory reader is the
// production implementation.
type Source interface {
	ReadAll() ([]telemetry.SiteSample, []error)
	Close() error
}

// Sink receives enriched batches from the poll cycle: a Kafka publisher, a
// local ingestion pipeline, or both via Fanout.
type Sink interface {
	Publish(ctx context.Context, batch telemetry.Batch) error
}

// LatestCache receives a write-through copy of every enriched sample for live
// reads.
type LatestCache interface {
	Set(ctx context.Context, sample telemetry.EnrichedSample) error
}

// IngestSink adapts a local ingestion pipeline to the Sink contract.
type IngestSink struct {
	Pipeline *ingest.Pipeline
}

func (s IngestSink) Publish(ctx context.Context, batch telemetry.Batch) error {
	_, err := s.Pipeline.Ingest(ctx, batch, "agent")
	return err
}

// Fanout publishes a batch to every sink, returning the first error after
// trying all of them.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, batch telemetry.Batch) error {
	var firstErr error
	for _, sink := range f {
		if err := sink.Publish(ctx, batch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Agent owns the poll, score and forward cycle. One goroutine runs the cycle
// on a fixed period; cycles never overlap, a slow cycle delays the next tick
// instead of running concurrently with it.
type Agent struct {
	open          func() (Source, error)
	history       *history.Store
	engine        analytics.Engine
	sink          Sink
	cache         LatestCache // optional
	pollInterval  time.Duration
	retryBackoff  time.Duration
	anomalyWindow int
	log           *logrus.Logger
	now           func() time.Time
}

// Options carries the agent's collaborators and tuning.
type Options struct {
	Open          func() (Source, error)
	History       *history.Store
	Engine        analytics.Engine
	Sink          Sink
	Cache         LatestCache
	PollInterval  time.Duration
	RetryBackoff  time.Duration
	AnomalyWindow int
	Log           *logrus.Logger
}

func New(opts Options) *Agent {
	return &Agent{
		open:          opts.Open,
		history:       opts.History,
		engine:        opts.Engine,
		sink:          opts.Sink,
		cache:         opts.Cache,
		pollInterval:  opts.PollInterval,
		retryBackoff:  opts.RetryBackoff,
		anomalyWindow: opts.AnomalyWindow,
		log:           opts.Log,
		now:           time.Now,
	}
}

// Run polls until the context ends. Acquisition failures never terminate the
// loop: the source is closed, the backoff state advances, and reconnection is
// attempted once the backoff expires.
func (a *Agent) Run(ctx context.Context) {
	backoff := NewBackoff(a.retryBackoff)

	var src Source
	defer func() {
		if src != nil {
			src.Close()
		}
	}()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if src == nil {
			if !backoff.Ready() {
				continue
			}
			s, err := a.open()
			if err != nil {
				backoff.Failure()
				a.log.WithError(err).WithField("attempts", backoff.Attempts()).
					Error("failed to acquire telemetry source, backing off")
				continue
			}
			src = s
			backoff.Reset()
			a.log.Info("telemetry source acquired")
		}

		if reconnect := a.cycle(ctx, src); reconnect {
			src.Close()
			src = nil
			backoff.Failure()
		}
	}
}

// cycle runs one poll pass. It returns true when the source must be reopened.
func (a *Agent) cycle(ctx context.Context, src Source) bool {
	samples, errs := src.ReadAll()

	for _, err := range errs {
		var acqErr *shmem.AcquisitionError
		if errors.As(err, &acqErr) {
			a.log.WithError(err).Error("telemetry source lost, reconnecting")
			return true
		}
		// Malformed slot: skip the site for this cycle, keep the rest.
		a.log.WithError(err).Warn("skipping undecodable site record")
	}

	if len(samples) == 0 {
		return false
	}

	batch := telemetry.Batch{Timestamp: a.now().Unix()}
	for _, sample := range samples {
		a.history.Record(sample)
		window := a.history.Window(sample.SiteName, a.anomalyWindow)

		enriched := telemetry.EnrichedSample{
			SiteSample:   sample,
			AnomalyScore: a.engine.AnomalyScore(window),
			ForecastGbps: a.engine.ForecastGbps(window),
		}
		batch.Sites = append(batch.Sites, enriched)

		if a.cache != nil {
			if err := a.cache.Set(ctx, enriched); err != nil {
				a.log.WithError(err).WithField("site", sample.SiteName).
					Warn("failed to update latest-sample cache")
			}
		}
	}

	if err := a.sink.Publish(ctx, batch); err != nil {
		a.log.WithError(err).Error("failed to forward enriched batch")
		return false
	}

	a.log.WithField("sites", len(batch.Sites)).Debug("cycle complete")
	return false
}
