package queue

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/scarson/optilink-monitor/internal/ingest"
	"github.com/scarson/optilink-monitor/internal/telemetry"
)

// Bridge consumes enriched-sample batches from Kafka and feeds them into the
// same ingestion path used by the HTTP endpoint. Malformed messages are
// committed and skipped so they cannot poison the partition.
type Bridge struct {
	consumer *Consumer
	pipeline *ingest.Pipeline
	log      *logrus.Logger
}

func NewBridge(consumer *Consumer, pipeline *ingest.Pipeline, log *logrus.Logger) *Bridge {
	return &Bridge{consumer: consumer, pipeline: pipeline, log: log}
}

// Run consumes until the context ends.
func (b *Bridge) Run(ctx context.Context) {
	for {
		msg, err := b.consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.WithError(err).Error("failed to consume message")
			continue
		}

		var batch telemetry.Batch
		if err := json.Unmarshal(msg.Value, &batch); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Warn("skipping undecodable batch message")
			b.commit(ctx, msg)
			continue
		}

		result, err := b.pipeline.Ingest(ctx, batch, "kafka")
		if err != nil {
			// Store unavailable: leave the offset uncommitted so the batch is
			// redelivered once the store recovers.
			b.log.WithError(err).Error("failed to ingest batch from kafka")
			continue
		}

		b.log.WithFields(logrus.Fields{
			"accepted": result.Accepted,
			"alerts":   result.AlertsRaised,
			"rejected": len(result.Rejected),
		}).Debug("ingested batch from kafka")

		b.commit(ctx, msg)
	}
}

func (b *Bridge) commit(ctx context.Context, msg kafka.Message) {
	if err := b.consumer.Commit(ctx, msg); err != nil {
		b.log.WithError(err).Error("failed to commit offset")
	}
}
