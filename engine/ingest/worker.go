package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/GridwatchAI/gridwatch-mvp/pkg/natsutil"
)

const (
	// Subject is the NATS subject for incoming documents.
	Subject = "intel.ingest"
	// DLQSubject is the dead letter queue for documents that failed
	// MaxRetries times.
	DLQSubject = "intel.ingest.dlq"
	// MaxRetries before a document lands in the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Document Document `json:"document"`
	Error    string   `json:"error"`
	Retries  int      `json:"retries"`
}

// PublishDocument sends a document envelope to the ingestion worker,
// propagating trace context through message headers.
func PublishDocument(ctx context.Context, nc *nats.Conn, doc Document) error {
	return natsutil.Publish(ctx, nc, Subject, doc)
}

// StartConsumer subscribes to the ingest subject and runs each document
// through the pipeline. Failures are re-published with an incremented retry
// count until MaxRetries, then go to the DLQ.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(Subject, func(msg *nats.Msg) {
		var doc Document
		if err := json.Unmarshal(msg.Data, &doc); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		if deps.DeduplicateF != nil {
			sourceID := peekSourceID(doc)
			exists, err := deps.DeduplicateF(ctx, sourceID)
			if err != nil {
				log.Warn("ingest: dedup check failed", "error", err)
			} else if exists {
				log.Info("ingest: skipping duplicate", "source_id", sourceID)
				ackIfNeeded(msg)
				return
			}
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, doc)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"kind", doc.Kind,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{Document: doc, Error: pipeErr.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(Subject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			sourceID, _ := result.Unwrap()
			log.Info("ingest: success", "source_id", sourceID)
		}

		ackIfNeeded(msg)
	})
}

// peekSourceID extracts just the id field without full validation, for the
// dedup check.
func peekSourceID(doc Document) string {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(doc.Data, &probe)
	return string(doc.Kind) + ":" + probe.ID
}

func ackIfNeeded(msg *nats.Msg) {
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}
