// Package worker consumes the delivery stream and fans each record out to
// the target user's live connections.
package worker

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/ivossos/growzone-realtime/internal/event"
	"github.com/ivossos/growzone-realtime/internal/fanout"
	"github.com/ivossos/growzone-realtime/internal/publish"
)

// Deliverer is the fanout surface the worker drives.
type Deliverer interface {
	DeliverToUser(ctx context.Context, userID int64, ev event.Outbound) (fanout.Report, error)
}

// Worker handles batches of delivery-stream records.
type Worker struct {
	Router Deliverer
	Logger zerolog.Logger
}

// HandleKinesisEvent processes a batch. One bad record or failed fanout is
// logged and skipped; it never fails the batch, since delivery here is
// best-effort presence traffic, not a durable queue.
func (w *Worker) HandleKinesisEvent(ctx context.Context, kinesisEvent events.KinesisEvent) error {
	for _, record := range kinesisEvent.Records {
		if err := w.processRecord(ctx, record); err != nil {
			w.Logger.Error().Err(err).
				Str("event_id", record.EventID).
				Msg("failed to process record")
		}
	}
	return nil
}

func (w *Worker) processRecord(ctx context.Context, record events.KinesisEventRecord) error {
	var envelope publish.Envelope
	if err := json.Unmarshal(record.Kinesis.Data, &envelope); err != nil {
		return err
	}
	if envelope.UserID == 0 || envelope.Event.Type == "" {
		w.Logger.Warn().Str("event_id", record.EventID).Msg("incomplete envelope, skipping")
		return nil
	}

	report, err := w.Router.DeliverToUser(ctx, envelope.UserID, envelope.Event)
	if err != nil {
		return err
	}

	w.Logger.Debug().
		Int64("user_id", envelope.UserID).
		Str("event", envelope.Event.Type).
		Int("attempted", report.Attempted).
		Int("delivered", report.Delivered).
		Int("pruned", report.Pruned).
		Msg("record dispatched")
	return nil
}
