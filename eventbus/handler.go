package eventbus

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// HandlerFunc processes a single bus event.
type HandlerFunc func(context.Context, *Event) error

// Handle wraps an event handler for lambda.Start: it decodes each SQS
// record into an Event, invokes the handler, and records the outcome
// through the responder. Undecodable messages are logged and dropped;
// handler failures are recorded but do not fail the batch, so one bad
// event cannot wedge the queue.
func Handle(fn HandlerFunc, responder *Responder, log *zap.Logger) func(context.Context, events.SQSEvent) error {
	if log == nil {
		log = zap.NewNop()
	}

	return func(ctx context.Context, sqsEvent events.SQSEvent) error {
		for _, message := range sqsEvent.Records {
			event, err := ParseEvent([]byte(message.Body))
			if err != nil {
				log.Error("dropping undecodable message",
					zap.String("message_id", message.MessageId),
					zap.Error(err))
				continue
			}

			if err := fn(ctx, event); err != nil {
				log.Error("event handler failed",
					zap.String("event_id", event.EventID),
					zap.String("event_type", event.EventType),
					zap.Error(err))
				respond(ctx, responder, event, StatusFailure, err.Error(), log)
				continue
			}

			respond(ctx, responder, event, StatusSuccess, "", log)
		}
		return nil
	}
}

// respond records an outcome, tolerating a nil responder and logging
// write failures instead of surfacing them.
func respond(ctx context.Context, responder *Responder, event *Event, status, failureReason string, log *zap.Logger) {
	if responder == nil {
		return
	}
	if err := responder.Respond(ctx, event, status, failureReason); err != nil {
		log.Error("failed to record event response",
			zap.String("event_id", event.EventID),
			zap.String("status", status),
			zap.Error(err))
	}
}
