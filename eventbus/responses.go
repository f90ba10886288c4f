package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davinciframework/davinci-go/orm"
)

// Response statuses recorded per handled event.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
	StatusNoRoute = "NO_ROUTE"
)

var responseSchema = mustResponseSchema()

func mustResponseSchema() *orm.Schema {
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:   "event_bus_responses",
		Description: "Event Bus Responses",
		PartitionKey: orm.Attribute{
			Name:        "event_type",
			Type:        orm.AttributeTypeString,
			Description: "The event type that was handled",
		},
		SortKey: &orm.Attribute{
			Name:        "response_id",
			Type:        orm.AttributeTypeString,
			DefaultFunc: func() any { return uuid.NewString() },
			Description: "The unique ID of the response",
		},
		TTLAttribute: &orm.Attribute{
			Name:        "time_to_live",
			Type:        orm.AttributeTypeDatetime,
			DefaultFunc: func() any { return time.Now().UTC().Add(4 * time.Hour) },
			Description: "When the response record expires",
		},
		Attributes: []orm.Attribute{
			{
				Name:        "created",
				Type:        orm.AttributeTypeDatetime,
				DefaultFunc: func() any { return time.Now().UTC() },
				Description: "The datetime the response was created",
			},
			{
				Name:        "failure_reason",
				Type:        orm.AttributeTypeString,
				Optional:    true,
				Description: "The reason for the failure",
			},
			{
				Name:        "originating_event_id",
				Type:        orm.AttributeTypeString,
				Optional:    true,
				Description: "The ID of the event that triggered the response",
			},
			{
				Name:        "original_event_body",
				Type:        orm.AttributeTypeJSON,
				Optional:    true,
				Description: "The original event body",
			},
			{
				Name:        "response_status",
				Type:        orm.AttributeTypeString,
				Description: "SUCCESS, FAILURE, or NO_ROUTE",
			},
		},
		OnUpdate: func(r *orm.Record) {
			// Failures are kept around longer for triage.
			if r.GetString("response_status") == StatusFailure {
				r.Touch(time.Now().UTC().Add(48*time.Hour), "time_to_live")
			}
		},
	})
	if err != nil {
		panic(err)
	}
	return schema
}

// ResponseSchema returns the schema of the responses table.
func ResponseSchema() *orm.Schema { return responseSchema }

// Responder records the outcome of handled events.
type Responder struct {
	table *orm.TableClient
	log   *zap.Logger
}

// NewResponder creates a responder over the responses table. Pass orm
// client options (resolver or endpoint, client, logger).
func NewResponder(ctx context.Context, opts ...orm.ClientOption) (*Responder, error) {
	table, err := orm.NewTableClient(ctx, responseSchema, opts...)
	if err != nil {
		return nil, err
	}
	return &Responder{table: table, log: zap.NewNop()}, nil
}

// Table exposes the underlying table client.
func (r *Responder) Table() *orm.TableClient { return r.table }

// Respond records the outcome of one handled event.
func (r *Responder) Respond(ctx context.Context, event *Event, status, failureReason string) error {
	values := orm.Values{
		"event_type":           event.EventType,
		"response_status":      status,
		"originating_event_id": event.EventID,
		"original_event_body":  event.Body,
	}
	if failureReason != "" {
		values["failure_reason"] = failureReason
	}

	record, err := responseSchema.New(values)
	if err != nil {
		return err
	}
	return r.table.Put(ctx, record)
}
