package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"github.com/davinciframework/davinci-go/orm"
)

var subscriptionSchema = mustSubscriptionSchema()

func mustSubscriptionSchema() *orm.Schema {
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:   "event_bus_subscriptions",
		Description: "Event Bus Subscriptions",
		PartitionKey: orm.Attribute{
			Name:        "event_type",
			Type:        orm.AttributeTypeString,
			Description: "The event type subscribed to",
		},
		SortKey: &orm.Attribute{
			Name:        "function_name",
			Type:        orm.AttributeTypeString,
			Description: "The function the event is routed to",
		},
		Attributes: []orm.Attribute{
			{
				Name:        "active",
				Type:        orm.AttributeTypeBoolean,
				Default:     true,
				Description: "Whether the subscription receives events",
			},
			{
				Name:        "generates_events",
				Type:        orm.AttributeTypeStringList,
				Optional:    true,
				Description: "The event types the subscribed function may generate",
			},
			{
				Name:        "record_created",
				Type:        orm.AttributeTypeDatetime,
				DefaultFunc: func() any { return time.Now().UTC() },
				Description: "The datetime the subscription was created",
			},
			{
				Name:        "record_last_updated",
				Type:        orm.AttributeTypeDatetime,
				DefaultFunc: func() any { return time.Now().UTC() },
				Description: "The datetime the subscription was last updated",
			},
		},
		OnUpdate: func(r *orm.Record) {
			r.Touch(time.Now().UTC(), "record_last_updated")
		},
	})
	if err != nil {
		panic(err)
	}
	return schema
}

// SubscriptionSchema returns the schema of the subscriptions table.
func SubscriptionSchema() *orm.Schema { return subscriptionSchema }

// NewSubscription builds a subscription record routing an event type to a
// function. generates lists the event types the function may publish in
// turn.
func NewSubscription(eventType, functionName string, generates ...string) (*orm.Record, error) {
	return subscriptionSchema.New(orm.Values{
		"event_type":       eventType,
		"function_name":    functionName,
		"generates_events": generates,
	})
}

// CircularSubscriptionError reports a subscription whose function
// generates the event type it subscribes to, which would loop forever.
type CircularSubscriptionError struct {
	EventType    string
	FunctionName string
}

func (e *CircularSubscriptionError) Error() string {
	return fmt.Sprintf("eventbus: subscription of %s to %s is circular: the function generates the event type it consumes",
		e.FunctionName, e.EventType)
}

// Subscriptions reads and writes the subscriptions table.
type Subscriptions struct {
	table *orm.TableClient
}

// NewSubscriptions creates a client over the subscriptions table. Pass
// orm client options (resolver or endpoint, client, logger).
func NewSubscriptions(ctx context.Context, opts ...orm.ClientOption) (*Subscriptions, error) {
	table, err := orm.NewTableClient(ctx, subscriptionSchema, opts...)
	if err != nil {
		return nil, err
	}
	return &Subscriptions{table: table}, nil
}

// Table exposes the underlying table client.
func (s *Subscriptions) Table() *orm.TableClient { return s.table }

// Get fetches a subscription, or nil when none exists.
func (s *Subscriptions) Get(ctx context.Context, eventType, functionName string) (*orm.Record, error) {
	return s.table.Get(ctx, eventType, functionName)
}

// Put validates and writes a subscription.
func (s *Subscriptions) Put(ctx context.Context, record *orm.Record) error {
	eventType := record.GetString("event_type")
	if generates, ok := record.Get("generates_events").([]string); ok {
		for _, generated := range generates {
			if generated == eventType {
				return &CircularSubscriptionError{
					EventType:    eventType,
					FunctionName: record.GetString("function_name"),
				}
			}
		}
	}
	return s.table.Put(ctx, record)
}

// Delete removes a subscription.
func (s *Subscriptions) Delete(ctx context.Context, eventType, functionName string) error {
	return s.table.DeleteByKey(ctx, eventType, functionName)
}

// AllActive returns the active subscriptions for an event type, querying
// by the event type key with an active-only filter.
func (s *Subscriptions) AllActive(ctx context.Context, eventType string) ([]*orm.Record, error) {
	keyCondition := expression.Key(subscriptionSchema.PartitionKey().KeyName).
		Equal(expression.Value(eventType))
	filter := expression.Name(subscriptionSchema.AttributeDefinition("active").KeyName).
		Equal(expression.Value(true))

	expr, err := expression.NewBuilder().
		WithKeyCondition(keyCondition).
		WithFilter(filter).
		Build()
	if err != nil {
		return nil, fmt.Errorf("eventbus: build subscription query: %w", err)
	}

	paginator, err := s.table.Paginate(orm.PaginateInput{
		Call:                      orm.CallQuery,
		KeyConditionExpression:    aws.ToString(expr.KeyCondition()),
		FilterExpression:          aws.ToString(expr.Filter()),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}
	return paginator.All(ctx)
}

// Scan runs a filtered scan over the subscriptions table.
func (s *Subscriptions) Scan(ctx context.Context, definition *orm.ScanDefinition) ([]*orm.Record, error) {
	return s.table.FullScan(ctx, definition)
}

// NewScanDefinition creates a scan definition for the subscriptions
// table.
func (s *Subscriptions) NewScanDefinition() *orm.ScanDefinition {
	return orm.NewScanDefinition(subscriptionSchema)
}
