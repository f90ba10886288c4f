package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/davinciframework/davinci-go/discovery"
	"github.com/davinciframework/davinci-go/orm"
)

// EventBusResourceName is the async service the bus queue is registered
// under.
const EventBusResourceName = "event_bus"

// SQSClient is the subset of the SQS API the publisher uses.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type publisherOptions struct {
	queueURL  string
	client    SQSClient
	awsConfig *aws.Config
	logger    *zap.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*publisherOptions)

// WithQueueURL sets the bus queue URL directly, skipping resolution.
func WithQueueURL(queueURL string) PublisherOption {
	return func(o *publisherOptions) { o.queueURL = queueURL }
}

// WithSQSClient supplies the SQS client to use.
func WithSQSClient(client SQSClient) PublisherOption {
	return func(o *publisherOptions) { o.client = client }
}

// WithAWSConfig supplies the AWS config used to build the default client.
func WithAWSConfig(cfg aws.Config) PublisherOption {
	return func(o *publisherOptions) { o.awsConfig = &cfg }
}

// WithLogger attaches a logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) PublisherOption {
	return func(o *publisherOptions) { o.logger = log }
}

// Publisher submits events to the bus queue.
type Publisher struct {
	client   SQSClient
	queueURL string
	log      *zap.Logger
}

// NewPublisher builds a publisher for the deployment's bus queue. The
// queue URL comes from WithQueueURL or a resolver lookup of the event_bus
// async service.
func NewPublisher(ctx context.Context, resolver orm.EndpointResolver, opts ...PublisherOption) (*Publisher, error) {
	var o publisherOptions
	for _, opt := range opts {
		opt(&o)
	}

	queueURL := o.queueURL
	if queueURL == "" {
		if resolver == nil {
			return nil, fmt.Errorf("eventbus: no queue url provided and no resolver configured")
		}
		resolved, err := resolver.ResolveEndpoint(ctx, discovery.ResourceTypeAsyncService, EventBusResourceName)
		if err != nil {
			return nil, err
		}
		queueURL = resolved
	}

	client := o.client
	if client == nil {
		cfg := o.awsConfig
		if cfg == nil {
			loaded, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("eventbus: load aws config: %w", err)
			}
			cfg = &loaded
		}
		client = sqs.NewFromConfig(*cfg)
	}

	log := o.logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Publisher{client: client, queueURL: queueURL, log: log}, nil
}

// QueueURL returns the resolved bus queue URL.
func (p *Publisher) QueueURL() string { return p.queueURL }

// Submit publishes an event, optionally delaying its delivery. Delays are
// rounded down to whole seconds (the SQS maximum is 15 minutes).
func (p *Publisher) Submit(ctx context.Context, event *Event, delay time.Duration) error {
	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("eventbus: encode event: %w", err)
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if delay > 0 {
		in.DelaySeconds = int32(delay / time.Second)
	}

	if _, err := p.client.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("eventbus: submit event %s: %w", event.EventType, err)
	}

	p.log.Debug("submitted event",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.Duration("delay", delay))
	return nil
}
