// Package discovery resolves the physical endpoints of deployed resources
// (tables, services, queues) by name. Resolution reads either SSM
// parameters or a DynamoDB registry table, selected per deployment, and
// caches results for a bounded time.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"go.uber.org/zap"

	"github.com/davinciframework/davinci-go/env"
	"github.com/davinciframework/davinci-go/orm"
)

// Storage backends for resource registrations.
const (
	StorageSSM      = "ssm"
	StorageDynamoDB = "dynamodb"
)

// Resource types known to the registry.
const (
	ResourceTypeTable        = "table"
	ResourceTypeRESTService  = "rest_service"
	ResourceTypeAsyncService = "async_service"
	ResourceTypeDomain       = "domain"
)

// parameterPrefix roots every SSM registration parameter.
const parameterPrefix = "/da_vinci_v1/service_discovery"

// SSMClient is the subset of the SSM API the ssm backend uses.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
}

// ResourceNotFoundError reports a resource with no registration.
type ResourceNotFoundError struct {
	ResourceType string
	ResourceName string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("discovery: resource %s/%s is not registered", e.ResourceType, e.ResourceName)
}

// Options configures Discovery. Fields left unset fall back to the runtime
// environment variables.
type Options struct {
	AppName      string
	DeploymentID string
	Storage      string

	SSMClient      SSMClient
	DynamoDBClient orm.DynamoDBClient
	AWSConfig      *aws.Config

	CacheTTL time.Duration
	Clock    orm.Clock
	Logger   *zap.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithAppName overrides the application name from the environment.
func WithAppName(appName string) Option {
	return func(o *Options) { o.AppName = appName }
}

// WithDeploymentID overrides the deployment id from the environment.
func WithDeploymentID(deploymentID string) Option {
	return func(o *Options) { o.DeploymentID = deploymentID }
}

// WithStorage selects the registration backend (StorageSSM or
// StorageDynamoDB).
func WithStorage(storage string) Option {
	return func(o *Options) { o.Storage = storage }
}

// WithSSMClient supplies the SSM client used by the ssm backend.
func WithSSMClient(client SSMClient) Option {
	return func(o *Options) { o.SSMClient = client }
}

// WithDynamoDBClient supplies the DynamoDB client used by the dynamodb
// backend.
func WithDynamoDBClient(client orm.DynamoDBClient) Option {
	return func(o *Options) { o.DynamoDBClient = client }
}

// WithAWSConfig supplies the AWS config used to build default clients.
func WithAWSConfig(cfg aws.Config) Option {
	return func(o *Options) { o.AWSConfig = &cfg }
}

// WithCacheTTL bounds endpoint cache entries.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Options) { o.CacheTTL = ttl }
}

// WithClock injects the cache clock.
func WithClock(clock orm.Clock) Option {
	return func(o *Options) { o.Clock = clock }
}

// WithLogger attaches a logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Options) { o.Logger = log }
}

// Discovery resolves resource endpoints. It satisfies orm.EndpointResolver
// so table clients can resolve their tables through it.
type Discovery struct {
	appName      string
	deploymentID string
	storage      string

	ssm      SSMClient
	registry *Registry
	cache    *Cache
	log      *zap.Logger
}

var _ orm.EndpointResolver = (*Discovery)(nil)

// New builds a Discovery for the current deployment. App name, deployment
// id and storage backend come from options or, when unset, from the
// runtime environment.
func New(ctx context.Context, opts ...Option) (*Discovery, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	if o.AppName == "" || o.DeploymentID == "" || o.Storage == "" {
		runtime, err := env.Load()
		if err != nil {
			return nil, err
		}
		if o.AppName == "" {
			o.AppName = runtime.AppName
		}
		if o.DeploymentID == "" {
			o.DeploymentID = runtime.DeploymentID
		}
		if o.Storage == "" {
			o.Storage = runtime.DiscoveryStorage
		}
	}

	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	d := &Discovery{
		appName:      o.AppName,
		deploymentID: o.DeploymentID,
		storage:      o.Storage,
		cache:        NewCache(o.CacheTTL, o.Clock),
		log:          log,
	}

	switch o.Storage {
	case StorageSSM:
		d.ssm = o.SSMClient
		if d.ssm == nil {
			cfg, err := loadConfig(ctx, o.AWSConfig)
			if err != nil {
				return nil, err
			}
			d.ssm = ssm.NewFromConfig(cfg)
		}
	case StorageDynamoDB:
		clientOpts := []orm.ClientOption{
			orm.WithEndpoint(RegistryTableName(o.AppName, o.DeploymentID)),
			orm.WithLogger(log),
		}
		if o.DynamoDBClient != nil {
			clientOpts = append(clientOpts, orm.WithDynamoDBClient(o.DynamoDBClient))
		} else if o.AWSConfig != nil {
			clientOpts = append(clientOpts, orm.WithAWSConfig(*o.AWSConfig))
		}
		registry, err := NewRegistry(ctx, clientOpts...)
		if err != nil {
			return nil, err
		}
		d.registry = registry
	default:
		return nil, fmt.Errorf("discovery: unknown storage backend %q", o.Storage)
	}

	return d, nil
}

func loadConfig(ctx context.Context, cfg *aws.Config) (aws.Config, error) {
	if cfg != nil {
		return *cfg, nil
	}
	loaded, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("discovery: load aws config: %w", err)
	}
	return loaded, nil
}

// ParameterName returns the SSM parameter a resource is registered under.
func (d *Discovery) ParameterName(resourceType, resourceName string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s",
		parameterPrefix, d.appName, d.deploymentID, resourceType, resourceName)
}

// ResolveEndpoint returns the endpoint registered for a resource, reading
// through the cache. An unregistered resource yields a
// ResourceNotFoundError.
func (d *Discovery) ResolveEndpoint(ctx context.Context, resourceType, resourceName string) (string, error) {
	cacheKey := resourceType + "/" + resourceName
	if endpoint, ok := d.cache.Get(cacheKey); ok {
		return endpoint, nil
	}

	var (
		endpoint string
		err      error
	)
	switch d.storage {
	case StorageDynamoDB:
		endpoint, err = d.registry.Endpoint(ctx, resourceType, resourceName)
	default:
		endpoint, err = d.parameterEndpoint(ctx, resourceType, resourceName)
	}
	if err != nil {
		return "", err
	}

	d.cache.Put(cacheKey, endpoint)
	d.log.Debug("resolved endpoint",
		zap.String("resource_type", resourceType),
		zap.String("resource_name", resourceName),
		zap.String("endpoint", endpoint))
	return endpoint, nil
}

func (d *Discovery) parameterEndpoint(ctx context.Context, resourceType, resourceName string) (string, error) {
	out, err := d.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(d.ParameterName(resourceType, resourceName)),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", &ResourceNotFoundError{ResourceType: resourceType, ResourceName: resourceName}
		}
		return "", fmt.Errorf("discovery: get parameter: %w", err)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// Register records a resource endpoint in the configured backend.
func (d *Discovery) Register(ctx context.Context, resourceType, resourceName, endpoint string) error {
	switch d.storage {
	case StorageDynamoDB:
		if err := d.registry.Register(ctx, resourceType, resourceName, endpoint); err != nil {
			return err
		}
	default:
		_, err := d.ssm.PutParameter(ctx, &ssm.PutParameterInput{
			Name:      aws.String(d.ParameterName(resourceType, resourceName)),
			Value:     aws.String(endpoint),
			Type:      ssmtypes.ParameterTypeString,
			Overwrite: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("discovery: put parameter: %w", err)
		}
	}

	d.cache.Put(resourceType+"/"+resourceName, endpoint)
	return nil
}

// Deregister removes a resource registration and drops any cached
// endpoint.
func (d *Discovery) Deregister(ctx context.Context, resourceType, resourceName string) error {
	switch d.storage {
	case StorageDynamoDB:
		if err := d.registry.Deregister(ctx, resourceType, resourceName); err != nil {
			return err
		}
	default:
		_, err := d.ssm.DeleteParameter(ctx, &ssm.DeleteParameterInput{
			Name: aws.String(d.ParameterName(resourceType, resourceName)),
		})
		if err != nil {
			return fmt.Errorf("discovery: delete parameter: %w", err)
		}
	}

	d.cache.Remove(resourceType + "/" + resourceName)
	return nil
}
