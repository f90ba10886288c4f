package orm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// DynamoDBClient is the subset of the DynamoDB API the table client uses.
// *dynamodb.Client satisfies it; tests substitute mocks.
type DynamoDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// EndpointResolver discovers the physical endpoint backing a named
// resource. For tables the endpoint is the deployed table name. The
// discovery package provides the standard implementation.
type EndpointResolver interface {
	ResolveEndpoint(ctx context.Context, resourceType, resourceName string) (string, error)
}

// ResourceTypeTable is the resource type table clients resolve with.
const ResourceTypeTable = "table"

// ClientOptions configures a TableClient. Populate it through ClientOption
// functions.
type ClientOptions struct {
	Endpoint  string
	Resolver  EndpointResolver
	Client    DynamoDBClient
	AWSConfig *aws.Config
	Logger    *zap.Logger
}

// ClientOption mutates ClientOptions.
type ClientOption func(*ClientOptions)

// WithEndpoint sets the physical table name directly, skipping resolution.
func WithEndpoint(endpoint string) ClientOption {
	return func(o *ClientOptions) { o.Endpoint = endpoint }
}

// WithResolver resolves the table name through a discovery backend.
func WithResolver(resolver EndpointResolver) ClientOption {
	return func(o *ClientOptions) { o.Resolver = resolver }
}

// WithDynamoDBClient supplies the DynamoDB client to use.
func WithDynamoDBClient(client DynamoDBClient) ClientOption {
	return func(o *ClientOptions) { o.Client = client }
}

// WithAWSConfig supplies the AWS config used to build the default client.
func WithAWSConfig(cfg aws.Config) ClientOption {
	return func(o *ClientOptions) { o.AWSConfig = &cfg }
}

// WithLogger attaches a logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) ClientOption {
	return func(o *ClientOptions) { o.Logger = log }
}

// TableClient executes operations against a single table described by a
// Schema.
type TableClient struct {
	schema    *Schema
	tableName string
	client    DynamoDBClient
	log       *zap.Logger
}

// NewTableClient builds a client for the schema's table. The physical
// table name comes from WithEndpoint or a WithResolver lookup; without
// either the constructor fails with ErrNoEndpoint.
func NewTableClient(ctx context.Context, schema *Schema, opts ...ClientOption) (*TableClient, error) {
	var o ClientOptions
	for _, opt := range opts {
		opt(&o)
	}

	tableName := o.Endpoint
	if tableName == "" {
		if o.Resolver == nil {
			return nil, fmt.Errorf("%w (table %q)", ErrNoEndpoint, schema.TableName)
		}
		resolved, err := o.Resolver.ResolveEndpoint(ctx, ResourceTypeTable, schema.TableName)
		if err != nil {
			return nil, err
		}
		tableName = resolved
	}

	client := o.Client
	if client == nil {
		cfg := o.AWSConfig
		if cfg == nil {
			loaded, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("orm: load aws config: %w", err)
			}
			cfg = &loaded
		}
		client = dynamodb.NewFromConfig(*cfg)
	}

	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &TableClient{
		schema:    schema,
		tableName: tableName,
		client:    client,
		log:       log,
	}, nil
}

// Schema returns the client's schema.
func (c *TableClient) Schema() *Schema { return c.schema }

// TableName returns the resolved physical table name.
func (c *TableClient) TableName() string { return c.tableName }

type readOptions struct {
	consistent bool
}

// ReadOption configures a single read call.
type ReadOption func(*readOptions)

// WithConsistentRead requests a strongly consistent read.
func WithConsistentRead() ReadOption {
	return func(o *readOptions) { o.consistent = true }
}

// Get fetches a record by key. A missing item returns (nil, nil). Tables
// with a sort key require a non-nil sortValue.
func (c *TableClient) Get(ctx context.Context, partitionValue, sortValue any, opts ...ReadOption) (*Record, error) {
	var ro readOptions
	for _, opt := range opts {
		opt(&ro)
	}

	key, err := c.schema.Key(partitionValue, sortValue)
	if err != nil {
		return nil, err
	}

	in := &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       key,
	}
	if ro.consistent {
		in.ConsistentRead = aws.Bool(true)
	}

	out, err := c.client.GetItem(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("orm: get %s: %w", c.tableName, err)
	}
	if len(out.Item) == 0 {
		c.log.Debug("item not found",
			zap.String("table", c.tableName),
			zap.Any("partition_value", partitionValue))
		return nil, nil
	}
	return c.schema.UnmarshalItem(out.Item)
}

// Put writes a record, running the schema's on-update hook first.
func (c *TableClient) Put(ctx context.Context, record *Record) error {
	record.ExecuteOnUpdate()

	item, err := record.MarshalItem()
	if err != nil {
		return err
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return c.wrapWriteError("put", err)
	}
	c.log.Debug("put item", zap.String("table", c.tableName))
	return nil
}

// Delete removes a record by the key values it currently holds.
func (c *TableClient) Delete(ctx context.Context, record *Record) error {
	key, err := record.Key()
	if err != nil {
		return err
	}
	return c.deleteKey(ctx, key)
}

// DeleteByKey removes an item by its key values.
func (c *TableClient) DeleteByKey(ctx context.Context, partitionValue, sortValue any) error {
	key, err := c.schema.Key(partitionValue, sortValue)
	if err != nil {
		return err
	}
	return c.deleteKey(ctx, key)
}

func (c *TableClient) deleteKey(ctx context.Context, key Item) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       key,
	})
	if err != nil {
		return fmt.Errorf("orm: delete %s: %w", c.tableName, err)
	}
	c.log.Debug("deleted item", zap.String("table", c.tableName))
	return nil
}

// Update applies a partial update. Plain names in updates resolve through
// the schema to wire keys and wire-encoded values; dotted paths
// (e.g. "profile.city") address nested map members, where the first
// segment must be a schema attribute and the remaining segments are raw
// document keys. removeAttributes lists schema attributes to delete from
// the item. SET and REMOVE clauses are combined into a single update
// expression.
func (c *TableClient) Update(ctx context.Context, partitionValue, sortValue any, updates Values, removeAttributes ...string) error {
	key, err := c.schema.Key(partitionValue, sortValue)
	if err != nil {
		return err
	}

	var (
		sets    []string
		removes []string
		names   = make(map[string]string)
		values  = make(map[string]types.AttributeValue)
	)

	updateNames := make([]string, 0, len(updates))
	for name := range updates {
		updateNames = append(updateNames, name)
	}
	sort.Strings(updateNames)

	for _, name := range updateNames {
		value := updates[name]
		if strings.Contains(name, ".") {
			clause, err := c.nestedSetClause(name, value, names, values)
			if err != nil {
				return err
			}
			sets = append(sets, clause)
			continue
		}
		attr := c.schema.AttributeDefinition(name)
		if attr == nil {
			return &AttributeNotFoundError{AttributeName: name, TableName: c.schema.TableName}
		}
		av, err := attr.MarshalValue(value)
		if err != nil {
			return err
		}
		if av == nil {
			return fmt.Errorf("orm: update %q: value encodes to nothing; remove the attribute instead", name)
		}
		placeholder := ":val_" + attr.Name
		names["#"+attr.KeyName] = attr.KeyName
		values[placeholder] = av
		sets = append(sets, fmt.Sprintf("#%s = %s", attr.KeyName, placeholder))
	}

	for _, name := range removeAttributes {
		if strings.Contains(name, ".") {
			ref, err := c.pathReference(name, names)
			if err != nil {
				return err
			}
			removes = append(removes, ref)
			continue
		}
		attr := c.schema.AttributeDefinition(name)
		if attr == nil {
			return &AttributeNotFoundError{AttributeName: name, TableName: c.schema.TableName}
		}
		names["#"+attr.KeyName] = attr.KeyName
		removes = append(removes, "#"+attr.KeyName)
	}

	var parts []string
	if len(sets) > 0 {
		parts = append(parts, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(removes, ", "))
	}
	expression := strings.Join(parts, " ")

	in := &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              key,
		UpdateExpression: aws.String(expression),
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}
	if len(values) > 0 {
		in.ExpressionAttributeValues = values
	}

	c.log.Debug("updating item",
		zap.String("table", c.tableName),
		zap.String("expression", expression))

	if _, err := c.client.UpdateItem(ctx, in); err != nil {
		return c.wrapWriteError("update", err)
	}
	return nil
}

// nestedSetClause builds the SET clause for a dotted path, registering its
// name placeholders and value placeholder.
func (c *TableClient) nestedSetClause(path string, value any, names map[string]string, values map[string]types.AttributeValue) (string, error) {
	ref, err := c.pathReference(path, names)
	if err != nil {
		return "", err
	}

	av, err := attributevalue.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("orm: update %q: %w", path, err)
	}
	placeholder := ":val_" + strings.ReplaceAll(path, ".", "_")
	values[placeholder] = av

	return ref + " = " + placeholder, nil
}

// pathReference builds the document-path reference for a dotted path. The
// first segment resolves through the schema to its wire key; later
// segments name document keys as written.
func (c *TableClient) pathReference(path string, names map[string]string) (string, error) {
	segments := strings.Split(path, ".")
	attr := c.schema.AttributeDefinition(segments[0])
	if attr == nil {
		return "", &AttributeNotFoundError{AttributeName: segments[0], TableName: c.schema.TableName}
	}

	refs := make([]string, len(segments))
	names["#"+attr.KeyName] = attr.KeyName
	refs[0] = "#" + attr.KeyName
	for i, segment := range segments[1:] {
		names["#"+segment] = segment
		refs[i+1] = "#" + segment
	}
	return strings.Join(refs, "."), nil
}

// Scanner compiles a scan definition into a scan paginator.
func (c *TableClient) Scanner(definition *ScanDefinition) (*Paginator, error) {
	expression, names, values, err := definition.Compile()
	if err != nil {
		return nil, err
	}
	c.log.Debug("scanning table",
		zap.String("table", c.tableName),
		zap.Strings("filters", definition.Instructions()))
	return c.Paginate(PaginateInput{
		Call:                      CallScan,
		FilterExpression:          expression,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
}

// FullScan runs a filtered scan to completion and returns every matching
// record.
func (c *TableClient) FullScan(ctx context.Context, definition *ScanDefinition) ([]*Record, error) {
	paginator, err := c.Scanner(definition)
	if err != nil {
		return nil, err
	}
	return paginator.All(ctx)
}

// All returns every record in the table via an unfiltered scan.
func (c *TableClient) All(ctx context.Context) ([]*Record, error) {
	paginator, err := c.Paginate(PaginateInput{Call: CallScan})
	if err != nil {
		return nil, err
	}
	return paginator.All(ctx)
}

// wrapWriteError enriches the DynamoDB empty-attribute-value validation
// failure with actionable guidance; everything else is wrapped as-is.
func (c *TableClient) wrapWriteError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) &&
		apiErr.ErrorCode() == "ValidationException" &&
		strings.Contains(apiErr.ErrorMessage(), "Supplied AttributeValue is empty") {
		return fmt.Errorf("%w: %v", ErrEmptyAttributeValue, err)
	}
	return fmt.Errorf("orm: %s %s: %w", op, c.tableName, err)
}
