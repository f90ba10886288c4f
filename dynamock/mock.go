package dynamock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/davinciframework/davinci-go/orm"
)

// DynamoDBAPICall is the common shape of a DynamoDB API operation.
type DynamoDBAPICall[T, U any] func(context.Context, *T, ...func(*dynamodb.Options)) (*U, error)

// MockClient is an expectation-based mock of the DynamoDB operations the
// orm package uses. Set the func field for each operation a test expects;
// unset operations fail the test.
type MockClient struct {
	GetFunc    DynamoDBAPICall[dynamodb.GetItemInput, dynamodb.GetItemOutput]
	PutFunc    DynamoDBAPICall[dynamodb.PutItemInput, dynamodb.PutItemOutput]
	DeleteFunc DynamoDBAPICall[dynamodb.DeleteItemInput, dynamodb.DeleteItemOutput]
	UpdateFunc DynamoDBAPICall[dynamodb.UpdateItemInput, dynamodb.UpdateItemOutput]
	QueryFunc  DynamoDBAPICall[dynamodb.QueryInput, dynamodb.QueryOutput]
	ScanFunc   DynamoDBAPICall[dynamodb.ScanInput, dynamodb.ScanOutput]

	// Calls records the operations invoked, in order.
	Calls []string
}

// Ensure MockClient satisfies the orm client interface.
var _ orm.DynamoDBClient = (*MockClient)(nil)

// NewMockClient creates a mock whose operations fail the test until a test
// replaces them with expectations.
func NewMockClient(t *testing.T) *MockClient {
	return &MockClient{
		GetFunc:    defaultFunc[dynamodb.GetItemInput, dynamodb.GetItemOutput](t),
		PutFunc:    defaultFunc[dynamodb.PutItemInput, dynamodb.PutItemOutput](t),
		DeleteFunc: defaultFunc[dynamodb.DeleteItemInput, dynamodb.DeleteItemOutput](t),
		UpdateFunc: defaultFunc[dynamodb.UpdateItemInput, dynamodb.UpdateItemOutput](t),
		QueryFunc:  defaultFunc[dynamodb.QueryInput, dynamodb.QueryOutput](t),
		ScanFunc:   defaultFunc[dynamodb.ScanInput, dynamodb.ScanOutput](t),
	}
}

func defaultFunc[T, U any](t *testing.T) DynamoDBAPICall[T, U] {
	return func(ctx context.Context, params *T, optFns ...func(*dynamodb.Options)) (*U, error) {
		t.Helper()
		t.Fatal("unexpected DynamoDB call")
		return nil, nil
	}
}

// GetItem invokes the configured expectation.
func (m *MockClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.Calls = append(m.Calls, "GetItem")
	return m.GetFunc(ctx, params, optFns...)
}

// PutItem invokes the configured expectation.
func (m *MockClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.Calls = append(m.Calls, "PutItem")
	return m.PutFunc(ctx, params, optFns...)
}

// DeleteItem invokes the configured expectation.
func (m *MockClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.Calls = append(m.Calls, "DeleteItem")
	return m.DeleteFunc(ctx, params, optFns...)
}

// UpdateItem invokes the configured expectation.
func (m *MockClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.Calls = append(m.Calls, "UpdateItem")
	return m.UpdateFunc(ctx, params, optFns...)
}

// Query invokes the configured expectation.
func (m *MockClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.Calls = append(m.Calls, "Query")
	return m.QueryFunc(ctx, params, optFns...)
}

// Scan invokes the configured expectation.
func (m *MockClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.Calls = append(m.Calls, "Scan")
	return m.ScanFunc(ctx, params, optFns...)
}
