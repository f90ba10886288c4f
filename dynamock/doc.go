// Package dynamock provides testing utilities for the orm package.
//
// This package includes:
//   - Expectation-based mock DynamoDB client for unit testing
//   - DynamoDB Local integration utilities
//   - Table creation from orm schemas, with automatic cleanup
//   - JSON fixture seeding through the table client
//
// # Mock Client
//
// MockClient is an expectation-based mock: set the func field for each
// operation a test expects, and wire it into a table client:
//
//	mock := dynamock.NewMockClient(t)
//	mock.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
//		return &dynamodb.GetItemOutput{Item: item}, nil
//	}
//
//	table, err := orm.NewTableClient(ctx, schema,
//		orm.WithEndpoint("settings-test"),
//		orm.WithDynamoDBClient(mock),
//	)
//
// # DynamoDB Local
//
// Integration tests run against DynamoDB Local and skip automatically when
// it is not reachable:
//
//	dynamock.WithDefaultLocalDynamoDB(t, func(local *dynamock.LocalDynamoDB) {
//		dynamock.WithIsolatedTable(t, local, schema, func(table *orm.TableClient) {
//			// exercise the table client against a real backend
//		})
//	})
package dynamock
