package dynamock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/davinciframework/davinci-go/orm"
)

// NewTestTable generates a unique table name for testing.
func NewTestTable(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// WithLocalDynamoDB runs a test function against a local DynamoDB
// instance, skipping the test when DynamoDB Local is not reachable or the
// test run is in short mode.
func WithLocalDynamoDB(t *testing.T, port int, fn func(local *LocalDynamoDB)) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	local := NewLocalDynamoDB(port)
	if !local.IsAvailable(context.Background()) {
		t.Skipf("DynamoDB Local not available on port %d", port)
	}

	fn(local)
}

// WithDefaultLocalDynamoDB runs a test function against DynamoDB Local on
// the default port (8000).
func WithDefaultLocalDynamoDB(t *testing.T, fn func(local *LocalDynamoDB)) {
	WithLocalDynamoDB(t, DefaultLocalPort, fn)
}

// WithIsolatedTable creates a uniquely named table for the schema, runs the
// test function with a table client bound to it, and deletes the table
// afterwards.
func WithIsolatedTable(t *testing.T, local *LocalDynamoDB, schema *orm.Schema, fn func(table *orm.TableClient)) {
	ctx := context.Background()
	tableName := NewTestTable(fmt.Sprintf("%s-%s", schema.TableName, t.Name()))

	if err := local.CreateTableForSchema(ctx, schema, tableName); err != nil {
		t.Fatalf("Failed to create test table %s: %v", tableName, err)
	}
	defer func() {
		if err := local.DeleteTable(ctx, tableName); err != nil {
			t.Errorf("Failed to cleanup table %s: %v", tableName, err)
		}
	}()

	table, err := orm.NewTableClient(ctx, schema,
		orm.WithEndpoint(tableName),
		orm.WithDynamoDBClient(local.Client),
	)
	if err != nil {
		t.Fatalf("Failed to create table client for %s: %v", tableName, err)
	}

	fn(table)
}
