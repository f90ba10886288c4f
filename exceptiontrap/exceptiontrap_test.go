package exceptiontrap_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davinciframework/davinci-go/dynamock"
	"github.com/davinciframework/davinci-go/exceptiontrap"
	"github.com/davinciframework/davinci-go/orm"
)

func newReporter(t *testing.T) (*exceptiontrap.Reporter, *dynamock.MockClient) {
	t.Helper()
	mock := dynamock.NewMockClient(t)
	reporter, err := exceptiontrap.NewReporter(context.Background(),
		orm.WithEndpoint("myapp-dev-trapped_exceptions"),
		orm.WithDynamoDBClient(mock))
	require.NoError(t, err)
	return reporter, mock
}

func TestReporterReport(t *testing.T) {
	reporter, mock := newReporter(t)

	var written orm.Item
	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
		written = params.Item
		return &dynamodb.PutItemOutput{}, nil
	}

	record, err := reporter.Report(context.Background(), exceptiontrap.Report{
		FunctionName:     "process_orders",
		Exception:        "order not found",
		Traceback:        "goroutine 1 [running]: ...",
		OriginatingEvent: map[string]any{"order_id": "o1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, record.GetString("exception_id"))

	stored, err := exceptiontrap.TrappedExceptionSchema().UnmarshalItem(written)
	require.NoError(t, err)
	assert.Equal(t, "process_orders", stored.GetString("function_name"))
	assert.Equal(t, "order not found", stored.GetString("exception"))
	assert.Equal(t, map[string]any{"order_id": "o1"}, stored.Get("originating_event"))

	// Records expire a week out.
	expires := stored.GetTime("time_to_live")
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expires, time.Minute)
}

func TestTrappedExceptionsGetAndDelete(t *testing.T) {
	mock := dynamock.NewMockClient(t)
	trapped, err := exceptiontrap.NewTrappedExceptions(context.Background(),
		orm.WithEndpoint("myapp-dev-trapped_exceptions"),
		orm.WithDynamoDBClient(mock))
	require.NoError(t, err)

	mock.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
		assert.Equal(t, &types.AttributeValueMemberS{Value: "process_orders"}, params.Key["FunctionName"])
		assert.Equal(t, &types.AttributeValueMemberS{Value: "e1"}, params.Key["ExceptionId"])
		return &dynamodb.GetItemOutput{}, nil
	}
	record, err := trapped.Get(context.Background(), "process_orders", "e1")
	require.NoError(t, err)
	assert.Nil(t, record)

	mock.DeleteFunc = func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
		return &dynamodb.DeleteItemOutput{}, nil
	}
	require.NoError(t, trapped.Delete(context.Background(), "process_orders", "e1"))
}

func TestWrapReportsErrors(t *testing.T) {
	t.Setenv(exceptiontrap.TrapEnabledVar, "true")
	reporter, mock := newReporter(t)

	var exceptions []string
	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
		stored, err := exceptiontrap.TrappedExceptionSchema().UnmarshalItem(params.Item)
		require.NoError(t, err)
		exceptions = append(exceptions, stored.GetString("exception"))
		return &dynamodb.PutItemOutput{}, nil
	}

	handler := exceptiontrap.Wrap("process_orders", reporter, func(ctx context.Context, event map[string]any) error {
		return fmt.Errorf("order not found")
	}, nil)

	err := handler(context.Background(), map[string]any{"order_id": "o1"})
	require.ErrorContains(t, err, "order not found")
	assert.Equal(t, []string{"order not found"}, exceptions)
}

func TestWrapRecoversPanics(t *testing.T) {
	t.Setenv(exceptiontrap.TrapEnabledVar, "true")
	reporter, mock := newReporter(t)

	var tracebacks []string
	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
		stored, err := exceptiontrap.TrappedExceptionSchema().UnmarshalItem(params.Item)
		require.NoError(t, err)
		tracebacks = append(tracebacks, stored.GetString("exception_traceback"))
		return &dynamodb.PutItemOutput{}, nil
	}

	handler := exceptiontrap.Wrap("process_orders", reporter, func(ctx context.Context, event map[string]any) error {
		panic("nil order")
	}, nil)

	err := handler(context.Background(), nil)
	require.ErrorContains(t, err, "nil order")
	require.Len(t, tracebacks, 1)
	assert.Contains(t, tracebacks[0], "goroutine")
}

func TestWrapSkipsReportingWhenDisabled(t *testing.T) {
	t.Setenv(exceptiontrap.TrapEnabledVar, "false")
	assert.False(t, exceptiontrap.Enabled())

	reporter, _ := newReporter(t)

	handler := exceptiontrap.Wrap("process_orders", reporter, func(ctx context.Context, event map[string]any) error {
		return fmt.Errorf("boom")
	}, nil)

	// The mock's default put expectation would fail the test if a report
	// were written.
	err := handler(context.Background(), nil)
	require.ErrorContains(t, err, "boom")
}
