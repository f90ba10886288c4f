package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davinciframework/davinci-go/dynamock"
	"github.com/davinciframework/davinci-go/eventbus"
	"github.com/davinciframework/davinci-go/orm"
)

func newResponder(t *testing.T) (*eventbus.Responder, *dynamock.MockClient) {
	t.Helper()
	mock := dynamock.NewMockClient(t)
	responder, err := eventbus.NewResponder(context.Background(),
		orm.WithEndpoint("myapp-dev-event_bus_responses"),
		orm.WithDynamoDBClient(mock))
	require.NoError(t, err)
	return responder, mock
}

func TestResponderRecordsSuccess(t *testing.T) {
	responder, mock := newResponder(t)

	var written orm.Item
	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
		written = params.Item
		return &dynamodb.PutItemOutput{}, nil
	}

	event := eventbus.New("user_created", map[string]any{"user_id": "u1"})
	require.NoError(t, responder.Respond(context.Background(), event, eventbus.StatusSuccess, ""))

	record, err := eventbus.ResponseSchema().UnmarshalItem(written)
	require.NoError(t, err)
	assert.Equal(t, "user_created", record.GetString("event_type"))
	assert.Equal(t, eventbus.StatusSuccess, record.GetString("response_status"))
	assert.Equal(t, event.EventID, record.GetString("originating_event_id"))
	assert.NotEmpty(t, record.GetString("response_id"))
	assert.Nil(t, record.Get("failure_reason"))

	// Successes expire on the default horizon.
	expires := record.GetTime("time_to_live")
	assert.WithinDuration(t, time.Now().Add(4*time.Hour), expires, time.Minute)
}

func TestResponderRecordsFailure(t *testing.T) {
	responder, mock := newResponder(t)

	var written orm.Item
	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
		written = params.Item
		return &dynamodb.PutItemOutput{}, nil
	}

	event := eventbus.New("user_created", nil)
	require.NoError(t, responder.Respond(context.Background(), event, eventbus.StatusFailure, "boom"))

	record, err := eventbus.ResponseSchema().UnmarshalItem(written)
	require.NoError(t, err)
	assert.Equal(t, eventbus.StatusFailure, record.GetString("response_status"))
	assert.Equal(t, "boom", record.GetString("failure_reason"))

	// Failures are retained longer than the default horizon.
	expires := record.GetTime("time_to_live")
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), expires, time.Minute)
}
