package eventbus_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davinciframework/davinci-go/dynamock"
	"github.com/davinciframework/davinci-go/eventbus"
	"github.com/davinciframework/davinci-go/orm"
)

func newSubscriptions(t *testing.T) (*eventbus.Subscriptions, *dynamock.MockClient) {
	t.Helper()
	mock := dynamock.NewMockClient(t)
	subscriptions, err := eventbus.NewSubscriptions(context.Background(),
		orm.WithEndpoint("myapp-dev-event_bus_subscriptions"),
		orm.WithDynamoDBClient(mock))
	require.NoError(t, err)
	return subscriptions, mock
}

func TestNewSubscriptionDefaults(t *testing.T) {
	record, err := eventbus.NewSubscription("user_created", "send_welcome_email", "welcome_email_sent")
	require.NoError(t, err)

	assert.Equal(t, true, record.Get("active"))
	assert.Equal(t, []string{"welcome_email_sent"}, record.Get("generates_events"))
	assert.NotNil(t, record.Get("record_created"))
}

func TestSubscriptionsPut(t *testing.T) {
	subscriptions, mock := newSubscriptions(t)

	var written orm.Item
	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
		written = params.Item
		return &dynamodb.PutItemOutput{}, nil
	}

	record, err := eventbus.NewSubscription("user_created", "send_welcome_email")
	require.NoError(t, err)
	require.NoError(t, subscriptions.Put(context.Background(), record))

	require.NotNil(t, written)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "user_created"}, written["EventType"])
	assert.Equal(t, &types.AttributeValueMemberBOOL{Value: true}, written["Active"])
}

func TestSubscriptionsPutRejectsCircular(t *testing.T) {
	subscriptions, _ := newSubscriptions(t)

	record, err := eventbus.NewSubscription("user_created", "audit_users", "user_created")
	require.NoError(t, err)

	err = subscriptions.Put(context.Background(), record)
	var circular *eventbus.CircularSubscriptionError
	require.ErrorAs(t, err, &circular)
	assert.Equal(t, "user_created", circular.EventType)
	assert.Equal(t, "audit_users", circular.FunctionName)
}

func TestSubscriptionsAllActive(t *testing.T) {
	subscriptions, mock := newSubscriptions(t)
	schema := eventbus.SubscriptionSchema()

	active, err := eventbus.NewSubscription("user_created", "send_welcome_email")
	require.NoError(t, err)
	activeItem, err := active.MarshalItem()
	require.NoError(t, err)

	mock.QueryFunc = func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
		assert.NotEmpty(t, params.KeyConditionExpression)
		assert.NotEmpty(t, params.FilterExpression)
		assert.Contains(t, mapValues(params.ExpressionAttributeNames), "EventType")
		assert.Contains(t, mapValues(params.ExpressionAttributeNames), "Active")
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{activeItem}}, nil
	}

	records, err := subscriptions.AllActive(context.Background(), "user_created")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "send_welcome_email", records[0].GetString("function_name"))
	assert.Equal(t, schema, records[0].Schema())
}

func TestSubscriptionsDelete(t *testing.T) {
	subscriptions, mock := newSubscriptions(t)

	mock.DeleteFunc = func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
		assert.Equal(t, &types.AttributeValueMemberS{Value: "user_created"}, params.Key["EventType"])
		assert.Equal(t, &types.AttributeValueMemberS{Value: "send_welcome_email"}, params.Key["FunctionName"])
		return &dynamodb.DeleteItemOutput{}, nil
	}

	require.NoError(t, subscriptions.Delete(context.Background(), "user_created", "send_welcome_email"))
	assert.Equal(t, []string{"DeleteItem"}, mock.Calls)
}

func mapValues(m map[string]string) []string {
	values := make([]string, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	return values
}
