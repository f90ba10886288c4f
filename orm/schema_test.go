package orm_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davinciframework/davinci-go/orm"
)

// userSchema is the schema most tests run against: a keyed table with a
// mix of attribute types, defaults and an alias.
func userSchema(t *testing.T) *orm.Schema {
	t.Helper()
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:   "users",
		Description: "User accounts",
		PartitionKey: orm.Attribute{
			Name:        "user_id",
			Type:        orm.AttributeTypeString,
			Description: "The unique ID of the user",
		},
		SortKey: &orm.Attribute{
			Name:        "email",
			Type:        orm.AttributeTypeString,
			Description: "The email address of the user",
		},
		Attributes: []orm.Attribute{
			{
				Name:        "status",
				Type:        orm.AttributeTypeString,
				Default:     "active",
				Description: "The account status",
			},
			{
				Name:     "age",
				Type:     orm.AttributeTypeNumber,
				Optional: true,
			},
			{
				Name:     "tags",
				Type:     orm.AttributeTypeStringList,
				Optional: true,
			},
			{
				Name:     "profile",
				Type:     orm.AttributeTypeJSON,
				Optional: true,
			},
			{
				Name: "created_at",
				Type: orm.AttributeTypeDatetime,
				DefaultFunc: func() any {
					return time.Now().UTC().Truncate(time.Microsecond)
				},
			},
		},
		Aliases: map[string]string{"account_status": "status"},
	})
	require.NoError(t, err)
	return schema
}

func TestSchemaNewAppliesDefaults(t *testing.T) {
	schema := userSchema(t)

	record, err := schema.New(orm.Values{
		"user_id": "u1",
		"email":   "u1@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "active", record.Get("status"))
	assert.False(t, record.GetTime("created_at").IsZero())
	assert.Nil(t, record.Get("age"))
}

func TestSchemaNewMissingRequiredAttribute(t *testing.T) {
	schema := userSchema(t)

	_, err := schema.New(orm.Values{"email": "u1@example.com"})
	require.Error(t, err)

	var missing *orm.MissingAttributeError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "user_id", missing.AttributeName)
}

func TestSchemaNewNilValueTakesDefault(t *testing.T) {
	schema := userSchema(t)

	record, err := schema.New(orm.Values{
		"user_id": "u1",
		"email":   "u1@example.com",
		"status":  nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "active", record.Get("status"))
}

func TestSchemaDefaultFuncRunsPerRecord(t *testing.T) {
	calls := 0
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:    "counters",
		PartitionKey: orm.Attribute{Name: "counter_id", Type: orm.AttributeTypeString},
		Attributes: []orm.Attribute{
			{
				Name: "sequence",
				Type: orm.AttributeTypeNumber,
				DefaultFunc: func() any {
					calls++
					return calls
				},
			},
		},
	})
	require.NoError(t, err)

	first, err := schema.New(orm.Values{"counter_id": "a"})
	require.NoError(t, err)
	second, err := schema.New(orm.Values{"counter_id": "b"})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Get("sequence"))
	assert.Equal(t, 2, second.Get("sequence"))
}

func TestAttributeKeyNames(t *testing.T) {
	schema := userSchema(t)

	assert.Equal(t, "UserId", schema.PartitionKey().KeyName)
	assert.Equal(t, "CreatedAt", schema.AttributeDefinition("created_at").KeyName)
}

func TestSchemaAliases(t *testing.T) {
	schema := userSchema(t)

	record, err := schema.New(orm.Values{
		"user_id":        "u1",
		"email":          "u1@example.com",
		"account_status": "suspended",
	})
	require.NoError(t, err)

	assert.Equal(t, "suspended", record.Get("status"))
	assert.Equal(t, "suspended", record.Get("account_status"))
}

func TestMarshalItemWireShape(t *testing.T) {
	schema := userSchema(t)

	record, err := schema.New(orm.Values{
		"user_id": "u1",
		"email":   "u1@example.com",
		"age":     21,
	})
	require.NoError(t, err)

	item, err := record.MarshalItem()
	require.NoError(t, err)

	assert.Equal(t, &types.AttributeValueMemberS{Value: "u1"}, item["UserId"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "21"}, item["Age"])

	// Unset lists are stored as an explicit empty list.
	assert.Equal(t, &types.AttributeValueMemberL{Value: []types.AttributeValue{}}, item["Tags"])

	// Unset json maps are omitted entirely.
	_, present := item["Profile"]
	assert.False(t, present)
}

func TestItemRoundTrip(t *testing.T) {
	schema := userSchema(t)

	record, err := schema.New(orm.Values{
		"user_id": "u1",
		"email":   "u1@example.com",
		"age":     21,
		"tags":    []string{"alpha", "beta"},
		"profile": map[string]any{"city": "berlin"},
	})
	require.NoError(t, err)

	item, err := record.MarshalItem()
	require.NoError(t, err)

	decoded, err := schema.UnmarshalItem(item)
	require.NoError(t, err)

	assert.Equal(t, "u1", decoded.Get("user_id"))
	assert.Equal(t, "u1@example.com", decoded.Get("email"))
	assert.Equal(t, int64(21), decoded.Get("age"))
	assert.Equal(t, []string{"alpha", "beta"}, decoded.Get("tags"))
	assert.Equal(t, map[string]any{"city": "berlin"}, decoded.Get("profile"))
	assert.Equal(t, record.GetTime("created_at"), decoded.GetTime("created_at"))
}

func compositeSchema(t *testing.T) *orm.Schema {
	t.Helper()
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName: "deployments",
		PartitionKey: orm.Attribute{
			Name:          "deployment_key",
			Type:          orm.AttributeTypeCompositeString,
			ArgumentNames: []string{"app_name", "deployment_id"},
		},
		Attributes: []orm.Attribute{
			{Name: "app_name", Type: orm.AttributeTypeString},
			{Name: "deployment_id", Type: orm.AttributeTypeString},
		},
	})
	require.NoError(t, err)
	return schema
}

func TestCompositeAttributeDerivation(t *testing.T) {
	schema := compositeSchema(t)

	record, err := schema.New(orm.Values{
		"app_name":      "myapp",
		"deployment_id": "dev",
	})
	require.NoError(t, err)
	assert.Equal(t, "myapp-dev", record.Get("deployment_key"))

	item, err := record.MarshalItem()
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "myapp-dev"}, item["DeploymentKey"])
}

func TestCompositeAttributeSplitsOnDecode(t *testing.T) {
	schema := compositeSchema(t)

	record, err := schema.UnmarshalItem(orm.Item{
		"DeploymentKey": &types.AttributeValueMemberS{Value: "myapp-dev"},
	})
	require.NoError(t, err)

	assert.Equal(t, "myapp", record.Get("app_name"))
	assert.Equal(t, "dev", record.Get("deployment_id"))
	assert.Equal(t, "myapp-dev", record.Get("deployment_key"))
}

func TestCompositeRequiresArgumentNames(t *testing.T) {
	_, err := orm.NewSchema(orm.SchemaDefinition{
		TableName: "broken",
		PartitionKey: orm.Attribute{
			Name: "combined",
			Type: orm.AttributeTypeCompositeString,
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument names")
}

func TestSchemaKeyRequiresSortValue(t *testing.T) {
	schema := userSchema(t)

	_, err := schema.Key("u1", nil)
	require.ErrorIs(t, err, orm.ErrSortKeyRequired)

	key, err := schema.Key("u1", "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u1"}, key["UserId"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u1@example.com"}, key["Email"])
}

func TestSchemaTTLMustBeDatetime(t *testing.T) {
	_, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:    "expiring",
		PartitionKey: orm.Attribute{Name: "id", Type: orm.AttributeTypeString},
		TTLAttribute: &orm.Attribute{Name: "ttl", Type: orm.AttributeTypeNumber},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datetime")
}

func TestSchemaRejectsUnindexableKeys(t *testing.T) {
	_, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:    "broken",
		PartitionKey: orm.Attribute{Name: "blob", Type: orm.AttributeTypeJSON},
	})
	require.Error(t, err)
}

func TestRecordUpdateReportsChanges(t *testing.T) {
	schema := userSchema(t)

	record, err := schema.New(orm.Values{
		"user_id": "u1",
		"email":   "u1@example.com",
		"age":     21,
	})
	require.NoError(t, err)

	changed := record.Update(orm.Values{
		"age":     30,
		"status":  "active", // unchanged
		"unknown": "ignored",
	})
	assert.Equal(t, []string{"age"}, changed)
	assert.Equal(t, 30, record.Get("age"))
}

func TestRecordTouch(t *testing.T) {
	schema := userSchema(t)

	record, err := schema.New(orm.Values{
		"user_id": "u1",
		"email":   "u1@example.com",
	})
	require.NoError(t, err)

	at := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	record.Touch(at, "created_at", "status", "missing")

	assert.Equal(t, at, record.GetTime("created_at"))
	// Non-datetime attributes are untouched.
	assert.Equal(t, "active", record.Get("status"))
}

func TestRecordToDict(t *testing.T) {
	schema := userSchema(t)

	created := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)
	record, err := schema.New(orm.Values{
		"user_id":    "u1",
		"email":      "u1@example.com",
		"created_at": created,
	})
	require.NoError(t, err)

	dict := record.ToDict(true, "email")
	assert.Equal(t, "u1", dict["user_id"])
	assert.Equal(t, "2024-05-17T09:30:00Z", dict["created_at"])
	_, present := dict["email"]
	assert.False(t, present)
}

func TestRecordToDictRunsCustomExporter(t *testing.T) {
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName: "tokens",
		PartitionKey: orm.Attribute{
			Name: "token_id",
			Type: orm.AttributeTypeString,
		},
		Attributes: []orm.Attribute{
			{
				Name: "secret",
				Type: orm.AttributeTypeString,
				CustomExporter: func(value any) any {
					return "****"
				},
			},
		},
	})
	require.NoError(t, err)

	record, err := schema.New(orm.Values{
		"token_id": "t1",
		"secret":   "hunter2",
	})
	require.NoError(t, err)

	dict := record.ToDict(false)
	assert.Equal(t, "****", dict["secret"])
	assert.Equal(t, "t1", dict["token_id"])

	raw, err := record.ToJSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "****", decoded["secret"])
}

func TestRecordToJSON(t *testing.T) {
	schema := userSchema(t)

	record, err := schema.New(orm.Values{
		"user_id": "u1",
		"email":   "u1@example.com",
	})
	require.NoError(t, err)

	raw, err := record.ToJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "u1", decoded["user_id"])
	assert.Equal(t, "active", decoded["status"])
}

func TestSchemaDescribe(t *testing.T) {
	schema := userSchema(t)

	described := schema.Describe()
	assert.Contains(t, described, "users - User accounts")
	assert.Contains(t, described, "user_id - type:STRING description:The unique ID of the user")
	assert.Contains(t, described, "created_at - type:DATETIME")
}

func TestSchemaDescribeExcludesMarkedAttributes(t *testing.T) {
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:    "secrets",
		PartitionKey: orm.Attribute{Name: "id", Type: orm.AttributeTypeString},
		Attributes: []orm.Attribute{
			{Name: "internal", Type: orm.AttributeTypeString, Optional: true, ExcludeFromSchema: true},
		},
	})
	require.NoError(t, err)

	assert.NotContains(t, schema.Describe(), "internal")
}

func TestRecordSetUnknownAttribute(t *testing.T) {
	schema := userSchema(t)

	record, err := schema.New(orm.Values{
		"user_id": "u1",
		"email":   "u1@example.com",
	})
	require.NoError(t, err)

	err = record.Set("nope", "value")
	var invalid *orm.InvalidAttributeError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "nope", invalid.AttributeName)
}

func TestOnUpdateHookRunsBeforePut(t *testing.T) {
	var touched bool
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:    "audited",
		PartitionKey: orm.Attribute{Name: "id", Type: orm.AttributeTypeString},
		Attributes: []orm.Attribute{
			{Name: "last_updated", Type: orm.AttributeTypeDatetime, Optional: true},
		},
		OnUpdate: func(r *orm.Record) {
			touched = true
			r.Touch(time.Now().UTC(), "last_updated")
		},
	})
	require.NoError(t, err)

	record, err := schema.New(orm.Values{"id": "a"})
	require.NoError(t, err)

	record.ExecuteOnUpdate()
	assert.True(t, touched)
	assert.False(t, record.GetTime("last_updated").IsZero())
}
