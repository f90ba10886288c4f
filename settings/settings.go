// Package settings provides deployment-wide configuration stored in the
// global settings table. Values are stored as strings alongside a declared
// type and coerced on read.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/davinciframework/davinci-go/orm"
)

// Setting value types. The declared type drives coercion in TypedValue.
const (
	TypeBoolean = "BOOLEAN"
	TypeFloat   = "FLOAT"
	TypeInteger = "INTEGER"
	TypeString  = "STRING"
)

var settingSchema = mustSettingSchema()

func mustSettingSchema() *orm.Schema {
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:   "global_settings",
		Description: "Application Settings",
		PartitionKey: orm.Attribute{
			Name:        "namespace",
			Type:        orm.AttributeTypeString,
			Description: "The namespace that the setting belongs to",
		},
		SortKey: &orm.Attribute{
			Name:        "setting_key",
			Type:        orm.AttributeTypeString,
			Description: "The setting key",
		},
		Attributes: []orm.Attribute{
			{
				Name:        "description",
				Type:        orm.AttributeTypeString,
				Optional:    true,
				Description: "The description of the setting",
			},
			{
				Name:        "last_updated",
				Type:        orm.AttributeTypeDatetime,
				DefaultFunc: func() any { return time.Now().UTC() },
				Description: "The last time the setting was updated",
			},
			{
				Name:        "setting_type",
				Type:        orm.AttributeTypeString,
				Default:     TypeString,
				Description: "The type of the setting",
			},
			{
				Name:        "setting_value",
				Type:        orm.AttributeTypeString,
				Description: "The value of the setting, stored as a string",
			},
		},
		OnUpdate: func(r *orm.Record) {
			r.Touch(time.Now().UTC(), "last_updated")
		},
	})
	if err != nil {
		panic(err)
	}
	return schema
}

// SettingSchema returns the schema of the global settings table.
func SettingSchema() *orm.Schema { return settingSchema }

// NewSetting builds a setting record. The value is stringified for
// storage; pass the matching declared type so readers coerce it back.
func NewSetting(namespace, settingKey, settingType string, value any) (*orm.Record, error) {
	return settingSchema.New(orm.Values{
		"namespace":     namespace,
		"setting_key":   settingKey,
		"setting_type":  settingType,
		"setting_value": stringify(value),
	})
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// TypedValue coerces a setting's stored string value to its declared
// type: bool for BOOLEAN, float64 for FLOAT, int64 for INTEGER, and the
// raw string otherwise.
func TypedValue(setting *orm.Record) (any, error) {
	value := setting.GetString("setting_value")

	switch setting.GetString("setting_type") {
	case TypeBoolean:
		return strings.EqualFold(value, "true"), nil
	case TypeFloat:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("settings: value %q is not a float: %w", value, err)
		}
		return parsed, nil
	case TypeInteger:
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("settings: value %q is not an integer: %w", value, err)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

// SettingNotFoundError indicates no setting exists under the namespace
// and key.
type SettingNotFoundError struct {
	Namespace  string
	SettingKey string
}

func (e *SettingNotFoundError) Error() string {
	return fmt.Sprintf("settings: no setting %s found in namespace %s", e.SettingKey, e.Namespace)
}

// Settings reads and writes the global settings table.
type Settings struct {
	table *orm.TableClient
}

// NewSettings creates a client over the global settings table. Pass orm
// client options (resolver or endpoint, client, logger).
func NewSettings(ctx context.Context, opts ...orm.ClientOption) (*Settings, error) {
	table, err := orm.NewTableClient(ctx, settingSchema, opts...)
	if err != nil {
		return nil, err
	}
	return &Settings{table: table}, nil
}

// Table exposes the underlying table client.
func (s *Settings) Table() *orm.TableClient { return s.table }

// Get fetches a setting, or nil when none exists.
func (s *Settings) Get(ctx context.Context, namespace, settingKey string) (*orm.Record, error) {
	return s.table.Get(ctx, namespace, settingKey)
}

// Put writes a setting.
func (s *Settings) Put(ctx context.Context, setting *orm.Record) error {
	return s.table.Put(ctx, setting)
}

// Delete removes a setting.
func (s *Settings) Delete(ctx context.Context, namespace, settingKey string) error {
	return s.table.DeleteByKey(ctx, namespace, settingKey)
}

// All returns every setting in the table.
func (s *Settings) All(ctx context.Context) ([]*orm.Record, error) {
	return s.table.All(ctx)
}

// Scan runs a filtered scan over the settings table.
func (s *Settings) Scan(ctx context.Context, definition *orm.ScanDefinition) ([]*orm.Record, error) {
	return s.table.FullScan(ctx, definition)
}

// NewScanDefinition creates a scan definition for the settings table.
func (s *Settings) NewScanDefinition() *orm.ScanDefinition {
	return orm.NewScanDefinition(settingSchema)
}

// Value fetches a setting and coerces it to its declared type. Returns
// a SettingNotFoundError when the setting does not exist.
func (s *Settings) Value(ctx context.Context, namespace, settingKey string) (any, error) {
	setting, err := s.Get(ctx, namespace, settingKey)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, &SettingNotFoundError{Namespace: namespace, SettingKey: settingKey}
	}
	return TypedValue(setting)
}
