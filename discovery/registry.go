package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/davinciframework/davinci-go/orm"
)

// registrationSchema describes the resource registry table used by the
// dynamodb storage backend.
var registrationSchema = mustRegistrationSchema()

func mustRegistrationSchema() *orm.Schema {
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:   "resource_registry",
		Description: "Registered resources and their endpoints",
		PartitionKey: orm.Attribute{
			Name:        "resource_type",
			Type:        orm.AttributeTypeString,
			Description: "The type of the resource",
		},
		SortKey: &orm.Attribute{
			Name:        "resource_name",
			Type:        orm.AttributeTypeString,
			Description: "The name of the resource",
		},
		Attributes: []orm.Attribute{
			{
				Name:        "endpoint",
				Type:        orm.AttributeTypeString,
				Description: "The endpoint backing the resource",
			},
			{
				Name:        "created_on",
				Type:        orm.AttributeTypeDatetime,
				DefaultFunc: func() any { return time.Now().UTC() },
				Description: "The datetime the registration was created",
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return schema
}

// RegistrationSchema returns the schema of the resource registry table.
func RegistrationSchema() *orm.Schema { return registrationSchema }

// RegistryTableName derives the physical registry table name for a
// deployment.
func RegistryTableName(appName, deploymentID string) string {
	return fmt.Sprintf("%s-%s-resource-registry", appName, deploymentID)
}

// Registry reads and writes resource registrations through the registry
// table.
type Registry struct {
	table *orm.TableClient
}

// NewRegistry creates a registry over the resource registry table. Pass
// orm.WithEndpoint(RegistryTableName(app, deployment)) plus any client
// options.
func NewRegistry(ctx context.Context, opts ...orm.ClientOption) (*Registry, error) {
	table, err := orm.NewTableClient(ctx, registrationSchema, opts...)
	if err != nil {
		return nil, err
	}
	return &Registry{table: table}, nil
}

// Endpoint looks up the endpoint registered for a resource.
func (r *Registry) Endpoint(ctx context.Context, resourceType, resourceName string) (string, error) {
	record, err := r.table.Get(ctx, resourceType, resourceName)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", &ResourceNotFoundError{ResourceType: resourceType, ResourceName: resourceName}
	}
	return record.GetString("endpoint"), nil
}

// Register writes a resource registration.
func (r *Registry) Register(ctx context.Context, resourceType, resourceName, endpoint string) error {
	record, err := registrationSchema.New(orm.Values{
		"resource_type": resourceType,
		"resource_name": resourceName,
		"endpoint":      endpoint,
	})
	if err != nil {
		return err
	}
	return r.table.Put(ctx, record)
}

// Deregister removes a resource registration.
func (r *Registry) Deregister(ctx context.Context, resourceType, resourceName string) error {
	return r.table.DeleteByKey(ctx, resourceType, resourceName)
}

// All returns every registration.
func (r *Registry) All(ctx context.Context) ([]*orm.Record, error) {
	return r.table.All(ctx)
}
