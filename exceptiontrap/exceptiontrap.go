// Package exceptiontrap records handler failures in the trapped
// exceptions table so they can be triaged after the fact. Records expire
// after a week via the table's TTL attribute.
package exceptiontrap

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davinciframework/davinci-go/orm"
)

// TrapEnabledVar toggles exception reporting for wrapped handlers.
const TrapEnabledVar = "DA_VINCI_EXCEPTION_TRAP_ENABLED"

// Enabled reports whether the exception trap is switched on for this
// process.
func Enabled() bool {
	return strings.EqualFold(os.Getenv(TrapEnabledVar), "true")
}

var trappedExceptionSchema = mustTrappedExceptionSchema()

func mustTrappedExceptionSchema() *orm.Schema {
	schema, err := orm.NewSchema(orm.SchemaDefinition{
		TableName:   "trapped_exceptions",
		Description: "Trapped Exceptions",
		PartitionKey: orm.Attribute{
			Name:        "function_name",
			Type:        orm.AttributeTypeString,
			Description: "The name of the function that produced the exception",
		},
		SortKey: &orm.Attribute{
			Name:        "exception_id",
			Type:        orm.AttributeTypeString,
			DefaultFunc: func() any { return uuid.NewString() },
			Description: "The ID of the exception",
		},
		TTLAttribute: &orm.Attribute{
			Name:        "time_to_live",
			Type:        orm.AttributeTypeDatetime,
			DefaultFunc: func() any { return time.Now().UTC().Add(7 * 24 * time.Hour) },
			Description: "When the record expires",
		},
		Attributes: []orm.Attribute{
			{
				Name:        "created",
				Type:        orm.AttributeTypeDatetime,
				Optional:    true,
				Description: "The datetime the exception was created",
			},
			{
				Name:        "exception",
				Type:        orm.AttributeTypeString,
				Description: "The exception that was trapped",
			},
			{
				Name:        "exception_traceback",
				Type:        orm.AttributeTypeString,
				Optional:    true,
				Description: "The traceback of the exception",
			},
			{
				Name:        "metadata",
				Type:        orm.AttributeTypeJSON,
				Optional:    true,
				Description: "Any additional information about the exception",
			},
			{
				Name:        "originating_event",
				Type:        orm.AttributeTypeJSON,
				Optional:    true,
				Description: "The originating event that caused the exception",
			},
			{
				Name:        "trapped",
				Type:        orm.AttributeTypeDatetime,
				DefaultFunc: func() any { return time.Now().UTC() },
				Description: "The datetime the exception was trapped",
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return schema
}

// TrappedExceptionSchema returns the schema of the trapped exceptions
// table.
func TrappedExceptionSchema() *orm.Schema { return trappedExceptionSchema }

// Report describes one failure to record.
type Report struct {
	FunctionName     string
	Exception        string
	Traceback        string
	Metadata         map[string]any
	OriginatingEvent map[string]any
}

// Reporter writes trapped exceptions through the ORM.
type Reporter struct {
	table *orm.TableClient
	log   *zap.Logger
}

// NewReporter creates a reporter over the trapped exceptions table. Pass
// orm client options (resolver or endpoint, client, logger).
func NewReporter(ctx context.Context, opts ...orm.ClientOption) (*Reporter, error) {
	table, err := orm.NewTableClient(ctx, trappedExceptionSchema, opts...)
	if err != nil {
		return nil, err
	}
	return &Reporter{table: table, log: zap.NewNop()}, nil
}

// Table exposes the underlying table client.
func (r *Reporter) Table() *orm.TableClient { return r.table }

// Report records a failure. The record's exception id, trapped timestamp,
// and expiry are filled in by the schema defaults.
func (r *Reporter) Report(ctx context.Context, report Report) (*orm.Record, error) {
	record, err := trappedExceptionSchema.New(orm.Values{
		"function_name":       report.FunctionName,
		"exception":           report.Exception,
		"exception_traceback": report.Traceback,
		"metadata":            report.Metadata,
		"originating_event":   report.OriginatingEvent,
	})
	if err != nil {
		return nil, err
	}
	if err := r.table.Put(ctx, record); err != nil {
		return nil, err
	}

	r.log.Debug("trapped exception",
		zap.String("function_name", report.FunctionName),
		zap.String("exception_id", record.GetString("exception_id")))
	return record, nil
}
