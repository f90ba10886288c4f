package exceptiontrap

import (
	"context"

	"github.com/davinciframework/davinci-go/orm"
)

// TrappedExceptions reads and writes the trapped exceptions table.
type TrappedExceptions struct {
	table *orm.TableClient
}

// NewTrappedExceptions creates a client over the trapped exceptions
// table. Pass orm client options (resolver or endpoint, client, logger).
func NewTrappedExceptions(ctx context.Context, opts ...orm.ClientOption) (*TrappedExceptions, error) {
	table, err := orm.NewTableClient(ctx, trappedExceptionSchema, opts...)
	if err != nil {
		return nil, err
	}
	return &TrappedExceptions{table: table}, nil
}

// Table exposes the underlying table client.
func (t *TrappedExceptions) Table() *orm.TableClient { return t.table }

// Get fetches a trapped exception, or nil when none exists.
func (t *TrappedExceptions) Get(ctx context.Context, functionName, exceptionID string) (*orm.Record, error) {
	return t.table.Get(ctx, functionName, exceptionID)
}

// Put writes a trapped exception.
func (t *TrappedExceptions) Put(ctx context.Context, record *orm.Record) error {
	return t.table.Put(ctx, record)
}

// Delete removes a trapped exception.
func (t *TrappedExceptions) Delete(ctx context.Context, functionName, exceptionID string) error {
	return t.table.DeleteByKey(ctx, functionName, exceptionID)
}

// Scan runs a filtered scan over the trapped exceptions table.
func (t *TrappedExceptions) Scan(ctx context.Context, definition *orm.ScanDefinition) ([]*orm.Record, error) {
	return t.table.FullScan(ctx, definition)
}

// NewScanDefinition creates a scan definition for the trapped exceptions
// table.
func (t *TrappedExceptions) NewScanDefinition() *orm.ScanDefinition {
	return orm.NewScanDefinition(trappedExceptionSchema)
}
