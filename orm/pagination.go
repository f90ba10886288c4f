package orm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// SortOrder controls the traversal direction of the sort key on query
// calls.
type SortOrder string

const (
	SortAscending  SortOrder = "ascending"
	SortDescending SortOrder = "descending"
)

// PaginateCall selects the underlying DynamoDB read operation.
type PaginateCall string

const (
	CallQuery PaginateCall = "query"
	CallScan  PaginateCall = "scan"
)

// PaginateInput configures a paginated read.
type PaginateInput struct {
	// Call selects query or scan. Defaults to query.
	Call PaginateCall

	// IndexName targets a secondary index instead of the table.
	IndexName string

	// KeyConditionExpression is required for query calls; build it with
	// the SDK expression package and pass the names/values maps along.
	KeyConditionExpression string

	FilterExpression          string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue

	// Limit caps items per page; zero lets DynamoDB choose.
	Limit int32

	// MaxPages stops pagination after this many pages; zero means
	// unbounded.
	MaxPages int

	ConsistentRead bool

	// SortOrder is only meaningful for query calls and requires the
	// schema to define a sort key.
	SortOrder SortOrder

	// LastEvaluatedKey resumes pagination from a raw cursor. Takes
	// precedence over LastEvaluatedRecord.
	LastEvaluatedKey Item

	// LastEvaluatedRecord resumes pagination after a previously seen
	// record; its key is derived from the record's current key values.
	LastEvaluatedRecord *Record
}

// PageResult is one page of decoded records plus the cursor to resume
// from.
type PageResult struct {
	Records          []*Record
	LastEvaluatedKey Item
	HasMore          bool
}

// Paginator walks a query or scan one page at a time, in the style of the
// SDK's own paginators: check HasMorePages, then call NextPage.
type Paginator struct {
	client   *TableClient
	input    PaginateInput
	startKey Item
	pages    int
	done     bool
}

// Paginate validates the input and returns a paginator. Sort-order
// validation happens here, before any backend call.
func (c *TableClient) Paginate(input PaginateInput) (*Paginator, error) {
	if input.Call == "" {
		input.Call = CallQuery
	}
	if input.Call != CallQuery && input.Call != CallScan {
		return nil, fmt.Errorf("orm: unknown paginate call %q", input.Call)
	}
	if input.SortOrder != "" {
		if input.SortOrder != SortAscending && input.SortOrder != SortDescending {
			return nil, fmt.Errorf("orm: unknown sort order %q", input.SortOrder)
		}
		if input.Call != CallQuery {
			return nil, fmt.Errorf("orm: sort order applies to query calls only")
		}
		if c.schema.SortKey() == nil {
			return nil, fmt.Errorf("%w (table %q)", ErrSortOrderRequiresSortKey, c.schema.TableName)
		}
	}

	startKey := input.LastEvaluatedKey
	if startKey == nil && input.LastEvaluatedRecord != nil {
		key, err := input.LastEvaluatedRecord.Key()
		if err != nil {
			return nil, err
		}
		startKey = key
	}

	return &Paginator{client: c, input: input, startKey: startKey}, nil
}

// HasMorePages reports whether another page may be fetched. It is true
// before the first fetch.
func (p *Paginator) HasMorePages() bool { return !p.done }

// NextPage fetches and decodes the next page of records.
func (p *Paginator) NextPage(ctx context.Context) (*PageResult, error) {
	if p.done {
		return nil, ErrNoMorePages
	}

	var (
		items []Item
		lek   Item
	)

	switch p.input.Call {
	case CallScan:
		in := &dynamodb.ScanInput{
			TableName:         aws.String(p.client.tableName),
			Select:            types.SelectAllAttributes,
			ExclusiveStartKey: p.startKey,
		}
		if p.input.IndexName != "" {
			in.IndexName = aws.String(p.input.IndexName)
		}
		if p.input.FilterExpression != "" {
			in.FilterExpression = aws.String(p.input.FilterExpression)
		}
		if len(p.input.ExpressionAttributeNames) > 0 {
			in.ExpressionAttributeNames = p.input.ExpressionAttributeNames
		}
		if len(p.input.ExpressionAttributeValues) > 0 {
			in.ExpressionAttributeValues = p.input.ExpressionAttributeValues
		}
		if p.input.Limit > 0 {
			in.Limit = aws.Int32(p.input.Limit)
		}
		if p.input.ConsistentRead {
			in.ConsistentRead = aws.Bool(true)
		}
		out, err := p.client.client.Scan(ctx, in)
		if err != nil {
			p.done = true
			return nil, fmt.Errorf("orm: scan %s: %w", p.client.tableName, err)
		}
		items, lek = out.Items, out.LastEvaluatedKey

	case CallQuery:
		in := &dynamodb.QueryInput{
			TableName:         aws.String(p.client.tableName),
			Select:            types.SelectAllAttributes,
			ExclusiveStartKey: p.startKey,
		}
		if p.input.IndexName != "" {
			in.IndexName = aws.String(p.input.IndexName)
		}
		if p.input.KeyConditionExpression != "" {
			in.KeyConditionExpression = aws.String(p.input.KeyConditionExpression)
		}
		if p.input.FilterExpression != "" {
			in.FilterExpression = aws.String(p.input.FilterExpression)
		}
		if len(p.input.ExpressionAttributeNames) > 0 {
			in.ExpressionAttributeNames = p.input.ExpressionAttributeNames
		}
		if len(p.input.ExpressionAttributeValues) > 0 {
			in.ExpressionAttributeValues = p.input.ExpressionAttributeValues
		}
		if p.input.Limit > 0 {
			in.Limit = aws.Int32(p.input.Limit)
		}
		if p.input.ConsistentRead {
			in.ConsistentRead = aws.Bool(true)
		}
		if p.input.SortOrder != "" {
			in.ScanIndexForward = aws.Bool(p.input.SortOrder == SortAscending)
		}
		out, err := p.client.client.Query(ctx, in)
		if err != nil {
			p.done = true
			return nil, fmt.Errorf("orm: query %s: %w", p.client.tableName, err)
		}
		items, lek = out.Items, out.LastEvaluatedKey
	}

	records := make([]*Record, 0, len(items))
	for _, item := range items {
		record, err := p.client.schema.UnmarshalItem(item)
		if err != nil {
			p.done = true
			return nil, err
		}
		records = append(records, record)
	}

	p.startKey = lek
	p.pages++
	if len(lek) == 0 {
		p.done = true
	}
	if p.input.MaxPages > 0 && p.pages >= p.input.MaxPages {
		p.done = true
	}

	p.client.log.Debug("fetched page",
		zap.String("table", p.client.tableName),
		zap.String("call", string(p.input.Call)),
		zap.Int("page", p.pages),
		zap.Int("records", len(records)),
		zap.Bool("has_more", len(lek) > 0),
	)

	return &PageResult{
		Records:          records,
		LastEvaluatedKey: lek,
		HasMore:          len(lek) > 0,
	}, nil
}

// All drains the paginator and returns every remaining record.
func (p *Paginator) All(ctx context.Context) ([]*Record, error) {
	var records []*Record
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
	}
	return records, nil
}
