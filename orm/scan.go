package orm

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// filterComparisons maps comparison names to their DynamoDB expression
// operators. "contains" compiles to the contains() function instead of an
// infix operator.
var filterComparisons = map[string]string{
	"contains":              "contains",
	"equal":                 "=",
	"not_equal":             "<>",
	"greater_than":          ">",
	"greater_than_or_equal": ">=",
	"less_than":             "<",
	"less_than_or_equal":    "<=",
}

// filterPlaceholders are the value substitution names handed out to
// filters in insertion order.
const filterPlaceholders = "abcdefghijklmnopqrstuvwxyz"

type scanFilter struct {
	attribute  *Attribute
	comparison string
	value      any
}

// ScanDefinition accumulates filter conditions for a table scan. Filters
// are validated as they are added and compiled into a DynamoDB filter
// expression by Compile. All filters are ANDed together.
type ScanDefinition struct {
	schema  *Schema
	filters []scanFilter
}

// NewScanDefinition creates an empty scan definition for the schema.
func NewScanDefinition(schema *Schema) *ScanDefinition {
	return &ScanDefinition{schema: schema}
}

// Add appends a filter condition. The attribute name (or alias) and the
// comparison are validated immediately.
func (d *ScanDefinition) Add(attributeName, comparison string, value any) error {
	symbol, ok := filterComparisons[comparison]
	if !ok {
		return &InvalidComparisonError{Comparison: comparison}
	}
	attr := d.schema.AttributeDefinition(attributeName)
	if attr == nil {
		return &InvalidAttributeError{AttributeName: attributeName}
	}
	if len(d.filters) >= len(filterPlaceholders) {
		return fmt.Errorf("orm: scan definition cannot hold more than %d filters", len(filterPlaceholders))
	}
	d.filters = append(d.filters, scanFilter{attribute: attr, comparison: symbol, value: value})
	return nil
}

// Equal adds an equality filter.
func (d *ScanDefinition) Equal(attributeName string, value any) error {
	return d.Add(attributeName, "equal", value)
}

// NotEqual adds an inequality filter.
func (d *ScanDefinition) NotEqual(attributeName string, value any) error {
	return d.Add(attributeName, "not_equal", value)
}

// GreaterThan adds a greater-than filter.
func (d *ScanDefinition) GreaterThan(attributeName string, value any) error {
	return d.Add(attributeName, "greater_than", value)
}

// GreaterThanOrEqual adds a greater-than-or-equal filter.
func (d *ScanDefinition) GreaterThanOrEqual(attributeName string, value any) error {
	return d.Add(attributeName, "greater_than_or_equal", value)
}

// LessThan adds a less-than filter.
func (d *ScanDefinition) LessThan(attributeName string, value any) error {
	return d.Add(attributeName, "less_than", value)
}

// LessThanOrEqual adds a less-than-or-equal filter.
func (d *ScanDefinition) LessThanOrEqual(attributeName string, value any) error {
	return d.Add(attributeName, "less_than_or_equal", value)
}

// Contains adds a membership filter. Against list attributes the value is
// matched as a list element rather than an encoded list.
func (d *ScanDefinition) Contains(attributeName string, value any) error {
	return d.Add(attributeName, "contains", value)
}

// Len returns the number of filters added so far.
func (d *ScanDefinition) Len() int { return len(d.filters) }

// Instructions renders the filters in a human-readable form, one per
// filter, for logging.
func (d *ScanDefinition) Instructions() []string {
	out := make([]string, 0, len(d.filters))
	for _, f := range d.filters {
		out = append(out, fmt.Sprintf("%s %s %v", f.attribute.Name, f.comparison, f.value))
	}
	return out
}

// Compile builds the DynamoDB filter expression along with its attribute
// name and value substitution maps. An empty definition compiles to an
// empty expression with nil maps.
func (d *ScanDefinition) Compile() (string, map[string]string, map[string]types.AttributeValue, error) {
	if len(d.filters) == 0 {
		return "", nil, nil, nil
	}

	clauses := make([]string, 0, len(d.filters))
	names := make(map[string]string, len(d.filters))
	values := make(map[string]types.AttributeValue, len(d.filters))

	for i, f := range d.filters {
		placeholder := ":" + string(filterPlaceholders[i])
		nameKey := "#" + f.attribute.KeyName
		names[nameKey] = f.attribute.KeyName

		av, err := d.filterValue(f)
		if err != nil {
			return "", nil, nil, err
		}
		values[placeholder] = av

		if f.comparison == "contains" {
			clauses = append(clauses, fmt.Sprintf("contains(%s, %s)", nameKey, placeholder))
		} else {
			clauses = append(clauses, fmt.Sprintf("%s %s %s", nameKey, f.comparison, placeholder))
		}
	}

	return strings.Join(clauses, " AND "), names, values, nil
}

// filterValue encodes a filter's comparison value. Contains filters against
// list-typed attributes compare a single element, so the raw value is
// encoded as a plain string instead of a wrapped list.
func (d *ScanDefinition) filterValue(f scanFilter) (types.AttributeValue, error) {
	if f.comparison == "contains" {
		switch f.attribute.Type {
		case AttributeTypeStringList, AttributeTypeJSONStringList:
			return &types.AttributeValueMemberS{Value: stringValue(f.value)}, nil
		case AttributeTypeNumberList:
			n, err := numberString(f.value)
			if err != nil {
				return nil, fmt.Errorf("orm: filter on %q: %w", f.attribute.Name, err)
			}
			return &types.AttributeValueMemberN{Value: n}, nil
		case AttributeTypeJSON:
			if s, ok := f.value.(string); ok {
				return &types.AttributeValueMemberS{Value: s}, nil
			}
		}
	}
	av, err := f.attribute.MarshalValue(f.value)
	if err != nil {
		return nil, err
	}
	if av == nil {
		return nil, fmt.Errorf("orm: filter on %q: value encodes to nothing", f.attribute.Name)
	}
	return av, nil
}
