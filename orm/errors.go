package orm

import (
	"errors"
	"fmt"
)

var (
	// ErrSortKeyRequired is returned when a key is built for a table that
	// defines a sort key but no sort value was supplied.
	ErrSortKeyRequired = errors.New("orm: table defines a sort key but no sort value was provided")

	// ErrSortOrderRequiresSortKey is returned when a query requests a sort
	// order against a table whose schema has no sort key.
	ErrSortOrderRequiresSortKey = errors.New("orm: sort order requires the table to define a sort key")

	// ErrNoEndpoint is returned when a table client is constructed without
	// an explicit endpoint or a resolver to discover one.
	ErrNoEndpoint = errors.New("orm: no table endpoint provided and no resolver configured")

	// ErrNoMorePages is returned by Paginator.NextPage once the result set
	// is exhausted.
	ErrNoMorePages = errors.New("orm: no more pages available")

	// ErrEmptyAttributeValue wraps the DynamoDB validation failure raised
	// when an item carries an empty attribute value.
	ErrEmptyAttributeValue = errors.New("orm: empty attribute values are not supported by DynamoDB; " +
		"use the json_string or json_string_list attribute types for values that may be empty")
)

// MissingAttributeError reports a required attribute that was not supplied
// when constructing a record.
type MissingAttributeError struct {
	AttributeName string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("orm: required attribute %q was not provided", e.AttributeName)
}

// InvalidAttributeError reports a filter or update referencing an attribute
// the schema does not define.
type InvalidAttributeError struct {
	AttributeName string
}

func (e *InvalidAttributeError) Error() string {
	return fmt.Sprintf("orm: %q is not a valid table object attribute", e.AttributeName)
}

// AttributeNotFoundError reports an update naming an attribute that is not
// part of the table definition.
type AttributeNotFoundError struct {
	AttributeName string
	TableName     string
}

func (e *AttributeNotFoundError) Error() string {
	return fmt.Sprintf("orm: attribute %q not found in table definition %q", e.AttributeName, e.TableName)
}

// InvalidComparisonError reports an unsupported scan filter operator.
type InvalidComparisonError struct {
	Comparison string
}

func (e *InvalidComparisonError) Error() string {
	return fmt.Sprintf("orm: %q is not a valid filter comparison", e.Comparison)
}
