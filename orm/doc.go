// Package orm maps table records to DynamoDB items.
//
// A table is described by a [Schema]: a partition key [Attribute], an
// optional sort key, an optional time-to-live attribute, and an ordered
// list of value attributes. Schemas construct [Record] instances, which
// carry the attribute values and convert to and from the DynamoDB wire
// representation ([Item]).
//
// [TableClient] executes the usual operations (get, put, delete, partial
// update, query, scan) against a single table, with pagination exposed
// through [Paginator]. Scan filters are assembled with [ScanDefinition]
// and compiled to DynamoDB filter expressions.
//
// The package accepts any implementation of [DynamoDBClient], so tests can
// substitute mocks or a DynamoDB Local endpoint; see the dynamock package.
package orm
