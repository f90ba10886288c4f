package dynamock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/davinciframework/davinci-go/orm"
)

// Seeder loads fixture data into a table through its client, so seeded
// items pass through the same attribute encoding as production writes.
type Seeder struct {
	table *orm.TableClient
}

// NewSeeder creates a seeder for the table.
func NewSeeder(table *orm.TableClient) *Seeder {
	return &Seeder{table: table}
}

// SeedValues constructs and writes one record per values map.
// Returns the number of records written.
func (s *Seeder) SeedValues(ctx context.Context, fixtures ...orm.Values) (int, error) {
	count := 0
	for i, values := range fixtures {
		record, err := s.table.Schema().New(values)
		if err != nil {
			return count, fmt.Errorf("failed to build record at index %d: %w", i, err)
		}
		if err := s.table.Put(ctx, record); err != nil {
			return count, fmt.Errorf("failed to seed record at index %d: %w", i, err)
		}
		count++
	}
	return count, nil
}

// SeedFromJSON reads a JSON array of attribute-value objects and writes one
// record per element. Attribute names follow the schema's logical names:
//
//	[
//	  {"namespace": "core", "setting_key": "log_level", "setting_value": "INFO"},
//	  {"namespace": "core", "setting_key": "debug", "setting_value": "false"}
//	]
//
// Returns the number of records written.
func (s *Seeder) SeedFromJSON(ctx context.Context, r io.Reader) (int, error) {
	var fixtures []orm.Values
	if err := json.NewDecoder(r).Decode(&fixtures); err != nil {
		return 0, fmt.Errorf("failed to parse JSON document: %w", err)
	}
	return s.SeedValues(ctx, fixtures...)
}
