package orm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Values holds record attribute values keyed by logical attribute name.
type Values map[string]any

// Clock returns the current time. Injectable for tests.
type Clock func() time.Time

// SchemaDefinition declares a table's shape. Pass it to NewSchema, which
// validates it and returns the immutable Schema used to build records.
type SchemaDefinition struct {
	// Name identifies the record type in descriptions and errors. Defaults
	// to TableName.
	Name string

	// TableName is the logical table name, used for endpoint resolution.
	TableName string

	Description string

	PartitionKey Attribute

	// SortKey is optional. Tables with a sort key require a sort value on
	// every keyed operation.
	SortKey *Attribute

	// TTLAttribute is the optional expiration timestamp. Must be a
	// datetime attribute.
	TTLAttribute *Attribute

	// Attributes are the non-key value attributes, in declaration order.
	Attributes []Attribute

	// Aliases maps alternate attribute names to declared attribute names.
	// Lookups, filters and updates accept either form.
	Aliases map[string]string

	// OnUpdate runs against a record immediately before it is written.
	OnUpdate func(*Record)
}

// Schema is the validated, immutable form of a SchemaDefinition.
type Schema struct {
	Name        string
	TableName   string
	Description string

	partitionKey *Attribute
	sortKey      *Attribute
	ttl          *Attribute
	attributes   []*Attribute
	all          []*Attribute
	byName       map[string]*Attribute
	aliases      map[string]string
	onUpdate     func(*Record)
}

// NewSchema validates a definition and builds the schema.
func NewSchema(def SchemaDefinition) (*Schema, error) {
	if def.TableName == "" {
		return nil, fmt.Errorf("orm: schema requires a table name")
	}
	name := def.Name
	if name == "" {
		name = def.TableName
	}

	s := &Schema{
		Name:        name,
		TableName:   def.TableName,
		Description: def.Description,
		byName:      make(map[string]*Attribute),
		aliases:     make(map[string]string),
		onUpdate:    def.OnUpdate,
	}

	pk := def.PartitionKey
	if err := s.addAttribute(&pk); err != nil {
		return nil, err
	}
	if !keyCapable(pk.Type) {
		return nil, fmt.Errorf("orm: partition key %q must be a string or numeric type", pk.Name)
	}
	s.partitionKey = &pk

	if def.SortKey != nil {
		sk := *def.SortKey
		if err := s.addAttribute(&sk); err != nil {
			return nil, err
		}
		if !keyCapable(sk.Type) {
			return nil, fmt.Errorf("orm: sort key %q must be a string or numeric type", sk.Name)
		}
		s.sortKey = &sk
	}

	if def.TTLAttribute != nil {
		ttl := *def.TTLAttribute
		if ttl.Type != AttributeTypeDatetime {
			return nil, fmt.Errorf("orm: ttl attribute %q must be a datetime", ttl.Name)
		}
		if err := s.addAttribute(&ttl); err != nil {
			return nil, err
		}
		s.ttl = &ttl
	}

	for i := range def.Attributes {
		attr := def.Attributes[i]
		if err := s.addAttribute(&attr); err != nil {
			return nil, err
		}
		s.attributes = append(s.attributes, &attr)
	}

	// Ordered iteration: declared attributes first, then the keys, then
	// the ttl attribute.
	s.all = append(s.all, s.attributes...)
	s.all = append(s.all, s.partitionKey)
	if s.sortKey != nil {
		s.all = append(s.all, s.sortKey)
	}
	if s.ttl != nil {
		s.all = append(s.all, s.ttl)
	}

	for _, attr := range s.all {
		if attr.Type != AttributeTypeCompositeString {
			continue
		}
		for _, arg := range attr.ArgumentNames {
			if _, ok := s.byName[arg]; !ok {
				return nil, fmt.Errorf("orm: composite attribute %q references unknown attribute %q", attr.Name, arg)
			}
		}
	}

	for alias, target := range def.Aliases {
		if _, ok := s.byName[target]; !ok {
			return nil, fmt.Errorf("orm: alias %q references unknown attribute %q", alias, target)
		}
		if _, ok := s.byName[alias]; ok {
			return nil, fmt.Errorf("orm: alias %q collides with a declared attribute", alias)
		}
		s.aliases[alias] = target
	}

	return s, nil
}

func (s *Schema) addAttribute(attr *Attribute) error {
	if err := attr.normalize(); err != nil {
		return err
	}
	if _, ok := s.byName[attr.Name]; ok {
		return fmt.Errorf("orm: duplicate attribute %q", attr.Name)
	}
	s.byName[attr.Name] = attr
	return nil
}

// keyCapable reports whether a type can serve as a table key. DynamoDB
// keys must be strings or numbers.
func keyCapable(t AttributeType) bool {
	label := t.WireLabel()
	return (label == "S" || label == "N") && t != AttributeTypeJSONString && t != AttributeTypeJSONStringList
}

// PartitionKey returns the partition key attribute.
func (s *Schema) PartitionKey() *Attribute { return s.partitionKey }

// SortKey returns the sort key attribute, or nil.
func (s *Schema) SortKey() *Attribute { return s.sortKey }

// TTLAttribute returns the ttl attribute, or nil.
func (s *Schema) TTLAttribute() *Attribute { return s.ttl }

// AllAttributes returns every attribute: declared attributes in order,
// then the partition key, sort key and ttl attribute.
func (s *Schema) AllAttributes() []*Attribute { return s.all }

// AttributeDefinition resolves a logical name or alias to its attribute,
// returning nil when the schema does not define it.
func (s *Schema) AttributeDefinition(name string) *Attribute {
	if attr, ok := s.byName[name]; ok {
		return attr
	}
	if target, ok := s.aliases[name]; ok {
		return s.byName[target]
	}
	return nil
}

// resolveName maps an alias to its declared attribute name; declared names
// pass through unchanged.
func (s *Schema) resolveName(name string) string {
	if target, ok := s.aliases[name]; ok {
		return target
	}
	return name
}

// New constructs a record from the supplied values. Composite attributes
// are derived from their constituents when all are present; absent optional
// attributes take their default; absent required attributes fail with
// MissingAttributeError. Supplying nil (or an empty value) for an attribute
// that declares a default applies the default.
func (s *Schema) New(values Values) (*Record, error) {
	resolved := make(Values, len(values))
	for name, value := range values {
		resolved[s.resolveName(name)] = value
	}

	record := &Record{schema: s, values: make(Values, len(s.all))}
	for _, attr := range s.all {
		if attr.Type == AttributeTypeCompositeString {
			if derived, ok := compositeValue(resolved, attr.ArgumentNames); ok {
				record.values[attr.Name] = derived
				continue
			}
		}
		value, present := resolved[attr.Name]
		switch {
		case present:
			if isEmptyValue(value) && attr.hasDefault() {
				record.values[attr.Name] = attr.defaultValue()
			} else {
				record.values[attr.Name] = value
			}
		case attr.Optional:
			record.values[attr.Name] = attr.defaultValue()
		default:
			return nil, &MissingAttributeError{AttributeName: attr.Name}
		}
	}
	return record, nil
}

// compositeValue joins constituent values with "-" when every constituent
// is present and non-nil.
func compositeValue(values Values, argumentNames []string) (string, bool) {
	parts := make([]string, 0, len(argumentNames))
	for _, arg := range argumentNames {
		value, ok := values[arg]
		if !ok || value == nil {
			return "", false
		}
		parts = append(parts, stringValue(value))
	}
	return strings.Join(parts, "-"), true
}

// Key builds the wire key item for the given key values. Tables with a
// sort key require a non-nil sort value.
func (s *Schema) Key(partitionValue, sortValue any) (Item, error) {
	item := make(Item, 2)
	av, err := s.partitionKey.MarshalValue(partitionValue)
	if err != nil {
		return nil, err
	}
	item[s.partitionKey.KeyName] = av

	if s.sortKey != nil {
		if sortValue == nil {
			return nil, fmt.Errorf("%w (table %q)", ErrSortKeyRequired, s.TableName)
		}
		av, err := s.sortKey.MarshalValue(sortValue)
		if err != nil {
			return nil, err
		}
		item[s.sortKey.KeyName] = av
	}
	return item, nil
}

// UnmarshalItem decodes a wire item into a record. Composite attributes
// are split back into their constituents; attributes absent from the item
// fall back to construction defaults.
func (s *Schema) UnmarshalItem(item Item) (*Record, error) {
	values := make(Values, len(item))
	for _, attr := range s.all {
		av, ok := item[attr.KeyName]
		if !ok {
			continue
		}
		if attr.Type == AttributeTypeCompositeString {
			raw, err := attr.UnmarshalValue(av)
			if err != nil {
				return nil, err
			}
			joined, ok := raw.(string)
			if !ok {
				continue
			}
			parts := strings.Split(joined, "-")
			for i, arg := range attr.ArgumentNames {
				if i < len(parts) {
					values[arg] = parts[i]
				}
			}
			continue
		}
		value, err := attr.UnmarshalValue(av)
		if err != nil {
			return nil, err
		}
		values[attr.Name] = value
	}
	return s.New(values)
}

// Describe renders a human-readable summary of the table layout.
func (s *Schema) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s\n", s.TableName, s.Description)
	for _, attr := range s.all {
		if attr.ExcludeFromSchema {
			continue
		}
		fmt.Fprintf(&b, "%s - type:%s description:%s\n",
			attr.Name, strings.ToUpper(string(attr.Type)), attr.Description)
	}
	return b.String()
}

// Record is a single row: a schema plus its attribute values.
type Record struct {
	schema *Schema
	values Values
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema { return r.schema }

// Get returns the value of an attribute by name or alias, or nil when the
// schema does not define it.
func (r *Record) Get(name string) any {
	attr := r.schema.AttributeDefinition(name)
	if attr == nil {
		return nil
	}
	return r.values[attr.Name]
}

// GetString returns a string attribute value, or "" when unset.
func (r *Record) GetString(name string) string {
	s, _ := r.Get(name).(string)
	return s
}

// GetBool returns a boolean attribute value, or false when unset.
func (r *Record) GetBool(name string) bool {
	b, _ := r.Get(name).(bool)
	return b
}

// GetTime returns a datetime attribute value, or the zero time when unset.
func (r *Record) GetTime(name string) time.Time {
	t, _ := r.Get(name).(time.Time)
	return t
}

// Set assigns an attribute value by name or alias.
func (r *Record) Set(name string, value any) error {
	attr := r.schema.AttributeDefinition(name)
	if attr == nil {
		return &InvalidAttributeError{AttributeName: name}
	}
	r.values[attr.Name] = value
	return nil
}

// Update assigns multiple attribute values and reports which attributes
// actually changed, sorted by name. Unknown names are ignored.
func (r *Record) Update(values Values) []string {
	var changed []string
	for name, value := range values {
		attr := r.schema.AttributeDefinition(name)
		if attr == nil {
			continue
		}
		if !reflect.DeepEqual(r.values[attr.Name], value) {
			r.values[attr.Name] = value
			changed = append(changed, attr.Name)
		}
	}
	sort.Strings(changed)
	return changed
}

// Touch sets the named datetime attributes to the given time. Non-datetime
// and unknown names are ignored.
func (r *Record) Touch(at time.Time, names ...string) {
	for _, name := range names {
		attr := r.schema.AttributeDefinition(name)
		if attr == nil || attr.Type != AttributeTypeDatetime {
			continue
		}
		r.values[attr.Name] = at
	}
}

// Values returns a copy of the record's values.
func (r *Record) Values() Values {
	out := make(Values, len(r.values))
	for name, value := range r.values {
		out[name] = value
	}
	return out
}

// Key builds the record's wire key from its current key values.
func (r *Record) Key() (Item, error) {
	var sortValue any
	if r.schema.sortKey != nil {
		sortValue = r.values[r.schema.sortKey.Name]
	}
	return r.schema.Key(r.values[r.schema.partitionKey.Name], sortValue)
}

// MarshalItem converts the record into its wire item. Suppressed values
// (empty json maps, empty sets) are omitted; composite attributes are
// re-derived from their current constituents.
func (r *Record) MarshalItem() (Item, error) {
	item := make(Item, len(r.schema.all))
	for _, attr := range r.schema.all {
		value := r.values[attr.Name]
		if attr.Type == AttributeTypeCompositeString {
			if derived, ok := compositeValue(r.values, attr.ArgumentNames); ok {
				value = derived
			}
		}
		av, err := attr.MarshalValue(value)
		if err != nil {
			return nil, err
		}
		if av == nil {
			continue
		}
		item[attr.KeyName] = av
	}
	return item, nil
}

// ToDict renders the record as a plain map, skipping attributes marked
// ExcludeFromDict and any names in exclude. With jsonCompatible set,
// timestamps are rendered as RFC 3339 strings. An attribute's custom
// exporter runs last.
func (r *Record) ToDict(jsonCompatible bool, exclude ...string) map[string]any {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[r.schema.resolveName(name)] = true
	}
	out := make(map[string]any, len(r.schema.all))
	for _, attr := range r.schema.all {
		if attr.ExcludeFromDict || skip[attr.Name] {
			continue
		}
		value := r.values[attr.Name]
		if jsonCompatible {
			switch t := value.(type) {
			case time.Time:
				value = t.UTC().Format(time.RFC3339)
			case *time.Time:
				if t != nil {
					value = t.UTC().Format(time.RFC3339)
				}
			}
		}
		if attr.CustomExporter != nil {
			value = attr.CustomExporter(value)
		}
		out[attr.Name] = value
	}
	return out
}

// ToJSON renders the record as a JSON document.
func (r *Record) ToJSON(exclude ...string) ([]byte, error) {
	return json.Marshal(r.ToDict(true, exclude...))
}

// ExecuteOnUpdate runs the schema's on-update hook, if any. TableClient
// invokes this before every put.
func (r *Record) ExecuteOnUpdate() {
	if r.schema.onUpdate != nil {
		r.schema.onUpdate(r)
	}
}
