package orm

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is the DynamoDB wire representation of a record: attribute key names
// mapped to tagged attribute values.
type Item = map[string]types.AttributeValue

// AttributeType enumerates the value types an attribute can declare. The
// type governs both the Go-side representation and the DynamoDB tag the
// value is stored under.
type AttributeType string

const (
	AttributeTypeString          AttributeType = "string"
	AttributeTypeNumber          AttributeType = "number"
	AttributeTypeBoolean         AttributeType = "boolean"
	AttributeTypeDatetime        AttributeType = "datetime"
	AttributeTypeJSON            AttributeType = "json"
	AttributeTypeJSONString      AttributeType = "json_string"
	AttributeTypeJSONStringList  AttributeType = "json_string_list"
	AttributeTypeStringList      AttributeType = "string_list"
	AttributeTypeNumberList      AttributeType = "number_list"
	AttributeTypeJSONList        AttributeType = "json_list"
	AttributeTypeCompositeString AttributeType = "composite_string"
	AttributeTypeStringSet       AttributeType = "string_set"
	AttributeTypeNumberSet       AttributeType = "number_set"
)

// noneSentinel is how absent scalar values are stored on the wire; items
// written by older deployments decode it back to nil regardless of type.
const noneSentinel = "None"

// WireLabel returns the DynamoDB attribute value tag values of this type
// are stored under.
func (t AttributeType) WireLabel() string {
	switch t {
	case AttributeTypeNumber, AttributeTypeDatetime:
		return "N"
	case AttributeTypeBoolean:
		return "BOOL"
	case AttributeTypeJSON:
		return "M"
	case AttributeTypeStringList, AttributeTypeNumberList, AttributeTypeJSONList:
		return "L"
	case AttributeTypeStringSet:
		return "SS"
	case AttributeTypeNumberSet:
		return "NS"
	default:
		// string, json_string, json_string_list and composite_string are
		// all stored as plain strings.
		return "S"
	}
}

// Valid reports whether t is one of the supported attribute types.
func (t AttributeType) Valid() bool {
	switch t {
	case AttributeTypeString, AttributeTypeNumber, AttributeTypeBoolean,
		AttributeTypeDatetime, AttributeTypeJSON, AttributeTypeJSONString,
		AttributeTypeJSONStringList, AttributeTypeStringList,
		AttributeTypeNumberList, AttributeTypeJSONList,
		AttributeTypeCompositeString, AttributeTypeStringSet,
		AttributeTypeNumberSet:
		return true
	}
	return false
}

// Attribute describes a single named, typed value on a table record.
type Attribute struct {
	// Name is the snake_case logical name used in Values maps, filters
	// and partial updates.
	Name string

	// Type determines the wire encoding. Required.
	Type AttributeType

	// KeyName is the item key the value is stored under. Defaults to the
	// PascalCase form of Name.
	KeyName string

	// Description is surfaced by Schema.Describe.
	Description string

	// Optional marks the attribute as not required at construction.
	// Attributes with a default are implicitly optional.
	Optional bool

	// Default is the literal value applied when the attribute is absent,
	// or supplied as nil or empty, at construction.
	Default any

	// DefaultFunc produces a fresh default per record; it takes precedence
	// over Default. Use it for timestamps, generated ids and other values
	// that must not be shared between records.
	DefaultFunc func() any

	// ArgumentNames lists the constituent attribute names of a
	// composite_string attribute, in join order.
	ArgumentNames []string

	// CustomExporter transforms the value on the way to the wire, before
	// the type conversion.
	CustomExporter func(any) any

	// CustomImporter transforms the value on the way back from the wire,
	// after the type conversion.
	CustomImporter func(any) any

	// Unindexed excludes the attribute from index participation. The
	// json_string types are always unindexed.
	Unindexed bool

	// ExcludeFromDict omits the attribute from ToDict and ToJSON output.
	ExcludeFromDict bool

	// ExcludeFromSchema omits the attribute from Describe output.
	ExcludeFromSchema bool
}

// normalize validates the definition and fills derived fields. Called once
// by NewSchema.
func (a *Attribute) normalize() error {
	if a.Name == "" {
		return fmt.Errorf("orm: attribute requires a name")
	}
	if !a.Type.Valid() {
		return fmt.Errorf("orm: attribute %q has unknown type %q", a.Name, a.Type)
	}
	if a.Type == AttributeTypeCompositeString && len(a.ArgumentNames) == 0 {
		return fmt.Errorf("orm: composite attribute %q requires argument names", a.Name)
	}
	if a.KeyName == "" {
		a.KeyName = defaultKeyName(a.Name)
	}
	if a.Type == AttributeTypeJSONString || a.Type == AttributeTypeJSONStringList {
		a.Unindexed = true
	}
	if a.Default != nil || a.DefaultFunc != nil {
		a.Optional = true
	}
	return nil
}

// Indexed reports whether the attribute participates in indexes.
func (a *Attribute) Indexed() bool { return !a.Unindexed }

func (a *Attribute) hasDefault() bool {
	return a.Default != nil || a.DefaultFunc != nil
}

func (a *Attribute) defaultValue() any {
	if a.DefaultFunc != nil {
		return a.DefaultFunc()
	}
	return a.Default
}

// defaultKeyName derives the item key for a logical attribute name:
// "resource_name" becomes "ResourceName".
func defaultKeyName(name string) string {
	parts := strings.Split(name, "_")
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// MarshalValue converts a Go value into its tagged wire form. A nil return
// with a nil error means the value is suppressed and must be omitted from
// the item entirely (empty json maps and empty sets).
func (a *Attribute) MarshalValue(value any) (types.AttributeValue, error) {
	if a.CustomExporter != nil {
		value = a.CustomExporter(value)
	}

	switch a.Type {
	case AttributeTypeString, AttributeTypeCompositeString:
		return &types.AttributeValueMemberS{Value: stringValue(value)}, nil

	case AttributeTypeNumber:
		s, err := numberString(value)
		if err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		return &types.AttributeValueMemberN{Value: s}, nil

	case AttributeTypeBoolean:
		b, _ := value.(bool)
		return &types.AttributeValueMemberBOOL{Value: b}, nil

	case AttributeTypeDatetime:
		s, err := datetimeString(value)
		if err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		return &types.AttributeValueMemberN{Value: s}, nil

	case AttributeTypeJSON:
		if isEmptyValue(value) {
			return nil, nil
		}
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		if _, ok := av.(*types.AttributeValueMemberM); !ok {
			return nil, fmt.Errorf("orm: attribute %q: json values must encode to a map, got %T", a.Name, value)
		}
		return av, nil

	case AttributeTypeJSONString:
		if isEmptyValue(value) {
			return &types.AttributeValueMemberS{Value: "{}"}, nil
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		return &types.AttributeValueMemberS{Value: string(raw)}, nil

	case AttributeTypeJSONStringList:
		if isEmptyValue(value) {
			return &types.AttributeValueMemberS{Value: "[]"}, nil
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		return &types.AttributeValueMemberS{Value: string(raw)}, nil

	case AttributeTypeStringList:
		elems, err := anySlice(value)
		if err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		list := make([]types.AttributeValue, 0, len(elems))
		for _, elem := range elems {
			list = append(list, &types.AttributeValueMemberS{Value: stringValue(elem)})
		}
		return &types.AttributeValueMemberL{Value: list}, nil

	case AttributeTypeNumberList:
		elems, err := anySlice(value)
		if err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		list := make([]types.AttributeValue, 0, len(elems))
		for _, elem := range elems {
			s, err := numberString(elem)
			if err != nil {
				return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
			}
			list = append(list, &types.AttributeValueMemberN{Value: s})
		}
		return &types.AttributeValueMemberL{Value: list}, nil

	case AttributeTypeJSONList:
		if isEmptyValue(value) {
			return nil, nil
		}
		elems, err := anySlice(value)
		if err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		list := make([]types.AttributeValue, 0, len(elems))
		for _, elem := range elems {
			av, err := attributevalue.Marshal(elem)
			if err != nil {
				return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
			}
			if _, ok := av.(*types.AttributeValueMemberM); !ok {
				return nil, fmt.Errorf("orm: attribute %q: json list elements must encode to maps, got %T", a.Name, elem)
			}
			list = append(list, av)
		}
		return &types.AttributeValueMemberL{Value: list}, nil

	case AttributeTypeStringSet:
		elems, err := anySlice(value)
		if err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		if len(elems) == 0 {
			return nil, nil
		}
		members := make([]string, 0, len(elems))
		for _, elem := range elems {
			members = append(members, stringValue(elem))
		}
		return &types.AttributeValueMemberSS{Value: members}, nil

	case AttributeTypeNumberSet:
		elems, err := anySlice(value)
		if err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		if len(elems) == 0 {
			return nil, nil
		}
		members := make([]string, 0, len(elems))
		for _, elem := range elems {
			s, err := numberString(elem)
			if err != nil {
				return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
			}
			members = append(members, s)
		}
		return &types.AttributeValueMemberNS{Value: members}, nil
	}

	return nil, fmt.Errorf("orm: attribute %q has unknown type %q", a.Name, a.Type)
}

// UnmarshalValue converts a tagged wire value back into its Go
// representation.
func (a *Attribute) UnmarshalValue(av types.AttributeValue) (any, error) {
	value, err := a.decodeValue(av)
	if err != nil {
		return nil, err
	}
	if a.CustomImporter != nil {
		value = a.CustomImporter(value)
	}
	return value, nil
}

func (a *Attribute) decodeValue(av types.AttributeValue) (any, error) {
	// Items written before a value existed carry the sentinel.
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		if v.Value == noneSentinel {
			return nil, nil
		}
	case *types.AttributeValueMemberN:
		if v.Value == noneSentinel {
			return nil, nil
		}
	case *types.AttributeValueMemberNULL:
		return nil, nil
	}

	switch a.Type {
	case AttributeTypeString, AttributeTypeCompositeString:
		s, err := a.stringMember(av)
		if err != nil {
			return nil, err
		}
		return s, nil

	case AttributeTypeNumber:
		s, err := a.numberMember(av)
		if err != nil {
			return nil, err
		}
		return parseNumber(s)

	case AttributeTypeBoolean:
		b, ok := av.(*types.AttributeValueMemberBOOL)
		if !ok {
			return nil, a.decodeTypeError(av, "BOOL")
		}
		return b.Value, nil

	case AttributeTypeDatetime:
		s, err := a.numberMember(av)
		if err != nil {
			return nil, err
		}
		return parseDatetime(s)

	case AttributeTypeJSON:
		if _, ok := av.(*types.AttributeValueMemberM); !ok {
			return nil, a.decodeTypeError(av, "M")
		}
		var out any
		if err := attributevalue.Unmarshal(av, &out); err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		return out, nil

	case AttributeTypeJSONString:
		s, err := a.stringMember(av)
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		// Older writers double-encoded json strings.
		if inner, ok := out.(string); ok {
			var nested any
			if err := json.Unmarshal([]byte(inner), &nested); err == nil {
				return nested, nil
			}
		}
		return out, nil

	case AttributeTypeJSONStringList:
		s, err := a.stringMember(av)
		if err != nil {
			return nil, err
		}
		var out []any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
		}
		return out, nil

	case AttributeTypeStringList:
		list, err := a.listMember(av)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(list))
		for _, elem := range list {
			s, ok := elem.(*types.AttributeValueMemberS)
			if !ok {
				return nil, a.decodeTypeError(elem, "S")
			}
			out = append(out, s.Value)
		}
		return out, nil

	case AttributeTypeNumberList:
		list, err := a.listMember(av)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(list))
		for _, elem := range list {
			n, ok := elem.(*types.AttributeValueMemberN)
			if !ok {
				return nil, a.decodeTypeError(elem, "N")
			}
			parsed, err := parseNumber(n.Value)
			if err != nil {
				return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
			}
			out = append(out, parsed)
		}
		return out, nil

	case AttributeTypeJSONList:
		list, err := a.listMember(av)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(list))
		for _, elem := range list {
			if _, ok := elem.(*types.AttributeValueMemberM); !ok {
				return nil, a.decodeTypeError(elem, "M")
			}
			var decoded any
			if err := attributevalue.Unmarshal(elem, &decoded); err != nil {
				return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
			}
			out = append(out, decoded)
		}
		return out, nil

	case AttributeTypeStringSet:
		ss, ok := av.(*types.AttributeValueMemberSS)
		if !ok {
			return nil, a.decodeTypeError(av, "SS")
		}
		out := make([]string, len(ss.Value))
		copy(out, ss.Value)
		return out, nil

	case AttributeTypeNumberSet:
		ns, ok := av.(*types.AttributeValueMemberNS)
		if !ok {
			return nil, a.decodeTypeError(av, "NS")
		}
		out := make([]any, 0, len(ns.Value))
		for _, s := range ns.Value {
			parsed, err := parseNumber(s)
			if err != nil {
				return nil, fmt.Errorf("orm: attribute %q: %w", a.Name, err)
			}
			out = append(out, parsed)
		}
		return out, nil
	}

	return nil, fmt.Errorf("orm: attribute %q has unknown type %q", a.Name, a.Type)
}

func (a *Attribute) stringMember(av types.AttributeValue) (string, error) {
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", a.decodeTypeError(av, "S")
	}
	return s.Value, nil
}

func (a *Attribute) numberMember(av types.AttributeValue) (string, error) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return "", a.decodeTypeError(av, "N")
	}
	return n.Value, nil
}

func (a *Attribute) listMember(av types.AttributeValue) ([]types.AttributeValue, error) {
	l, ok := av.(*types.AttributeValueMemberL)
	if !ok {
		return nil, a.decodeTypeError(av, "L")
	}
	return l.Value, nil
}

func (a *Attribute) decodeTypeError(av types.AttributeValue, want string) error {
	return fmt.Errorf("orm: attribute %q: expected wire tag %s, got %T", a.Name, want, av)
}

// stringValue renders a scalar as its stored string form. Nil renders as
// the sentinel so key attributes never produce empty strings.
func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return noneSentinel
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// numberString renders a numeric value in DynamoDB's decimal string form.
func numberString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return noneSentinel, nil
	case int:
		return strconv.Itoa(v), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("cannot encode %T as a number", value)
	}
}

// parseNumber decodes a DynamoDB decimal string: values carrying a decimal
// point come back as float64, everything else as int64.
func parseNumber(s string) (any, error) {
	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", s, err)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return n, nil
}

// datetimeString renders a timestamp as POSIX seconds with fractional
// precision. Absent timestamps are stored as "0".
func datetimeString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "0", nil
	case time.Time:
		if v.IsZero() {
			return "0", nil
		}
		return strconv.FormatFloat(float64(v.UnixMicro())/1e6, 'f', -1, 64), nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return "0", nil
		}
		return strconv.FormatFloat(float64(v.UnixMicro())/1e6, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("cannot encode %T as a datetime", value)
	}
}

// parseDatetime decodes POSIX seconds; zero decodes to nil rather than the
// epoch.
func parseDatetime(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid datetime %q: %w", s, err)
	}
	if f == 0 {
		return nil, nil
	}
	return time.UnixMicro(int64(math.Round(f * 1e6))).UTC(), nil
}

// isEmptyValue reports whether a value should be treated as absent: nil,
// empty strings, and empty maps and slices.
func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// anySlice widens any slice value ([]string, []int, []any, ...) to []any.
// Nil values yield an empty slice.
func anySlice(value any) ([]any, error) {
	if value == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a slice, got %T", value)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
