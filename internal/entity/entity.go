// Package entity describes the tables that can be filtered. A Descriptor is
// built once per entity type and holds a static mapping from field name to
// column metadata, so request-time field resolution is a map lookup rather
// than reflection.
package entity

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// FieldType is the semantic type of a column, used for value coercion.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeDate   FieldType = "date"
)

// Column describes one filterable column.
type Column struct {
	Name string
	Type FieldType
}

// Descriptor binds an entity name to its table and columns.
type Descriptor struct {
	Name    string
	Table   string
	Columns []Column

	byName map[string]Column
}

// New builds a descriptor from an explicit column list.
func New(name, table string, columns []Column) (*Descriptor, error) {
	if name == "" || table == "" {
		return nil, fmt.Errorf("entity name and table are required")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("entity %s has no columns", name)
	}
	byName := make(map[string]Column, len(columns))
	for _, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("entity %s has a column with no name", name)
		}
		if _, dup := byName[col.Name]; dup {
			return nil, fmt.Errorf("entity %s declares column %s twice", name, col.Name)
		}
		byName[col.Name] = col
	}
	return &Descriptor{Name: name, Table: table, Columns: columns, byName: byName}, nil
}

// FromStruct builds a descriptor by reflecting over a struct's `db` tags.
// Fields tagged `db:"-"` or without a db tag fall back to the snake_case
// field name. This runs once at registration; request-time lookups use the
// cached map.
func FromStruct(name, table string, model any) (*Descriptor, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return nil, fmt.Errorf("entity %s: nil model", name)
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity %s: model must be a struct, got %s", name, t.Kind())
	}

	var columns []Column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		colName := field.Tag.Get("db")
		if colName == "-" {
			continue
		}
		if colName == "" {
			colName = toSnakeCase(field.Name)
		}
		columns = append(columns, Column{Name: colName, Type: fieldTypeOf(field.Type)})
	}
	return New(name, table, columns)
}

// Lookup returns the column for a field name.
func (d *Descriptor) Lookup(field string) (Column, bool) {
	col, ok := d.byName[field]
	return col, ok
}

// FieldNames returns the set of filterable field names.
func (d *Descriptor) FieldNames() map[string]struct{} {
	names := make(map[string]struct{}, len(d.byName))
	for name := range d.byName {
		names[name] = struct{}{}
	}
	return names
}

var timeType = reflect.TypeOf(time.Time{})

func fieldTypeOf(t reflect.Type) FieldType {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return TypeDate
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInt
	case reflect.Float32, reflect.Float64:
		return TypeFloat
	case reflect.Bool:
		return TypeBool
	default:
		return TypeString
	}
}

func toSnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			// Break before an uppercase run start or a run end followed by
			// lowercase, so "UserID" becomes user_id not user_i_d.
			if i > 0 && (isLower(runes[i-1]) || (i+1 < len(runes) && isLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isLower(r rune) bool {
	return r >= 'a' && r <= 'z'
}
