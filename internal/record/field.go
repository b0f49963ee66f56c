package record

import (
	"fmt"
	"sort"
	"sync"
)

// CodeTable maps compact stored identifiers to display values and back.
type CodeTable interface {
	// Name identifies the table. A code table backed by a record table
	// uses that table's catalog path.
	Name() string
	// Identifier returns the stored identifier for a display value.
	Identifier(value any) (any, bool)
	// Value returns the display value for a stored identifier.
	Value(id any) (any, bool)
}

// Code is one identifier/value pair of a code table.
type Code struct {
	ID    any `yaml:"id" json:"id"`
	Value any `yaml:"value" json:"value"`
}

// MapCodeTable is an in-memory CodeTable. Lookups compare the textual
// form of keys so that 1, int64(1) and "1" find the same entry.
type MapCodeTable struct {
	name string

	mu       sync.RWMutex
	byID     map[string]Code
	byValue  map[string]Code
	idsInOrd []string
}

// NewCodeTable creates a code table with the given entries.
func NewCodeTable(name string, codes ...Code) *MapCodeTable {
	t := &MapCodeTable{
		name:    name,
		byID:    make(map[string]Code, len(codes)),
		byValue: make(map[string]Code, len(codes)),
	}
	for _, c := range codes {
		t.Add(c.ID, c.Value)
	}
	return t
}

// Name implements CodeTable.
func (t *MapCodeTable) Name() string { return t.name }

// Add registers an identifier/value pair, replacing any previous entry for id.
func (t *MapCodeTable) Add(id, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := codeKey(id)
	if _, ok := t.byID[key]; !ok {
		t.idsInOrd = append(t.idsInOrd, key)
	}
	c := Code{ID: id, Value: value}
	t.byID[key] = c
	t.byValue[codeKey(value)] = c
}

// Identifier implements CodeTable.
func (t *MapCodeTable) Identifier(value any) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byValue[codeKey(value)]
	if !ok {
		return nil, false
	}
	return c.ID, true
}

// Value implements CodeTable.
func (t *MapCodeTable) Value(id any) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byID[codeKey(id)]
	if !ok {
		return nil, false
	}
	return c.Value, true
}

// Codes returns the entries in insertion order.
func (t *MapCodeTable) Codes() []Code {
	t.mu.RLock()
	defer t.mu.RUnlock()
	codes := make([]Code, 0, len(t.idsInOrd))
	for _, k := range t.idsInOrd {
		codes = append(codes, t.byID[k])
	}
	return codes
}

func codeKey(v any) string {
	if IsNumber(v) {
		if d, err := ToDecimal(v); err == nil {
			return d.String()
		}
	}
	return fmt.Sprint(v)
}

// FieldDefinition describes one column of a Definition.
type FieldDefinition struct {
	Name      string
	Type      DataType
	Required  bool
	CodeTable CodeTable

	// Placeholder is the bind placeholder text for values of this field.
	// Empty means "?". Geometry columns on some backends wrap the marker
	// in a constructor call.
	Placeholder string
}

// PlaceholderText returns the bind placeholder for the field.
func (f *FieldDefinition) PlaceholderText() string {
	if f == nil || f.Placeholder == "" {
		return "?"
	}
	return f.Placeholder
}

// Convert converts v to the field's data type, naming the field on failure.
func (f *FieldDefinition) Convert(v any) (any, error) {
	out, err := f.Type.Convert(v)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	return out, nil
}

// ToString renders v using the field's data type.
func (f *FieldDefinition) ToString(v any) string {
	if f == nil {
		return String.Format(v)
	}
	return f.Type.Format(v)
}

// Definition describes a table: its catalog path and ordered fields.
type Definition struct {
	Path          string
	IDField       string
	GeometryField string
	SRID          int

	fields []*FieldDefinition
	index  map[string]int
	folded map[string]int
}

// NewDefinition creates a table definition. Field names must be unique.
func NewDefinition(path string, fields ...*FieldDefinition) (*Definition, error) {
	d := &Definition{
		Path:   path,
		index:  make(map[string]int, len(fields)),
		folded: make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f == nil || f.Name == "" {
			return nil, fmt.Errorf("table %s: field without a name", path)
		}
		if _, dup := d.index[f.Name]; dup {
			return nil, fmt.Errorf("table %s: duplicate field %s", path, f.Name)
		}
		d.index[f.Name] = len(d.fields)
		key := foldName(f.Name)
		if _, dup := d.folded[key]; !dup {
			d.folded[key] = len(d.fields)
		}
		d.fields = append(d.fields, f)
	}
	return d, nil
}

// MustDefinition is NewDefinition for static definitions; it panics on error.
func MustDefinition(path string, fields ...*FieldDefinition) *Definition {
	d, err := NewDefinition(path, fields...)
	if err != nil {
		panic(err)
	}
	return d
}

// Fields returns the fields in declaration order.
func (d *Definition) Fields() []*FieldDefinition {
	out := make([]*FieldDefinition, len(d.fields))
	copy(out, d.fields)
	return out
}

// FieldNames returns the field names in declaration order.
func (d *Definition) FieldNames() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.Name
	}
	return names
}

// Field looks a field up by exact name.
func (d *Definition) Field(name string) (*FieldDefinition, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.fields[i], true
}

// LookupField looks a field up by exact name, then case-insensitively.
func (d *Definition) LookupField(name string) (*FieldDefinition, bool) {
	if f, ok := d.Field(name); ok {
		return f, true
	}
	i, ok := d.folded[foldName(name)]
	if !ok {
		return nil, false
	}
	return d.fields[i], true
}

// FieldIndex returns the position of a field, or -1.
func (d *Definition) FieldIndex(name string) int {
	i, ok := d.index[name]
	if !ok {
		return -1
	}
	return i
}

// IDFieldDefinition returns the identifier field, if the table has one.
func (d *Definition) IDFieldDefinition() (*FieldDefinition, bool) {
	if d.IDField == "" {
		return nil, false
	}
	return d.Field(d.IDField)
}

// CodeTables returns the distinct code tables referenced by the fields,
// sorted by name.
func (d *Definition) CodeTables() []CodeTable {
	seen := map[string]CodeTable{}
	for _, f := range d.fields {
		if f.CodeTable != nil {
			seen[f.CodeTable.Name()] = f.CodeTable
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]CodeTable, len(names))
	for i, n := range names {
		out[i] = seen[n]
	}
	return out
}
