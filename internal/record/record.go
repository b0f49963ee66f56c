package record

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Record.
type State int

const (
	// Initializing is the state while a store populates a record it read.
	Initializing State = iota
	// New is a record that has never been written.
	New
	// Persisted is a record whose values match the store.
	Persisted
	// Modified is a persisted record with unsaved changes.
	Modified
	// Deleted is a record removed (or scheduled for removal) from the store.
	Deleted
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case New:
		return "New"
	case Persisted:
		return "Persisted"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrImmutableID is returned when the identifier of a stored record is changed.
	ErrImmutableID = errors.New("identifier of a persisted record cannot change")

	// ErrInvalidTransition is returned for a lifecycle change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid record state transition")

	// ErrUnknownField is returned when a record is asked for a field its definition lacks.
	ErrUnknownField = errors.New("unknown field")
)

// Getter is the read side of a record used by the in-memory evaluator.
type Getter interface {
	Get(name string) (any, bool)
}

// Map adapts a plain map to Getter.
type Map map[string]any

// Get implements Getter.
func (m Map) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Record is one row of a table. Values are held in field order.
// A Record is not safe for concurrent mutation.
type Record struct {
	def    *Definition
	values []any
	state  State
}

// NewRecord creates an empty record in the New state.
func NewRecord(def *Definition) *Record {
	return &Record{def: def, values: make([]any, len(def.fields)), state: New}
}

// NewInitializing creates an empty record for a store to populate. Call
// Loaded once every value has been set.
func NewInitializing(def *Definition) *Record {
	return &Record{def: def, values: make([]any, len(def.fields)), state: Initializing}
}

// Definition returns the record's table definition.
func (r *Record) Definition() *Definition { return r.def }

// State returns the lifecycle state.
func (r *Record) State() State { return r.state }

// Get implements Getter.
func (r *Record) Get(name string) (any, bool) {
	i := r.def.FieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return r.values[i], true
}

// Value returns the value of a field, or nil.
func (r *Record) Value(name string) any {
	v, _ := r.Get(name)
	return v
}

// Values returns a copy of the values in field order.
func (r *Record) Values() []any {
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}

// ID returns the value of the identifier field.
func (r *Record) ID() any {
	if r.def.IDField == "" {
		return nil
	}
	return r.Value(r.def.IDField)
}

// Set converts v through the field's type and stores it.
//
// Setting the identifier of a Persisted, Modified or Deleted record fails
// with ErrImmutableID. Setting any field on a Deleted record fails with
// ErrInvalidTransition. A Persisted record becomes Modified when a value
// actually changes.
func (r *Record) Set(name string, v any) error {
	i := r.def.FieldIndex(name)
	if i < 0 {
		return fmt.Errorf("%w %s in %s", ErrUnknownField, name, r.def.Path)
	}
	f := r.def.fields[i]
	if r.state == Deleted {
		return fmt.Errorf("%w: set %s on deleted record", ErrInvalidTransition, name)
	}
	converted, err := f.Convert(v)
	if err != nil {
		return err
	}
	if name == r.def.IDField && (r.state == Persisted || r.state == Modified) {
		if !sameValue(r.values[i], converted) {
			return fmt.Errorf("%w: %s", ErrImmutableID, name)
		}
		return nil
	}
	if sameValue(r.values[i], converted) {
		return nil
	}
	r.values[i] = converted
	if r.state == Persisted {
		r.state = Modified
	}
	return nil
}

// SetValues sets several fields in definition order, stopping
// at the first error.
func (r *Record) SetValues(values map[string]any) error {
	for _, name := range r.def.FieldNames() {
		if v, ok := values[name]; ok {
			if err := r.Set(name, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Loaded finishes initialization of a record read from a store.
func (r *Record) Loaded() error {
	return r.transition(Initializing, Persisted)
}

// MarkPersisted records a successful insert or update.
func (r *Record) MarkPersisted() error {
	switch r.state {
	case New, Modified, Persisted:
		r.state = Persisted
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, Persisted)
	}
}

// Delete schedules the record for deletion.
func (r *Record) Delete() error {
	switch r.state {
	case New, Persisted, Modified:
		r.state = Deleted
		return nil
	case Deleted:
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, Deleted)
	}
}

func (r *Record) transition(from, to State) error {
	if r.state != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, to)
	}
	r.state = to
	return nil
}

// String renders the record as PATH(field=value, ...).
func (r *Record) String() string {
	var b strings.Builder
	b.WriteString(r.def.Path)
	b.WriteByte('(')
	for i, f := range r.def.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(f.ToString(r.values[i]))
	}
	b.WriteByte(')')
	return b.String()
}

// NewIdentifier returns a new time-ordered unique identifier for string-typed
// identifier fields.
func NewIdentifier() string {
	return uuid.Must(uuid.NewV7()).String()
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if IsNumber(a) && IsNumber(b) {
		da, _ := ToDecimal(a)
		db, _ := ToDecimal(b)
		return da.Equal(db)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func foldName(name string) string {
	return strings.ToUpper(name)
}
