// Package schema loads table definitions from YAML or CUE schema files.
//
// Both formats share one structure:
//
//	codeTables:
//	  - name: STATUS
//	    codes: [{id: 1, value: Active}, {id: 2, value: Retired}]
//	tables:
//	  - path: /Parcels
//	    idField: OBJECTID
//	    geometryField: SHAPE
//	    srid: 4326
//	    fields:
//	      - {name: OBJECTID, type: integer, required: true}
//	      - {name: STATUS, type: integer, codeTable: STATUS}
//
// A CUE file may use any CUE feature (definitions, defaults, references) as
// long as it evaluates to concrete data of that shape.
package schema

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/geoquery/internal/record"
)

// File is the decoded form of a schema file.
type File struct {
	CodeTables []CodeTable `yaml:"codeTables" json:"codeTables"`
	Tables     []Table     `yaml:"tables" json:"tables"`
}

// CodeTable declares a code table shared by fields of any table.
type CodeTable struct {
	Name  string        `yaml:"name" json:"name"`
	Codes []record.Code `yaml:"codes" json:"codes"`
}

// Table declares one table or feature class.
type Table struct {
	Path          string  `yaml:"path" json:"path"`
	IDField       string  `yaml:"idField" json:"idField"`
	GeometryField string  `yaml:"geometryField" json:"geometryField"`
	SRID          int     `yaml:"srid" json:"srid"`
	Fields        []Field `yaml:"fields" json:"fields"`
}

// Field declares one column.
type Field struct {
	Name      string `yaml:"name" json:"name"`
	Type      string `yaml:"type" json:"type"`
	Required  bool   `yaml:"required" json:"required"`
	CodeTable string `yaml:"codeTable" json:"codeTable"`
}

// Error reports an invalid schema, locating the problem as precisely as
// the failure allows.
type Error struct {
	File    string
	Table   string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File + ": ")
	}
	if e.Table != "" {
		sb.WriteString("table " + e.Table)
		if e.Field != "" {
			sb.WriteString(" field " + e.Field)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Load reads and validates the schema file at path. The extension selects
// the format: .cue for CUE, .yaml, .yml or .json otherwise.
func Load(fs afero.Fs, path string) ([]*record.Definition, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &Error{File: path, Message: "read schema", Err: err}
	}
	f, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	defs, err := f.Definitions()
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			se.File = path
		}
		return nil, err
	}
	return defs, nil
}

// Parse decodes schema data. name is used for the format and in errors.
func Parse(name string, data []byte) (*File, error) {
	var f File
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".cue":
		v := cuecontext.New().CompileBytes(data, cue.Filename(name))
		if err := v.Err(); err != nil {
			return nil, &Error{File: name, Message: "compile CUE", Err: err}
		}
		if err := v.Validate(cue.Concrete(true)); err != nil {
			return nil, &Error{File: name, Message: "schema is not concrete", Err: err}
		}
		if err := v.Decode(&f); err != nil {
			return nil, &Error{File: name, Message: "decode CUE", Err: err}
		}
	case ".yaml", ".yml", ".json":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, &Error{File: name, Message: "decode YAML", Err: err}
		}
	default:
		return nil, &Error{File: name, Message: fmt.Sprintf("unsupported schema format %q", ext)}
	}
	return &f, nil
}

// Definitions validates the file and builds its table definitions in
// declaration order.
func (f *File) Definitions() ([]*record.Definition, error) {
	codeTables := make(map[string]*record.MapCodeTable, len(f.CodeTables))
	for _, ct := range f.CodeTables {
		if ct.Name == "" {
			return nil, &Error{Message: "code table without a name"}
		}
		if _, dup := codeTables[ct.Name]; dup {
			return nil, &Error{Message: fmt.Sprintf("duplicate code table %s", ct.Name)}
		}
		codeTables[ct.Name] = record.NewCodeTable(ct.Name, ct.Codes...)
	}

	seen := make(map[string]bool, len(f.Tables))
	defs := make([]*record.Definition, 0, len(f.Tables))
	for _, t := range f.Tables {
		if t.Path == "" {
			return nil, &Error{Message: "table without a path"}
		}
		if seen[t.Path] {
			return nil, &Error{Table: t.Path, Message: "duplicate table"}
		}
		seen[t.Path] = true

		def, err := t.definition(codeTables)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (t Table) definition(codeTables map[string]*record.MapCodeTable) (*record.Definition, error) {
	if len(t.Fields) == 0 {
		return nil, &Error{Table: t.Path, Message: "no fields declared"}
	}
	fields := make([]*record.FieldDefinition, len(t.Fields))
	for i, f := range t.Fields {
		typ, err := record.ParseDataType(f.Type)
		if err != nil {
			return nil, &Error{Table: t.Path, Field: f.Name, Message: "invalid type", Err: err}
		}
		fd := &record.FieldDefinition{Name: f.Name, Type: typ, Required: f.Required}
		if f.CodeTable != "" {
			ct, ok := codeTables[f.CodeTable]
			if !ok {
				return nil, &Error{Table: t.Path, Field: f.Name, Message: fmt.Sprintf("unknown code table %s", f.CodeTable)}
			}
			fd.CodeTable = ct
		}
		fields[i] = fd
	}

	def, err := record.NewDefinition(t.Path, fields...)
	if err != nil {
		return nil, &Error{Table: t.Path, Message: "invalid fields", Err: err}
	}
	def.IDField = t.IDField
	def.GeometryField = t.GeometryField
	def.SRID = t.SRID

	if t.IDField != "" {
		if _, ok := def.Field(t.IDField); !ok {
			return nil, &Error{Table: t.Path, Field: t.IDField, Message: "id field is not declared"}
		}
	}
	if t.GeometryField != "" {
		f, ok := def.Field(t.GeometryField)
		if !ok {
			return nil, &Error{Table: t.Path, Field: t.GeometryField, Message: "geometry field is not declared"}
		}
		if f.Type != record.Geometry {
			return nil, &Error{Table: t.Path, Field: t.GeometryField, Message: fmt.Sprintf("geometry field has type %s", f.Type)}
		}
	}
	return def, nil
}
