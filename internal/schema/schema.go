// Package schema declares the output fields of a filing record and the
// document paths each one is read from. The mapping is data: the built-in
// table is an embedded YAML file and alternatives can be loaded from disk.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Contractor block layout.
const (
	ContractorPrefix      = "Contractor_"
	DefaultMaxContractors = 5
	DefaultPrefix         = "irs"
)

// ContractorParts are the per-contractor columns in emission order.
var ContractorParts = []string{"Name", "Services", "Compensation", "Address"}

// Schema validation errors.
var (
	ErrNoFields               = errors.New("schema declares no fields")
	ErrMissingNamespace       = errors.New("schema namespace is required")
	ErrMissingFieldName       = errors.New("field name is required")
	ErrFieldWithoutPaths      = errors.New("field declares no paths")
	ErrDuplicateField         = errors.New("duplicate field name")
	ErrReservedFieldName      = errors.New("field name collides with contractor columns")
	ErrInvalidContractorMax   = errors.New("contractors.max must be non-negative")
	ErrMissingContractorGroup = errors.New("contractors.group is required when contractors.max > 0")
)

// Field binds one output column to its candidate paths.
type Field struct {
	Name  string   `yaml:"name"`
	Path  string   `yaml:"path,omitempty"`
	Paths []string `yaml:"paths,omitempty"`

	compiled []Path
}

// Candidates returns the field's paths in evaluation order.
func (f *Field) Candidates() []string {
	if f.Path == "" {
		return f.Paths
	}

	return append([]string{f.Path}, f.Paths...)
}

// Compiled returns the compiled candidates. Valid after Schema.Validate.
func (f *Field) Compiled() []Path {
	return f.compiled
}

// ContractorGroup describes the repeating contractor sub-record.
type ContractorGroup struct {
	Max          int        `yaml:"max"`
	Group        string     `yaml:"group"`
	Name         []string   `yaml:"name"`
	Services     []string   `yaml:"services"`
	Compensation []string   `yaml:"compensation"`
	Address      [][]string `yaml:"address"`

	compiled compiledGroup
}

type compiledGroup struct {
	group        Path
	name         []Path
	services     []Path
	compensation []Path
	address      [][]Path
}

// GroupPath returns the compiled group node path.
func (c *ContractorGroup) GroupPath() Path { return c.compiled.group }

// NamePaths returns the compiled name candidates (person name first).
func (c *ContractorGroup) NamePaths() []Path { return c.compiled.name }

// ServicesPaths returns the compiled services-description candidates.
func (c *ContractorGroup) ServicesPaths() []Path { return c.compiled.services }

// CompensationPaths returns the compiled compensation candidates.
func (c *ContractorGroup) CompensationPaths() []Path { return c.compiled.compensation }

// AddressPaths returns one candidate list per address component.
func (c *ContractorGroup) AddressPaths() [][]Path { return c.compiled.address }

// Schema is the ordered field table plus the contractor group. Paths bind
// Prefix to Namespace.
type Schema struct {
	Version     string          `yaml:"version"`
	Namespace   string          `yaml:"namespace"`
	Prefix      string          `yaml:"prefix,omitempty"`
	Fields      []Field         `yaml:"fields"`
	Contractors ContractorGroup `yaml:"contractors"`
}

// Namespaces returns the prefix bindings paths are compiled with.
func (s *Schema) Namespaces() map[string]string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return map[string]string{prefix: s.Namespace}
}

// Default returns a fresh copy of the built-in Form 990 schema.
func Default() (*Schema, error) {
	return Parse(defaultYAML)
}

// MustDefault is Default for program start-up; the embedded table is tested.
func MustDefault() *Schema {
	s, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded schema: %v", err))
	}

	return s
}

// Load reads and validates a schema file.
func Load(filepath string) (*Schema, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML schema.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	return &s, nil
}

// Marshal encodes the schema back to YAML.
func (s *Schema) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Validate checks the schema and compiles its paths. It is safe to call more than once.
func (s *Schema) Validate() error {
	if strings.TrimSpace(s.Namespace) == "" {
		return ErrMissingNamespace
	}

	if len(s.Fields) == 0 {
		return ErrNoFields
	}

	namespaces := s.Namespaces()
	seen := make(map[string]bool, len(s.Fields))

	for i := range s.Fields {
		f := &s.Fields[i]

		if f.Name == "" {
			return fmt.Errorf("%w: fields[%d]", ErrMissingFieldName, i)
		}

		if seen[f.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
		}

		seen[f.Name] = true

		if strings.HasPrefix(f.Name, ContractorPrefix) {
			return fmt.Errorf("%w: %s", ErrReservedFieldName, f.Name)
		}

		candidates := f.Candidates()
		if len(candidates) == 0 {
			return fmt.Errorf("%w: %s", ErrFieldWithoutPaths, f.Name)
		}

		compiled, err := compileAll(candidates, namespaces)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}

		f.compiled = compiled
	}

	return s.Contractors.compile(namespaces)
}

func (c *ContractorGroup) compile(namespaces map[string]string) error {
	if c.Max < 0 {
		return ErrInvalidContractorMax
	}

	if c.Max == 0 {
		c.compiled = compiledGroup{}

		return nil
	}

	if c.Group == "" {
		return ErrMissingContractorGroup
	}

	var (
		cg  compiledGroup
		err error
	)

	if cg.group, err = CompilePath(c.Group, namespaces); err != nil {
		return fmt.Errorf("contractors.group: %w", err)
	}

	if cg.name, err = compileAll(c.Name, namespaces); err != nil {
		return fmt.Errorf("contractors.name: %w", err)
	}

	if cg.services, err = compileAll(c.Services, namespaces); err != nil {
		return fmt.Errorf("contractors.services: %w", err)
	}

	if cg.compensation, err = compileAll(c.Compensation, namespaces); err != nil {
		return fmt.Errorf("contractors.compensation: %w", err)
	}

	for i, component := range c.Address {
		paths, err := compileAll(component, namespaces)
		if err != nil {
			return fmt.Errorf("contractors.address[%d]: %w", i, err)
		}

		cg.address = append(cg.address, paths)
	}

	c.compiled = cg

	return nil
}

// FieldNames returns the declared field names in order.
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}

	return names
}

// ContractorKeys returns the fixed contractor block columns, grouped per contractor.
func (s *Schema) ContractorKeys() []string {
	keys := make([]string, 0, s.Contractors.Max*len(ContractorParts))

	for i := 1; i <= s.Contractors.Max; i++ {
		for _, part := range ContractorParts {
			keys = append(keys, ContractorKey(i, part))
		}
	}

	return keys
}

// Keys returns every record key: declared fields, then the contractor block.
func (s *Schema) Keys() []string {
	return append(s.FieldNames(), s.ContractorKeys()...)
}

// ContractorKey formats the column name of one contractor part, e.g. Contractor_2_Name.
func ContractorKey(index int, part string) string {
	return fmt.Sprintf("%s%d_%s", ContractorPrefix, index, part)
}
