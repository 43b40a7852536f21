package integration

import "sort"

// ---------------------------------------------------------------------------
// Field schema
// ---------------------------------------------------------------------------

// FieldType is the primitive type of a schema field
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInt      FieldType = "int"
	FieldTypeDecimal  FieldType = "decimal"
	FieldTypeBool     FieldType = "bool"
	FieldTypeDateTime FieldType = "datetime"
)

// IsValid returns true if the field type is known
func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeString, FieldTypeInt, FieldTypeDecimal, FieldTypeBool, FieldTypeDateTime:
		return true
	default:
		return false
	}
}

// GroupScope tells where in an order envelope a group's fields live
type GroupScope string

const (
	// GroupScopeSearch groups describe search request/response metadata
	GroupScopeSearch GroupScope = "search"
	// GroupScopeHeader groups hold order-level fields
	GroupScopeHeader GroupScope = "header"
	// GroupScopeItem groups hold line item fields
	GroupScopeItem GroupScope = "item"
	// GroupScopeItemChild groups hold repeated sub-records of a line item
	GroupScopeItemChild GroupScope = "item_child"
)

// FieldDef declares one field of a group
type FieldDef struct {
	Name string
	Type FieldType
}

// FieldGroup is a named, ordered set of typed fields.
// Groups are built once and never mutated.
type FieldGroup struct {
	Name     string
	Scope    GroupScope
	Fields   []FieldDef
	Defaults FieldMap

	index map[string]FieldType
}

// NewFieldGroup builds a group and its lookup index.
// Defaults apply to absent fields and must reference declared fields.
func NewFieldGroup(name string, scope GroupScope, fields []FieldDef, defaults FieldMap) *FieldGroup {
	g := &FieldGroup{
		Name:     name,
		Scope:    scope,
		Fields:   fields,
		Defaults: defaults,
		index:    make(map[string]FieldType, len(fields)),
	}
	for _, f := range fields {
		g.index[f.Name] = f.Type
	}
	return g
}

// TypeOf returns the declared type of a field
func (g *FieldGroup) TypeOf(name string) (FieldType, bool) {
	t, ok := g.index[name]
	return t, ok
}

// Declares reports whether the group declares the field
func (g *FieldGroup) Declares(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Names returns field names in declaration order
func (g *FieldGroup) Names() []string {
	names := make([]string, len(g.Fields))
	for i, f := range g.Fields {
		names[i] = f.Name
	}
	return names
}

// SchemaRegistry exposes the immutable per-marketplace field schema
type SchemaRegistry interface {
	// Validate fails with *UnknownFieldError if any requested field is undeclared
	Validate(marketplace Marketplace, requested []string) error
	// AllFields returns every declared field merged across groups
	AllFields(marketplace Marketplace) map[string]FieldType
	// GroupOf returns the first group declaring field
	GroupOf(marketplace Marketplace, field string) (string, bool)
	// Group returns a group by name
	Group(marketplace Marketplace, name string) (*FieldGroup, bool)
	// Mapping returns the canonical field bindings of a marketplace
	Mapping(marketplace Marketplace) (*MappingSpec, bool)
	// SourceGroup resolves a binding source ("field" or "Group.field") to its group
	SourceGroup(marketplace Marketplace, source string) (*FieldGroup, string, error)
}

// SortedFieldNames returns the keys of a merged field map in lexical order
func SortedFieldNames(fields map[string]FieldType) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Canonical bindings
// ---------------------------------------------------------------------------

// CanonicalBinding maps one canonical field to its marketplace source fields.
// Multiple sources are joined as strings with Separator.
type CanonicalBinding struct {
	Field     CanonicalField
	Sources   []string
	Separator string
	Required  bool
	// Convert transforms the resolved value before it is set; optional
	Convert func(v any) (any, error)
}

// ChildBinding names the fields of an option or inscription sub-record
type ChildBinding struct {
	Group string
	Index string
	Name  string
	Value string
	Price string
}

// MappingSpec is the complete canonical mapping of one marketplace
type MappingSpec struct {
	Bindings     []CanonicalBinding
	Options      *ChildBinding
	Inscriptions *ChildBinding
}
