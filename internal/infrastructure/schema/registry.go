// Package schema holds the immutable per-marketplace field schema tables.
//
// Each marketplace declares an ordered list of typed field groups and the
// bindings from canonical order line fields to its source fields. Tables are
// validated once when the registry is built and are read-only afterwards.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// Definition is the complete schema of one marketplace
type Definition struct {
	Marketplace integration.Marketplace
	Groups      []*integration.FieldGroup
	Mapping     *integration.MappingSpec
}

type marketplaceSchema struct {
	groups  []*integration.FieldGroup
	byName  map[string]*integration.FieldGroup
	merged  map[string]integration.FieldType
	groupOf map[string]string
	mapping *integration.MappingSpec
}

// Registry implements integration.SchemaRegistry
type Registry struct {
	schemas map[integration.Marketplace]*marketplaceSchema
}

var _ integration.SchemaRegistry = (*Registry)(nil)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry with every built-in marketplace.
// It panics if the built-in tables are inconsistent.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := New(YahooDefinition(), RakutenDefinition())
		if err != nil {
			panic(fmt.Sprintf("schema: built-in tables are invalid: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// New builds a registry from definitions
func New(defs ...Definition) (*Registry, error) {
	r := &Registry{schemas: make(map[integration.Marketplace]*marketplaceSchema, len(defs))}
	for _, def := range defs {
		if !def.Marketplace.IsValid() {
			return nil, fmt.Errorf("%w: %q", integration.ErrUnknownMarketplace, def.Marketplace)
		}
		if _, dup := r.schemas[def.Marketplace]; dup {
			return nil, fmt.Errorf("schema: duplicate definition for %s", def.Marketplace)
		}
		s, err := build(def)
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", def.Marketplace, err)
		}
		r.schemas[def.Marketplace] = s
	}
	return r, nil
}

func build(def Definition) (*marketplaceSchema, error) {
	s := &marketplaceSchema{
		groups:  def.Groups,
		byName:  make(map[string]*integration.FieldGroup, len(def.Groups)),
		merged:  make(map[string]integration.FieldType),
		groupOf: make(map[string]string),
		mapping: def.Mapping,
	}

	for _, g := range def.Groups {
		if _, dup := s.byName[g.Name]; dup {
			return nil, fmt.Errorf("duplicate group %q", g.Name)
		}
		s.byName[g.Name] = g
		for _, f := range g.Fields {
			if !f.Type.IsValid() {
				return nil, fmt.Errorf("group %q field %q: invalid type %q", g.Name, f.Name, f.Type)
			}
			if prev, ok := s.merged[f.Name]; ok && prev != f.Type {
				return nil, fmt.Errorf("field %q declared as %s and %s", f.Name, prev, f.Type)
			}
			s.merged[f.Name] = f.Type
			if _, ok := s.groupOf[f.Name]; !ok {
				s.groupOf[f.Name] = g.Name
			}
		}
		for name := range g.Defaults {
			if !g.Declares(name) {
				return nil, fmt.Errorf("group %q: default for undeclared field %q", g.Name, name)
			}
		}
	}

	if def.Mapping != nil {
		if err := s.checkMapping(def.Mapping); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *marketplaceSchema) checkMapping(m *integration.MappingSpec) error {
	seen := make(map[integration.CanonicalField]bool, len(m.Bindings))
	for _, b := range m.Bindings {
		if !integration.IsCanonicalField(b.Field) {
			return fmt.Errorf("binding for unknown canonical field %q", b.Field)
		}
		if seen[b.Field] {
			return fmt.Errorf("canonical field %q bound twice", b.Field)
		}
		seen[b.Field] = true
		if len(b.Sources) == 0 {
			return fmt.Errorf("canonical field %q has no source", b.Field)
		}
		for _, src := range b.Sources {
			if _, _, err := s.resolveSource(src); err != nil {
				return fmt.Errorf("canonical field %q: %w", b.Field, err)
			}
		}
	}
	for _, cb := range []*integration.ChildBinding{m.Options, m.Inscriptions} {
		if cb == nil {
			continue
		}
		g, ok := s.byName[cb.Group]
		if !ok || g.Scope != integration.GroupScopeItemChild {
			return fmt.Errorf("child binding group %q is not an item_child group", cb.Group)
		}
		for _, f := range []string{cb.Index, cb.Name, cb.Value, cb.Price} {
			if f != "" && !g.Declares(f) {
				return fmt.Errorf("child binding field %q not declared in %q", f, cb.Group)
			}
		}
	}
	return nil
}

// resolveSource finds the header or item group holding a binding source.
// A source is either "field" or "Group.field".
func (s *marketplaceSchema) resolveSource(src string) (*integration.FieldGroup, string, error) {
	if group, field, ok := strings.Cut(src, "."); ok {
		g, exists := s.byName[group]
		if !exists || !g.Declares(field) {
			return nil, "", fmt.Errorf("source %q is not declared", src)
		}
		if !bindableScope(g.Scope) {
			return nil, "", fmt.Errorf("source %q is in %s group", src, g.Scope)
		}
		return g, field, nil
	}

	var found *integration.FieldGroup
	for _, g := range s.groups {
		if !bindableScope(g.Scope) || !g.Declares(src) {
			continue
		}
		if found != nil {
			return nil, "", fmt.Errorf("source %q is ambiguous between %q and %q", src, found.Name, g.Name)
		}
		found = g
	}
	if found == nil {
		return nil, "", fmt.Errorf("source %q is not declared in a header or item group", src)
	}
	return found, src, nil
}

func bindableScope(scope integration.GroupScope) bool {
	return scope == integration.GroupScopeHeader || scope == integration.GroupScopeItem
}

// ---------------------------------------------------------------------------
// SchemaRegistry
// ---------------------------------------------------------------------------

// Validate fails with *integration.UnknownFieldError listing every undeclared requested field
func (r *Registry) Validate(marketplace integration.Marketplace, requested []string) error {
	s, ok := r.schemas[marketplace]
	if !ok {
		return fmt.Errorf("%w: %q", integration.ErrUnknownMarketplace, marketplace)
	}
	var unknown []string
	seen := make(map[string]bool)
	for _, f := range requested {
		if _, declared := s.merged[f]; declared || seen[f] {
			continue
		}
		seen[f] = true
		unknown = append(unknown, f)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &integration.UnknownFieldError{Marketplace: marketplace, Fields: unknown}
	}
	return nil
}

// AllFields returns a copy of the merged field map
func (r *Registry) AllFields(marketplace integration.Marketplace) map[string]integration.FieldType {
	s, ok := r.schemas[marketplace]
	if !ok {
		return nil
	}
	out := make(map[string]integration.FieldType, len(s.merged))
	for k, v := range s.merged {
		out[k] = v
	}
	return out
}

// GroupOf returns the first group, in declaration order, that declares field
func (r *Registry) GroupOf(marketplace integration.Marketplace, field string) (string, bool) {
	s, ok := r.schemas[marketplace]
	if !ok {
		return "", false
	}
	g, ok := s.groupOf[field]
	return g, ok
}

// Group returns a group by name
func (r *Registry) Group(marketplace integration.Marketplace, name string) (*integration.FieldGroup, bool) {
	s, ok := r.schemas[marketplace]
	if !ok {
		return nil, false
	}
	g, ok := s.byName[name]
	return g, ok
}

// Groups returns the groups of a marketplace in declaration order
func (r *Registry) Groups(marketplace integration.Marketplace) []*integration.FieldGroup {
	s, ok := r.schemas[marketplace]
	if !ok {
		return nil
	}
	return append([]*integration.FieldGroup(nil), s.groups...)
}

// Mapping returns the canonical bindings of a marketplace
func (r *Registry) Mapping(marketplace integration.Marketplace) (*integration.MappingSpec, bool) {
	s, ok := r.schemas[marketplace]
	if !ok || s.mapping == nil {
		return nil, false
	}
	return s.mapping, true
}

// SourceGroup resolves a binding source to the group that holds it
func (r *Registry) SourceGroup(marketplace integration.Marketplace, source string) (*integration.FieldGroup, string, error) {
	s, ok := r.schemas[marketplace]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", integration.ErrUnknownMarketplace, marketplace)
	}
	return s.resolveSource(source)
}

// Marketplaces lists the registered marketplaces
func (r *Registry) Marketplaces() []integration.Marketplace {
	out := make([]integration.Marketplace, 0, len(r.schemas))
	for m := range r.schemas {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FieldsOfScope returns the declared field names of every group with the given scope
func (r *Registry) FieldsOfScope(marketplace integration.Marketplace, scopes ...integration.GroupScope) []string {
	s, ok := r.schemas[marketplace]
	if !ok {
		return nil
	}
	want := make(map[integration.GroupScope]bool, len(scopes))
	for _, sc := range scopes {
		want[sc] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, g := range s.groups {
		if !want[g.Scope] {
			continue
		}
		for _, f := range g.Fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				out = append(out, f.Name)
			}
		}
	}
	return out
}

// helpers for table definitions

func defs(t integration.FieldType, names ...string) []integration.FieldDef {
	out := make([]integration.FieldDef, len(names))
	for i, n := range names {
		out[i] = integration.FieldDef{Name: n, Type: t}
	}
	return out
}

func join(parts ...[]integration.FieldDef) []integration.FieldDef {
	var out []integration.FieldDef
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
