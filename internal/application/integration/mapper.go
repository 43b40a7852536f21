package integration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// resolvedBinding is a CanonicalBinding whose sources were located in the schema once
type resolvedBinding struct {
	integration.CanonicalBinding
	sources []sourceRef
}

type sourceRef struct {
	group string
	field string
	item  bool
}

type resolvedMapping struct {
	bindings     []resolvedBinding
	options      *integration.ChildBinding
	inscriptions *integration.ChildBinding
}

// Mapper flattens decoded detail envelopes into canonical order lines
type Mapper struct {
	mappings map[integration.Marketplace]*resolvedMapping
	newID    func() uuid.UUID
}

// NewMapper resolves every marketplace mapping of the registry up front
func NewMapper(registry integration.SchemaRegistry) (*Mapper, error) {
	m := &Mapper{
		mappings: make(map[integration.Marketplace]*resolvedMapping),
		newID:    uuid.New,
	}
	for _, mp := range integration.AllMarketplaces() {
		spec, ok := registry.Mapping(mp)
		if !ok {
			continue
		}
		rm := &resolvedMapping{options: spec.Options, inscriptions: spec.Inscriptions}
		for _, b := range spec.Bindings {
			rb := resolvedBinding{CanonicalBinding: b}
			for _, src := range b.Sources {
				g, field, err := registry.SourceGroup(mp, src)
				if err != nil {
					return nil, fmt.Errorf("integration: %s binding %s: %w", mp, b.Field, err)
				}
				rb.sources = append(rb.sources, sourceRef{
					group: g.Name,
					field: field,
					item:  g.Scope == integration.GroupScopeItem,
				})
			}
			rm.bindings = append(rm.bindings, rb)
		}
		m.mappings[mp] = rm
	}
	return m, nil
}

// Map turns detail envelopes into order lines in wire order.
// A row missing a required field, or whose seller is unknown, is returned as a
// RowMappingError and skipped; the other rows are unaffected.
// lastOrderDate is the latest order time among rows sharing a shipping identity.
func (m *Mapper) Map(records []*integration.OrderEnvelope, lookup integration.SellerLookup) ([]integration.OrderLine, []*integration.RowMappingError) {
	var (
		drafts    []integration.OrderLine
		rowErrors []*integration.RowMappingError
	)
	for _, env := range records {
		mapping, ok := m.mappings[env.Marketplace]
		if !ok {
			rowErrors = append(rowErrors, &integration.RowMappingError{
				OrderID: env.OrderID,
				Reason:  fmt.Sprintf("no canonical mapping for marketplace %q", env.Marketplace),
			})
			continue
		}
		for i := range env.Items {
			line, err := m.mapRow(env, &env.Items[i], mapping, lookup)
			if err != nil {
				rowErrors = append(rowErrors, err)
				continue
			}
			drafts = append(drafts, line)
		}
	}

	latest := make(map[integration.ShippingIdentity]time.Time, len(drafts))
	for i := range drafts {
		key := drafts[i].ShippingIdentity()
		if t, ok := latest[key]; !ok || drafts[i].OrderTime.After(t) {
			latest[key] = drafts[i].OrderTime
		}
	}

	lines := make([]integration.OrderLine, len(drafts))
	for i, d := range drafts {
		d.ID = m.newID()
		d.LastOrderDate = latest[d.ShippingIdentity()]
		d.ComputeDerived()
		lines[i] = d
	}
	return lines, rowErrors
}

func (m *Mapper) mapRow(
	env *integration.OrderEnvelope,
	item *integration.ItemRecord,
	mapping *resolvedMapping,
	lookup integration.SellerLookup,
) (integration.OrderLine, *integration.RowMappingError) {
	line := integration.OrderLine{Marketplace: env.Marketplace, OrderID: env.OrderID}
	lineID := ""
	for _, b := range mapping.bindings {
		if b.Field != integration.CanonicalLineID {
			continue
		}
		if v, ok := resolve(env, item, b); ok {
			lineID, _ = integration.AsString(v)
		}
	}

	fail := func(field integration.CanonicalField, reason string) *integration.RowMappingError {
		return &integration.RowMappingError{OrderID: env.OrderID, LineID: lineID, Field: field, Reason: reason}
	}

	for _, b := range mapping.bindings {
		v, ok := resolve(env, item, b)
		if !ok {
			if b.Required {
				return line, fail(b.Field, "missing required field")
			}
			continue
		}
		if b.Convert != nil {
			converted, err := b.Convert(v)
			if err != nil {
				return line, fail(b.Field, err.Error())
			}
			v = converted
		}
		if err := line.SetField(b.Field, v); err != nil {
			return line, fail(b.Field, err.Error())
		}
	}

	shop, ok := lookup.ShopForSeller(line.SellerID)
	if !ok {
		return line, fail(integration.CanonicalSellerID, fmt.Sprintf("unknown seller %q", line.SellerID))
	}
	line.ShopCode = shop
	normalizeShipping(&line)

	var err error
	if line.Options, err = childValues(item.Options, mapping.options); err != nil {
		return line, fail("options", err.Error())
	}
	if line.Inscriptions, err = childValues(item.Inscriptions, mapping.inscriptions); err != nil {
		return line, fail("inscriptions", err.Error())
	}
	return line, nil
}

// resolve reads a binding's value. Several sources are joined as strings,
// skipping absent ones; a single source keeps its decoded type.
func resolve(env *integration.OrderEnvelope, item *integration.ItemRecord, b resolvedBinding) (any, bool) {
	lookup := func(ref sourceRef) (any, bool) {
		var fm integration.FieldMap
		if ref.item {
			fm = item.Fields
		} else {
			fm = env.Header(ref.group)
		}
		v, ok := fm[ref.field]
		return v, ok
	}

	if len(b.sources) == 1 {
		return lookup(b.sources[0])
	}

	parts := make([]string, 0, len(b.sources))
	for _, ref := range b.sources {
		v, ok := lookup(ref)
		if !ok {
			continue
		}
		s, err := integration.AsString(v)
		if err != nil || s == "" {
			continue
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return nil, false
	}
	return strings.Join(parts, b.Separator), true
}

func childValues(records []integration.FieldMap, binding *integration.ChildBinding) ([]integration.OptionValue, error) {
	if binding == nil || len(records) == 0 {
		return nil, nil
	}
	out := make([]integration.OptionValue, 0, len(records))
	for i, rec := range records {
		ov := integration.OptionValue{Index: int64(i + 1)}
		if binding.Index != "" {
			if idx, ok := rec.Int(binding.Index); ok {
				ov.Index = idx
			}
		}
		if v, ok := rec[binding.Name]; ok {
			s, err := integration.AsString(v)
			if err != nil {
				return nil, err
			}
			ov.Name = s
		}
		if v, ok := rec[binding.Value]; ok {
			s, err := integration.AsString(v)
			if err != nil {
				return nil, err
			}
			ov.Value = s
		}
		if binding.Price != "" {
			if v, ok := rec[binding.Price]; ok {
				d, err := integration.AsDecimal(v)
				if err != nil {
					return nil, err
				}
				ov.Price = d
			}
		}
		out = append(out, ov)
	}
	return out, nil
}

var zipReplacer = strings.NewReplacer("-", "", "‐", "", "ー", "", "−", "", " ", "")

// normalizeShipping folds width variants and whitespace so the same address
// spelled with full-width digits or extra spaces groups together
func normalizeShipping(l *integration.OrderLine) {
	l.ShipZip = zipReplacer.Replace(normalizeText(l.ShipZip))
	l.ShipPrefecture = normalizeText(l.ShipPrefecture)
	l.ShipCity = normalizeText(l.ShipCity)
	l.ShipAddress1 = normalizeText(l.ShipAddress1)
	l.ShipAddress2 = normalizeText(l.ShipAddress2)
	l.ShipName = normalizeText(l.ShipName)
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
