package decoder

import (
	"fmt"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// GroupPath locates a header group relative to an order record.
// An empty Path means the record node itself.
type GroupPath struct {
	Group string
	Path  string
}

// EnvelopeLayout describes where each group of an order lives in a payload
type EnvelopeLayout struct {
	Level integration.EnvelopeLevel
	// KeyGroup and KeyField name the header field holding the order id
	KeyGroup string
	KeyField string
	// TextField is set when each record is a bare scalar, such as an entry of an id list
	TextField string
	Headers   []GroupPath

	ItemsPath        string
	ItemGroup        string
	OptionsPath      string
	OptionGroup      string
	InscriptionsPath string
	InscriptionGroup string
}

// Decoder decodes payload nodes for one marketplace
type Decoder struct {
	registry    integration.SchemaRegistry
	marketplace integration.Marketplace
}

// New creates a decoder bound to a marketplace schema
func New(registry integration.SchemaRegistry, marketplace integration.Marketplace) *Decoder {
	return &Decoder{registry: registry, marketplace: marketplace}
}

// Marketplace returns the marketplace the decoder is bound to
func (d *Decoder) Marketplace() integration.Marketplace {
	return d.marketplace
}

// Decode decodes node against the named group
func (d *Decoder) Decode(node *Node, groupName string) (integration.FieldMap, error) {
	g, err := d.group(groupName)
	if err != nil {
		return nil, err
	}
	return Decode(node, g)
}

// DecodeEnvelope decodes one order record.
// Header groups whose path is missing are omitted; items and their children keep wire order.
func (d *Decoder) DecodeEnvelope(record *Node, layout EnvelopeLayout) (*integration.OrderEnvelope, error) {
	if layout.TextField != "" {
		record = &Node{Children: []*Node{{Name: layout.TextField, Text: record.Text}}}
	}

	env := &integration.OrderEnvelope{
		Marketplace: d.marketplace,
		Level:       layout.Level,
		Groups:      make(map[string]integration.FieldMap, len(layout.Headers)),
	}

	for _, h := range layout.Headers {
		node := record.Find(h.Path)
		if node == nil {
			continue
		}
		fm, err := d.Decode(node, h.Group)
		if err != nil {
			return nil, err
		}
		env.Groups[h.Group] = fm
	}

	key, ok := env.Header(layout.KeyGroup)[layout.KeyField]
	if !ok {
		return nil, fmt.Errorf("%w: record has no %s.%s", integration.ErrPlatformInvalidResponse, layout.KeyGroup, layout.KeyField)
	}
	orderID, err := integration.AsString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	env.OrderID = orderID

	if layout.ItemsPath == "" {
		return env, nil
	}
	for _, itemNode := range record.FindAll(layout.ItemsPath) {
		item, err := d.decodeItem(itemNode, layout)
		if err != nil {
			return nil, err
		}
		env.Items = append(env.Items, item)
	}
	return env, nil
}

func (d *Decoder) decodeItem(node *Node, layout EnvelopeLayout) (integration.ItemRecord, error) {
	fields, err := d.Decode(node, layout.ItemGroup)
	if err != nil {
		return integration.ItemRecord{}, err
	}
	item := integration.ItemRecord{Fields: fields}
	if layout.OptionsPath != "" {
		if item.Options, err = d.decodeChildren(node, layout.OptionsPath, layout.OptionGroup); err != nil {
			return integration.ItemRecord{}, err
		}
	}
	if layout.InscriptionsPath != "" {
		if item.Inscriptions, err = d.decodeChildren(node, layout.InscriptionsPath, layout.InscriptionGroup); err != nil {
			return integration.ItemRecord{}, err
		}
	}
	return item, nil
}

func (d *Decoder) decodeChildren(node *Node, path, group string) ([]integration.FieldMap, error) {
	children := node.FindAll(path)
	if len(children) == 0 {
		return nil, nil
	}
	out := make([]integration.FieldMap, 0, len(children))
	for _, c := range children {
		fm, err := d.Decode(c, group)
		if err != nil {
			return nil, err
		}
		out = append(out, fm)
	}
	return out, nil
}

func (d *Decoder) group(name string) (*integration.FieldGroup, error) {
	g, ok := d.registry.Group(d.marketplace, name)
	if !ok {
		return nil, fmt.Errorf("decoder: %s has no group %q", d.marketplace, name)
	}
	return g, nil
}

// KeyOf returns the raw order id of a record without decoding it, for error reports
func KeyOf(record *Node, layout EnvelopeLayout) string {
	if layout.TextField != "" {
		return record.Text
	}
	for _, h := range layout.Headers {
		if h.Group != layout.KeyGroup {
			continue
		}
		if n := record.Find(h.Path); n != nil {
			raw, _, _ := n.Value(layout.KeyField)
			return raw
		}
	}
	return ""
}
