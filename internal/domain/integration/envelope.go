package integration

// EnvelopeLevel tells whether an envelope came from a search or a detail call
type EnvelopeLevel string

const (
	// EnvelopeLevelSearch envelopes carry header fields only
	EnvelopeLevelSearch EnvelopeLevel = "search"
	// EnvelopeLevelDetail envelopes carry header fields and line items
	EnvelopeLevelDetail EnvelopeLevel = "detail"
)

// ItemRecord is one decoded line item with its ordered sub-records
type ItemRecord struct {
	Fields       FieldMap
	Options      []FieldMap
	Inscriptions []FieldMap
}

// OrderEnvelope is one decoded order
type OrderEnvelope struct {
	Marketplace Marketplace
	Level       EnvelopeLevel
	OrderID     string
	// Groups holds header-scope field maps keyed by group name
	Groups map[string]FieldMap
	// Items keeps wire order
	Items []ItemRecord
}

// Header returns the field map of a header group, or nil
func (e *OrderEnvelope) Header(group string) FieldMap {
	if e.Groups == nil {
		return nil
	}
	return e.Groups[group]
}

// RejectedRecord is a wire record dropped because one of its values failed to decode
type RejectedRecord struct {
	OrderID string
	// Position is the zero-based index of the record on its wire page
	Position int
	Err      error
}
