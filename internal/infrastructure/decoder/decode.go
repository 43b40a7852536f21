package decoder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// marketplaceZone applies to datetimes sent without an offset
var marketplaceZone = time.FixedZone("JST", 9*60*60)

var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05-0700",
		"2006-01-02 15:04:05-07:00",
	}
	localLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"20060102150405",
		"2006/01/02 15:04:05",
		"2006-01-02",
		"20060102",
	}
)

// Decode extracts the fields declared in group from node.
//
// Undeclared members are ignored and declared-but-absent fields are left out,
// except for the group's documented defaults. An empty or all-blank value for
// a non-string field counts as absent, whatever the wire format. A value that cannot be coerced fails the whole call
// with *integration.DecodeError.
func Decode(node *Node, group *integration.FieldGroup) (integration.FieldMap, error) {
	out := make(integration.FieldMap)
	if node == nil {
		applyDefaults(out, group)
		return out, nil
	}
	for _, f := range group.Fields {
		raw, present, scalar := node.Value(f.Name)
		if !present {
			continue
		}
		if !scalar {
			return nil, &integration.DecodeError{Group: group.Name, Field: f.Name, Type: f.Type, Raw: "<structured>"}
		}
		if f.Type != integration.FieldTypeString && strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := Coerce(f.Type, raw)
		if err != nil {
			return nil, &integration.DecodeError{Group: group.Name, Field: f.Name, Type: f.Type, Raw: raw, Err: err}
		}
		out[f.Name] = v
	}
	applyDefaults(out, group)
	return out, nil
}

func applyDefaults(out integration.FieldMap, group *integration.FieldGroup) {
	for name, v := range group.Defaults {
		if _, ok := out[name]; !ok {
			out[name] = v
		}
	}
}

// Coerce converts a raw wire value to the Go representation of t
func Coerce(t integration.FieldType, raw string) (any, error) {
	switch t {
	case integration.FieldTypeString:
		return raw, nil
	case integration.FieldTypeInt:
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case integration.FieldTypeDecimal:
		return decimal.NewFromString(strings.TrimSpace(raw))
	case integration.FieldTypeBool:
		return strconv.ParseBool(strings.TrimSpace(raw))
	case integration.FieldTypeDateTime:
		return ParseTime(raw)
	default:
		return nil, fmt.Errorf("unsupported field type %q", t)
	}
}

// ParseTime accepts the datetime layouts used by supported marketplaces.
// Values without an offset are read in Japan Standard Time.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, marketplaceZone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", raw)
}
