package decoder

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

func uniq(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func expectedKeys(declared, present []string) []string {
	p := make(map[string]bool, len(present))
	for _, n := range present {
		p[n] = true
	}
	var out []string
	for _, n := range declared {
		if p[n] {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}

// Property: Decode keys == declared ∩ present, for JSON and XML payloads
func TestDecodeKeysAreDeclaredIntersectPresent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("JSON decode keeps exactly declared ∩ present", prop.ForAll(
		func(declaredRaw, presentRaw []string, value string) bool {
			declared, present := uniq(declaredRaw), uniq(presentRaw)
			group := integration.NewFieldGroup("G", integration.GroupScopeHeader, defsOf(declared), nil)

			payload := make(map[string]string, len(present))
			for _, n := range present {
				payload[n] = value
			}
			body, _ := json.Marshal(payload)
			node, err := ParseJSON(body)
			if err != nil {
				return false
			}
			fm, err := Decode(node, group)
			if err != nil {
				return false
			}
			keys := fm.Keys()
			if keys == nil {
				keys = []string{}
			}
			return fmt.Sprint(keys) == fmt.Sprint(expectedKeys(declared, present))
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.Identifier()),
		gen.AlphaString(),
	))

	properties.Property("XML decode keeps exactly declared ∩ present", prop.ForAll(
		func(declaredRaw, presentRaw []string, value string) bool {
			declared, present := uniq(declaredRaw), uniq(presentRaw)
			group := integration.NewFieldGroup("G", integration.GroupScopeHeader, defsOf(declared), nil)

			var b strings.Builder
			b.WriteString("<Record>")
			for _, n := range present {
				fmt.Fprintf(&b, "<%s>%s</%s>", n, value, n)
			}
			b.WriteString("</Record>")

			node, err := ParseXML([]byte(b.String()))
			if err != nil {
				return false
			}
			fm, err := Decode(node, group)
			if err != nil {
				return false
			}
			keys := fm.Keys()
			if keys == nil {
				keys = []string{}
			}
			return fmt.Sprint(keys) == fmt.Sprint(expectedKeys(declared, present))
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.Identifier()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func defsOf(names []string) []integration.FieldDef {
	out := make([]integration.FieldDef, len(names))
	for i, n := range names {
		out[i] = integration.FieldDef{Name: n, Type: integration.FieldTypeString}
	}
	return out
}
