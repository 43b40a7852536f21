package integration

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// FieldMap holds decoded values keyed by field name.
// Values are string, int64, decimal.Decimal, bool or time.Time.
type FieldMap map[string]any

// Has reports whether the field is present
func (m FieldMap) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// Keys returns the present field names in lexical order
func (m FieldMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns a string field
func (m FieldMap) String(name string) (string, bool) {
	v, ok := m[name].(string)
	return v, ok
}

// Int returns an int field
func (m FieldMap) Int(name string) (int64, bool) {
	v, ok := m[name].(int64)
	return v, ok
}

// Decimal returns a decimal field
func (m FieldMap) Decimal(name string) (decimal.Decimal, bool) {
	v, ok := m[name].(decimal.Decimal)
	return v, ok
}

// Bool returns a bool field
func (m FieldMap) Bool(name string) (bool, bool) {
	v, ok := m[name].(bool)
	return v, ok
}

// Time returns a datetime field
func (m FieldMap) Time(name string) (time.Time, bool) {
	v, ok := m[name].(time.Time)
	return v, ok
}

// Clone returns a shallow copy
func (m FieldMap) Clone() FieldMap {
	cp := make(FieldMap, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
