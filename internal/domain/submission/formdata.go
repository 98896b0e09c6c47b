package submission

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// FormData is the string-keyed value map holding the filled form fields.
// Values are JSON scalars: numbers, strings, booleans or nil.
type FormData map[string]interface{}

// Has reports whether key is present with a non-nil, non-empty value.
func (f FormData) Has(key string) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Number returns the value at key as a decimal. Numeric strings are accepted
// ("1234.50"); anything else reports false.
func (f FormData) Number(key string) (decimal.Decimal, bool) {
	v, ok := f[key]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	return toDecimal(v)
}

// NumberOrZero is Number with missing or non-numeric values read as zero.
func (f FormData) NumberOrZero(key string) decimal.Decimal {
	d, _ := f.Number(key)
	return d
}

// String returns the string form of the value at key, "" for nil or missing.
func (f FormData) String(key string) string {
	return FormatValue(f[key])
}

// NumericKeys returns the sorted keys whose values are numeric.
func (f FormData) NumericKeys() []string {
	keys := make([]string, 0, len(f))
	for k, v := range f {
		if _, ok := toDecimal(v); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (f FormData) Clone() FormData {
	if f == nil {
		return FormData{}
	}
	out := make(FormData, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge returns a copy of f overlaid with other.
func (f FormData) Merge(other map[string]interface{}) FormData {
	out := f.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// FormatValue renders a form value the way it appears in documents. nil
// becomes the empty string; integral numbers drop their fraction.
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case decimal.Decimal:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	if d, ok := toDecimal(v); ok {
		return d.String()
	}
	return fmt.Sprint(v)
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt32(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}
