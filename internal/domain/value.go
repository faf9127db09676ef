package domain

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ValueKind identifies the concrete type carried by a ParamValue.
type ValueKind string

// Value kind constants. These double as the type tags used by the
// storable representation, so renaming one is a storage format change.
const (
	KindNumber  ValueKind = "number"
	KindDecimal ValueKind = "decimal"
	KindSymbol  ValueKind = "symbol"
	KindString  ValueKind = "string"
)

// ParamValue is a single candidate value for a tunable parameter: a float,
// a fixed-precision decimal, a symbolic tag, or a raw string. Values are
// immutable; two values are identical only if kind and content both match,
// so the symbol "0.01" and the decimal 0.01 are distinct.
type ParamValue struct {
	kind ValueKind
	num  float64
	dec  decimal.Decimal
	str  string
}

// Number creates a float-valued ParamValue.
func Number(v float64) ParamValue {
	return ParamValue{kind: KindNumber, num: v}
}

// Decimal creates a fixed-precision decimal ParamValue.
func Decimal(d decimal.Decimal) ParamValue {
	return ParamValue{kind: KindDecimal, dec: d}
}

// DecimalFromString parses s into a decimal ParamValue.
func DecimalFromString(s string) (ParamValue, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ParamValue{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return Decimal(d), nil
}

// Symbol creates a symbolic-tag ParamValue.
func Symbol(s string) ParamValue {
	return ParamValue{kind: KindSymbol, str: s}
}

// StringValue creates a raw string ParamValue.
func StringValue(s string) ParamValue {
	return ParamValue{kind: KindString, str: s}
}

// Kind returns the value kind.
func (v ParamValue) Kind() ValueKind {
	return v.kind
}

// Float64 returns the numeric content. For decimals the nearest float64 is
// returned. ok is false for symbols and strings.
func (v ParamValue) Float64() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindDecimal:
		f, _ := v.dec.Float64()
		return f, true
	default:
		return 0, false
	}
}

// Decimal returns the decimal content. ok is false for non-decimal kinds.
func (v ParamValue) Decimal() (decimal.Decimal, bool) {
	if v.kind != KindDecimal {
		return decimal.Decimal{}, false
	}
	return v.dec, true
}

// Render returns the canonical text form of the value content, without the
// kind tag. Numbers use the shortest representation that round-trips.
func (v ParamValue) Render() string {
	switch v.kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.num)
	case KindDecimal:
		return v.dec.String()
	default:
		return v.str
	}
}

// String implements fmt.Stringer as "kind:content".
func (v ParamValue) String() string {
	return string(v.kind) + ":" + v.Render()
}

// Equal reports whether two values have the same kind and content.
// Decimals compare by numeric equality (0.10 equals 0.1).
func (v ParamValue) Equal(o ParamValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindDecimal:
		return v.dec.Equal(o.dec)
	default:
		return v.str == o.str
	}
}

// Native returns the content as a plain Go value suitable for passing to
// the backtest simulator: float64 for numbers, string for everything else
// (decimals keep their exact text form).
func (v ParamValue) Native() interface{} {
	if v.kind == KindNumber {
		return v.num
	}
	return v.Render()
}

// Storable returns the type-tagged key/value form used for persistence.
func (v ParamValue) Storable() map[string]string {
	return map[string]string{
		"type":  string(v.kind),
		"value": v.Render(),
	}
}

// MarshalJSON emits the tagged storable form, so combinations survive
// plain JSON encoding despite the unexported fields.
func (v ParamValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Storable())
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *ParamValue) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := ValueFromStorable(m)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueFromStorable reconstructs a ParamValue from its tagged form. The
// input may come straight from decoded JSON, so values are matched loosely
// (any map with string "type" and "value" entries).
func ValueFromStorable(m map[string]interface{}) (ParamValue, error) {
	tag, ok := m["type"].(string)
	if !ok {
		return ParamValue{}, fmt.Errorf("missing value type tag")
	}
	raw, ok := m["value"].(string)
	if !ok {
		return ParamValue{}, fmt.Errorf("missing value content for type %q", tag)
	}

	switch ValueKind(tag) {
	case KindNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ParamValue{}, fmt.Errorf("parse number %q: %w", raw, err)
		}
		return Number(f), nil
	case KindDecimal:
		return DecimalFromString(raw)
	case KindSymbol:
		return Symbol(raw), nil
	case KindString:
		return StringValue(raw), nil
	default:
		return ParamValue{}, fmt.Errorf("unknown value type tag %q", tag)
	}
}
