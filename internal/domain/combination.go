package domain

import (
	"sort"
	"strings"
)

// Combination assigns exactly one concrete value to every parameter of a
// space. Combinations are produced by enumerating a parameter space and are
// treated as immutable once built.
type Combination map[string]ParamValue

// Key returns the canonical identity of the combination: parameter names in
// sorted order, each with its kind-tagged value. Used for result grouping
// and deterministic tie-breaking, so it must be stable across processes.
func (c Combination) Key() string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(c[name].String())
	}
	return sb.String()
}

// Clone returns a copy of the combination. A nil combination stays nil.
func (c Combination) Clone() Combination {
	if c == nil {
		return nil
	}
	out := make(Combination, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Native returns the combination as plain Go values keyed by parameter
// name, the form handed to the backtest simulator.
func (c Combination) Native() map[string]interface{} {
	out := make(map[string]interface{}, len(c))
	for k, v := range c {
		out[k] = v.Native()
	}
	return out
}

// Storable returns the type-tagged form used for persistence.
func (c Combination) Storable() map[string]interface{} {
	out := make(map[string]interface{}, len(c))
	for k, v := range c {
		out[k] = v.Storable()
	}
	return out
}

// CombinationFromStorable reconstructs a combination from its tagged form.
func CombinationFromStorable(m map[string]interface{}) (Combination, error) {
	out := make(Combination, len(m))
	for name, raw := range m {
		tagged, err := asStringKeyedMap(raw)
		if err != nil {
			return nil, err
		}
		v, err := ValueFromStorable(tagged)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// asStringKeyedMap normalizes the two map shapes JSON decoding can produce.
func asStringKeyedMap(raw interface{}) (map[string]interface{}, error) {
	switch m := raw.(type) {
	case map[string]interface{}:
		return m, nil
	case map[string]string:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	default:
		return nil, errNotTaggedValue
	}
}
