package paramspace

import (
	"fmt"

	"strategy-opt-lab/internal/domain"
)

// ToStorable serializes the space to a plain key/value form: each candidate
// value becomes a {"type": ..., "value": ...} map so decimals, symbols and
// raw strings survive the round trip.
func (s *Space) ToStorable() map[string]interface{} {
	out := make(map[string]interface{}, len(s.names))
	for _, name := range s.names {
		list := s.values[name]
		tagged := make([]interface{}, len(list))
		for i, v := range list {
			tagged[i] = v.Storable()
		}
		out[name] = tagged
	}
	return out
}

// FromStorable reconstructs a Space from the tagged form produced by
// ToStorable. Every value must carry a type tag; untagged input belongs to
// FromConfig.
func FromStorable(m map[string]interface{}) (*Space, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("parameter space is empty")
	}

	values := make(map[string][]domain.ParamValue, len(m))
	for name, raw := range m {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("parameter %q: value is not a list", name)
		}
		parsed := make([]domain.ParamValue, 0, len(list))
		for _, item := range list {
			tagged, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("parameter %q: candidate value is not a tagged map", name)
			}
			v, err := domain.ValueFromStorable(tagged)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}
			parsed = append(parsed, v)
		}
		values[name] = parsed
	}

	return New(values)
}

// FromConfig builds a Space from the looser shape a run-config file uses:
// tagged maps pass through unchanged, raw JSON numbers become number
// values, and raw strings become symbolic tags.
func FromConfig(m map[string][]interface{}) (*Space, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("parameter space is empty")
	}

	values := make(map[string][]domain.ParamValue, len(m))
	for name, list := range m {
		parsed := make([]domain.ParamValue, 0, len(list))
		for _, item := range list {
			switch it := item.(type) {
			case map[string]interface{}:
				v, err := domain.ValueFromStorable(it)
				if err != nil {
					return nil, fmt.Errorf("parameter %q: %w", name, err)
				}
				parsed = append(parsed, v)
			case float64:
				parsed = append(parsed, domain.Number(it))
			case int:
				parsed = append(parsed, domain.Number(float64(it)))
			case string:
				parsed = append(parsed, domain.Symbol(it))
			default:
				return nil, fmt.Errorf("parameter %q: unsupported candidate value %T", name, item)
			}
		}
		values[name] = parsed
	}

	return New(values)
}
