// Package paramspace declares tunable-parameter grids and enumerates their
// cartesian product deterministically.
package paramspace

import (
	"fmt"
	"math/rand"
	"sort"

	"strategy-opt-lab/internal/domain"
)

// Space is an immutable set of candidate values per parameter name.
// Construct with New; a zero Space is invalid.
type Space struct {
	values map[string][]domain.ParamValue
	names  []string // sorted, fixes enumeration order
}

// New validates and builds a Space. The map must be non-empty and every
// value list non-empty; the error names the first offending parameter in
// sorted order.
func New(values map[string][]domain.ParamValue) (*Space, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("parameter space is empty")
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	copied := make(map[string][]domain.ParamValue, len(values))
	for _, name := range names {
		list := values[name]
		if len(list) == 0 {
			return nil, fmt.Errorf("parameter %q has no candidate values", name)
		}
		copied[name] = append([]domain.ParamValue(nil), list...)
	}

	return &Space{values: copied, names: names}, nil
}

// Names returns the parameter names in enumeration (sorted) order.
func (s *Space) Names() []string {
	return append([]string(nil), s.names...)
}

// Values returns the candidate list for a parameter, nil if unknown.
func (s *Space) Values(name string) []domain.ParamValue {
	list, ok := s.values[name]
	if !ok {
		return nil
	}
	return append([]domain.ParamValue(nil), list...)
}

// Count returns the total number of combinations without enumerating them.
func (s *Space) Count() int64 {
	total := int64(1)
	for _, name := range s.names {
		total *= int64(len(s.values[name]))
	}
	return total
}

// With returns a new Space with one parameter added or replaced.
func (s *Space) With(name string, values []domain.ParamValue) (*Space, error) {
	merged := make(map[string][]domain.ParamValue, len(s.values)+1)
	for k, v := range s.values {
		merged[k] = v
	}
	merged[name] = values
	return New(merged)
}

// Without returns a new Space with one parameter removed.
func (s *Space) Without(name string) (*Space, error) {
	merged := make(map[string][]domain.ParamValue, len(s.values))
	for k, v := range s.values {
		if k != name {
			merged[k] = v
		}
	}
	return New(merged)
}

// EnumerateOptions tunes eager enumeration.
type EnumerateOptions struct {
	// Shuffle randomizes combination order using Rand (or a time-seeded
	// source when Rand is nil).
	Shuffle bool
	Rand    *rand.Rand

	// Limit truncates the output when > 0.
	Limit int
}

// Combinations materializes the full cartesian product. Without Shuffle the
// order is deterministic: parameter names sorted, rightmost name varying
// fastest, matching Iterator exactly.
func (s *Space) Combinations(opts EnumerateOptions) []domain.Combination {
	out := make([]domain.Combination, 0, s.Count())

	it := s.Iterator()
	for {
		combo, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, combo)
	}

	if opts.Shuffle {
		r := opts.Rand
		if r == nil {
			r = rand.New(rand.NewSource(rand.Int63()))
		}
		r.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	}

	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}

	return out
}

// Iterator returns a lazy enumerator over the same sequence Combinations
// produces unshuffled. Use for spaces too large to materialize.
func (s *Space) Iterator() *Iterator {
	return &Iterator{
		space:  s,
		digits: make([]int, len(s.names)),
	}
}

// Iterator walks the cartesian product by treating the per-parameter value
// indices as mixed-radix digits: the rightmost digit increments first and
// carries leftward. Restartable via Reset.
type Iterator struct {
	space  *Space
	digits []int
	done   bool
}

// Next returns the next combination, or ok=false when exhausted.
func (it *Iterator) Next() (domain.Combination, bool) {
	if it.done {
		return nil, false
	}

	combo := make(domain.Combination, len(it.space.names))
	for i, name := range it.space.names {
		combo[name] = it.space.values[name][it.digits[i]]
	}

	// Increment the rightmost digit, carrying leftward.
	for i := len(it.digits) - 1; i >= 0; i-- {
		it.digits[i]++
		if it.digits[i] < len(it.space.values[it.space.names[i]]) {
			return combo, true
		}
		it.digits[i] = 0
	}
	it.done = true

	return combo, true
}

// Reset restarts the iterator from the first combination.
func (it *Iterator) Reset() {
	for i := range it.digits {
		it.digits[i] = 0
	}
	it.done = false
}
