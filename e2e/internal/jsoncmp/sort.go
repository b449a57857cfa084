package jsoncmp

import (
	"cmp"
	"slices"
)

// SortSequences returns a copy of v in which every sequence made up only of
// mappings is ordered by the given key fields, compared in order. Elements that
// lack a key sort before those that have it. v itself is not modified.
func SortSequences(v Value, keys ...string) Value {
	switch t := v.(type) {
	case Mapping:
		out := make(Mapping, len(t))
		for k, e := range t {
			out[k] = SortSequences(e, keys...)
		}
		return out
	case Sequence:
		out := make(Sequence, len(t))
		allMappings := true
		for i, e := range t {
			out[i] = SortSequences(e, keys...)
			if _, ok := out[i].(Mapping); !ok {
				allMappings = false
			}
		}
		if allMappings && len(keys) > 0 {
			slices.SortStableFunc(out, func(a, b Value) int {
				return compareByKeys(a.(Mapping), b.(Mapping), keys)
			})
		}
		return out
	}
	return v
}

func compareByKeys(a, b Mapping, keys []string) int {
	for _, k := range keys {
		av, aok := a[k]
		bv, bok := b[k]
		switch {
		case !aok && !bok:
			continue
		case !aok:
			return -1
		case !bok:
			return 1
		}
		if c := cmp.Compare(render(av), render(bv)); c != 0 {
			return c
		}
	}
	return 0
}
