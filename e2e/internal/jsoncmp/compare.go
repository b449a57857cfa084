package jsoncmp

import (
	"fmt"
	"strconv"
	"strings"
)

type Reason int

const (
	ReasonValueMismatch Reason = iota
	ReasonKindMismatch
	ReasonMissingKey
	ReasonLengthMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonValueMismatch:
		return "value mismatch"
	case ReasonKindMismatch:
		return "kind mismatch"
	case ReasonMissingKey:
		return "missing key"
	case ReasonLengthMismatch:
		return "length mismatch"
	}
	return "unknown"
}

// PathElem is either a mapping key or a sequence index.
type PathElem struct {
	Key   string
	Index int
	IsKey bool
}

type Path []PathElem

func (p Path) String() string {
	var b strings.Builder
	b.WriteString("$")
	for _, e := range p {
		if e.IsKey {
			b.WriteString(".")
			b.WriteString(e.Key)
			continue
		}
		b.WriteString("[")
		b.WriteString(strconv.Itoa(e.Index))
		b.WriteString("]")
	}
	return b.String()
}

func (p Path) key(k string) Path {
	return append(p[:len(p):len(p)], PathElem{Key: k, IsKey: true})
}

func (p Path) index(i int) Path {
	return append(p[:len(p):len(p)], PathElem{Index: i})
}

// Divergence describes where an observed document stops satisfying the expected one.
// Actual is nil when the expected key is missing from the observed document.
type Divergence struct {
	Path     Path
	Reason   Reason
	Expected Value
	Actual   Value
}

func (d *Divergence) String() string {
	switch d.Reason {
	case ReasonMissingKey:
		return fmt.Sprintf("%s: missing key, expected %s", d.Path, render(d.Expected))
	case ReasonLengthMismatch:
		return fmt.Sprintf("%s: expected %d elements, got %d", d.Path, len(d.Expected.(Sequence)), len(d.Actual.(Sequence)))
	case ReasonKindMismatch:
		return fmt.Sprintf("%s: expected %s %s, got %s %s", d.Path, d.Expected.Kind(), render(d.Expected), d.Actual.Kind(), render(d.Actual))
	}
	return fmt.Sprintf("%s: expected %s, got %s", d.Path, render(d.Expected), render(d.Actual))
}

// Compare reports whether observed satisfies expected, returning nil on match.
//
// Mappings match when every expected key is present in observed with a matching
// value; keys only present in observed are ignored. Sequences must have the same
// length and match element by element. Scalars must have the same kind and value.
// Mapping keys are visited in sorted order so the reported divergence is stable.
func Compare(expected, observed Value) *Divergence {
	return compare(nil, expected, observed)
}

// Match is shorthand for Compare(expected, observed) == nil.
func Match(expected, observed Value) bool {
	return Compare(expected, observed) == nil
}

func compare(path Path, expected, observed Value) *Divergence {
	if expected == nil {
		expected = Null{}
	}
	if observed == nil {
		observed = Null{}
	}
	if expected.Kind() != observed.Kind() {
		return &Divergence{Path: path, Reason: ReasonKindMismatch, Expected: expected, Actual: observed}
	}

	switch want := expected.(type) {
	case Mapping:
		got := observed.(Mapping)
		for _, k := range want.Keys() {
			gv, ok := got[k]
			if !ok {
				return &Divergence{Path: path.key(k), Reason: ReasonMissingKey, Expected: want[k]}
			}
			if d := compare(path.key(k), want[k], gv); d != nil {
				return d
			}
		}
		return nil
	case Sequence:
		got := observed.(Sequence)
		if len(want) != len(got) {
			return &Divergence{Path: path, Reason: ReasonLengthMismatch, Expected: want, Actual: got}
		}
		for i := range want {
			if d := compare(path.index(i), want[i], got[i]); d != nil {
				return d
			}
		}
		return nil
	case Number:
		if !want.equal(observed.(Number)) {
			return &Divergence{Path: path, Reason: ReasonValueMismatch, Expected: expected, Actual: observed}
		}
		return nil
	case String, Bool, Null:
		if expected != observed {
			return &Divergence{Path: path, Reason: ReasonValueMismatch, Expected: expected, Actual: observed}
		}
		return nil
	}
	return &Divergence{Path: path, Reason: ReasonKindMismatch, Expected: expected, Actual: observed}
}

func render(v Value) string {
	if v == nil {
		return "<none>"
	}
	b, err := Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	const maxRendered = 120
	if len(b) > maxRendered {
		return string(b[:maxRendered]) + "..."
	}
	return string(b)
}
