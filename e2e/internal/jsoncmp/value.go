// Package jsoncmp models structured command output as a tree of typed values and
// compares an expected tree against an observed one.
package jsoncmp

import (
	"encoding/json"
	"fmt"
	"maps"
	"math/big"
	"slices"
	"strconv"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	}
	return "unknown"
}

// Value is one node of a document. The set of implementations is closed.
type Value interface {
	Kind() Kind
	value()
}

type (
	Mapping  map[string]Value
	Sequence []Value
	String   string
	Bool     bool
	Null     struct{}

	// Number keeps the JSON literal so integers outside float64 precision survive.
	Number string
)

func (Mapping) Kind() Kind  { return KindMapping }
func (Sequence) Kind() Kind { return KindSequence }
func (String) Kind() Kind   { return KindString }
func (Number) Kind() Kind   { return KindNumber }
func (Bool) Kind() Kind     { return KindBool }
func (Null) Kind() Kind     { return KindNull }

func (Mapping) value()  {}
func (Sequence) value() {}
func (String) value()   {}
func (Number) value()   {}
func (Bool) value()     {}
func (Null) value()     {}

// Keys returns the mapping keys in sorted order.
func (m Mapping) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// Int builds a Number from an integer.
func Int(i int64) Number {
	return Number(strconv.FormatInt(i, 10))
}

// Float builds a Number from a float.
func Float(f float64) Number {
	return Number(strconv.FormatFloat(f, 'g', -1, 64))
}

func (n Number) equal(o Number) bool {
	if n == o {
		return true
	}
	// Exact rational comparison: 1.0 equals 1, 2^53+1 does not equal 2^53.
	a, okA := new(big.Rat).SetString(string(n))
	b, okB := new(big.Rat).SetString(string(o))
	if !okA || !okB {
		return false
	}
	return a.Cmp(b) == 0
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !json.Valid([]byte(n)) {
		return nil, fmt.Errorf("invalid number literal %q", string(n))
	}
	return []byte(n), nil
}

func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch t := v.(type) {
	case Mapping:
		out := make(Mapping, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case Sequence:
		out := make(Sequence, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	}
	return v
}
