// Package value implements the tagged-variant value tree used to represent
// resolved DSL values and provider results without dynamic attribute access.
// Attribute paths like t1.result.ok are evaluated as repeated map lookups
// over this tree, never as method dispatch into a host type.
package value

import "fmt"

// Kind tags the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Int
	Float
	String
	List
	Map
)

// Value is an immutable tagged union: object map, list, string, int, float,
// bool, or null. Zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

func NullValue() Value        { return Value{kind: Null} }
func OfBool(b bool) Value     { return Value{kind: Bool, b: b} }
func OfInt(i int64) Value     { return Value{kind: Int, i: i} }
func OfFloat(f float64) Value { return Value{kind: Float, f: f} }
func OfString(s string) Value { return Value{kind: String, s: s} }
func OfList(l []Value) Value  { return Value{kind: List, list: l} }
func OfMap(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: Map, m: m}
}

func (v Value) Kind() Kind  { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }

func (v Value) Bool() (bool, bool)       { return v.b, v.kind == Bool }
func (v Value) Int() (int64, bool)       { return v.i, v.kind == Int }
func (v Value) Float() (float64, bool) {
	if v.kind == Float {
		return v.f, true
	}
	if v.kind == Int {
		return float64(v.i), true
	}
	return 0, false
}
func (v Value) String() (string, bool)     { return v.s, v.kind == String }
func (v Value) List() ([]Value, bool)      { return v.list, v.kind == List }
func (v Value) Map() (map[string]Value, bool) { return v.m, v.kind == Map }

// Get performs one attribute-path lookup step: a Map keyed lookup. Lists
// and every other kind are not indexed. Returns Null, false when the step
// cannot be resolved, which callers treat as "falsy".
func (v Value) Get(key string) (Value, bool) {
	if v.kind == Map {
		child, ok := v.m[key]
		return child, ok
	}
	return Value{}, false
}

// Truthy mirrors the DSL's boolean coercion: false/0/0.0/""/null/empty
// list/empty map are falsy, everything else truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case Null:
		return false
	case Bool:
		return v.b
	case Int:
		return v.i != 0
	case Float:
		return v.f != 0
	case String:
		return v.s != ""
	case List:
		return len(v.list) > 0
	case Map:
		return len(v.m) > 0
	default:
		return false
	}
}

// Equal implements the DSL's == operator: cross-kind comparisons between
// Int and Float compare numerically; everything else requires equal kind.
func Equal(a, b Value) bool {
	if a.kind == Int && b.kind == Float {
		return float64(a.i) == b.f
	}
	if a.kind == Float && b.kind == Int {
		return a.f == float64(b.i)
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Int:
		return a.i == b.i
	case Float:
		return a.f == b.f
	case String:
		return a.s == b.s
	case List:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare returns -1/0/1 for ordered comparisons; ok is false for
// non-comparable kinds (List, Map, Null, Bool, or a String paired with a
// non-String).
func Compare(a, b Value) (int, bool) {
	af, aok := a.Float()
	bf, bok := b.Float()
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if a.kind == String && b.kind == String {
		switch {
		case a.s < b.s:
			return -1, true
		case a.s > b.s:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// FromAny converts a loosely-typed Go value (as produced by encoding/json
// or by a provider result map) into a Value tree.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return NullValue()
	case bool:
		return OfBool(t)
	case int:
		return OfInt(int64(t))
	case int64:
		return OfInt(t)
	case float64:
		return OfFloat(t)
	case string:
		return OfString(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromAny(e)
		}
		return OfList(out)
	case []Value:
		return OfList(t)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromAny(e)
		}
		return OfMap(out)
	case map[string]Value:
		return OfMap(t)
	case Value:
		return t
	default:
		return OfString(fmt.Sprintf("%v", t))
	}
}

// ToAny converts a Value tree back into plain Go values, the inverse of
// FromAny, for JSON encoding and provider-result interop.
func ToAny(v Value) interface{} {
	switch v.kind {
	case Null:
		return nil
	case Bool:
		return v.b
	case Int:
		return v.i
	case Float:
		return v.f
	case String:
		return v.s
	case List:
		out := make([]interface{}, len(v.list))
		for i, e := range v.list {
			out[i] = ToAny(e)
		}
		return out
	case Map:
		out := make(map[string]interface{}, len(v.m))
		for k, e := range v.m {
			out[k] = ToAny(e)
		}
		return out
	default:
		return nil
	}
}
