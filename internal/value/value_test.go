package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetTraversesNestedMaps(t *testing.T) {
	root := OfMap(map[string]Value{
		"result": OfMap(map[string]Value{
			"ok": OfBool(true),
		}),
	})
	result, ok := root.Get("result")
	assert.True(t, ok)
	okVal, ok := result.Get("ok")
	assert.True(t, ok)
	b, _ := okVal.Bool()
	assert.True(t, b)
}

func TestGetMissingKeyFails(t *testing.T) {
	root := OfMap(map[string]Value{})
	_, ok := root.Get("missing")
	assert.False(t, ok)
}

func TestTruthy(t *testing.T) {
	assert.False(t, NullValue().Truthy())
	assert.False(t, OfInt(0).Truthy())
	assert.True(t, OfInt(1).Truthy())
	assert.False(t, OfString("").Truthy())
	assert.True(t, OfString("x").Truthy())
	assert.False(t, OfList(nil).Truthy())
	assert.True(t, OfList([]Value{OfInt(1)}).Truthy())
}

func TestEqualCrossNumericKind(t *testing.T) {
	assert.True(t, Equal(OfInt(3), OfFloat(3.0)))
	assert.False(t, Equal(OfInt(3), OfFloat(3.1)))
}

func TestCompareStringsAndNumbers(t *testing.T) {
	c, ok := Compare(OfInt(1), OfInt(2))
	assert.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare(OfString("a"), OfString("b"))
	assert.True(t, ok)
	assert.Equal(t, -1, c)

	_, ok = Compare(OfList(nil), OfInt(1))
	assert.False(t, ok)
}

func TestFromAnyToAnyRoundTrips(t *testing.T) {
	in := map[string]interface{}{
		"a": 1,
		"b": []interface{}{"x", 2.5, true, nil},
		"c": map[string]interface{}{"nested": "v"},
	}
	v := FromAny(in)
	out := ToAny(v)
	outMap, ok := out.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, int64(1), outMap["a"])
}
