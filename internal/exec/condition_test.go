package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowtitan/flowtitan/internal/value"
)

func resolverFrom(m map[string]value.Value) Resolver {
	return func(name string) value.Value {
		if v, ok := m[name]; ok {
			return v
		}
		return value.NullValue()
	}
}

func TestEvaluateAttributePathTruthy(t *testing.T) {
	ce := NewConditionEvaluator(resolverFrom(map[string]value.Value{
		"t1": value.OfMap(map[string]value.Value{
			"result": value.OfMap(map[string]value.Value{"ok": value.OfBool(true)}),
		}),
	}))
	assert.True(t, ce.Evaluate("t1.result.ok"))
}

func TestEvaluateEqualityComparison(t *testing.T) {
	ce := NewConditionEvaluator(resolverFrom(map[string]value.Value{
		"t1": value.OfMap(map[string]value.Value{"status": value.OfString("success")}),
	}))
	assert.True(t, ce.Evaluate(`t1.status=="success"`))
	assert.False(t, ce.Evaluate(`t1.status=="failure"`))
}

func TestEvaluateAndOrNot(t *testing.T) {
	ce := NewConditionEvaluator(resolverFrom(map[string]value.Value{
		"a": value.OfBool(true),
		"b": value.OfBool(false),
	}))
	assert.True(t, ce.Evaluate("a and not b"))
	assert.True(t, ce.Evaluate("a or b"))
	assert.False(t, ce.Evaluate("b and a"))
}

func TestEvaluateNumericComparison(t *testing.T) {
	ce := NewConditionEvaluator(resolverFrom(map[string]value.Value{
		"t1": value.OfMap(map[string]value.Value{"code": value.OfInt(200)}),
	}))
	assert.True(t, ce.Evaluate("t1.code >= 200"))
	assert.False(t, ce.Evaluate("t1.code > 200"))
}

func TestEvaluateMissingAttributeIsFalsy(t *testing.T) {
	ce := NewConditionEvaluator(resolverFrom(nil))
	assert.False(t, ce.Evaluate("t1.missing.deeper"))
}

func TestEvaluateUnsupportedSyntaxReturnsFalse(t *testing.T) {
	ce := NewConditionEvaluator(resolverFrom(nil))
	assert.False(t, ce.Evaluate("t1.a(1)"))
}

func TestEvaluateEmptyConditionIsFalse(t *testing.T) {
	ce := NewConditionEvaluator(resolverFrom(nil))
	assert.False(t, ce.Evaluate(""))
}

func TestResolveReturnsListForIterableExpression(t *testing.T) {
	items := []value.Value{value.OfInt(1), value.OfInt(2), value.OfInt(3)}
	ce := NewConditionEvaluator(resolverFrom(map[string]value.Value{
		"t1": value.OfMap(map[string]value.Value{"items": value.OfList(items)}),
	}))
	v, err := ce.Resolve("t1.items")
	assert.NoError(t, err)
	list, ok := v.List()
	assert.True(t, ok)
	assert.Len(t, list, 3)
}
