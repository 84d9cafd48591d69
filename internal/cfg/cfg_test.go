package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearCFG() *CFG {
	g := New()
	g.AddNode(NewStart("start_0", "start"))
	g.AddNode(NewTask("task_0", "task:load", "t1"))
	g.AddNode(NewEnd("end_0", "end"))
	_ = g.AddEdge("start_0", "task_0", "next")
	_ = g.AddEdge("task_0", "end_0", "next")
	return g
}

func TestValidateIntegrityHoldsForLinearCFG(t *testing.T) {
	g := linearCFG()
	require.NoError(t, g.ValidateIntegrity())
}

func TestValidateIntegrityFailsOnMissingEntry(t *testing.T) {
	g := New()
	g.AddNode(NewEnd("end_0", "end"))
	g.Entry = ""
	assert.Error(t, g.ValidateIntegrity())
}

func TestValidateIntegrityFailsOnUnreachableExit(t *testing.T) {
	g := New()
	g.AddNode(NewStart("start_0", "start"))
	g.AddNode(NewEnd("end_0", "end"))
	// no edge wired: exit unreachable
	assert.Error(t, g.ValidateIntegrity())
}

func TestValidateIntegrityFailsOnDanglingSuccessor(t *testing.T) {
	g := New()
	g.AddNode(NewStart("start_0", "start"))
	g.AddNode(NewEnd("end_0", "end"))
	g.Nodes["start_0"].Successors["next"] = "missing"
	assert.Error(t, g.ValidateIntegrity())
}

func TestCanonicalHashStableAcrossRepeatedComputation(t *testing.T) {
	g := linearCFG()
	h1, err := g.CanonicalHash()
	require.NoError(t, err)
	h2, err := g.CanonicalHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestCanonicalHashInsensitiveToMapIterationOrder(t *testing.T) {
	a := linearCFG()
	b := New()
	b.AddNode(NewEnd("end_0", "end"))
	b.AddNode(NewStart("start_0", "start"))
	b.AddNode(NewTask("task_0", "task:load", "t1"))
	_ = b.AddEdge("task_0", "end_0", "next")
	_ = b.AddEdge("start_0", "task_0", "next")

	ha, _ := a.CanonicalHash()
	hb, _ := b.CanonicalHash()
	assert.Equal(t, ha, hb)
}

func TestCanonicalHashChangesWithStructure(t *testing.T) {
	a := linearCFG()
	b := linearCFG()
	b.Nodes["task_0"].Name = "task:different"

	ha, _ := a.CanonicalHash()
	hb, _ := b.CanonicalHash()
	assert.NotEqual(t, ha, hb)
}
