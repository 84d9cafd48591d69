package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCleanPlanHasNoIssues(t *testing.T) {
	root, err := Parse("t1 = task(name=\"load\")\nt2 = task(name=\"process\", data=t1.result)\n")
	require.NoError(t, err)
	vr := Validate(root)
	assert.True(t, vr.OK())
	assert.Empty(t, vr.Errors)
}

func TestValidateWarnsOnForwardReference(t *testing.T) {
	root, err := Parse("t2 = task(name=\"process\", data=t1.result)\n")
	require.NoError(t, err)
	vr := Validate(root)
	assert.True(t, vr.OK())
	require.NotEmpty(t, vr.Warnings)
	assert.Contains(t, vr.Warnings[0].Message, "t1")
}

func TestValidateRejectsRetryAttemptsOutOfRange(t *testing.T) {
	root, err := Parse("retry attempts=200:\n    task(name=\"x\")\n")
	require.NoError(t, err)
	vr := Validate(root)
	assert.False(t, vr.OK())
}

func TestValidateWarnsOnEmptyForBody(t *testing.T) {
	// An empty for-loop body cannot be parsed (INDENT required), so the
	// AST is built directly.
	root := &Root{Statements: []Node{
		&For{Iterator: "x", Iterable: &Expr{Text: "items", LineNo: 1}, LineNo: 1},
	}}
	vr := Validate(root)
	assert.True(t, vr.OK())
	require.NotEmpty(t, vr.Warnings)
	assert.Contains(t, vr.Warnings[0].Message, "for loop has empty body")
}

func TestValidateFlagsLiteralNamesAsDefined(t *testing.T) {
	root, err := Parse("t1 = task(name=\"load\", ok=True)\n")
	require.NoError(t, err)
	vr := Validate(root)
	assert.True(t, vr.OK())
	assert.Empty(t, vr.Warnings)
}
