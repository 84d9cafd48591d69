package events

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks that no package test leaks a goroutine past its own
// lifetime — the bus's async handler dispatch is the one thing in this
// package that can outlive a test if Shutdown is forgotten.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
