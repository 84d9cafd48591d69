// Package ids generates the identifiers used for plans, CFG nodes, events,
// sessions, and scheduled jobs.
package ids

import "github.com/google/uuid"

// New returns a fresh random v4 UUID string.
func New() string {
	return uuid.NewString()
}

// NewPrefixed returns a fresh UUID string with a readable kind prefix, e.g.
// NewPrefixed("plan") -> "plan-3fa9c1d2-...".
func NewPrefixed(kind string) string {
	return kind + "-" + uuid.NewString()
}
