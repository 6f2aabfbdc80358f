package tools

import (
	"github.com/nextlevelbuilder/aish/internal/session"
)

// Context bundles what tools may touch: the session directory, the command
// allowlist, the unsafe override granted after an approval, and the memory
// directories. Contexts are copied, never mutated in place.
type Context struct {
	SessionDir *session.Dir // nil when running without a session

	AllowRules []Rule

	// AllowUnsafe is false by default; the agent loop sets it on a copy
	// after the user approves a non-allowlisted command.
	AllowUnsafe bool

	MemoryProjectDir string // optional .aish/memory of the enclosing project
	MemoryGlobalDir  string // $AISH_HOME/memory
}

// WithAllowUnsafe returns a copy with the unsafe override set.
func (c Context) WithAllowUnsafe(allow bool) Context {
	c.AllowUnsafe = allow
	return c
}
