//go:build debug

// Package check provides build-tagged assertions for registry invariants.
package check

import "fmt"

// Assert panics if cond is false. Compiled in only with the debug tag.
func Assert(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// Assertf is Assert with a formatted message.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(format, args...))
	}
}
