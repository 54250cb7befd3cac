//go:build !debug

package check

// Assert is compiled out of release builds.
func Assert(_ bool, _ string) {}

// Assertf is compiled out of release builds.
func Assertf(_ bool, _ string, _ ...any) {}
