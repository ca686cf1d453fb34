// Package ident quotes SQL identifiers and string literals. Every query path
// builds table and column references through Quote; the engines cannot bind
// identifiers as parameters.
package ident

import "strings"

// Quote returns name as a double-quoted SQL identifier with embedded quotes
// doubled.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Literal returns s as a single-quoted SQL string literal with embedded
// quotes doubled.
func Literal(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
