// Package colname maps physical census column names to the short variable
// names callers use, and back.
//
// Physical data columns carry a year/dataset prefix of two segments
// ("pc01_pca_tot_p"); the canonical name is what follows ("tot_p").
// Identifier-like columns ("pc11_state_id", "ac08_id") keep their physical
// name so they remain addressable for composite keys.
package colname

import (
	"slices"
	"strings"
)

const prefixSegments = 2

var identifierTokens = []string{"state", "district", "subdistrict"}

// IsIdentifier reports whether a physical column is identifier-like: it
// contains "_id" or a state/district/subdistrict segment, and has at most
// three segments.
func IsIdentifier(physical string) bool {
	segments := strings.Split(physical, "_")
	if len(segments) > 3 {
		return false
	}
	if strings.Contains(physical, "_id") {
		return true
	}
	for _, s := range segments {
		if slices.Contains(identifierTokens, s) {
			return true
		}
	}
	return false
}

// ToCanonical returns the canonical variable name for a physical column.
// Identifier-like names and names too short to carry a prefix are returned
// unchanged, so canonical names map to themselves.
func ToCanonical(physical string) string {
	if IsIdentifier(physical) {
		return physical
	}
	segments := strings.SplitN(physical, "_", prefixSegments+1)
	if len(segments) <= prefixSegments {
		return physical
	}
	return segments[prefixSegments]
}

// Codec converts between physical and canonical names for one dataset year.
type Codec struct {
	// Prefix is the physical prefix, e.g. "pc01_pca". Empty when the
	// dataset does not declare one.
	Prefix string
}

// ToCanonical is ToCanonical bound to the codec.
func (c Codec) ToCanonical(physical string) string {
	return ToCanonical(physical)
}

// ToPhysical re-derives the physical name of a canonical data variable.
// Without a prefix, or for identifier-like names, the name is returned
// unchanged.
func (c Codec) ToPhysical(canonical string) string {
	if c.Prefix == "" || IsIdentifier(canonical) {
		return canonical
	}
	return c.Prefix + "_" + canonical
}

// Mapping is the canonical to physical column mapping of one table.
type Mapping struct {
	physical  map[string]string
	variables []string
}

// BuildMapping canonicalizes a table's columns. When two physical columns
// share a canonical name the first one wins. Identifier-like columns and the
// columns in exclude are mapped but not listed as variables.
func BuildMapping(columns []string, exclude ...string) Mapping {
	m := Mapping{physical: make(map[string]string, len(columns))}
	for _, col := range columns {
		canonical := ToCanonical(col)
		if _, seen := m.physical[canonical]; seen {
			continue
		}
		m.physical[canonical] = col
		if IsIdentifier(col) || slices.Contains(exclude, col) {
			continue
		}
		m.variables = append(m.variables, canonical)
	}
	return m
}

// Physical returns the physical column for a canonical name.
func (m Mapping) Physical(canonical string) (string, bool) {
	p, ok := m.physical[canonical]
	return p, ok
}

// Variables returns the canonical data variables in first-seen order.
func (m Mapping) Variables() []string {
	return slices.Clone(m.variables)
}

// Len returns the number of mapped canonical names.
func (m Mapping) Len() int {
	return len(m.physical)
}
