package catalog

import (
	"strconv"
	"strings"
)

// YearShort returns the two-digit suffix of a census year ("01" for 2001).
func YearShort(year int) string {
	s := strconv.Itoa(year)
	if len(s) < 2 {
		return s
	}
	return s[len(s)-2:]
}

// Render substitutes {year}, {year_short} and {filename} placeholders.
func Render(tmpl string, year int, filename string) string {
	return strings.NewReplacer(
		"{year}", strconv.Itoa(year),
		"{year_short}", YearShort(year),
		"{filename}", filename,
	).Replace(tmpl)
}
