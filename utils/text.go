// utils/text.go
package utils

import (
	"strings"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
)

// NormalizeEmail trims and case-folds an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// SearchKey reduces a display name to ASCII lower case with single spaces,
// so "Zoë  Ångström" and "zoe angstrom" match.
func SearchKey(s string) string {
	s = cases.Fold().String(unidecode.Unidecode(s))
	return strings.Join(strings.Fields(s), " ")
}
