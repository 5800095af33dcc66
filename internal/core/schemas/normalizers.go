package schemas

import "strings"

var genders = map[string]string{
	"m":      "male",
	"male":   "male",
	"boy":    "male",
	"f":      "female",
	"female": "female",
	"girl":   "female",
}

// NormalizeGender maps common spellings to "male" or "female".
// Unrecognised values are returned trimmed but otherwise unchanged.
func NormalizeGender(s string) string {
	s = strings.TrimSpace(s)
	if g, ok := genders[strings.ToLower(s)]; ok {
		return g
	}
	return s
}

// NormalizeEmail lowercases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone collapses runs of whitespace inside a phone number.
func NormalizePhone(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
