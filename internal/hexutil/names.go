package hexutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeName turns an ASN.1 type name into its camel case form:
//
//	"OCTET STRING"      -> "OctetString"
//	"RELATIVE-OID"      -> "RelativeOid"
//	"octet string"      -> "OctetString"
//	"UTF8String"        -> "UTF8String"
func NormalizeName(s string) string {
	// 1. Replace separators with spaces
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '(', ')':
			return ' '
		}
		return r
	}, s)

	words := strings.Fields(s)

	for i, w := range words {
		// 2. Shouted words are title cased, the rest keep their inner casing
		if isUpper(w) {
			words[i] = cases.Title(language.Und).String(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}

	// 3. Concatenate all words with spaces removed
	return strings.Join(words, "")
}

func isUpper(w string) bool {
	for _, r := range w {
		if unicode.IsLower(r) {
			return false
		}
	}
	return true
}
