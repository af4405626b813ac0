//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseDataCategory tests that parsing never panics on arbitrary input
// and always returns either a valid category or an error. Trust boundary
// functions must handle arbitrary input safely.
func FuzzParseDataCategory(f *testing.F) {
	f.Add("")
	f.Add("financial")
	f.Add("FINANCIAL")
	f.Add("financial data")
	f.Add("'; DROP TABLE consents;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("financial\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		c, err := ParseDataCategory(input)

		// Either valid category or error, never both.
		if err == nil {
			if !c.IsValid() {
				t.Errorf("ParseDataCategory accepted invalid category %q", input)
			}
			// Accepted values must round-trip.
			again, err2 := ParseDataCategory(c.String())
			if err2 != nil || again != c {
				t.Error("valid category failed round-trip")
			}
		}

		// High-risk membership must be exact: anything that is not a valid
		// enum member can never be high risk.
		if err != nil && DataCategory(input).IsHighRisk() && !validDataCategories[DataCategory(input)] {
			t.Error("rejected input classified as high risk")
		}

		_ = utf8.ValidString(input)
	})
}
