package core

// convert.go turns raw spreadsheet cells into typed record fields.
//
// Cells arrive with the usual spreadsheet artifacts: Excel's ="..." text
// guard, stray quotes, thousands separators, and phone punctuation. Mobile
// numbers are parsed through shopspring/decimal so that values Excel exported
// as "9.876543210E+09" or "9876543210.0" still resolve to an exact integer.

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// HeaderIndex maps a lowercased column name to its position.
type HeaderIndex map[string]int

// MakeHeaderIndex indexes a header row for case-insensitive lookup.
// The first occurrence of a duplicated column wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// CleanCell trims whitespace and Excel's ="..." formula guard, and removes one
// matched pair of surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(unquote(s))
}

// unquote strips a leading and trailing quote only when they match.
func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

var (
	errMobileEmpty      = errors.New("mobile is empty")
	errMobileNotNumber  = errors.New("not a number")
	errMobileFractional = errors.New("must be a whole number")
	errMobileNegative   = errors.New("must not be negative")
	errMobileTooLarge   = errors.New("too large")
)

var maxMobile = decimal.NewFromInt(math.MaxInt64)

// mobilePunctuation is stripped before parsing: "+1 (555) 010-0100" -> "15550100100".
// The apostrophe covers spreadsheet text markers such as '9876543210.
var mobilePunctuation = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ",", "", "\u00a0", "", "'", "")

// ParseMobile parses a mobile cell into a non-negative integer.
func ParseMobile(s string) (int64, error) {
	s = CleanCell(s)
	if s == "" {
		return 0, errMobileEmpty
	}
	if strings.HasPrefix(s, "-") {
		return 0, errMobileNegative
	}
	s = strings.TrimPrefix(mobilePunctuation.Replace(s), "+")

	// Fast path for plain digits.
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, errMobileNegative
		}
		return n, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errMobileNotNumber
	}
	switch {
	case d.IsNegative():
		return 0, errMobileNegative
	case !d.IsInteger():
		return 0, errMobileFractional
	case d.GreaterThan(maxMobile):
		return 0, errMobileTooLarge
	}
	return d.IntPart(), nil
}

// FormatMobile renders a mobile number the way it is shown in the record table.
func FormatMobile(m int64) string {
	return strconv.FormatInt(m, 10)
}
