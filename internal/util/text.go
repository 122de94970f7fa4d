package util

import (
	"strings"
	"unicode"
)

// CapitalizeWords upper-cases the first letter of every word in s, leaving the
// rest untouched. This matches how typed brand/issue names are normalized
// before a catalog lookup ("apple" -> "Apple", "screen damage" -> "Screen Damage").
func CapitalizeWords(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if startOfWord {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(r)
			}
			startOfWord = false
		} else {
			b.WriteRune(r)
			startOfWord = true
		}
	}
	return b.String()
}

// FormatINR renders a rupee amount with Indian digit grouping
// (1234567 -> "12,34,567"). Amounts are whole rupees; no decimals.
func FormatINR(amount int) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := []byte{}
	if amount == 0 {
		digits = append(digits, '0')
	}
	for amount > 0 {
		digits = append(digits, byte('0'+amount%10))
		amount /= 10
	}
	// digits are reversed; group last 3, then every 2
	var b strings.Builder
	n := len(digits)
	for i := n - 1; i >= 0; i-- {
		b.WriteByte(digits[i])
		if i == 0 {
			break
		}
		if i == 3 || (i > 3 && (i-3)%2 == 0) {
			b.WriteByte(',')
		}
	}
	out := b.String()
	if neg {
		return "-" + out
	}
	return out
}
