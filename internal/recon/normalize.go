package recon

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

// NormalizeMerchant lowercases merchant text, maps punctuation to
// spaces and collapses whitespace, so "UBER *TRIP" and "Uber Trip"
// compare equal.
func NormalizeMerchant(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Similarity scores two merchant strings in [0, 1] using normalized
// Levenshtein distance. 1 means identical after normalization.
func Similarity(a, b string) float64 {
	na, nb := NormalizeMerchant(a), NormalizeMerchant(b)
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	dist := levenshtein.ComputeDistance(na, nb)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	return 1 - float64(dist)/float64(longest)
}

// minMerchantPrefix guards the prefix rule against trivially short
// merchant strings matching everything.
const minMerchantPrefix = 3

// similarityFloor is the minimum Similarity for two merchant strings
// to count as the same real-world merchant when they are neither equal
// nor prefixes of one another.
const similarityFloor = 0.7

// merchantsCompatible reports whether two merchant strings plausibly
// name the same merchant. Settlement descriptors often extend the
// authorization text ("UBER" settles as "UBER *TRIP"), so a prefix
// relation counts alongside exact equality and high similarity.
func merchantsCompatible(a, b string) bool {
	na, nb := NormalizeMerchant(a), NormalizeMerchant(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	short, long := na, nb
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) >= minMerchantPrefix && strings.HasPrefix(long, short) {
		return true
	}
	return Similarity(na, nb) >= similarityFloor
}

// amountsEqual compares two amounts to the cent.
func amountsEqual(a, b decimal.Decimal) bool {
	return a.Round(2).Equal(b.Round(2))
}

// oppositeAmounts reports equal magnitude with opposite sign, to the
// cent. Two zero amounts are not opposite legs of anything.
func oppositeAmounts(a, b decimal.Decimal) bool {
	if a.Sign() == 0 || b.Sign() == 0 {
		return false
	}
	return a.Round(2).Equal(b.Round(2).Neg())
}
