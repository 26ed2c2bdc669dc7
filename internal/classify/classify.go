// Package classify assigns every transaction its canonical type
// (income, expense, transfer, other) and an exclusion flag that keeps
// internal transfers out of income/expense aggregates. All read models
// (budgets, net worth, charts) go through this single entry point
// rather than re-deriving the type at each call site.
package classify

import (
	"regexp"
	"strings"

	"github.com/ledgerkeep/ledgerkeep/internal/domain"
)

// Result is the classification outcome for one transaction.
type Result struct {
	Type domain.TransactionType `json:"type"`
	// Excluded transactions stay out of income/expense totals.
	Excluded bool `json:"excluded"`
}

// ExpenseLike reports whether aggregates should count the transaction
// on the expense side. "other" is expense-like for aggregation but
// keeps its literal label for display.
func (r Result) ExpenseLike() bool {
	return r.Type == domain.TypeExpense || r.Type == domain.TypeOther
}

// Classify maps a transaction's declared type, amount sign, merchant
// and category text to a canonical type.
//
// Order matters: an internal-transfer signal wins over any declared
// income/expense type, and the amount-sign fallback only applies when
// nothing was declared at all.
func Classify(tx domain.Transaction) Result {
	if tx.DeclaredType == domain.TypeTransfer || isInternalTransfer(tx.Merchant, tx.Category) {
		return Result{Type: domain.TypeTransfer, Excluded: true}
	}

	switch tx.DeclaredType {
	case domain.TypeIncome, domain.TypeExpense:
		return Result{Type: tx.DeclaredType}
	case domain.TypeOther:
		return Result{Type: domain.TypeOther}
	}

	switch {
	case tx.Amount.Sign() > 0:
		return Result{Type: domain.TypeIncome}
	case tx.Amount.Sign() < 0:
		return Result{Type: domain.TypeExpense}
	default:
		return Result{Type: domain.TypeOther, Excluded: true}
	}
}

// Category values that explicitly mark a movement between the user's
// own accounts.
var transferCategories = map[string]bool{
	"transfer":            true,
	"transfers":           true,
	"internal transfer":   true,
	"internal transfers":  true,
	"credit card payment": true,
}

var paymentTokens = []string{"payment", "autopay", "e-payment", "epayment"}

var cardTokens = []string{"visa", "mastercard", "amex", "american express", "discover", "credit card"}

// ownAccountPhrase matches merchant text like "TRANSFER TO SAVINGS" or
// "transfer from your checking account".
var ownAccountPhrase = regexp.MustCompile(`transfer (to|from) (your )?(checking|savings|chequing|credit card|card|money market|brokerage|investment)`)

// isInternalTransfer applies the merchant/category heuristics. The
// merchant-text rule deliberately requires two independent signals
// (a payment-style token AND a card/network token): a single "transfer"
// word also appears in external peer-to-peer payments, which are real
// income or expense and must not be excluded.
func isInternalTransfer(merchant, category string) bool {
	cat := normalize(category)
	if transferCategories[cat] || strings.Contains(cat, "internal transfer") {
		return true
	}

	m := normalize(merchant)
	if m == "" {
		return false
	}
	if containsAny(m, paymentTokens) && containsAny(m, cardTokens) {
		return true
	}
	return ownAccountPhrase.MatchString(m)
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// normalize lowercases and collapses runs of whitespace.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
