package recon

import (
	"strings"

	"github.com/ledgerkeep/ledgerkeep/internal/domain"
)

// transferEligible reports whether a candidate should be searched for
// an opposite leg: either the classifier already tagged it a transfer,
// or its merchant text carries a transfer/payment token.
func transferEligible(c domain.Transaction) bool {
	if c.Type == domain.TypeTransfer || c.DeclaredType == domain.TypeTransfer {
		return true
	}
	m := NormalizeMerchant(c.Merchant)
	return strings.Contains(m, "transfer") || strings.Contains(m, "payment")
}

// findTransferLeg searches stored transactions in the user's other
// accounts for the opposite leg: equal magnitude, opposite sign,
// within windowDays of the candidate. The nearest by date wins; an
// exact tie between two distinct rows means no confident match, so
// nothing is linked. Rows in claimed were already linked to another
// candidate in this batch. Rows that carry a transfer link belong to
// their existing counterpart, and pending rows are skipped too: a link
// against a row that settlement will delete would dangle, so matching
// waits for the settled row in a later batch.
func findTransferLeg(c domain.Transaction, others []domain.Transaction, claimed map[string]bool, windowDays int) (domain.Transaction, bool) {
	var (
		best     domain.Transaction
		found    bool
		bestDays int
		tied     bool
	)

	for _, tx := range others {
		if tx.AccountID == c.AccountID {
			continue
		}
		if claimed[tx.ID] {
			continue
		}
		if tx.Transfer != nil || tx.Pending {
			continue
		}
		if !oppositeAmounts(tx.Amount, c.Amount) {
			continue
		}
		days := c.DaysApart(tx.Date)
		if days > windowDays {
			continue
		}

		switch {
		case !found || days < bestDays:
			best, found, bestDays, tied = tx, true, days, false
		case days == bestDays:
			tied = true
		}
	}

	if !found || tied {
		return domain.Transaction{}, false
	}
	return best, true
}
