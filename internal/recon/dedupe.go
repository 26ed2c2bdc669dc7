package recon

import (
	"fmt"

	"github.com/ledgerkeep/ledgerkeep/internal/domain"
)

// Match kinds recorded in duplicate examples.
const (
	matchExact = "exact"
	matchNear  = "near"
)

// duplicateIndex indexes stored transactions for duplicate checks.
// Exact matching hashes on (date, normalized merchant, amount); near
// matching buckets non-pending rows by normalized merchant and scans
// the small per-merchant bucket for date drift.
type duplicateIndex struct {
	exact      map[string][]domain.Transaction
	byMerchant map[string][]domain.Transaction
}

func newDuplicateIndex(stored []domain.Transaction) *duplicateIndex {
	idx := &duplicateIndex{
		exact:      make(map[string][]domain.Transaction),
		byMerchant: make(map[string][]domain.Transaction),
	}
	for _, tx := range stored {
		idx.add(tx)
	}
	return idx
}

func (idx *duplicateIndex) add(tx domain.Transaction) {
	idx.exact[exactKey(tx)] = append(idx.exact[exactKey(tx)], tx)
	if !tx.Pending {
		m := NormalizeMerchant(tx.Merchant)
		if m != "" {
			idx.byMerchant[m] = append(idx.byMerchant[m], tx)
		}
	}
}

func exactKey(tx domain.Transaction) string {
	return fmt.Sprintf("%s|%s|%s", tx.Date, NormalizeMerchant(tx.Merchant), tx.Amount.Round(2))
}

// findDuplicate reports whether the candidate repeats a stored
// transaction. An exact hit against a pending row only counts when the
// candidate is itself pending; a posted candidate repeating a pending
// row is the reconciler's case, not a duplicate. Near matching is
// deliberately strict (identical normalized merchant) so that
// ambiguous merchant text errs toward keeping the candidate.
func (idx *duplicateIndex) findDuplicate(c domain.Transaction, nearWindowDays int) (domain.Transaction, string, bool) {
	for _, tx := range idx.exact[exactKey(c)] {
		if tx.Pending && !c.Pending {
			continue
		}
		return tx, matchExact, true
	}

	m := NormalizeMerchant(c.Merchant)
	if m == "" {
		return domain.Transaction{}, "", false
	}
	for _, tx := range idx.byMerchant[m] {
		if !amountsEqual(tx.Amount, c.Amount) {
			continue
		}
		if c.DaysApart(tx.Date) > nearWindowDays {
			continue
		}
		return tx, matchNear, true
	}

	return domain.Transaction{}, "", false
}
