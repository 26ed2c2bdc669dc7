package recon

import (
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
)

// matchPending finds the stored pending row the candidate settles, if
// any. A pending row is claimed by at most one candidate per batch;
// rows in claimed are skipped. Among several plausible rows the
// closest by date wins, then the highest merchant similarity.
// Unmatched pending rows are left untouched; they may settle in a
// later batch or be genuinely separate transactions.
func matchPending(c domain.Transaction, pending []domain.Transaction, claimed map[string]bool, windowDays int) (domain.Transaction, bool) {
	var (
		best     domain.Transaction
		found    bool
		bestDays int
		bestSim  float64
	)

	for _, p := range pending {
		if claimed[p.ID] {
			continue
		}
		if !amountsEqual(p.Amount, c.Amount) {
			continue
		}
		days := c.DaysApart(p.Date)
		if days > windowDays {
			continue
		}
		if !merchantsCompatible(c.Merchant, p.Merchant) {
			continue
		}

		sim := Similarity(c.Merchant, p.Merchant)
		if !found || days < bestDays || (days == bestDays && sim > bestSim) {
			best, found, bestDays, bestSim = p, true, days, sim
		}
	}

	return best, found
}
