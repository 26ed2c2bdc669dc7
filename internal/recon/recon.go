// Package recon decides, for every candidate transaction produced by
// the external extractor, whether it is brand new, a repeat of a
// stored row, the settled counterpart of a stored pending row, or one
// leg of an internal transfer whose other leg already exists in a
// different account. It emits an insert/delete/link plan; it never
// writes to storage itself.
//
// Two batches for the same user must not run concurrently; the
// calling layer serializes ingestion per user (see internal/ingest).
package recon

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/ledgerkeep/ledgerkeep/internal/classify"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config holds the matching windows, in calendar days.
type Config struct {
	// WindowBufferDays expands the stored-transaction query window
	// beyond the candidate date range, tolerating posting-date drift.
	WindowBufferDays int
	// NearDuplicateDays is the date tolerance for near-duplicate
	// matching against posted rows.
	NearDuplicateDays int
	// PendingWindowDays is the date tolerance for pending/posted
	// reconciliation. Wider than near-duplicate matching because
	// settlement lags authorization by several days.
	PendingWindowDays int
	// TransferWindowDays is the date tolerance when searching other
	// accounts for the opposite leg of a transfer.
	TransferWindowDays int
}

// DefaultConfig returns the standard matching windows.
func DefaultConfig() Config {
	return Config{
		WindowBufferDays:   3,
		NearDuplicateDays:  2,
		PendingWindowDays:  7,
		TransferWindowDays: 3,
	}
}

// maxDuplicateExamples caps how many dropped duplicates a batch report
// spells out; the total count is always exact.
const maxDuplicateExamples = 5

// DuplicateExample describes one dropped candidate.
type DuplicateExample struct {
	Merchant  string          `json:"merchant"`
	Date      civil.Date      `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	MatchedID string          `json:"matched_id"`
	Kind      string          `json:"kind"`
}

// RejectedCandidate is a malformed candidate dropped from the batch.
type RejectedCandidate struct {
	Index    int    `json:"index"`
	Merchant string `json:"merchant,omitempty"`
	Reason   string `json:"reason"`
}

// Warning is a non-fatal, per-decision degradation: a lookup failed
// and the affected matching stage fell back to "no match".
type Warning struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// TransferUpdate asks the caller to annotate an already stored
// transaction with its newly matched opposite leg, keeping the link
// symmetric.
type TransferUpdate struct {
	TransactionID string              `json:"transaction_id"`
	Link          domain.TransferLink `json:"link"`
}

// BatchResult is the reconciliation plan for one candidate batch. The
// caller applies ToInsert, ToDelete and TransferUpdates atomically.
type BatchResult struct {
	ToInsert []domain.Transaction `json:"to_insert"`
	ToDelete []string             `json:"to_delete"`

	DuplicatesSkipped int                `json:"duplicates_skipped"`
	DuplicateExamples []DuplicateExample `json:"duplicate_examples,omitempty"`
	PendingReconciled int                `json:"pending_reconciled"`
	TransfersLinked   int                `json:"transfers_linked"`
	TransferUpdates   []TransferUpdate   `json:"transfer_updates,omitempty"`

	Rejected []RejectedCandidate `json:"rejected,omitempty"`
	Warnings []Warning           `json:"warnings,omitempty"`
}

// Reconciler runs candidate batches against a store.
type Reconciler struct {
	store storage.Store
	cfg   Config
	log   zerolog.Logger
}

// New creates a Reconciler.
func New(store storage.Store, cfg Config, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, cfg: cfg, log: log}
}

// ReconcileBatch reconciles one batch of candidates for one resolved
// account. Malformed candidates are rejected individually; failed
// lookups degrade the affected stage to "no match" and are reported as
// warnings. The returned plan is not applied here.
func (r *Reconciler) ReconcileBatch(ctx context.Context, userID string, account domain.Account, candidates []domain.Transaction) (*BatchResult, error) {
	result := &BatchResult{}

	valid := r.prepare(userID, account, candidates, result)
	if len(valid) == 0 {
		return result, nil
	}

	start, end := dateWindow(valid, r.cfg.WindowBufferDays)

	stored, err := r.store.SearchTransactions(ctx, userID, storage.TransactionQuery{
		AccountID: account.ID,
		Start:     start,
		End:       end,
	})
	if err != nil {
		r.warn(result, "duplicate-detection", err)
		stored = nil
	}

	pending, err := r.store.PendingTransactions(ctx, userID, account.ID,
		start.AddDays(-r.cfg.PendingWindowDays), end.AddDays(r.cfg.PendingWindowDays))
	if err != nil {
		r.warn(result, "pending-reconciliation", err)
		pending = nil
	}

	kept := r.dedupeAndReconcile(valid, stored, pending, result)
	r.linkTransfers(ctx, userID, account, kept, start, end, result)

	result.ToInsert = kept

	r.log.Info().
		Str("user_id", userID).
		Str("account_id", account.ID).
		Int("candidates", len(candidates)).
		Int("inserts", len(result.ToInsert)).
		Int("duplicates_skipped", result.DuplicatesSkipped).
		Int("pending_reconciled", result.PendingReconciled).
		Int("transfers_linked", result.TransfersLinked).
		Msg("Batch reconciled")

	return result, nil
}

// Classify is the standalone classification contract, re-exported here
// so read models depending on the reconciler need only this package.
func (r *Reconciler) Classify(tx domain.Transaction) classify.Result {
	return classify.Classify(tx)
}

// prepare validates, stamps and classifies the candidates. Invalid
// candidates land in result.Rejected without blocking the rest.
func (r *Reconciler) prepare(userID string, account domain.Account, candidates []domain.Transaction, result *BatchResult) []domain.Transaction {
	valid := make([]domain.Transaction, 0, len(candidates))
	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			result.Rejected = append(result.Rejected, RejectedCandidate{
				Index:    i,
				Merchant: c.Merchant,
				Reason:   err.Error(),
			})
			continue
		}

		c.UserID = userID
		c.AccountID = account.ID
		if c.ID == "" {
			c.ID = uuid.NewString()
		}

		res := classify.Classify(c)
		c.Type = res.Type
		c.Excluded = res.Excluded

		valid = append(valid, c)
	}
	return valid
}

// dedupeAndReconcile drops repeats and claims pending rows. Kept
// candidates are added to the duplicate index so a second identical
// candidate inside the same batch is dropped too.
func (r *Reconciler) dedupeAndReconcile(valid, stored, pending []domain.Transaction, result *BatchResult) []domain.Transaction {
	idx := newDuplicateIndex(stored)
	claimed := make(map[string]bool)

	kept := make([]domain.Transaction, 0, len(valid))
	for _, c := range valid {
		if match, kind, ok := idx.findDuplicate(c, r.cfg.NearDuplicateDays); ok {
			result.DuplicatesSkipped++
			if len(result.DuplicateExamples) < maxDuplicateExamples {
				result.DuplicateExamples = append(result.DuplicateExamples, DuplicateExample{
					Merchant:  c.Merchant,
					Date:      c.Date,
					Amount:    c.Amount,
					MatchedID: match.ID,
					Kind:      kind,
				})
			}
			continue
		}

		if p, ok := matchPending(c, pending, claimed, r.cfg.PendingWindowDays); ok {
			claimed[p.ID] = true
			c.SupersedesID = p.ID
			result.ToDelete = append(result.ToDelete, p.ID)
			result.PendingReconciled++
		}

		idx.add(c)
		kept = append(kept, c)
	}
	return kept
}

// linkTransfers searches the user's other accounts for opposite legs
// of transfer-eligible candidates and records symmetric links.
func (r *Reconciler) linkTransfers(ctx context.Context, userID string, account domain.Account, kept []domain.Transaction, start, end civil.Date, result *BatchResult) {
	eligible := 0
	for i := range kept {
		if transferEligible(kept[i]) {
			eligible++
		}
	}
	if eligible == 0 {
		return
	}

	others, err := r.store.SearchTransactions(ctx, userID, storage.TransactionQuery{
		Start: start.AddDays(-r.cfg.TransferWindowDays),
		End:   end.AddDays(r.cfg.TransferWindowDays),
	})
	if err != nil {
		r.warn(result, "transfer-matching", err)
		return
	}

	labels := map[string]string{account.ID: account.Name}
	if accounts, err := r.store.ListAccounts(ctx, userID); err != nil {
		r.warn(result, "transfer-matching", err)
	} else {
		for _, a := range accounts {
			labels[a.ID] = a.Name
		}
	}

	claimed := make(map[string]bool)
	// Rows already claimed by pending reconciliation are about to be
	// deleted and cannot serve as transfer legs.
	for _, id := range result.ToDelete {
		claimed[id] = true
	}
	for i := range kept {
		if !transferEligible(kept[i]) {
			continue
		}
		leg, ok := findTransferLeg(kept[i], others, claimed, r.cfg.TransferWindowDays)
		if !ok {
			// No confident match: the candidate keeps its original
			// classification.
			continue
		}

		claimed[leg.ID] = true
		kept[i].Type = domain.TypeTransfer
		kept[i].Excluded = true
		kept[i].Transfer = &domain.TransferLink{
			TransactionID: leg.ID,
			AccountName:   labels[leg.AccountID],
		}
		result.TransferUpdates = append(result.TransferUpdates, TransferUpdate{
			TransactionID: leg.ID,
			Link: domain.TransferLink{
				TransactionID: kept[i].ID,
				AccountName:   account.Name,
			},
		})
		result.TransfersLinked++
	}
}

func (r *Reconciler) warn(result *BatchResult, stage string, err error) {
	r.log.Warn().Err(err).Str("stage", stage).Msg("Lookup failed, degrading to no match")
	result.Warnings = append(result.Warnings, Warning{
		Stage:   stage,
		Message: fmt.Sprintf("lookup failed, treated as no match: %v", err),
	})
}

// dateWindow returns the candidate date range expanded by buffer days
// on each side.
func dateWindow(txs []domain.Transaction, buffer int) (civil.Date, civil.Date) {
	start, end := txs[0].Date, txs[0].Date
	for _, tx := range txs[1:] {
		if tx.Date.Before(start) {
			start = tx.Date
		}
		if tx.Date.After(end) {
			end = tx.Date
		}
	}
	return start.AddDays(-buffer), end.AddDays(buffer)
}
