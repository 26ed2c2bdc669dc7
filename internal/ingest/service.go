// Package ingest is the calling layer around the reconciliation core:
// it resolves the batch's account, runs reconciliation, applies the
// emitted plan to storage and publishes an audit event. Ingestion is
// serialized per user so two batches never race for the same pending
// rows; batches for different users run concurrently.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerkeep/ledgerkeep/internal/accounts"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
	"github.com/ledgerkeep/ledgerkeep/internal/events"
	"github.com/ledgerkeep/ledgerkeep/internal/recon"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
	"github.com/rs/zerolog"
)

// Report is the outcome of one ingestion batch.
type Report struct {
	*recon.BatchResult

	Account        *domain.Account  `json:"account,omitempty"`
	AccountCreated bool             `json:"account_created,omitempty"`
	// AccountCandidates is non-empty when account matching was
	// ambiguous; the batch is held and the caller must disambiguate.
	AccountCandidates []domain.Account `json:"account_candidates,omitempty"`
	// Deferred is true when the batch carried no account identifier
	// at all; the caller must prompt for account selection.
	Deferred bool `json:"deferred,omitempty"`

	// Applied is true once the plan was committed to storage.
	Applied bool `json:"applied"`
	Deleted int  `json:"deleted"`
}

// Service runs ingestion batches end to end.
type Service struct {
	store      storage.Store
	resolver   *accounts.Resolver
	reconciler *recon.Reconciler
	publisher  events.Publisher
	log        zerolog.Logger

	userLocks sync.Map // userID -> *sync.Mutex
}

// NewService wires an ingest service. publisher may be a
// events.NopPublisher when no broker is configured.
func NewService(store storage.Store, reconCfg recon.Config, publisher events.Publisher, log zerolog.Logger) *Service {
	return &Service{
		store:      store,
		resolver:   accounts.NewResolver(store, log),
		reconciler: recon.New(store, reconCfg, log),
		publisher:  publisher,
		log:        log,
	}
}

// Run ingests one batch. The returned report carries either an applied
// plan or the account condition (disambiguation, deferral) that held
// the batch back.
func (s *Service) Run(ctx context.Context, batch Batch) (*Report, error) {
	if batch.UserID == "" {
		return nil, fmt.Errorf("Run: batch has no user_id")
	}

	// One batch at a time per user.
	lock := s.userLock(batch.UserID)
	lock.Lock()
	defer lock.Unlock()

	resolution, err := s.resolver.Resolve(ctx, batch.UserID, batch.Account)
	if err != nil {
		return nil, fmt.Errorf("Run: resolving account: %w", err)
	}
	if resolution.Deferred || len(resolution.Candidates) > 0 {
		return &Report{
			BatchResult:       &recon.BatchResult{},
			AccountCandidates: resolution.Candidates,
			Deferred:          resolution.Deferred,
		}, nil
	}
	account := resolution.Account

	candidates, origIdx, rejected := decodeCandidates(batch.Candidates)

	result, err := s.reconciler.ReconcileBatch(ctx, batch.UserID, *account, candidates)
	if err != nil {
		return nil, fmt.Errorf("Run: reconciling batch: %w", err)
	}
	// Rejection indexes from the reconciler refer to the decoded
	// slice; map them back to positions in the batch as received.
	for i := range result.Rejected {
		result.Rejected[i].Index = origIdx[result.Rejected[i].Index]
	}
	result.Rejected = append(rejected, result.Rejected...)

	deleted, err := s.applyPlan(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("Run: applying plan: %w", err)
	}

	s.publish(ctx, batch.UserID, account.ID, result, deleted)

	return &Report{
		BatchResult:    result,
		Account:        account,
		AccountCreated: resolution.Created,
		Applied:        true,
		Deleted:        deleted,
	}, nil
}

// applyPlan commits the reconciliation plan: deletes first so a
// settled pending row is gone before its replacement lands, then
// inserts, then the stored-side transfer links.
func (s *Service) applyPlan(ctx context.Context, result *recon.BatchResult) (int, error) {
	deleted := 0
	if len(result.ToDelete) > 0 {
		n, err := s.store.DeleteTransactionsByIDs(ctx, result.ToDelete)
		if err != nil {
			return 0, fmt.Errorf("deleting reconciled pending rows: %w", err)
		}
		deleted = n
	}

	if len(result.ToInsert) > 0 {
		if err := s.store.InsertTransactions(ctx, result.ToInsert); err != nil {
			return deleted, fmt.Errorf("inserting transactions: %w", err)
		}
	}

	for _, u := range result.TransferUpdates {
		if err := s.store.SetTransferLink(ctx, u.TransactionID, u.Link); err != nil {
			return deleted, fmt.Errorf("linking transfer %s: %w", u.TransactionID, err)
		}
	}

	return deleted, nil
}

func (s *Service) publish(ctx context.Context, userID, accountID string, result *recon.BatchResult, deleted int) {
	event := events.BatchReconciled{
		BatchID:           uuid.NewString(),
		UserID:            userID,
		AccountID:         accountID,
		Inserted:          len(result.ToInsert),
		Deleted:           deleted,
		DuplicatesSkipped: result.DuplicatesSkipped,
		PendingReconciled: result.PendingReconciled,
		TransfersLinked:   result.TransfersLinked,
		OccurredAt:        time.Now().UTC(),
	}
	if err := s.publisher.PublishBatchReconciled(ctx, event); err != nil {
		// Audit events are best effort; the plan is already applied.
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to publish audit event")
	}
}

func decodeCandidates(wire []Candidate) ([]domain.Transaction, []int, []recon.RejectedCandidate) {
	candidates := make([]domain.Transaction, 0, len(wire))
	origIdx := make([]int, 0, len(wire))
	var rejected []recon.RejectedCandidate
	for i, c := range wire {
		tx, err := c.ToTransaction()
		if err != nil {
			rejected = append(rejected, recon.RejectedCandidate{
				Index:    i,
				Merchant: c.Merchant,
				Reason:   err.Error(),
			})
			continue
		}
		candidates = append(candidates, tx)
		origIdx = append(origIdx, i)
	}
	return candidates, origIdx, rejected
}

func (s *Service) userLock(userID string) *sync.Mutex {
	lock, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
