package recon

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
	"github.com/ledgerkeep/ledgerkeep/internal/logger"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
	"github.com/ledgerkeep/ledgerkeep/internal/storage/memory"
	"github.com/shopspring/decimal"
)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newReconciler(t *testing.T) (*Reconciler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return New(store, DefaultConfig(), logger.NewWithWriter(testWriter{t})), store
}

var checking = domain.Account{ID: "acc-checking", UserID: "u1", Name: "Checking", Active: true}

func seed(t *testing.T, store *memory.Store, txs ...domain.Transaction) {
	t.Helper()
	if err := store.InsertTransactions(context.Background(), txs); err != nil {
		t.Fatalf("seeding store failed: %v", err)
	}
}

// applyPlan commits a plan the way the ingest layer would.
func applyPlan(t *testing.T, store *memory.Store, result *BatchResult) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.DeleteTransactionsByIDs(ctx, result.ToDelete); err != nil {
		t.Fatalf("applying deletes failed: %v", err)
	}
	if err := store.InsertTransactions(ctx, result.ToInsert); err != nil {
		t.Fatalf("applying inserts failed: %v", err)
	}
	for _, u := range result.TransferUpdates {
		if err := store.SetTransferLink(ctx, u.TransactionID, u.Link); err != nil {
			t.Fatalf("applying transfer update failed: %v", err)
		}
	}
}

func TestReconcileBatch_ExactDuplicateDropped(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store, domain.Transaction{
		ID: "s1", UserID: "u1", AccountID: checking.ID,
		Date: date("2025-03-05"), Merchant: "GROCERY MART", Amount: amt("-40.00"),
	})

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-03-05"), Merchant: "Grocery  Mart", Amount: amt("-40.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if len(result.ToInsert) != 0 {
		t.Errorf("got %d inserts, want 0", len(result.ToInsert))
	}
	if result.DuplicatesSkipped != 1 {
		t.Errorf("DuplicatesSkipped = %d, want 1", result.DuplicatesSkipped)
	}
	if len(result.DuplicateExamples) != 1 || result.DuplicateExamples[0].Kind != matchExact {
		t.Errorf("examples = %+v, want one exact example", result.DuplicateExamples)
	}
}

func TestReconcileBatch_NearDuplicateWithinTwoDays(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store, domain.Transaction{
		ID: "s1", UserID: "u1", AccountID: checking.ID,
		Date: date("2025-03-05"), Merchant: "GROCERY MART", Amount: amt("-40.00"),
	})

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-03-07"), Merchant: "GROCERY MART", Amount: amt("-40.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if len(result.ToInsert) != 0 || result.DuplicatesSkipped != 1 {
		t.Fatalf("result = %+v, want one near duplicate dropped", result)
	}
	if result.DuplicateExamples[0].Kind != matchNear {
		t.Errorf("example kind = %q, want near", result.DuplicateExamples[0].Kind)
	}
}

func TestReconcileBatch_NearDuplicateBeyondWindowKept(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store, domain.Transaction{
		ID: "s1", UserID: "u1", AccountID: checking.ID,
		Date: date("2025-03-05"), Merchant: "GROCERY MART", Amount: amt("-40.00"),
	})

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-03-08"), Merchant: "GROCERY MART", Amount: amt("-40.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if len(result.ToInsert) != 1 || result.DuplicatesSkipped != 0 {
		t.Errorf("result = %+v, want the candidate kept", result)
	}
}

func TestReconcileBatch_TwoIdenticalCandidatesTwoStoredRows(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store,
		domain.Transaction{ID: "s1", UserID: "u1", AccountID: checking.ID, Date: date("2025-03-05"), Merchant: "COFFEE", Amount: amt("-4.00")},
		domain.Transaction{ID: "s2", UserID: "u1", AccountID: checking.ID, Date: date("2025-03-05"), Merchant: "COFFEE", Amount: amt("-4.00")},
	)

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-03-05"), Merchant: "COFFEE", Amount: amt("-4.00")},
		{Date: date("2025-03-05"), Merchant: "COFFEE", Amount: amt("-4.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if len(result.ToInsert) != 0 {
		t.Errorf("got %d inserts, want 0", len(result.ToInsert))
	}
	if result.DuplicatesSkipped != 2 {
		t.Errorf("DuplicatesSkipped = %d, want 2", result.DuplicatesSkipped)
	}
}

func TestReconcileBatch_IntraBatchDuplicateDropped(t *testing.T) {
	r, _ := newReconciler(t)

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-03-05"), Merchant: "COFFEE", Amount: amt("-4.00")},
		{Date: date("2025-03-05"), Merchant: "COFFEE", Amount: amt("-4.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if len(result.ToInsert) != 1 || result.DuplicatesSkipped != 1 {
		t.Errorf("result inserts=%d dups=%d, want 1 insert and 1 duplicate", len(result.ToInsert), result.DuplicatesSkipped)
	}
}

func TestReconcileBatch_PendingReconciled(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store, domain.Transaction{
		ID: "pend-1", UserID: "u1", AccountID: checking.ID,
		Date: date("2025-03-01"), Merchant: "UBER", Amount: amt("-12.50"), Pending: true,
	})

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-03-03"), Merchant: "UBER *TRIP", Amount: amt("-12.50")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if len(result.ToDelete) != 1 || result.ToDelete[0] != "pend-1" {
		t.Errorf("ToDelete = %v, want [pend-1]", result.ToDelete)
	}
	if result.PendingReconciled != 1 {
		t.Errorf("PendingReconciled = %d, want 1", result.PendingReconciled)
	}
	if len(result.ToInsert) != 1 {
		t.Fatalf("got %d inserts, want 1", len(result.ToInsert))
	}
	if result.ToInsert[0].SupersedesID != "pend-1" {
		t.Errorf("lineage pointer = %q, want pend-1", result.ToInsert[0].SupersedesID)
	}
}

func TestReconcileBatch_PendingClosestDateWins(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store,
		domain.Transaction{ID: "pend-far", UserID: "u1", AccountID: checking.ID, Date: date("2025-02-26"), Merchant: "UBER", Amount: amt("-12.50"), Pending: true},
		domain.Transaction{ID: "pend-near", UserID: "u1", AccountID: checking.ID, Date: date("2025-03-02"), Merchant: "UBER", Amount: amt("-12.50"), Pending: true},
	)

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-03-03"), Merchant: "UBER *TRIP", Amount: amt("-12.50")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if len(result.ToDelete) != 1 || result.ToDelete[0] != "pend-near" {
		t.Errorf("ToDelete = %v, want the closest pending row pend-near", result.ToDelete)
	}
	// The other pending row is left untouched.
	if _, ok := store.TransactionByID("pend-far"); !ok {
		t.Error("pend-far missing from store before plan application")
	}
}

func TestReconcileBatch_PendingRowClaimedOnce(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store, domain.Transaction{
		ID: "pend-1", UserID: "u1", AccountID: checking.ID,
		Date: date("2025-03-01"), Merchant: "UBER", Amount: amt("-12.50"), Pending: true,
	})

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-03-02"), Merchant: "UBER TRIP A", Amount: amt("-12.50")},
		{Date: date("2025-03-03"), Merchant: "UBER TRIP B", Amount: amt("-12.50")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if result.PendingReconciled != 1 || len(result.ToDelete) != 1 {
		t.Errorf("result = %+v, want exactly one pending claim", result)
	}
	if len(result.ToInsert) != 2 {
		t.Errorf("got %d inserts, want 2", len(result.ToInsert))
	}
}

func TestReconcileBatch_TransferLinkedSymmetrically(t *testing.T) {
	r, store := newReconciler(t)
	savings := domain.Transaction{
		ID: "sav-1", UserID: "u1", AccountID: "acc-savings",
		Date: date("2025-04-11"), Merchant: "ONLINE TRANSFER", Amount: amt("500.00"),
	}
	seed(t, store, savings)
	if err := store.CreateAccount(context.Background(), &domain.Account{
		ID: "acc-savings", UserID: "u1", Name: "Savings", Active: true,
	}); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-04-10"), Merchant: "ONLINE TRANSFER", Amount: amt("-500.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if result.TransfersLinked != 1 {
		t.Fatalf("TransfersLinked = %d, want 1", result.TransfersLinked)
	}
	ins := result.ToInsert[0]
	if ins.Type != domain.TypeTransfer || !ins.Excluded {
		t.Errorf("linked candidate type/excluded = %q/%v, want transfer/true", ins.Type, ins.Excluded)
	}
	if ins.Transfer == nil || ins.Transfer.TransactionID != "sav-1" || ins.Transfer.AccountName != "Savings" {
		t.Errorf("candidate link = %+v, want sav-1 in Savings", ins.Transfer)
	}
	if len(result.TransferUpdates) != 1 {
		t.Fatalf("got %d transfer updates, want 1", len(result.TransferUpdates))
	}
	upd := result.TransferUpdates[0]
	if upd.TransactionID != "sav-1" || upd.Link.TransactionID != ins.ID || upd.Link.AccountName != "Checking" {
		t.Errorf("stored-side update = %+v, want symmetric link back to %s", upd, ins.ID)
	}

	// Applying the plan makes the stored leg point back.
	applyPlan(t, store, result)
	stored, _ := store.TransactionByID("sav-1")
	if stored.Transfer == nil || stored.Transfer.TransactionID != ins.ID {
		t.Errorf("stored leg link = %+v, want %s", stored.Transfer, ins.ID)
	}
}

func TestReconcileBatch_TransferTieLeftUnlinked(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store,
		domain.Transaction{ID: "sav-1", UserID: "u1", AccountID: "acc-savings", Date: date("2025-04-11"), Merchant: "TRANSFER", Amount: amt("500.00")},
		domain.Transaction{ID: "sav-2", UserID: "u1", AccountID: "acc-other", Date: date("2025-04-09"), Merchant: "TRANSFER", Amount: amt("500.00")},
	)

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-04-10"), Merchant: "ONLINE TRANSFER", Amount: amt("-500.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if result.TransfersLinked != 0 {
		t.Errorf("TransfersLinked = %d, want 0 for an exact tie", result.TransfersLinked)
	}
	if len(result.ToInsert) != 1 || result.ToInsert[0].Transfer != nil {
		t.Errorf("candidate = %+v, want kept and unlinked", result.ToInsert)
	}
	// Original classification untouched.
	if result.ToInsert[0].Type != domain.TypeExpense {
		t.Errorf("candidate type = %q, want expense", result.ToInsert[0].Type)
	}
}

func TestReconcileBatch_LinkedLegLeftAlone(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store,
		// Nearest by date, but already halved with old-1.
		domain.Transaction{
			ID: "sav-1", UserID: "u1", AccountID: "acc-savings",
			Date: date("2025-04-11"), Merchant: "TRANSFER", Amount: amt("500.00"),
			Type: domain.TypeTransfer, Excluded: true,
			Transfer: &domain.TransferLink{TransactionID: "old-1", AccountName: "Checking"},
		},
		domain.Transaction{ID: "sav-2", UserID: "u1", AccountID: "acc-savings", Date: date("2025-04-12"), Merchant: "TRANSFER", Amount: amt("500.00")},
	)

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-04-10"), Merchant: "ONLINE TRANSFER", Amount: amt("-500.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if result.TransfersLinked != 1 {
		t.Fatalf("TransfersLinked = %d, want 1", result.TransfersLinked)
	}
	ins := result.ToInsert[0]
	if ins.Transfer == nil || ins.Transfer.TransactionID != "sav-2" {
		t.Fatalf("candidate link = %+v, want the unlinked leg sav-2", ins.Transfer)
	}
	for _, upd := range result.TransferUpdates {
		if upd.TransactionID == "sav-1" {
			t.Fatalf("stored-side update re-points sav-1, which belongs to old-1")
		}
	}

	applyPlan(t, store, result)
	stored, _ := store.TransactionByID("sav-1")
	if stored.Transfer == nil || stored.Transfer.TransactionID != "old-1" {
		t.Errorf("sav-1 link = %+v, want untouched link to old-1", stored.Transfer)
	}
}

func TestReconcileBatch_OnlyLinkedLegMeansNoMatch(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store, domain.Transaction{
		ID: "sav-1", UserID: "u1", AccountID: "acc-savings",
		Date: date("2025-04-11"), Merchant: "TRANSFER", Amount: amt("500.00"),
		Type: domain.TypeTransfer, Excluded: true,
		Transfer: &domain.TransferLink{TransactionID: "old-1", AccountName: "Checking"},
	})

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-04-10"), Merchant: "ONLINE TRANSFER", Amount: amt("-500.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if result.TransfersLinked != 0 {
		t.Errorf("TransfersLinked = %d, want 0", result.TransfersLinked)
	}
	if result.ToInsert[0].Transfer != nil {
		t.Errorf("candidate link = %+v, want unlinked", result.ToInsert[0].Transfer)
	}
	if len(result.TransferUpdates) != 0 {
		t.Errorf("got %d transfer updates, want none", len(result.TransferUpdates))
	}
}

func TestReconcileBatch_PendingLegNotLinked(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store, domain.Transaction{
		ID: "sav-pend", UserID: "u1", AccountID: "acc-savings",
		Date: date("2025-04-11"), Merchant: "TRANSFER", Amount: amt("500.00"), Pending: true,
	})

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-04-10"), Merchant: "ONLINE TRANSFER", Amount: amt("-500.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	// The pending row may be deleted when it settles; linking against
	// it would leave the candidate pointing at a deleted row.
	if result.TransfersLinked != 0 {
		t.Errorf("TransfersLinked = %d, want 0 against a pending leg", result.TransfersLinked)
	}
	if result.ToInsert[0].Transfer != nil {
		t.Errorf("candidate link = %+v, want unlinked", result.ToInsert[0].Transfer)
	}
	if len(result.TransferUpdates) != 0 {
		t.Errorf("got %d transfer updates, want none", len(result.TransferUpdates))
	}
}

func TestReconcileBatch_TransferNearestDateWins(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store,
		domain.Transaction{ID: "sav-near", UserID: "u1", AccountID: "acc-savings", Date: date("2025-04-11"), Merchant: "TRANSFER", Amount: amt("500.00")},
		domain.Transaction{ID: "sav-far", UserID: "u1", AccountID: "acc-other", Date: date("2025-04-13"), Merchant: "TRANSFER", Amount: amt("500.00")},
	)

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-04-10"), Merchant: "ONLINE TRANSFER", Amount: amt("-500.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if result.TransfersLinked != 1 || result.ToInsert[0].Transfer.TransactionID != "sav-near" {
		t.Errorf("result = %+v, want link to sav-near", result.ToInsert[0].Transfer)
	}
}

func TestReconcileBatch_NoTransferMatchKeepsClassification(t *testing.T) {
	r, _ := newReconciler(t)

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-04-10"), Merchant: "PAYMENT TO LANDLORD", Amount: amt("-800.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if len(result.ToInsert) != 1 {
		t.Fatalf("got %d inserts, want 1", len(result.ToInsert))
	}
	if got := result.ToInsert[0].Type; got != domain.TypeExpense {
		t.Errorf("type = %q, want expense", got)
	}
}

func TestReconcileBatch_MalformedCandidateRejectedIndividually(t *testing.T) {
	r, _ := newReconciler(t)

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Merchant: "NO DATE", Amount: amt("-5.00")},
		{Date: date("2025-03-05"), Merchant: "FINE", Amount: amt("-5.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}

	if len(result.Rejected) != 1 || result.Rejected[0].Index != 0 {
		t.Errorf("Rejected = %+v, want the first candidate", result.Rejected)
	}
	if len(result.ToInsert) != 1 || result.ToInsert[0].Merchant != "FINE" {
		t.Errorf("ToInsert = %+v, want the valid candidate kept", result.ToInsert)
	}
}

func TestReconcileBatch_Idempotent(t *testing.T) {
	r, store := newReconciler(t)
	seed(t, store, domain.Transaction{
		ID: "pend-1", UserID: "u1", AccountID: checking.ID,
		Date: date("2025-03-01"), Merchant: "UBER", Amount: amt("-12.50"), Pending: true,
	})

	batch := []domain.Transaction{
		{Date: date("2025-03-03"), Merchant: "UBER *TRIP", Amount: amt("-12.50")},
		{Date: date("2025-03-04"), Merchant: "GROCERY MART", Amount: amt("-40.00")},
		{Date: date("2025-03-05"), Merchant: "EMPLOYER PAYROLL", Amount: amt("1200.00"), DeclaredType: domain.TypeIncome},
	}

	first, err := r.ReconcileBatch(context.Background(), "u1", checking, batch)
	if err != nil {
		t.Fatalf("first ReconcileBatch failed: %v", err)
	}
	if len(first.ToInsert) != 3 {
		t.Fatalf("first run inserted %d, want 3", len(first.ToInsert))
	}
	applyPlan(t, store, first)

	second, err := r.ReconcileBatch(context.Background(), "u1", checking, batch)
	if err != nil {
		t.Fatalf("second ReconcileBatch failed: %v", err)
	}
	if len(second.ToInsert) != 0 {
		t.Errorf("second run inserted %d, want 0", len(second.ToInsert))
	}
	if second.DuplicatesSkipped != 3 {
		t.Errorf("second run DuplicatesSkipped = %d, want 3", second.DuplicatesSkipped)
	}
	if len(second.ToDelete) != 0 {
		t.Errorf("second run ToDelete = %v, want none", second.ToDelete)
	}
}

// failingStore degrades every transaction lookup.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) SearchTransactions(ctx context.Context, userID string, q storage.TransactionQuery) ([]domain.Transaction, error) {
	return nil, errors.New("store timeout")
}

func (f *failingStore) PendingTransactions(ctx context.Context, userID, accountID string, start, end civil.Date) ([]domain.Transaction, error) {
	return nil, errors.New("store timeout")
}

func TestReconcileBatch_LookupFailureDegradesToNoMatch(t *testing.T) {
	store := &failingStore{memory.NewStore()}
	r := New(store, DefaultConfig(), logger.NewWithWriter(testWriter{t}))

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, []domain.Transaction{
		{Date: date("2025-03-05"), Merchant: "ONLINE TRANSFER", Amount: amt("-40.00")},
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed, want degraded success: %v", err)
	}

	if len(result.ToInsert) != 1 {
		t.Errorf("got %d inserts, want the candidate kept (fail open)", len(result.ToInsert))
	}
	if len(result.Warnings) == 0 {
		t.Error("expected per-stage warnings for failed lookups")
	}
}

func TestReconcileBatch_EmptyBatch(t *testing.T) {
	r, _ := newReconciler(t)

	result, err := r.ReconcileBatch(context.Background(), "u1", checking, nil)
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}
	if len(result.ToInsert) != 0 || len(result.ToDelete) != 0 {
		t.Errorf("result = %+v, want empty plan", result)
	}
}
