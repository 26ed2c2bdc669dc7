package memory

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
	"github.com/shopspring/decimal"
)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	txs := []domain.Transaction{
		{ID: "t1", UserID: "u1", AccountID: "a1", Date: date("2025-03-01"), Merchant: "UBER", Amount: decimal.RequireFromString("-12.50"), Pending: true},
		{ID: "t2", UserID: "u1", AccountID: "a1", Date: date("2025-03-05"), Merchant: "GROCERY", Amount: decimal.RequireFromString("-40.00")},
		{ID: "t3", UserID: "u1", AccountID: "a2", Date: date("2025-03-06"), Merchant: "TRANSFER", Amount: decimal.RequireFromString("500.00")},
		{ID: "t4", UserID: "u2", AccountID: "b1", Date: date("2025-03-05"), Merchant: "GROCERY", Amount: decimal.RequireFromString("-40.00")},
	}
	if err := s.InsertTransactions(context.Background(), txs); err != nil {
		t.Fatalf("InsertTransactions failed: %v", err)
	}
	return s
}

func TestSearchTransactions_ScopedByUserAccountAndWindow(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	got, err := s.SearchTransactions(ctx, "u1", storage.TransactionQuery{
		AccountID: "a1",
		Start:     date("2025-03-01"),
		End:       date("2025-03-31"),
	})
	if err != nil {
		t.Fatalf("SearchTransactions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transactions, want 2", len(got))
	}

	// No account scope spans all of the user's accounts.
	got, err = s.SearchTransactions(ctx, "u1", storage.TransactionQuery{
		Start: date("2025-03-01"),
		End:   date("2025-03-31"),
	})
	if err != nil {
		t.Fatalf("SearchTransactions failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d transactions, want 3", len(got))
	}

	// Window excludes everything before the 5th.
	got, err = s.SearchTransactions(ctx, "u1", storage.TransactionQuery{
		Start: date("2025-03-05"),
		End:   date("2025-03-31"),
	})
	if err != nil {
		t.Fatalf("SearchTransactions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transactions in window, want 2", len(got))
	}
}

func TestPendingTransactions(t *testing.T) {
	s := seedStore(t)

	got, err := s.PendingTransactions(context.Background(), "u1", "a1", date("2025-02-25"), date("2025-03-10"))
	if err != nil {
		t.Fatalf("PendingTransactions failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("got %v, want the single pending row t1", got)
	}
}

func TestDeleteTransactionsByIDs(t *testing.T) {
	s := seedStore(t)

	n, err := s.DeleteTransactionsByIDs(context.Background(), []string{"t1", "missing"})
	if err != nil {
		t.Fatalf("DeleteTransactionsByIDs failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d rows, want 1", n)
	}
	if _, ok := s.TransactionByID("t1"); ok {
		t.Error("t1 still present after delete")
	}
}

func TestSetTransferLink(t *testing.T) {
	s := seedStore(t)

	link := domain.TransferLink{TransactionID: "t2", AccountName: "Checking"}
	if err := s.SetTransferLink(context.Background(), "t3", link); err != nil {
		t.Fatalf("SetTransferLink failed: %v", err)
	}

	tx, ok := s.TransactionByID("t3")
	if !ok {
		t.Fatal("t3 missing")
	}
	if tx.Transfer == nil || tx.Transfer.TransactionID != "t2" {
		t.Errorf("transfer link = %+v, want pointer to t2", tx.Transfer)
	}
	if tx.Type != domain.TypeTransfer || !tx.Excluded {
		t.Errorf("linked row type/excluded = %q/%v, want transfer/true", tx.Type, tx.Excluded)
	}

	if err := s.SetTransferLink(context.Background(), "missing", link); err != storage.ErrNotFound {
		t.Errorf("SetTransferLink on missing row = %v, want ErrNotFound", err)
	}
}

func TestAccountLookups(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	accounts := []domain.Account{
		{ID: "a1", UserID: "u1", Name: "Everyday Checking", Last4: "4321", Source: domain.AccountSourceSync, Active: true},
		{ID: "a2", UserID: "u1", Name: "Travel Card", OfficialName: "Platinum  Travel Rewards", Last4: "4321", Source: domain.AccountSourceStatement, Active: true},
		{ID: "a3", UserID: "u2", Name: "Everyday Checking", Last4: "4321", Source: domain.AccountSourceSync, Active: true},
	}
	for i := range accounts {
		if err := s.CreateAccount(ctx, &accounts[i]); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
	}

	byLast4, err := s.FindAccountsByLast4(ctx, "u1", "4321")
	if err != nil {
		t.Fatalf("FindAccountsByLast4 failed: %v", err)
	}
	if len(byLast4) != 2 {
		t.Errorf("got %d accounts by last4, want 2", len(byLast4))
	}

	byName, err := s.FindAccountsByName(ctx, "u1", "  platinum travel   rewards ")
	if err != nil {
		t.Fatalf("FindAccountsByName failed: %v", err)
	}
	if len(byName) != 1 || byName[0].ID != "a2" {
		t.Errorf("got %v, want the official-name match a2", byName)
	}

	all, err := s.ListAccounts(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d accounts for u1, want 2", len(all))
	}
}
