// Package memory provides an in-memory storage.Store. It backs tests
// and single-node development; the postgres and bigquery packages hold
// the durable implementations of the same contract.
package memory

import (
	"context"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
)

// Store keeps all rows in process memory, guarded by a single mutex.
// Safe for concurrent use.
type Store struct {
	mu           sync.Mutex
	transactions map[string]domain.Transaction
	accounts     map[string]domain.Account
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		transactions: make(map[string]domain.Transaction),
		accounts:     make(map[string]domain.Account),
	}
}

// SearchTransactions implements storage.Store.
func (s *Store) SearchTransactions(ctx context.Context, userID string, q storage.TransactionQuery) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Transaction
	for _, tx := range s.transactions {
		if tx.UserID != userID {
			continue
		}
		if q.AccountID != "" && tx.AccountID != q.AccountID {
			continue
		}
		if !inWindow(tx.Date, q.Start, q.End) {
			continue
		}
		result = append(result, tx)
	}
	return result, nil
}

// PendingTransactions implements storage.Store.
func (s *Store) PendingTransactions(ctx context.Context, userID, accountID string, start, end civil.Date) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Transaction
	for _, tx := range s.transactions {
		if tx.UserID != userID || !tx.Pending {
			continue
		}
		if accountID != "" && tx.AccountID != accountID {
			continue
		}
		if !inWindow(tx.Date, start, end) {
			continue
		}
		result = append(result, tx)
	}
	return result, nil
}

// InsertTransactions implements storage.Store.
func (s *Store) InsertTransactions(ctx context.Context, txs []domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		s.transactions[tx.ID] = tx
	}
	return nil
}

// DeleteTransactionsByIDs implements storage.Store.
func (s *Store) DeleteTransactionsByIDs(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := s.transactions[id]; ok {
			delete(s.transactions, id)
			deleted++
		}
	}
	return deleted, nil
}

// SetTransferLink implements storage.Store.
func (s *Store) SetTransferLink(ctx context.Context, txID string, link domain.TransferLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return storage.ErrNotFound
	}
	tx.Transfer = &link
	tx.Type = domain.TypeTransfer
	tx.Excluded = true
	s.transactions[txID] = tx
	return nil
}

// FindAccountsByLast4 implements storage.AccountStore.
func (s *Store) FindAccountsByLast4(ctx context.Context, userID, last4 string) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Account
	for _, a := range s.accounts {
		if a.UserID == userID && a.Last4 == last4 {
			result = append(result, a)
		}
	}
	return result, nil
}

// FindAccountsByName implements storage.AccountStore.
func (s *Store) FindAccountsByName(ctx context.Context, userID, name string) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := normalizeName(name)
	var result []domain.Account
	for _, a := range s.accounts {
		if a.UserID != userID {
			continue
		}
		if normalizeName(a.Name) == want || (a.OfficialName != "" && normalizeName(a.OfficialName) == want) {
			result = append(result, a)
		}
	}
	return result, nil
}

// ListAccounts implements storage.AccountStore.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	return result, nil
}

// CreateAccount implements storage.AccountStore.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = *account
	return nil
}

// TransactionByID returns one stored row. Used by tests to inspect
// applied plans.
func (s *Store) TransactionByID(id string) (domain.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	return tx, ok
}

func inWindow(d, start, end civil.Date) bool {
	if start.IsValid() && d.Before(start) {
		return false
	}
	if end.IsValid() && d.After(end) {
		return false
	}
	return true
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Compile-time check: Store satisfies the full contract.
var _ storage.Store = (*Store)(nil)
