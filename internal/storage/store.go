// Package storage defines the persistence contracts consumed by the
// reconciliation core. The core never talks to a database directly; it
// reads through these narrow, user-scoped, date-bounded queries and
// emits an insert/delete/link plan that the caller applies. Any engine
// satisfying this interface is sufficient; memory, postgres and
// bigquery implementations live in the subpackages.
package storage

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
)

// ErrNotFound is returned when an update targets a row that does not
// exist.
var ErrNotFound = errors.New("storage: row not found")

// TransactionQuery bounds a transaction search. AccountID is optional;
// when empty the search spans all of the user's accounts (used by the
// transfer matcher).
type TransactionQuery struct {
	AccountID string
	Start     civil.Date
	End       civil.Date
}

// AccountStore is the account half of the contract, used by the
// account resolver.
type AccountStore interface {
	// FindAccountsByLast4 returns the user's accounts with the given
	// last-4 digit identifier.
	FindAccountsByLast4(ctx context.Context, userID, last4 string) ([]domain.Account, error)

	// FindAccountsByName returns the user's accounts whose display or
	// official name matches name after case and whitespace
	// normalization.
	FindAccountsByName(ctx context.Context, userID, name string) ([]domain.Account, error)

	// ListAccounts returns all of the user's accounts.
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)

	// CreateAccount stores a new account. The caller sets the ID.
	CreateAccount(ctx context.Context, account *domain.Account) error
}

// Store is the full persistence contract for reconciliation.
type Store interface {
	AccountStore

	// SearchTransactions returns the user's stored transactions inside
	// the query window, pending rows included.
	SearchTransactions(ctx context.Context, userID string, q TransactionQuery) ([]domain.Transaction, error)

	// PendingTransactions returns stored rows with the pending flag
	// set, scoped to one account when accountID is non-empty.
	PendingTransactions(ctx context.Context, userID, accountID string, start, end civil.Date) ([]domain.Transaction, error)

	// InsertTransactions commits a batch of new rows.
	InsertTransactions(ctx context.Context, txs []domain.Transaction) error

	// DeleteTransactionsByIDs removes rows by ID and returns how many
	// were deleted.
	DeleteTransactionsByIDs(ctx context.Context, ids []string) (int, error)

	// SetTransferLink annotates a stored transaction with its matched
	// opposite leg. Used to keep transfer links symmetric when the
	// other leg was already stored.
	SetTransferLink(ctx context.Context, txID string, link domain.TransferLink) error
}
