package domain

import (
	"errors"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType is the canonical classification of a transaction.
// An empty value means the upstream extractor declared no type.
type TransactionType string

const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
	TypeOther    TransactionType = "other"
)

// Valid reports whether t is one of the four canonical types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer, TypeOther:
		return true
	}
	return false
}

// Validation errors for candidate transactions. A candidate failing
// validation is rejected individually; it never aborts the batch.
// ErrMissingAmount is raised at the wire boundary (see Validate): a
// decoded Decimal cannot tell an absent amount from a zero one.
var (
	ErrMissingDate   = errors.New("transaction has no date")
	ErrMissingAmount = errors.New("transaction has no amount")
	ErrInvalidType   = errors.New("transaction has an unknown declared type")
)

// TransferLink points at the opposite leg of an internal transfer.
// Links are symmetric: if A carries a link to B, B carries a link to A.
type TransferLink struct {
	TransactionID string `json:"transaction_id"`
	AccountName   string `json:"account_name,omitempty"`
}

// Transaction is one ledger entry, either a candidate produced by the
// external extractor or a row already committed to storage. Amounts are
// signed: positive is a credit, negative a debit.
type Transaction struct {
	ID        string `json:"id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`

	Date        civil.Date      `json:"date"`
	Merchant    string          `json:"merchant"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Category    string          `json:"category,omitempty"`

	// DeclaredType is what the extractor claimed, if anything. Type is
	// the canonical classification assigned by this core.
	DeclaredType TransactionType `json:"declared_type,omitempty"`
	Type         TransactionType `json:"type,omitempty"`

	// Excluded marks internal movements that must stay out of
	// income/expense aggregates.
	Excluded bool `json:"excluded,omitempty"`

	// Pending is true for an authorized-but-unsettled card transaction.
	Pending bool `json:"pending,omitempty"`

	// SupersedesID is the lineage pointer to the pending row this
	// transaction settled. The pending row is deleted in the same batch.
	SupersedesID string `json:"supersedes_id,omitempty"`

	// Transfer is set once the opposite leg in another account is found.
	Transfer *TransferLink `json:"transfer,omitempty"`
}

// Validate checks the fields a candidate must carry before matching.
// Amount presence cannot be checked here: the zero value of a Decimal
// is a legitimate zero amount. The wire layer keeps amounts behind a
// pointer and rejects nil with ErrMissingAmount before a Transaction
// is ever built (ingest.Candidate.ToTransaction).
func (t Transaction) Validate() error {
	if !t.Date.IsValid() {
		return ErrMissingDate
	}
	if t.DeclaredType != "" && !t.DeclaredType.Valid() {
		return ErrInvalidType
	}
	return nil
}

// Credit reports whether the transaction adds money to its account.
func (t Transaction) Credit() bool {
	return t.Amount.Sign() > 0
}

// DaysApart returns the absolute distance in calendar days between the
// transaction date and d.
func (t Transaction) DaysApart(d civil.Date) int {
	n := t.Date.DaysSince(d)
	if n < 0 {
		n = -n
	}
	return n
}
