package bigquery

import (
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRow mirrors the ledger.transactions schema.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	UserID    string `bigquery:"user_id"`    // REQUIRED
	AccountID string `bigquery:"account_id"` // REQUIRED

	Date        civil.Date          `bigquery:"date"` // REQUIRED
	Merchant    string              `bigquery:"merchant"`
	Description bigquery.NullString `bigquery:"description"` // NULLABLE

	Amount   *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"`

	Category     bigquery.NullString `bigquery:"category"`      // NULLABLE
	DeclaredType bigquery.NullString `bigquery:"declared_type"` // NULLABLE
	Type         string              `bigquery:"type"`          // REQUIRED

	Excluded bool `bigquery:"excluded"`
	Pending  bool `bigquery:"pending"`

	SupersedesID        bigquery.NullString `bigquery:"supersedes_id"`         // NULLABLE
	TransferTxID        bigquery.NullString `bigquery:"transfer_tx_id"`        // NULLABLE
	TransferAccountName bigquery.NullString `bigquery:"transfer_account_name"` // NULLABLE
}

// AccountRow mirrors the ledger.accounts schema.
type AccountRow struct {
	AccountID    string              `bigquery:"account_id"` // REQUIRED
	UserID       string              `bigquery:"user_id"`    // REQUIRED
	Name         string              `bigquery:"name"`
	OfficialName bigquery.NullString `bigquery:"official_name"` // NULLABLE
	Last4        bigquery.NullString `bigquery:"last4"`         // NULLABLE
	Issuer       bigquery.NullString `bigquery:"issuer"`        // NULLABLE
	Source       string              `bigquery:"source"`
	Active       bool                `bigquery:"active"`
}

func toTransactionRow(tx domain.Transaction) *TransactionRow {
	row := &TransactionRow{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		AccountID:     tx.AccountID,
		Date:          tx.Date,
		Merchant:      tx.Merchant,
		Description:   nullString(tx.Description),
		Amount:        tx.Amount.Rat(),
		Currency:      tx.Currency,
		Category:      nullString(tx.Category),
		DeclaredType:  nullString(string(tx.DeclaredType)),
		Type:          string(tx.Type),
		Excluded:      tx.Excluded,
		Pending:       tx.Pending,
		SupersedesID:  nullString(tx.SupersedesID),
	}
	if tx.Transfer != nil {
		row.TransferTxID = nullString(tx.Transfer.TransactionID)
		row.TransferAccountName = nullString(tx.Transfer.AccountName)
	}
	return row
}

func (r *TransactionRow) toDomain() domain.Transaction {
	tx := domain.Transaction{
		ID:           r.TransactionID,
		UserID:       r.UserID,
		AccountID:    r.AccountID,
		Date:         r.Date,
		Merchant:     r.Merchant,
		Description:  r.Description.StringVal,
		Currency:     r.Currency,
		Category:     r.Category.StringVal,
		DeclaredType: domain.TransactionType(r.DeclaredType.StringVal),
		Type:         domain.TransactionType(r.Type),
		Excluded:     r.Excluded,
		Pending:      r.Pending,
		SupersedesID: r.SupersedesID.StringVal,
	}
	if r.Amount != nil {
		tx.Amount = decimal.NewFromBigRat(r.Amount, 2)
	}
	if r.TransferTxID.Valid {
		tx.Transfer = &domain.TransferLink{
			TransactionID: r.TransferTxID.StringVal,
			AccountName:   r.TransferAccountName.StringVal,
		}
	}
	return tx
}

func toAccountRow(a domain.Account) *AccountRow {
	return &AccountRow{
		AccountID:    a.ID,
		UserID:       a.UserID,
		Name:         a.Name,
		OfficialName: nullString(a.OfficialName),
		Last4:        nullString(a.Last4),
		Issuer:       nullString(a.Issuer),
		Source:       string(a.Source),
		Active:       a.Active,
	}
}

func (r *AccountRow) toDomain() domain.Account {
	return domain.Account{
		ID:           r.AccountID,
		UserID:       r.UserID,
		Name:         r.Name,
		OfficialName: r.OfficialName.StringVal,
		Last4:        r.Last4.StringVal,
		Issuer:       r.Issuer.StringVal,
		Source:       domain.AccountSource(r.Source),
		Active:       r.Active,
	}
}

func nullString(s string) bigquery.NullString {
	if s == "" {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: s, Valid: true}
}
