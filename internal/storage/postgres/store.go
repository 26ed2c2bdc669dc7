// Package postgres implements storage.Store on PostgreSQL via pgx.
//
// Expected schema:
//
//	CREATE TABLE accounts (
//	    id            TEXT PRIMARY KEY,
//	    user_id       TEXT NOT NULL,
//	    name          TEXT NOT NULL,
//	    official_name TEXT NOT NULL DEFAULT '',
//	    last4         TEXT NOT NULL DEFAULT '',
//	    issuer        TEXT NOT NULL DEFAULT '',
//	    source        TEXT NOT NULL,
//	    active        BOOLEAN NOT NULL DEFAULT TRUE
//	);
//
//	CREATE TABLE transactions (
//	    id                    TEXT PRIMARY KEY,
//	    user_id               TEXT NOT NULL,
//	    account_id            TEXT NOT NULL REFERENCES accounts(id),
//	    date                  DATE NOT NULL,
//	    merchant              TEXT NOT NULL DEFAULT '',
//	    description           TEXT NOT NULL DEFAULT '',
//	    amount                NUMERIC(18,2) NOT NULL,
//	    currency              TEXT NOT NULL DEFAULT '',
//	    category              TEXT NOT NULL DEFAULT '',
//	    declared_type         TEXT NOT NULL DEFAULT '',
//	    type                  TEXT NOT NULL,
//	    excluded              BOOLEAN NOT NULL DEFAULT FALSE,
//	    pending               BOOLEAN NOT NULL DEFAULT FALSE,
//	    supersedes_id         TEXT NOT NULL DEFAULT '',
//	    transfer_tx_id        TEXT,
//	    transfer_account_name TEXT
//	);
//	CREATE INDEX idx_transactions_user_date ON transactions (user_id, date);
package postgres

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, account_id, date, merchant, description,
	amount::text, currency, category, declared_type, type, excluded, pending,
	supersedes_id, transfer_tx_id, transfer_account_name`

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for the given URL and verifies connectivity.
func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("Connect: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("Connect: pinging database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SearchTransactions implements storage.Store.
func (s *Store) SearchTransactions(ctx context.Context, userID string, q storage.TransactionQuery) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1`
	args := []any{userID}
	if q.AccountID != "" {
		args = append(args, q.AccountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if q.Start.IsValid() {
		args = append(args, q.Start.In(time.UTC))
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if q.End.IsValid() {
		args = append(args, q.End.In(time.UTC))
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SearchTransactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// PendingTransactions implements storage.Store.
func (s *Store) PendingTransactions(ctx context.Context, userID, accountID string, start, end civil.Date) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1 AND pending AND date >= $2 AND date <= $3`
	args := []any{userID, start.In(time.UTC), end.In(time.UTC)}
	if accountID != "" {
		args = append(args, accountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	query += " ORDER BY date"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("PendingTransactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// InsertTransactions implements storage.Store. Rows are written in one
// batch round trip.
func (s *Store) InsertTransactions(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO transactions
			(id, user_id, account_id, date, merchant, description, amount,
			 currency, category, declared_type, type, excluded, pending,
			 supersedes_id, transfer_tx_id, transfer_account_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	batch := &pgx.Batch{}
	for _, tx := range txs {
		var transferID, transferName *string
		if tx.Transfer != nil {
			transferID = &tx.Transfer.TransactionID
			transferName = &tx.Transfer.AccountName
		}
		batch.Queue(query,
			tx.ID, tx.UserID, tx.AccountID, tx.Date.In(time.UTC),
			tx.Merchant, tx.Description, tx.Amount.String(),
			tx.Currency, tx.Category, string(tx.DeclaredType), string(tx.Type),
			tx.Excluded, tx.Pending, tx.SupersedesID, transferID, transferName)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range txs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("InsertTransactions: %w", err)
		}
	}
	return nil
}

// DeleteTransactionsByIDs implements storage.Store.
func (s *Store) DeleteTransactionsByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("DeleteTransactionsByIDs: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

// SetTransferLink implements storage.Store.
func (s *Store) SetTransferLink(ctx context.Context, txID string, link domain.TransferLink) error {
	const query = `
		UPDATE transactions
		SET transfer_tx_id = $1, transfer_account_name = $2,
		    type = $3, excluded = TRUE
		WHERE id = $4
	`
	cmd, err := s.pool.Exec(ctx, query, link.TransactionID, link.AccountName, string(domain.TypeTransfer), txID)
	if err != nil {
		return fmt.Errorf("SetTransferLink: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindAccountsByLast4 implements storage.AccountStore.
func (s *Store) FindAccountsByLast4(ctx context.Context, userID, last4 string) ([]domain.Account, error) {
	const query = `
		SELECT id, user_id, name, official_name, last4, issuer, source, active
		FROM accounts WHERE user_id = $1 AND last4 = $2 AND active
	`
	rows, err := s.pool.Query(ctx, query, userID, last4)
	if err != nil {
		return nil, fmt.Errorf("FindAccountsByLast4: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// FindAccountsByName implements storage.AccountStore. Matching ignores
// case and surrounding whitespace.
func (s *Store) FindAccountsByName(ctx context.Context, userID, name string) ([]domain.Account, error) {
	const query = `
		SELECT id, user_id, name, official_name, last4, issuer, source, active
		FROM accounts
		WHERE user_id = $1 AND active
		  AND (LOWER(TRIM(name)) = LOWER(TRIM($2)) OR LOWER(TRIM(official_name)) = LOWER(TRIM($2)))
	`
	rows, err := s.pool.Query(ctx, query, userID, name)
	if err != nil {
		return nil, fmt.Errorf("FindAccountsByName: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// ListAccounts implements storage.AccountStore.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	const query = `
		SELECT id, user_id, name, official_name, last4, issuer, source, active
		FROM accounts WHERE user_id = $1 ORDER BY name
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// CreateAccount implements storage.AccountStore.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	const query = `
		INSERT INTO accounts (id, user_id, name, official_name, last4, issuer, source, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		account.ID, account.UserID, account.Name, account.OfficialName,
		account.Last4, account.Issuer, string(account.Source), account.Active)
	if err != nil {
		return fmt.Errorf("CreateAccount: %w", err)
	}
	return nil
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var result []domain.Transaction
	for rows.Next() {
		var (
			tx           domain.Transaction
			date         time.Time
			amount       string
			declared     string
			txType       string
			transferID   *string
			transferName *string
		)
		err := rows.Scan(&tx.ID, &tx.UserID, &tx.AccountID, &date, &tx.Merchant,
			&tx.Description, &amount, &tx.Currency, &tx.Category, &declared,
			&txType, &tx.Excluded, &tx.Pending, &tx.SupersedesID,
			&transferID, &transferName)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		tx.Date = civil.DateOf(date)
		tx.DeclaredType = domain.TransactionType(declared)
		tx.Type = domain.TransactionType(txType)
		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
		}
		if transferID != nil {
			link := domain.TransferLink{TransactionID: *transferID}
			if transferName != nil {
				link.AccountName = *transferName
			}
			tx.Transfer = &link
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func scanAccounts(rows pgx.Rows) ([]domain.Account, error) {
	var result []domain.Account
	for rows.Next() {
		var (
			a      domain.Account
			source string
		)
		err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.OfficialName,
			&a.Last4, &a.Issuer, &source, &a.Active)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		a.Source = domain.AccountSource(source)
		result = append(result, a)
	}
	return result, rows.Err()
}

var _ storage.Store = (*Store)(nil)
