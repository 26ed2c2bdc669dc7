// Package bigquery implements storage.Store on BigQuery. Inserts go
// through the streaming inserter; lookups and plan mutations run as
// parameterized queries against the configured dataset.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
	"google.golang.org/api/iterator"
)

const (
	transactionsTable = "transactions"
	accountsTable     = "accounts"
)

// Store implements storage.Store against one BigQuery dataset.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewStore creates a client for the given project and dataset.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: bigquery client: %w", err)
	}
	return &Store{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// NewStoreWithClient wraps an existing client. Used by tests and by
// callers sharing one client across repositories.
func NewStoreWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, name)
}

// SearchTransactions implements storage.Store.
func (s *Store) SearchTransactions(ctx context.Context, userID string, query storage.TransactionQuery) ([]domain.Transaction, error) {
	sql := `
		SELECT transaction_id, user_id, account_id, date, merchant, description,
			amount, currency, category, declared_type, type, excluded, pending,
			supersedes_id, transfer_tx_id, transfer_account_name
		FROM ` + s.table(transactionsTable) + `
		WHERE user_id = @user_id
	`
	params := []bigquery.QueryParameter{{Name: "user_id", Value: userID}}
	if query.AccountID != "" {
		sql += " AND account_id = @account_id"
		params = append(params, bigquery.QueryParameter{Name: "account_id", Value: query.AccountID})
	}
	if query.Start.IsValid() {
		sql += " AND date >= @start_date"
		params = append(params, bigquery.QueryParameter{Name: "start_date", Value: query.Start})
	}
	if query.End.IsValid() {
		sql += " AND date <= @end_date"
		params = append(params, bigquery.QueryParameter{Name: "end_date", Value: query.End})
	}
	sql += " ORDER BY date"

	return s.queryTransactions(ctx, "SearchTransactions", sql, params)
}

// PendingTransactions implements storage.Store.
func (s *Store) PendingTransactions(ctx context.Context, userID, accountID string, start, end civil.Date) ([]domain.Transaction, error) {
	sql := `
		SELECT transaction_id, user_id, account_id, date, merchant, description,
			amount, currency, category, declared_type, type, excluded, pending,
			supersedes_id, transfer_tx_id, transfer_account_name
		FROM ` + s.table(transactionsTable) + `
		WHERE user_id = @user_id AND pending
		  AND date >= @start_date AND date <= @end_date
	`
	params := []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "start_date", Value: start},
		{Name: "end_date", Value: end},
	}
	if accountID != "" {
		sql += " AND account_id = @account_id"
		params = append(params, bigquery.QueryParameter{Name: "account_id", Value: accountID})
	}
	sql += " ORDER BY date"

	return s.queryTransactions(ctx, "PendingTransactions", sql, params)
}

// InsertTransactions implements storage.Store.
func (s *Store) InsertTransactions(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, toTransactionRow(tx))
	}

	table := s.client.DatasetInProject(s.projectID, s.datasetID).Table(transactionsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// DeleteTransactionsByIDs implements storage.Store.
func (s *Store) DeleteTransactionsByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	q := s.client.Query(`
		DELETE FROM ` + s.table(transactionsTable) + `
		WHERE transaction_id IN UNNEST(@ids)
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "ids", Value: ids}}

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeleteTransactionsByIDs: run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeleteTransactionsByIDs: wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("DeleteTransactionsByIDs: job error: %w", err)
	}

	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return int(stats.NumDMLAffectedRows), nil
	}
	return len(ids), nil
}

// SetTransferLink implements storage.Store.
func (s *Store) SetTransferLink(ctx context.Context, txID string, link domain.TransferLink) error {
	q := s.client.Query(`
		UPDATE ` + s.table(transactionsTable) + `
		SET transfer_tx_id = @transfer_tx_id,
		    transfer_account_name = @transfer_account_name,
		    type = @type,
		    excluded = TRUE
		WHERE transaction_id = @transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transfer_tx_id", Value: link.TransactionID},
		{Name: "transfer_account_name", Value: link.AccountName},
		{Name: "type", Value: string(domain.TypeTransfer)},
		{Name: "transaction_id", Value: txID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("SetTransferLink: run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("SetTransferLink: wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("SetTransferLink: job error: %w", err)
	}

	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok && stats.NumDMLAffectedRows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindAccountsByLast4 implements storage.AccountStore.
func (s *Store) FindAccountsByLast4(ctx context.Context, userID, last4 string) ([]domain.Account, error) {
	sql := `
		SELECT account_id, user_id, name, official_name, last4, issuer, source, active
		FROM ` + s.table(accountsTable) + `
		WHERE user_id = @user_id AND last4 = @last4 AND active
	`
	params := []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "last4", Value: last4},
	}
	return s.queryAccounts(ctx, "FindAccountsByLast4", sql, params)
}

// FindAccountsByName implements storage.AccountStore.
func (s *Store) FindAccountsByName(ctx context.Context, userID, name string) ([]domain.Account, error) {
	sql := `
		SELECT account_id, user_id, name, official_name, last4, issuer, source, active
		FROM ` + s.table(accountsTable) + `
		WHERE user_id = @user_id AND active
		  AND (LOWER(TRIM(name)) = LOWER(TRIM(@name))
		       OR LOWER(TRIM(IFNULL(official_name, ''))) = LOWER(TRIM(@name)))
	`
	params := []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "name", Value: name},
	}
	return s.queryAccounts(ctx, "FindAccountsByName", sql, params)
}

// ListAccounts implements storage.AccountStore.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	sql := `
		SELECT account_id, user_id, name, official_name, last4, issuer, source, active
		FROM ` + s.table(accountsTable) + `
		WHERE user_id = @user_id
		ORDER BY name
	`
	params := []bigquery.QueryParameter{{Name: "user_id", Value: userID}}
	return s.queryAccounts(ctx, "ListAccounts", sql, params)
}

// CreateAccount implements storage.AccountStore.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	table := s.client.DatasetInProject(s.projectID, s.datasetID).Table(accountsTable)
	if err := table.Inserter().Put(ctx, []*AccountRow{toAccountRow(*account)}); err != nil {
		return fmt.Errorf("CreateAccount: inserting row: %w", err)
	}
	return nil
}

func (s *Store) queryTransactions(ctx context.Context, op, sql string, params []bigquery.QueryParameter) ([]domain.Transaction, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", op, err)
	}

	var result []domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iterating rows: %w", op, err)
		}
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) queryAccounts(ctx context.Context, op, sql string, params []bigquery.QueryParameter) ([]domain.Account, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", op, err)
	}

	var result []domain.Account
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iterating rows: %w", op, err)
		}
		result = append(result, row.toDomain())
	}
	return result, nil
}

var _ storage.Store = (*Store)(nil)
