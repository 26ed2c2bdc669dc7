package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/storage"
	"github.com/ledgerkeep/ledgerkeep/internal/accounts"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
	"github.com/shopspring/decimal"
)

// Batch is one candidate batch as produced by the external extractor:
// one user, one account reference, the extracted transactions.
type Batch struct {
	UserID     string             `json:"user_id"`
	Account    accounts.Reference `json:"account"`
	Candidates []Candidate        `json:"transactions"`
}

// Candidate is the wire form of one extracted transaction. Amount is a
// pointer so an absent field is distinguishable from a legitimate zero.
type Candidate struct {
	Date        string           `json:"date"`
	Merchant    string           `json:"merchant"`
	Description string           `json:"description,omitempty"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    string           `json:"currency,omitempty"`
	Category    string           `json:"category,omitempty"`
	Type        string           `json:"type,omitempty"`
	Pending     bool             `json:"pending,omitempty"`
}

// ToTransaction converts the wire form into a domain transaction,
// enforcing the required fields.
func (c Candidate) ToTransaction() (domain.Transaction, error) {
	if strings.TrimSpace(c.Date) == "" {
		return domain.Transaction{}, domain.ErrMissingDate
	}
	date, err := civil.ParseDate(strings.TrimSpace(c.Date))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid date %q: %w", c.Date, err)
	}
	if c.Amount == nil {
		return domain.Transaction{}, domain.ErrMissingAmount
	}

	return domain.Transaction{
		Date:         date,
		Merchant:     c.Merchant,
		Description:  c.Description,
		Amount:       *c.Amount,
		Currency:     c.Currency,
		Category:     c.Category,
		DeclaredType: domain.TransactionType(c.Type),
		Pending:      c.Pending,
	}, nil
}

// LoadBatch reads a candidate batch from a local path or a gs:// URI.
func LoadBatch(ctx context.Context, uri string) (Batch, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(uri, "gs://") {
		data, err = fetchFromGCS(ctx, uri)
	} else {
		data, err = os.ReadFile(uri)
	}
	if err != nil {
		return Batch{}, fmt.Errorf("LoadBatch: reading %s: %w", uri, err)
	}
	return ParseBatch(data)
}

// ParseBatch decodes a candidate batch from JSON.
func ParseBatch(data []byte) (Batch, error) {
	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return Batch{}, fmt.Errorf("ParseBatch: decoding batch: %w", err)
	}
	if batch.UserID == "" {
		return Batch{}, fmt.Errorf("ParseBatch: batch has no user_id")
	}
	return batch, nil
}

func fetchFromGCS(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := splitGCSURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

func splitGCSURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed GCS URI %q", uri)
	}
	return parts[0], parts[1], nil
}
