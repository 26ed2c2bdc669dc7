// Package accounts matches extracted account identifiers against a
// user's known accounts, creating accounts lazily and deferring to the
// caller when a match is ambiguous.
package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ledgerkeep/ledgerkeep/internal/domain"
	"github.com/ledgerkeep/ledgerkeep/internal/storage"
	"github.com/rs/zerolog"
)

// Reference is the account identity extracted alongside a candidate
// batch: some combination of last-4 digits and official/display names.
type Reference struct {
	Last4        string `json:"last4,omitempty"`
	OfficialName string `json:"official_name,omitempty"`
	Name         string `json:"name,omitempty"`
	Issuer       string `json:"issuer,omitempty"`
}

func (r Reference) empty() bool {
	return r.Last4 == "" && r.OfficialName == "" && r.Name == ""
}

// Resolution is the outcome of resolving one Reference.
//
// Exactly one of the following holds: Account is set (resolved or
// freshly created), Candidates is non-empty (the caller must
// disambiguate; the resolver never guesses), or Deferred is true (no
// identifier at all; the caller must prompt for account selection).
type Resolution struct {
	Account    *domain.Account  `json:"account,omitempty"`
	Created    bool             `json:"created,omitempty"`
	Candidates []domain.Account `json:"candidates,omitempty"`
	Deferred   bool             `json:"deferred,omitempty"`
}

// Resolver looks up and lazily creates accounts through the store.
type Resolver struct {
	store storage.AccountStore
	log   zerolog.Logger
}

// NewResolver creates a resolver over the given account store.
func NewResolver(store storage.AccountStore, log zerolog.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// Resolve matches ref against the user's accounts. Last-4 is the
// primary key; names are the fallback. Zero matches creates a new
// account, one match resolves, several matches surface as candidates.
func (r *Resolver) Resolve(ctx context.Context, userID string, ref Reference) (Resolution, error) {
	if ref.empty() {
		return Resolution{Deferred: true}, nil
	}

	if ref.Last4 != "" {
		return r.resolveByLast4(ctx, userID, ref)
	}
	return r.resolveByName(ctx, userID, ref)
}

func (r *Resolver) resolveByLast4(ctx context.Context, userID string, ref Reference) (Resolution, error) {
	matches, err := r.store.FindAccountsByLast4(ctx, userID, ref.Last4)
	if err != nil {
		return Resolution{}, fmt.Errorf("Resolve: finding accounts by last4: %w", err)
	}

	switch len(matches) {
	case 0:
		account, err := r.create(ctx, userID, ref)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Account: account, Created: true}, nil
	case 1:
		return Resolution{Account: &matches[0]}, nil
	default:
		r.log.Info().
			Str("user_id", userID).
			Str("last4", ref.Last4).
			Int("candidates", len(matches)).
			Msg("Account resolution needs disambiguation")
		return Resolution{Candidates: matches}, nil
	}
}

func (r *Resolver) resolveByName(ctx context.Context, userID string, ref Reference) (Resolution, error) {
	name := ref.OfficialName
	if name == "" {
		name = ref.Name
	}

	matches, err := r.store.FindAccountsByName(ctx, userID, name)
	if err != nil {
		return Resolution{}, fmt.Errorf("Resolve: finding accounts by name: %w", err)
	}

	switch len(matches) {
	case 0:
		account, err := r.create(ctx, userID, ref)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Account: account, Created: true}, nil
	case 1:
		return Resolution{Account: &matches[0]}, nil
	default:
		return Resolution{Candidates: matches}, nil
	}
}

func (r *Resolver) create(ctx context.Context, userID string, ref Reference) (*domain.Account, error) {
	account := &domain.Account{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         displayName(ref),
		OfficialName: ref.OfficialName,
		Last4:        ref.Last4,
		Issuer:       ref.Issuer,
		Source:       domain.AccountSourceStatement,
		Active:       true,
	}
	if err := r.store.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("Resolve: creating account: %w", err)
	}

	r.log.Info().
		Str("user_id", userID).
		Str("account_id", account.ID).
		Str("name", account.Name).
		Msg("Created account")

	return account, nil
}

// displayName picks the best available label, falling back to a
// synthesized "Account ****NNNN".
func displayName(ref Reference) string {
	if ref.OfficialName != "" {
		return ref.OfficialName
	}
	if ref.Name != "" {
		return ref.Name
	}
	return fmt.Sprintf("Account ****%s", strings.TrimSpace(ref.Last4))
}
