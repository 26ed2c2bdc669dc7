package domain

// AccountSource records how an account entered the system.
type AccountSource string

const (
	AccountSourceSync      AccountSource = "sync"
	AccountSourceStatement AccountSource = "statement"
	AccountSourceManual    AccountSource = "manual"
)

// Account is one of a user's financial accounts. Accounts are created
// lazily during resolution and never deleted by this core. Last-4 plus
// user scope is the primary matching key; the display name is the
// fallback when last-4 is absent.
type Account struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Name         string `json:"name"`
	OfficialName string `json:"official_name,omitempty"`
	Last4        string `json:"last4,omitempty"`
	Issuer       string `json:"issuer,omitempty"`

	Source AccountSource `json:"source"`
	Active bool          `json:"active"`
}
