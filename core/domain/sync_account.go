package domain

import "time"

// Mail providers in façade priority order.
const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
)

// ProviderPriority is the fixed order the mailbox service tries providers in.
var ProviderPriority = []string{ProviderGmail, ProviderOutlook}

// Account links a user to a provider mailbox via its stored refresh token.
// Owned by the auth subsystem; this core reads and refreshes, never creates
// or revokes.
type Account struct {
	UserID       string    `json:"user_id" db:"user_id"`
	Provider     string    `json:"provider" db:"provider"`
	Email        string    `json:"email" db:"email"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
