package domain

import "time"

// Categories a classification may resolve to. Anything the model returns
// outside this set is coerced to CategoryOther.
const (
	CategoryWork         = "Work"
	CategoryPersonal     = "Personal"
	CategoryFinance      = "Finance"
	CategoryShopping     = "Shopping"
	CategoryTravel       = "Travel"
	CategoryNewsletter   = "Newsletter"
	CategoryNotification = "Notification"
	CategoryOther        = "Other"
)

// Categories lists every valid classification category.
var Categories = []string{
	CategoryWork,
	CategoryPersonal,
	CategoryFinance,
	CategoryShopping,
	CategoryTravel,
	CategoryNewsletter,
	CategoryNotification,
	CategoryOther,
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Insight is the cached AI classification for one (user, message) pair.
// Unique per (UserID, EmailID); writes are upserts, never duplicates.
type Insight struct {
	UserID     string    `json:"user_id" db:"user_id"`
	EmailID    string    `json:"email_id" db:"email_id"`
	Category   string    `json:"category" db:"category"`
	Priority   int       `json:"priority" db:"priority"` // 0-100
	NeedsReply bool      `json:"needs_reply" db:"needs_reply"`
	Tags       []string  `json:"tags" db:"-"`
	Summary    string    `json:"summary" db:"summary"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
