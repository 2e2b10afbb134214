package domain

import "time"

// Draft statuses.
const (
	DraftStatusDraft = "draft"
	DraftStatusSent  = "sent"
)

// Draft tones and lengths accepted by the drafting prompt. Free-form values
// pass through to the model, these are just the ones settings offer.
const (
	ToneProfessional = "Professional"
	ToneCasual       = "Casual"
	ToneFriendly     = "Friendly"
	ToneShort        = "Short"

	LengthShort  = "Short"
	LengthMedium = "Medium"
	LengthLong   = "Long"
)

// Draft is one versioned candidate reply for an email. Versions are unique
// per EmailID and assigned as max(version)+1 at creation; a version number is
// never reused even after earlier drafts are deleted. Drafts are immutable:
// regeneration creates a new version.
type Draft struct {
	ID          int64     `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	EmailID     string    `json:"email_id" db:"email_id"`
	Version     int       `json:"version" db:"version"`
	Tone        string    `json:"tone" db:"tone"`
	Length      string    `json:"length" db:"length"`
	Instruction *string   `json:"instruction,omitempty" db:"instruction"`
	Content     string    `json:"content" db:"content"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
