package domain

import "time"

// UserSettings carries the per-user drafting preferences read by the
// auto-draft batch job. Owned by the settings subsystem; this core only
// reads them.
type UserSettings struct {
	UserID        string    `json:"user_id" db:"user_id"`
	DefaultTone   string    `json:"default_tone" db:"default_tone"`
	DefaultLength string    `json:"default_length" db:"default_length"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultUserSettings returns the fallback preferences for users without a
// settings row.
func DefaultUserSettings(userID string) *UserSettings {
	return &UserSettings{
		UserID:        userID,
		DefaultTone:   ToneProfessional,
		DefaultLength: LengthMedium,
	}
}
