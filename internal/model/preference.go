package model

import "time"

// Preference is a persisted key/value setting of the local client, such as
// the user code or whether auto check-in is enabled.
type Preference struct {
	Key       string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
