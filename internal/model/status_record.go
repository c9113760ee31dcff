package model

import "time"

// StatusRecord is one row of the append-only status log.
type StatusRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserCode  string    `gorm:"size:64;not null;index:idx_status_records_user_ts,priority:1"`
	Status    string    `gorm:"size:8;not null"`
	Timestamp time.Time `gorm:"not null;index;index:idx_status_records_user_ts,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}
