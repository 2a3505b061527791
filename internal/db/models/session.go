package models

import "time"

// Session is a server-side login session. ID is the hex sha256 of the token
// held in the client's cookie; the raw token is never stored.
type Session struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    uint      `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}
