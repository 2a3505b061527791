package models

import "time"

// User is a registered author. GoogleSubject is set for accounts created or
// linked through Google sign-in.
type User struct {
	ID            uint   `gorm:"primaryKey"`
	Username      string `gorm:"uniqueIndex;size:64;not null"`
	Email         string `gorm:"uniqueIndex;size:120;not null"`
	PasswordHash  string
	AboutMe       string  `gorm:"size:140"`
	GoogleSubject *string `gorm:"uniqueIndex"`
	LastSeen      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Followed are the users this user follows.
	Followed []*User `gorm:"many2many:followers;joinForeignKey:FollowerID;joinReferences:FollowedID"`
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
