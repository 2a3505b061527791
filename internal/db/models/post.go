package models

import (
	"strconv"
	"time"
)

// Post is a short status update.
type Post struct {
	ID        uint      `gorm:"primaryKey"`
	Body      string    `gorm:"size:140;not null"`
	UserID    uint      `gorm:"index;not null"`
	Author    User      `gorm:"foreignKey:UserID"`
	CreatedAt time.Time `gorm:"index"`
}

// DocumentID is the id the post is stored under in the search index.
func (p *Post) DocumentID() string {
	return strconv.FormatUint(uint64(p.ID), 10)
}

// SearchDocument returns the fields that are full-text indexed.
func (p *Post) SearchDocument() map[string]interface{} {
	return map[string]interface{}{
		"body": p.Body,
	}
}
