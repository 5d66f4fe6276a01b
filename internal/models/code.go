package models

import (
	"time"
)

// Code represents a user's referral code with a bounded lifetime.
// The unique index on UserID is the authoritative guard for the
// one-active-code-per-user rule; rows are hard-deleted, so the index
// only ever covers live codes.
type Code struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Code      string    `gorm:"uniqueIndex;size:10;not null" json:"code"`
	LiveDays  int       `gorm:"not null" json:"live_days"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
}

// TableName specifies the table name for Code model
func (Code) TableName() string {
	return "codes"
}

// IsExpired reports whether the code has expired as of now.
func (c *Code) IsExpired() bool {
	return c.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the code has expired as of t.
func (c *Code) IsExpiredAt(t time.Time) bool {
	return t.After(c.ExpiresAt)
}
