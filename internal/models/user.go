package models

import (
	"time"
)

// User represents a registered account
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:20;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;size:30;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	IsSuperuser  bool      `gorm:"default:false" json:"-"`
	CreatedAt    time.Time `json:"date_joined"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
