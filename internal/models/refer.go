package models

import (
	"time"
)

// Refer represents a referer→referral edge. An edge is created once at
// registration time and never updated or deleted.
type Refer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RefererID  uint      `gorm:"not null;uniqueIndex:idx_referer_referral" json:"referer_id"`
	Referer    *User     `gorm:"foreignKey:RefererID" json:"referer,omitempty"`
	ReferralID uint      `gorm:"not null;uniqueIndex:idx_referer_referral" json:"referral_id"`
	Referral   *User     `gorm:"foreignKey:ReferralID" json:"referral,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for Refer model
func (Refer) TableName() string {
	return "refers"
}
