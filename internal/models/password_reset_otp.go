package models

import "time"

// PasswordResetOTP is a one-time numeric code mailed to an owner during
// password reset. Codes live for a fixed ten-minute window and become
// permanently invalid once consumed. Multiple outstanding rows per email are
// allowed; verification only ever considers the most recent live one.
type PasswordResetOTP struct {
	BaseModel

	Email      string     `gorm:"type:varchar(254);not null;index" json:"email"`
	Code       string     `gorm:"type:varchar(6);not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	Attempts   uint       `gorm:"default:0" json:"attempts"`
	Consumed   bool       `gorm:"default:false;index" json:"consumed"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}
