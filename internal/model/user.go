package model

import "time"

// User is an account holder; its ID is the ownership key of every row.
type User struct {
	ID             string `gorm:"primaryKey;size:64"`
	Email          string `gorm:"uniqueIndex;not null"`
	PasswordHash   string `gorm:"not null"`
	TelegramChatID *int64 `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
