package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account that owns files. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Account      string         `gorm:"size:50;uniqueIndex;not null" json:"account"`
	PasswordHash string         `gorm:"size:255;not null" json:"-"`
	UserName     string         `gorm:"size:100" json:"user_name"`
	Note         string         `gorm:"size:500" json:"note,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Roles        []Role         `gorm:"many2many:user_roles;" json:"-"`
	Files        []File         `gorm:"foreignKey:OwnerID" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
