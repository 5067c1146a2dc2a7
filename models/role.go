package models

import "time"

// UnlimitedQuota is the sentinel meaning "no limit" for the numeric quota columns.
const UnlimitedQuota = -1

// Role groups permissions and carries the quota columns that drive the file
// lifecycle engine. A lower Level means a more privileged role.
type Role struct {
	ID                 uint         `gorm:"primaryKey" json:"id"`
	RoleName           string       `gorm:"size:50;uniqueIndex;not null" json:"role_name"`
	Level              int          `gorm:"not null;default:99" json:"level"`
	FileLimit          int          `gorm:"not null;default:-1" json:"file_limit"`
	PermanentFileLimit int          `gorm:"not null;default:-1" json:"permanent_file_limit"`
	FileLifetimeDays   int          `gorm:"not null;default:-1" json:"file_lifetime_days"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	Permissions        []Permission `gorm:"many2many:role_permissions;" json:"-"`
}

// Permission is a single permission code checked by the authorization gate.
type Permission struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Code           string    `gorm:"size:100;uniqueIndex;not null" json:"code"`
	PermissionName string    `gorm:"size:100;not null" json:"permission_name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Permission codes used by the file engine's routes.
const (
	PermFileUpload    = "file:upload"
	PermFileRead      = "file:read:own"
	PermFileDelete    = "file:delete:own"
	PermFileShare     = "file:share"
	PermFilePermanent = "file:set_permanent"
)
