package models

import "time"

// File records one stored object. The physical bytes are addressed solely by
// StorageKey, never by the original filename; StorageKey is assigned once at
// creation and doubles as the public identifier in every later operation.
type File struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	OwnerID     uint       `gorm:"not null;index" json:"-"`
	Owner       User       `gorm:"foreignKey:OwnerID" json:"-"`
	Filename    string     `gorm:"size:255;not null" json:"filename"`
	StorageKey  string     `gorm:"size:64;uniqueIndex;not null" json:"storage_key"`
	SizeBytes   int64      `gorm:"not null" json:"size_bytes"`
	IsPermanent bool       `gorm:"not null;default:false" json:"is_permanent"`
	// ExpiryTime is meaningful only while IsPermanent is false. Promotion keeps
	// the stored value so demotion restores the original deadline.
	ExpiryTime *time.Time `gorm:"index" json:"expiry_time"`
	ShareToken *string    `gorm:"size:64;uniqueIndex" json:"share_token,omitempty"`
	CreatedAt  time.Time  `json:"upload_time"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
