package models

import "time"

// Upload session states. There is no failed state: a failed completion leaves
// the session pending so the caller can retry or abandon it.
const (
	UploadStatusPending = "pending"
	UploadStatusMerging = "merging"
)

// UploadSession tracks one in-progress chunked upload. Chunk slots live on disk
// under TempDir, one file per chunk index; the row only carries the declared
// metadata and the completion status.
type UploadSession struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UploadID     string    `gorm:"size:36;uniqueIndex;not null" json:"upload_id"`
	OwnerID      uint      `gorm:"not null;index" json:"-"`
	Filename     string    `gorm:"size:255;not null" json:"filename"`
	DeclaredSize int64     `json:"declared_size"`
	ContentType  string    `gorm:"size:128" json:"content_type"`
	TempDir      string    `gorm:"size:512;not null" json:"-"`
	Status       string    `gorm:"size:20;not null;default:pending;index" json:"status"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
