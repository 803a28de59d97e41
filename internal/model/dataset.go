package model

import (
	"time"

	"gorm.io/datatypes"
)

// Dataset is the persisted output artifact of a successful job. It is written
// exactly once by the emitter and never mutated afterwards.
type Dataset struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	JobID       uint              `gorm:"not null;index" json:"jobId"`
	Name        string            `gorm:"not null" json:"name"`
	Format      DatasetFormat     `gorm:"not null" json:"format"`
	RecordCount int               `gorm:"not null" json:"recordCount"`
	ByteSize    int64             `gorm:"not null" json:"byteSize"`
	Content     []byte            `json:"-"`
	StorageKey  string            `json:"-"`
	DownloadURL string            `json:"downloadUrl"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	ExpiresAt   *time.Time        `json:"expiresAt"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"-"`

	Job *ProcessingJob `gorm:"foreignKey:JobID" json:"-"`
}
